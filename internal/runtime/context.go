package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
)

// ErrInstructionIndex is returned when introspection asks for an
// instruction outside the batch.
var ErrInstructionIndex = errors.New("runtime: instruction index out of range")

// Event is published after the batch commits.
type Event struct {
	Topic   string
	Payload any
}

// InvocationContext is what a program sees while processing one
// instruction: the ledger transaction, the batch clock reading and
// read-only access to the rest of the batch.
type InvocationContext struct {
	ctx       context.Context
	tx        *ledger.Tx
	batch     *Batch
	index     int
	now       int64
	programID address.Address
	events    *[]Event
}

func (ic *InvocationContext) Context() context.Context        { return ic.ctx }
func (ic *InvocationContext) Tx() *ledger.Tx                  { return ic.tx }
func (ic *InvocationContext) Now() int64                      { return ic.now }
func (ic *InvocationContext) ProgramID() address.Address      { return ic.programID }
func (ic *InvocationContext) BatchID() string                 { return ic.batch.ID.String() }
func (ic *InvocationContext) IsSigner(a address.Address) bool { return ic.batch.IsSigner(a) }

// CurrentIndex is the position of the executing instruction in the batch.
func (ic *InvocationContext) CurrentIndex() int { return ic.index }

// InstructionAt returns a copy of the i-th instruction of the batch.
func (ic *InvocationContext) InstructionAt(i int) (Instruction, error) {
	if i < 0 || i >= len(ic.batch.Instructions) {
		return Instruction{}, fmt.Errorf("%w: %d of %d", ErrInstructionIndex, i, len(ic.batch.Instructions))
	}
	ix := ic.batch.Instructions[i]
	return Instruction{
		ProgramID: ix.ProgramID,
		Data:      append([]byte(nil), ix.Data...),
	}, nil
}

// Emit queues an event; it is dropped if the batch does not commit.
func (ic *InvocationContext) Emit(topic string, payload any) {
	*ic.events = append(*ic.events, Event{Topic: topic, Payload: payload})
}
