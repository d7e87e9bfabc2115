// Package runtime executes batches of instructions as a single atomic unit
// against the ledger and lets programs introspect sibling instructions.
package runtime

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/events"
	"github.com/0gfoundation/0g-emissions/internal/ledger"
)

var ErrUnknownProgram = errors.New("runtime: unknown program")

// Program processes one instruction's data.
type Program interface {
	Process(ic *InvocationContext, data []byte) error
}

// InstructionError reports which instruction aborted a batch.
type InstructionError struct {
	Index     int
	ProgramID address.Address
	Err       error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (%s): %v", e.Index, e.ProgramID, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }

// Receipt describes a committed batch.
type Receipt struct {
	BatchID      string `json:"batch_id"`
	ExecutedAt   int64  `json:"executed_at"`
	Instructions int    `json:"instructions"`
	Events       int    `json:"events"`
}

// Executor runs batches. Programs must be registered before the first
// Execute call.
type Executor struct {
	store    *ledger.Store
	clock    Clock
	pub      events.Publisher
	programs map[address.Address]Program
	log      *zap.Logger
}

func NewExecutor(store *ledger.Store, clock Clock, pub events.Publisher, log *zap.Logger) *Executor {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Executor{
		store:    store,
		clock:    clock,
		pub:      pub,
		programs: make(map[address.Address]Program),
		log:      log,
	}
}

// Register binds a program to its id.
func (e *Executor) Register(id address.Address, p Program) {
	e.programs[id] = p
}

// Execute validates the batch signatures, then runs every instruction in
// order inside one ledger transaction. The first failing instruction aborts
// the batch and nothing is written. Events are published only after commit.
func (e *Executor) Execute(ctx context.Context, b *Batch) (*Receipt, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	now := e.clock.Now()

	var emitted []Event
	err := e.store.Update(ctx, func(tx *ledger.Tx) error {
		emitted = emitted[:0]
		for i, ix := range b.Instructions {
			prog, ok := e.programs[ix.ProgramID]
			if !ok {
				return &InstructionError{Index: i, ProgramID: ix.ProgramID, Err: ErrUnknownProgram}
			}
			ic := &InvocationContext{
				ctx:       ctx,
				tx:        tx,
				batch:     b,
				index:     i,
				now:       now,
				programID: ix.ProgramID,
				events:    &emitted,
			}
			if err := prog.Process(ic, ix.Data); err != nil {
				return &InstructionError{Index: i, ProgramID: ix.ProgramID, Err: err}
			}
		}
		return nil
	})
	if err != nil {
		e.log.Debug("batch rejected",
			zap.String("batch", b.ID.String()),
			zap.Int("instructions", len(b.Instructions)),
			zap.Error(err),
		)
		return nil, err
	}

	for _, ev := range emitted {
		if err := e.pub.Publish(ctx, ev.Topic, ev.Payload); err != nil {
			e.log.Warn("publish event failed",
				zap.String("batch", b.ID.String()),
				zap.String("topic", ev.Topic),
				zap.Error(err),
			)
		}
	}

	e.log.Info("batch committed",
		zap.String("batch", b.ID.String()),
		zap.Int("instructions", len(b.Instructions)),
		zap.Int64("executed_at", now),
	)
	return &Receipt{
		BatchID:      b.ID.String(),
		ExecutedAt:   now,
		Instructions: len(b.Instructions),
		Events:       len(emitted),
	}, nil
}
