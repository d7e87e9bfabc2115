package emissions

import (
	"encoding/binary"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
	"github.com/0gfoundation/0g-emissions/internal/sigverify"
	"github.com/0gfoundation/0g-emissions/internal/ticket"
)

// Instruction tags
const (
	TagInitializeConfig byte = 0
	TagRedeem           byte = 1
)

const (
	initializeConfigSize = 1 + 2*address.Size
	redeemSize           = 1 + address.Size + 8 + 8 + 8 + ticket.SignatureSize
)

type initializeConfigArgs struct {
	Admin address.Address
	Mint  address.Address
}

func decodeInitializeConfig(data []byte) (initializeConfigArgs, error) {
	var args initializeConfigArgs
	if len(data) != initializeConfigSize {
		return args, ErrInvalidInstruction
	}
	copy(args.Admin[:], data[1:33])
	copy(args.Mint[:], data[33:65])
	return args, nil
}

func decodeRedeem(data []byte) (ticket.Ticket, error) {
	var t ticket.Ticket
	if len(data) != redeemSize {
		return t, ErrInvalidInstruction
	}
	copy(t.Beneficiary[:], data[1:33])
	t.Amount = binary.LittleEndian.Uint64(data[33:41])
	t.Nonce = binary.LittleEndian.Uint64(data[41:49])
	t.Expiry = int64(binary.LittleEndian.Uint64(data[49:57]))
	copy(t.Signature[:], data[57:121])
	return t, nil
}

// NewInitializeConfigInstruction creates the config with admin as the
// ticket signing key. admin must sign the batch.
func NewInitializeConfigInstruction(program, admin, mint address.Address) runtime.Instruction {
	data := make([]byte, 0, initializeConfigSize)
	data = append(data, TagInitializeConfig)
	data = append(data, admin[:]...)
	data = append(data, mint[:]...)
	return runtime.Instruction{ProgramID: program, Data: data}
}

// NewRedeemInstruction encodes a ticket redemption. The beneficiary must
// sign the batch and the instruction must directly follow a signature
// verification instruction for the ticket (see NewRedeemBatch).
func NewRedeemInstruction(program address.Address, t *ticket.Ticket) runtime.Instruction {
	data := make([]byte, 0, redeemSize)
	data = append(data, TagRedeem)
	data = append(data, t.Beneficiary[:]...)
	data = binary.LittleEndian.AppendUint64(data, t.Amount)
	data = binary.LittleEndian.AppendUint64(data, t.Nonce)
	data = binary.LittleEndian.AppendUint64(data, uint64(t.Expiry))
	data = append(data, t.Signature[:]...)
	return runtime.Instruction{ProgramID: program, Data: data}
}

// NewRedeemBatch returns an unsigned batch that proves admin's signature
// over t and then redeems it.
func NewRedeemBatch(program, admin address.Address, t *ticket.Ticket) (*runtime.Batch, error) {
	proof, err := sigverify.NewInstruction(admin[:], t.Message(), t.Signature[:])
	if err != nil {
		return nil, err
	}
	return runtime.NewBatch(proof, NewRedeemInstruction(program, t)), nil
}
