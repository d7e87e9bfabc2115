package token

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/0gfoundation/0g-emissions/internal/address"
	"github.com/0gfoundation/0g-emissions/internal/runtime"
)

const (
	tagTransfer byte = 0

	transferDataSize = 1 + 3*address.Size + 8
)

var ErrInvalidInstruction = errors.New("token: invalid instruction data")

// Program exposes signer-authorized transfers as a batch instruction.
type Program struct{}

func (Program) Process(ic *runtime.InvocationContext, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstruction
	}
	switch data[0] {
	case tagTransfer:
		if len(data) != transferDataSize {
			return fmt.Errorf("%w: transfer is %d bytes, got %d", ErrInvalidInstruction, transferDataSize, len(data))
		}
		var args TransferArgs
		copy(args.Mint[:], data[1:33])
		copy(args.From[:], data[33:65])
		copy(args.To[:], data[65:97])
		args.Amount = binary.LittleEndian.Uint64(data[97:105])
		return Transfer(ic, args)
	default:
		return fmt.Errorf("%w: unknown tag %d", ErrInvalidInstruction, data[0])
	}
}

// NewTransferInstruction encodes a transfer that args.From must sign.
func NewTransferInstruction(args TransferArgs) runtime.Instruction {
	data := make([]byte, 0, transferDataSize)
	data = append(data, tagTransfer)
	data = append(data, args.Mint[:]...)
	data = append(data, args.From[:]...)
	data = append(data, args.To[:]...)
	data = binary.LittleEndian.AppendUint64(data, args.Amount)
	return runtime.Instruction{ProgramID: ProgramID, Data: data}
}
