package emissions

import "fmt"

// ErrorCode is a program failure reported to the submitter of a batch.
type ErrorCode uint32

const (
	ErrTicketExpired ErrorCode = 6000 + iota
	ErrAlreadyClaimed
	ErrInvalidSignature
	ErrConfigExists
	ErrConfigNotFound
	ErrMissingSigner
	ErrInvalidInstruction
)

func (c ErrorCode) Error() string {
	switch c {
	case ErrTicketExpired:
		return "The claim ticket has expired"
	case ErrAlreadyClaimed:
		return "This ticket has already been claimed"
	case ErrInvalidSignature:
		return "Invalid signature on the claim ticket"
	case ErrConfigExists:
		return "The config has already been initialized"
	case ErrConfigNotFound:
		return "The config has not been initialized"
	case ErrMissingSigner:
		return "A required signer is missing"
	case ErrInvalidInstruction:
		return "Invalid instruction data"
	default:
		return fmt.Sprintf("unknown error code %d", uint32(c))
	}
}

func (c ErrorCode) String() string {
	switch c {
	case ErrTicketExpired:
		return "TicketExpired"
	case ErrAlreadyClaimed:
		return "AlreadyClaimed"
	case ErrInvalidSignature:
		return "InvalidSignature"
	case ErrConfigExists:
		return "ConfigExists"
	case ErrConfigNotFound:
		return "ConfigNotFound"
	case ErrMissingSigner:
		return "MissingSigner"
	case ErrInvalidInstruction:
		return "InvalidInstruction"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint32(c))
	}
}
