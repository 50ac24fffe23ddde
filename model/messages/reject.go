package messages

import (
	"fmt"

	"github.com/membercoin/membernode/model/inv"
)

// RejectCode is the reason a delivered object was refused.
type RejectCode uint8

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43

	// RejectNotFound is not a wire code; it marks a source that answered a
	// request with not-found.
	RejectNotFound RejectCode = 0xff
)

func (c RejectCode) String() string {
	switch c {
	case RejectMalformed:
		return "malformed"
	case RejectInvalid:
		return "invalid"
	case RejectObsolete:
		return "obsolete"
	case RejectDuplicate:
		return "duplicate"
	case RejectNonstandard:
		return "nonstandard"
	case RejectDust:
		return "dust"
	case RejectInsufficientFee:
		return "insufficientfee"
	case RejectCheckpoint:
		return "checkpoint"
	case RejectNotFound:
		return "notfound"
	}
	return fmt.Sprintf("unknown(%#x)", uint8(c))
}

// Reject tells a peer an object it delivered was refused.
type Reject struct {
	Inv    inv.Inv
	Code   RejectCode
	Reason string
}
