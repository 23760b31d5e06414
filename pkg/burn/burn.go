// Copyright 2025 Certen Protocol
//
// BurnDiscriminator
// Resolves the dual identity of a Transfer note's auxiliary field
// (spec.md §4.4): empty means an ordinary transfer, 32 bytes with the
// magic prefix means a burn to the embedded Ethereum address, anything
// else is malformed and must be a hard reject.

package burn

import (
	"bytes"
	"fmt"

	"github.com/cape-protocol/cape-validator/pkg/capetypes"
)

// MagicPrefix is the 12-byte ASCII tag that opens a burn aux field
// (spec.md §6 "Persisted/encoded constants").
const MagicPrefix = "EsSCAPE burn"

// AuxFieldLen is the fixed total length of a burn aux field.
const AuxFieldLen = 32

// Kind classifies the result of parsing a Transfer note's aux field.
type Kind int

const (
	// TransferOnly means the note is an ordinary confidential transfer.
	TransferOnly Kind = iota
	// Burn means the note unwraps to the embedded Ethereum destination.
	Burn
	// Malformed means the aux field is neither empty nor a valid burn tag.
	Malformed
)

func (k Kind) String() string {
	switch k {
	case TransferOnly:
		return "TransferOnly"
	case Burn:
		return "Burn"
	default:
		return "Malformed"
	}
}

// Result is the outcome of Discriminate: a Kind, plus the destination
// address when Kind == Burn.
type Result struct {
	Kind Kind
	Dst  capetypes.EthereumAddr
}

// Discriminate parses a Transfer note's auxiliary bytes per spec.md §4.4:
//
//	len == 0                                  -> TransferOnly
//	len == 32 && aux[0:12] == MagicPrefix      -> Burn(aux[12:32])
//	otherwise                                 -> Malformed
func Discriminate(aux []byte) Result {
	switch len(aux) {
	case 0:
		return Result{Kind: TransferOnly}
	case AuxFieldLen:
		if !bytes.Equal(aux[:len(MagicPrefix)], []byte(MagicPrefix)) {
			return Result{Kind: Malformed}
		}
		var dst capetypes.EthereumAddr
		copy(dst[:], aux[len(MagicPrefix):AuxFieldLen])
		return Result{Kind: Burn, Dst: dst}
	default:
		return Result{Kind: Malformed}
	}
}

// Encode builds the 32-byte burn aux field for a given destination — the
// inverse of Discriminate's Burn arm, used by pkg/blockassembler's burn note
// constructor.
func Encode(dst capetypes.EthereumAddr) []byte {
	out := make([]byte, 0, AuxFieldLen)
	out = append(out, []byte(MagicPrefix)...)
	out = append(out, dst[:]...)
	if len(out) != AuxFieldLen {
		panic(fmt.Sprintf("burn: encoded aux field has %d bytes, want %d", len(out), AuxFieldLen))
	}
	return out
}
