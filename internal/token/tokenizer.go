// Package token wraps a byte-pair-encoding tokenizer behind the counting
// contract the rest of the pipeline depends on.
//
// One encoding is used for the whole process: mixing encodings would corrupt
// the budget arithmetic in internal/chat. Counts are estimates relative to
// the generation service's own accounting; callers add a safety buffer
// before comparing against hard model limits.
package token

import (
	"errors"
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// encodingName is the BPE encoding used process-wide.
// cl100k_base (GPT-4 family) is a close enough approximation for all
// providers that the safety buffer absorbs the drift.
const encodingName = "cl100k_base"

// ErrInvalidRange indicates a decode request over a non-contiguous or
// out-of-range token id subsequence.
var ErrInvalidRange = errors.New("invalid token range")

// Adapter converts text to and from token id sequences and provides token
// counts. Safe for concurrent use.
type Adapter struct {
	enc *tiktoken.Tiktoken
}

// New creates an Adapter using the cl100k_base encoding.
func New() (*Adapter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("loading %s encoding: %w", encodingName, err)
	}
	return &Adapter{enc: enc}, nil
}

// Count returns the approximate number of tokens in text.
func (a *Adapter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(a.enc.Encode(text, nil, nil))
}

// Encode converts text to its token id sequence.
func (a *Adapter) Encode(text string) []int {
	return a.enc.Encode(text, nil, nil)
}

// Decode converts a token id sequence back to text.
// Encoding is lossless: Decode(Encode(text)) == text.
func (a *Adapter) Decode(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	return a.enc.Decode(ids)
}

// DecodeRange decodes the contiguous subsequence ids[lo:hi].
// Fails with ErrInvalidRange when the bounds are inverted or fall outside
// the sequence.
func (a *Adapter) DecodeRange(ids []int, lo, hi int) (string, error) {
	if lo < 0 || hi > len(ids) || lo > hi {
		return "", fmt.Errorf("%w: [%d:%d] of %d tokens", ErrInvalidRange, lo, hi, len(ids))
	}
	return a.Decode(ids[lo:hi]), nil
}

// Tail returns text truncated to its last n tokens.
// Returns text unchanged when it already fits.
func (a *Adapter) Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	ids := a.Encode(text)
	if len(ids) <= n {
		return text
	}
	return a.Decode(ids[len(ids)-n:])
}
