package usecase

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter returns the number of tokens in s.
type TokenCounter func(s string) int

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// NewTokenCounter counts with the cl100k_base encoding. When the encoding
// cannot be loaded it falls back to four bytes per token.
func NewTokenCounter() TokenCounter {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return estimateTokens
	}
	return func(s string) int { return len(enc.Encode(s, nil, nil)) }
}

func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// trimToBudget keeps leading blocks while their combined size fits max.
// At least one block is always kept so a single long note still gets summarized.
func trimToBudget(blocks []string, max int, count TokenCounter) []string {
	if max <= 0 || count == nil {
		return blocks
	}
	used := 0
	for i, b := range blocks {
		used += count(b)
		if used > max && i > 0 {
			return blocks[:i]
		}
	}
	return blocks
}
