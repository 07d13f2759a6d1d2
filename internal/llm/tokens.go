package llm

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter counts tokens with the BPE encoding of a model.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateCounter approximates token counts from rune length. It
// overestimates for typical English text, which keeps the size guard on
// the safe side.
type EstimateCounter struct {
	RunesPerToken int
}

// Count returns ceil(runes / RunesPerToken); RunesPerToken <= 0 means 3.
func (c EstimateCounter) Count(text string) int {
	per := c.RunesPerToken
	if per <= 0 {
		per = 3
	}
	n := utf8.RuneCountInString(text)
	return (n + per - 1) / per
}

// NewTokenCounter returns a tiktoken counter for model. When the encoding
// cannot be loaded it returns an EstimateCounter together with the error,
// so the caller can log the degradation and still run.
func NewTokenCounter(model string) (TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return EstimateCounter{}, fmt.Errorf("load tokenizer for %s: %w", model, err)
	}
	return &TiktokenCounter{enc: enc}, nil
}
