// Package model declares the external collaborators the decoding engine
// drives: a tokenizer owning the vocabulary and a model producing
// next-token logits. The engine never loads weights or builds tokenizers;
// it only consumes these contracts.
package model

import "context"

// Tokenizer is the bidirectional token id <-> string mapping owned by the
// caller. Implementations must be safe for concurrent use; the engine
// shares one tokenizer across sessions.
type Tokenizer interface {
	Encode(s string) ([]int32, error)
	Decode(ids []int32) (string, error)
	Vocabulary() *Vocabulary
}

// Model produces logits over the vocabulary for a token history. It is
// called exactly once per decoding step and is the only suspension point
// in the loop; the context passed in is the session's.
//
// For reproducible runs the model must be deterministic given an
// identical history.
type Model interface {
	NextTokenLogits(ctx context.Context, history []int32) ([]float32, error)
}
