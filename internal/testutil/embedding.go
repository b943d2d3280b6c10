package testutil

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/Veraticus/modality/internal/model"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "you": true, "have": true, "that": true, "with": true,
	"for": true, "are": true, "this": true, "your": true, "from": true, "when": true,
	"what": true, "about": true, "into": true, "can": true, "not": true, "but": true,
	"them": true, "they": true, "was": true, "were": true, "has": true, "how": true,
	"their": true, "its": true, "our": true, "all": true,
}

// VocabBackend is a deterministic bag-of-words embedding backend. Each new
// token is assigned the next free dimension, so distinct tokens never collide
// until the vocabulary is full; later tokens are ignored.
type VocabBackend struct {
	vocab map[string]int
	Model string
	dim   int
	calls int
	mu    sync.Mutex
}

// NewVocabBackend creates a backend producing vectors of dim components.
func NewVocabBackend(dim int) *VocabBackend {
	return &VocabBackend{vocab: make(map[string]int), dim: dim, Model: "vocab-test"}
}

// ModelName returns the fake model identifier.
func (b *VocabBackend) ModelName() string { return b.Model }

// Calls returns how many backend requests were made.
func (b *VocabBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Embed embeds one text.
func (b *VocabBackend) Embed(_ context.Context, text string) (model.Vector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.vectorLocked(text), nil
}

// EmbedBatch embeds texts in one request.
func (b *VocabBackend) EmbedBatch(_ context.Context, texts []string) ([]model.Vector, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	out := make([]model.Vector, len(texts))
	for i, t := range texts {
		out[i] = b.vectorLocked(t)
	}
	return out, nil
}

func (b *VocabBackend) vectorLocked(text string) model.Vector {
	v := make(model.Vector, b.dim)
	for _, tok := range Tokenize(text) {
		idx, ok := b.vocab[tok]
		if !ok {
			if len(b.vocab) >= b.dim {
				continue
			}
			idx = len(b.vocab)
			b.vocab[tok] = idx
		}
		v[idx]++
	}
	return v
}

// Tokenize lowercases text and splits it into content words.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}
