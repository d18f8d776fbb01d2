package embeddings

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// DefaultKeywordGroups are the themes KeywordEmbedder scores by default.
var DefaultKeywordGroups = [][]string{
	{"calm", "calmer", "peace", "peaceful", "relaxed", "lake", "walk", "quiet", "serene"},
	{"anxious", "anxiety", "nervous", "worried", "presentation", "stress", "stressed"},
	{"furious", "angry", "anger", "annoyed", "coworker", "frustrated"},
	{"tired", "exhausting", "exhausted", "sleep", "sleepy"},
	{"happy", "joy", "grateful", "learned", "proud"},
}

// KeywordEmbedder is a deterministic Provider for tests. Each dimension counts
// the words of one keyword group, plus a constant bias dimension so no text
// embeds to the zero vector.
type KeywordEmbedder struct {
	groups [][]string

	mu    sync.Mutex
	calls int
	err   error
}

// NewKeywordEmbedder returns an embedder over groups, or DefaultKeywordGroups
// when none are given.
func NewKeywordEmbedder(groups ...[]string) *KeywordEmbedder {
	if len(groups) == 0 {
		groups = DefaultKeywordGroups
	}
	return &KeywordEmbedder{groups: groups}
}

// Embed returns the keyword counts of text.
func (k *KeywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k.mu.Lock()
	k.calls++
	err := k.err
	k.mu.Unlock()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, ctxErr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, ErrEmptyInput)
	}

	vec := make([]float32, len(k.groups)+1)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		for i, group := range k.groups {
			for _, kw := range group {
				if w == kw {
					vec[i]++
				}
			}
		}
	}
	vec[len(k.groups)] = 1
	return vec, nil
}

// Dimension returns the number of groups plus the bias dimension.
func (k *KeywordEmbedder) Dimension() int {
	return len(k.groups) + 1
}

// Close is a no-op.
func (k *KeywordEmbedder) Close() error {
	return nil
}

// Calls returns how many times Embed was called.
func (k *KeywordEmbedder) Calls() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.calls
}

// FailWith makes subsequent Embed calls fail with err. nil restores success.
func (k *KeywordEmbedder) FailWith(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.err = err
}
