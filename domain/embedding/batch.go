package embedding

import "fmt"

// charsPerToken is the heuristic used to estimate token counts from text length.
const charsPerToken = 4

// Default batch limits.
const (
	DefaultMaxBatchSize      = 32
	DefaultMaxTokensPerBatch = 8192
)

// EstimateTokens returns ceil(len(text)/4), the token estimate used for batching.
func EstimateTokens(text string) int {
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// Batch is a contiguous slice of the input together with the positions its
// texts had in the original list.
type Batch struct {
	texts   []string
	indices []int
}

// Texts returns the batch texts.
func (b Batch) Texts() []string { return b.texts }

// Indices returns the original input index of each text.
func (b Batch) Indices() []int { return b.indices }

// Len returns the number of texts in the batch.
func (b Batch) Len() int { return len(b.texts) }

// Budget bounds batches by item count and estimated tokens.
// A non-positive limit disables that bound.
type Budget struct {
	maxBatchSize      int
	maxTokensPerBatch int
}

// NewBudget creates a Budget.
func NewBudget(maxBatchSize, maxTokensPerBatch int) (Budget, error) {
	if maxBatchSize < 0 || maxTokensPerBatch < 0 {
		return Budget{}, fmt.Errorf("NewBudget: limits must not be negative, got size=%d tokens=%d", maxBatchSize, maxTokensPerBatch)
	}
	return Budget{maxBatchSize: maxBatchSize, maxTokensPerBatch: maxTokensPerBatch}, nil
}

// DefaultBudget returns a budget of 32 texts and 8192 estimated tokens per batch.
func DefaultBudget() Budget {
	return Budget{maxBatchSize: DefaultMaxBatchSize, maxTokensPerBatch: DefaultMaxTokensPerBatch}
}

// MaxBatchSize returns the item limit.
func (b Budget) MaxBatchSize() int { return b.maxBatchSize }

// MaxTokensPerBatch returns the estimated token limit.
func (b Budget) MaxTokensPerBatch() int { return b.maxTokensPerBatch }

// Partition splits texts into ordered batches. A new batch starts when adding
// the next text to a non-empty batch would exceed either limit, so a single
// oversized text always ends up alone in its own batch.
func (b Budget) Partition(texts []string) []Batch {
	if len(texts) == 0 {
		return nil
	}

	var batches []Batch
	current := Batch{}
	tokens := 0

	for i, text := range texts {
		cost := EstimateTokens(text)
		if current.Len() > 0 && b.exceeds(current.Len()+1, tokens+cost) {
			batches = append(batches, current)
			current = Batch{}
			tokens = 0
		}
		current.texts = append(current.texts, text)
		current.indices = append(current.indices, i)
		tokens += cost
	}

	return append(batches, current)
}

func (b Budget) exceeds(items, tokens int) bool {
	if b.maxBatchSize > 0 && items > b.maxBatchSize {
		return true
	}
	return b.maxTokensPerBatch > 0 && tokens > b.maxTokensPerBatch
}
