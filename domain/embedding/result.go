package embedding

// Vector is one produced embedding together with its provenance.
type Vector struct {
	values  []float64
	backend string
	model   string
}

// NewVector creates a Vector.
func NewVector(values []float64, backend, model string) Vector {
	return Vector{values: values, backend: backend, model: model}
}

// Values returns the vector components.
func (v Vector) Values() []float64 { return v.values }

// Dimensions returns the vector length.
func (v Vector) Dimensions() int { return len(v.values) }

// Backend returns the name of the backend that produced the vector.
func (v Vector) Backend() string { return v.backend }

// Model returns the model that produced the vector.
func (v Vector) Model() string { return v.model }

// Result is the outcome of one generation request. Embeddings has one entry
// per input text in input order; nil entries are items no backend could embed.
type Result struct {
	embeddings      []*Vector
	tokensProcessed int
	distribution    map[string]int
	primaryBackend  string
	fallbackUsed    bool
	requestID       string
}

// NewResult creates a Result. The backend distribution is derived from the
// embeddings.
func NewResult(requestID string, embeddings []*Vector, tokensProcessed int, primaryBackend string, fallbackUsed bool) Result {
	distribution := make(map[string]int)
	for _, v := range embeddings {
		if v != nil {
			distribution[v.backend]++
		}
	}
	if embeddings == nil {
		embeddings = []*Vector{}
	}
	return Result{
		embeddings:      embeddings,
		tokensProcessed: tokensProcessed,
		distribution:    distribution,
		primaryBackend:  primaryBackend,
		fallbackUsed:    fallbackUsed,
		requestID:       requestID,
	}
}

// Embeddings returns the per-item vectors.
func (r Result) Embeddings() []*Vector { return r.embeddings }

// Len returns the number of items.
func (r Result) Len() int { return len(r.embeddings) }

// TokensProcessed returns the estimated tokens submitted to backends.
func (r Result) TokensProcessed() int { return r.tokensProcessed }

// SuccessCount returns the number of items with a vector.
func (r Result) SuccessCount() int {
	n := 0
	for _, v := range r.embeddings {
		if v != nil {
			n++
		}
	}
	return n
}

// FailureCount returns the number of items without a vector.
func (r Result) FailureCount() int {
	return len(r.embeddings) - r.SuccessCount()
}

// BackendDistribution returns successful item counts per backend.
func (r Result) BackendDistribution() map[string]int {
	out := make(map[string]int, len(r.distribution))
	for k, v := range r.distribution {
		out[k] = v
	}
	return out
}

// PrimaryBackend returns the backend that produced most of the result.
func (r Result) PrimaryBackend() string { return r.primaryBackend }

// FallbackUsed reports whether a backend other than the first choice succeeded.
func (r Result) FallbackUsed() bool { return r.fallbackUsed }

// RequestID returns the request identifier.
func (r Result) RequestID() string { return r.requestID }
