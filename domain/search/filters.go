package search

import "github.com/helixml/codestore/domain/record"

// Filters restricts retrieval candidates with exact-match predicates.
// Zero values leave the corresponding dimension unfiltered.
type Filters struct {
	ownerID      string
	filePaths    map[string]struct{}
	excludeKinds map[record.Kind]struct{}
	backend      string
	model        string
}

// FiltersOption is a functional option for Filters.
type FiltersOption func(*Filters)

// WithOwnerID keeps only records of one owner.
func WithOwnerID(ownerID string) FiltersOption {
	return func(f *Filters) { f.ownerID = ownerID }
}

// WithFilePaths keeps only records whose relative or absolute path is listed.
func WithFilePaths(paths ...string) FiltersOption {
	return func(f *Filters) {
		if len(paths) == 0 {
			return
		}
		if f.filePaths == nil {
			f.filePaths = make(map[string]struct{}, len(paths))
		}
		for _, p := range paths {
			f.filePaths[p] = struct{}{}
		}
	}
}

// WithExcludeKinds drops records of the listed kinds.
func WithExcludeKinds(kinds ...record.Kind) FiltersOption {
	return func(f *Filters) {
		if len(kinds) == 0 {
			return
		}
		if f.excludeKinds == nil {
			f.excludeKinds = make(map[record.Kind]struct{}, len(kinds))
		}
		for _, k := range kinds {
			f.excludeKinds[k] = struct{}{}
		}
	}
}

// WithBackend keeps only records produced by one backend.
func WithBackend(name string) FiltersOption {
	return func(f *Filters) { f.backend = name }
}

// WithModel keeps only records produced by one model.
func WithModel(name string) FiltersOption {
	return func(f *Filters) { f.model = name }
}

// NewFilters creates Filters from options.
func NewFilters(opts ...FiltersOption) Filters {
	f := Filters{}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// OwnerID returns the owner filter.
func (f Filters) OwnerID() string { return f.ownerID }

// FilePaths returns the file allow-list.
func (f Filters) FilePaths() []string {
	out := make([]string, 0, len(f.filePaths))
	for p := range f.filePaths {
		out = append(out, p)
	}
	return out
}

// Backend returns the backend filter.
func (f Filters) Backend() string { return f.backend }

// Model returns the model filter.
func (f Filters) Model() string { return f.model }

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return f.ownerID == "" && len(f.filePaths) == 0 && len(f.excludeKinds) == 0 &&
		f.backend == "" && f.model == ""
}

// Match reports whether r passes every filter.
func (f Filters) Match(r record.Record) bool {
	if f.ownerID != "" && r.OwnerID() != f.ownerID {
		return false
	}
	if len(f.filePaths) > 0 {
		_, rel := f.filePaths[r.FilePathRelative()]
		_, abs := f.filePaths[r.FilePathAbsolute()]
		if !rel && !abs {
			return false
		}
	}
	if _, excluded := f.excludeKinds[r.Kind()]; excluded {
		return false
	}
	if f.backend != "" && r.BackendName() != f.backend {
		return false
	}
	if f.model != "" && r.ModelName() != f.model {
		return false
	}
	return true
}
