package repository

import (
	"fmt"
	"sync"
)

// Backend is the sealed backend selection, parsed once from configuration at
// startup and injected into the resolver. There are exactly two variants.
type Backend int

const (
	BackendPostgres Backend = iota
	BackendJSON
)

// ParseBackend maps the configured backend string onto the enum. "json"
// selects the flat-file store; empty or "postgres" selects the relational
// store (the default).
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "json":
		return BackendJSON, nil
	case "", "postgres":
		return BackendPostgres, nil
	default:
		return 0, fmt.Errorf("repository: unknown backend %q", s)
	}
}

func (b Backend) String() string {
	if b == BackendJSON {
		return "json"
	}
	return "postgres"
}

// Options carries the backend-specific connection settings. Only the field
// for the selected backend is consulted.
type Options struct {
	DSN     string // postgres connection string
	DataDir string // flat-file tenant data root
}

// Loader constructs one concrete backend. Loaders may have side effects
// (opening database pools, creating directories), so the resolver guarantees
// each fires at most once per process and the unselected one never fires.
type Loader func(Options) (*Store, error)

// Resolver memoizes the concrete repository store for the selected backend.
// Repeated Store calls return the same instance; the first call constructs
// it, racing callers share the one construction.
type Resolver struct {
	backend    Backend
	opts       Options
	relational Loader
	flatFile   Loader

	once  sync.Once
	store *Store
	err   error
}

// NewResolver builds a resolver over the two backend loaders.
func NewResolver(backend Backend, opts Options, relational, flatFile Loader) *Resolver {
	return &Resolver{
		backend:    backend,
		opts:       opts,
		relational: relational,
		flatFile:   flatFile,
	}
}

// Store returns the resolved backend store, constructing it on first use.
func (r *Resolver) Store() (*Store, error) {
	r.once.Do(func() {
		switch r.backend {
		case BackendJSON:
			r.store, r.err = r.flatFile(r.opts)
		default:
			r.store, r.err = r.relational(r.opts)
		}
	})
	return r.store, r.err
}

// Backend reports which backend this resolver was built for.
func (r *Resolver) Backend() Backend {
	return r.backend
}
