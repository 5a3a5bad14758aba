// Package connsource defines how the pool (C4) obtains the seed
// clients it clones into pooled handles, per spec §4.3: either a
// caller-supplied pre-authenticated client, or a connection-string
// factory that authenticates lazily on first use.
package connsource

import (
	"context"
	"fmt"
	"sync"

	"github.com/lucernlabs/recordflow/internal/bulkclient"
)

// Source names one connection target (one source or target
// organization) and knows how to produce an authenticated seed client
// for it. The pool keeps exactly one Source per named organization.
type Source interface {
	// Name identifies this source for logging, metrics, and throttle
	// tracking (§4.1's per-source throttle keying).
	Name() string

	// MaxPoolSize is this source's configured pool ceiling (§4.3/§4.4).
	MaxPoolSize() int

	// SeedClient returns the authenticated client the pool clones from.
	// Implementations must cache the result; SeedClient may be called
	// many times concurrently and must authenticate at most once.
	SeedClient(ctx context.Context) (bulkclient.Client, error)
}

// PreAuthenticated wraps a client the caller has already authenticated
// (e.g. one built from a test fake, or supplied by an embedding
// application that manages its own auth flow).
type PreAuthenticated struct {
	name        string
	maxPoolSize int
	client      bulkclient.Client
}

// NewPreAuthenticated builds a Source around an already-authenticated
// client.
func NewPreAuthenticated(name string, maxPoolSize int, client bulkclient.Client) *PreAuthenticated {
	return &PreAuthenticated{name: name, maxPoolSize: maxPoolSize, client: client}
}

func (s *PreAuthenticated) Name() string        { return s.name }
func (s *PreAuthenticated) MaxPoolSize() int     { return s.maxPoolSize }
func (s *PreAuthenticated) SeedClient(ctx context.Context) (bulkclient.Client, error) {
	return s.client, nil
}

// Dialer authenticates a connection string into a seed client. A
// concrete transport (SOAP/REST) implements this; recordflow's core
// never depends on the concrete type.
type Dialer func(ctx context.Context, connectionString string) (bulkclient.Client, error)

// LazyFactory authenticates on first SeedClient call and caches the
// result for the lifetime of the Source, per §4.3 ("authenticates
// lazily on first use").
type LazyFactory struct {
	name             string
	maxPoolSize      int
	connectionString string
	dial             Dialer

	once   sync.Once
	client bulkclient.Client
	err    error
}

// NewLazyFactory builds a Source that authenticates connectionString
// via dial the first time SeedClient is called.
func NewLazyFactory(name string, maxPoolSize int, connectionString string, dial Dialer) *LazyFactory {
	return &LazyFactory{name: name, maxPoolSize: maxPoolSize, connectionString: connectionString, dial: dial}
}

func (s *LazyFactory) Name() string    { return s.name }
func (s *LazyFactory) MaxPoolSize() int { return s.maxPoolSize }

func (s *LazyFactory) SeedClient(ctx context.Context) (bulkclient.Client, error) {
	s.once.Do(func() {
		s.client, s.err = s.dial(ctx, s.connectionString)
	})
	if s.err != nil {
		return nil, fmt.Errorf("connsource: authenticate %s: %w", s.name, s.err)
	}
	return s.client, nil
}
