package server

import (
	"context"
	"fmt"

	"github.com/kaziNymul/carevoice-go/internal/docstore"
	"github.com/kaziNymul/carevoice-go/internal/rag"
)

// Pinger is a named dependency probe used by the readiness endpoint.
type Pinger interface {
	// Name identifies the dependency in readiness output.
	Name() string
	// Ping checks that the dependency is reachable.
	Ping(ctx context.Context) error
}

// StorePinger probes the document store backend.
type StorePinger struct {
	// Backend is the backend name reported in readiness output,
	// e.g. "qdrant" or "memory".
	Backend string
	// Store is the store to probe.
	Store docstore.Store
}

func (p *StorePinger) Name() string { return p.Backend }

func (p *StorePinger) Ping(ctx context.Context) error {
	return p.Store.Ping(ctx)
}

// EmbedderPinger probes the embedding provider with a one-word request.
type EmbedderPinger struct {
	// Provider is the provider name reported in readiness output.
	Provider string
	// Embedder is the embedder to probe.
	Embedder rag.Embedder
}

func (p *EmbedderPinger) Name() string { return "embedder/" + p.Provider }

func (p *EmbedderPinger) Ping(ctx context.Context) error {
	vecs, err := p.Embedder.Embed(ctx, []string{"ping"})
	if err != nil {
		return err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("embedder returned no vector")
	}
	return nil
}
