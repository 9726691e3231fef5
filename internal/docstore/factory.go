package docstore

import "fmt"

// Supported backend names for Open.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Open constructs the configured Store backend. The backend is chosen once
// at startup; there is no per-request fallback between backends.
func Open(backend string, qcfg *QdrantConfig) (Store, error) {
	switch backend {
	case BackendQdrant, "":
		return NewQdrantStore(qcfg)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("docstore: unknown backend %q (expected %q or %q)", backend, BackendQdrant, BackendMemory)
	}
}
