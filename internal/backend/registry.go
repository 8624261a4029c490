package backend

import (
	"fmt"
	"log/slog"

	"github.com/me/tempo/pkg/model"
)

// Registry maps JobType values to their Backend implementations.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	backends map[model.JobType]Backend
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		backends: make(map[model.JobType]Backend),
		logger:   logger.With("component", "backend-registry"),
	}
}

// Register adds a Backend to the registry, keyed by its Type().
func (r *Registry) Register(b Backend) {
	t := b.Type()
	r.backends[t] = b
	r.logger.Info("backend registered", "type", t)
}

// Get returns the Backend for the given type or an error if none is registered.
func (r *Registry) Get(t model.JobType) (Backend, error) {
	b, ok := r.backends[t]
	if !ok {
		return nil, fmt.Errorf("no backend registered for type %q", t)
	}
	return b, nil
}
