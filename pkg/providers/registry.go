package providers

import (
	"sync"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Registry maps provider identifiers to their implementations.
type Registry struct {
	mu    sync.RWMutex
	calls map[models.Provider]CallRecordingProvider
	crms  map[models.Provider]CRMProvider
}

func NewRegistry() *Registry {
	return &Registry{
		calls: make(map[models.Provider]CallRecordingProvider),
		crms:  make(map[models.Provider]CRMProvider),
	}
}

// RegisterCallProvider adds or replaces the call-recording provider for id.
func (r *Registry) RegisterCallProvider(id models.Provider, p CallRecordingProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[id] = p
}

// RegisterCRMProvider adds or replaces the CRM provider for id.
func (r *Registry) RegisterCRMProvider(id models.Provider, p CRMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.crms[id] = p
}

func (r *Registry) CallProvider(id models.Provider) (CallRecordingProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.calls[id]
	return p, ok
}

func (r *Registry) CRMProvider(id models.Provider) (CRMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.crms[id]
	return p, ok
}
