package usecase

import (
	"fmt"

	"notes-ai-jobs/internal/domain"
	"notes-ai-jobs/internal/domain/model"
	"notes-ai-jobs/internal/domain/ports/usecase"
)

// Compile-time check
var _ usecase.JobHandlerRegistry = (*Registry)(nil)

// Registry binds each job type to its handler. It is filled once at startup
// and only read afterwards.
type Registry struct {
	handlers map[model.JobType]usecase.JobHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.JobType]usecase.JobHandler)}
}

func (r *Registry) Register(t model.JobType, h usecase.JobHandler) {
	r.handlers[t] = h
}

func (r *Registry) Resolve(t model.JobType) (usecase.JobHandler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrHandlerNotRegistered, t)
	}
	return h, nil
}

// Validate fails when any job type is left without a handler.
func (r *Registry) Validate() error {
	for _, t := range model.AllJobTypes() {
		if _, ok := r.handlers[t]; !ok {
			return fmt.Errorf("%w: %s", domain.ErrHandlerNotRegistered, t)
		}
	}
	return nil
}
