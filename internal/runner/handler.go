package runner

import (
	"context"

	"github.com/netauto/jobengine/internal/domain"
)

// Handler is a Service's unit of work, invoked once per target Device (or
// once, target-less, when the Service has no targets). Handler errors
// become a per-device {success:false, error} result; they never abort
// sibling devices or the owning Run (spec.md §4.2 "Failure semantics").
type Handler interface {
	Invoke(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result

func (f HandlerFunc) Invoke(ctx context.Context, device *domain.Device, payload domain.Payload) domain.Result {
	return f(ctx, device, payload)
}

// HandlerRegistry resolves a Service's (kind, name) pair to a concrete
// Handler. This is the Go rendition of spec.md §9's "process-wide handler
// registry keyed by name".
type HandlerRegistry interface {
	Resolve(kind, name string) (Handler, error)
}
