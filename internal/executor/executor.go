// Package executor applies typed step payloads to the specification
// store.
//
// Handlers are deterministic and side-effect-isolated: the only thing
// they touch is the store. No network calls, no wall-clock reads, no
// non-idempotent external effects. This is what makes a manual status
// reset followed by a retry always safe.
package executor

import (
	"context"
	"fmt"

	"github.com/roach88/loom/internal/spec"
	"github.com/roach88/loom/internal/store"
)

// Executor dispatches step payloads to per-kind handlers.
type Executor struct {
	store *store.Store
	idGen spec.IDGenerator
}

// New creates an Executor. The id generator mints component instance
// ids; inject a FixedGenerator for deterministic tests.
func New(s *store.Store, idGen spec.IDGenerator) *Executor {
	return &Executor{store: s, idGen: idGen}
}

// Result is the outcome of executing one step.
type Result struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

func failure(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Execute applies one typed payload for an app. Handler errors are
// returned in Result.Error; the error return is reserved for storage
// failures a retry might resolve.
func (e *Executor) Execute(ctx context.Context, appID string, payload spec.Payload) (Result, error) {
	switch payload.Kind {
	case spec.KindCreateModel:
		return e.createModel(ctx, appID, payload.CreateModel)
	case spec.KindCreatePage:
		return e.createPage(ctx, appID, payload.CreatePage)
	case spec.KindCreateComponent:
		return e.createComponent(ctx, appID, payload.CreateComponent)
	case spec.KindSetPermissions:
		return e.setPermissions(ctx, appID, payload.SetPermissions)
	default:
		return failure("unsupported step type %q", payload.Kind), nil
	}
}
