// Package tools implements the built-in bulk operations: tag-add,
// tag-remove, macro-apply, and macro-search.
//
// Every operation shares the same collaborators through Deps and the same
// batch control flow through pkg/batch; only the per-item mutation differs.
package tools

import (
	"go.uber.org/zap"

	"github.com/3leaps/ticketops/pkg/batch"
	"github.com/3leaps/ticketops/pkg/jobstore"
	"github.com/3leaps/ticketops/pkg/ops"
	"github.com/3leaps/ticketops/pkg/queue"
	"github.com/3leaps/ticketops/pkg/ticketapi"
)

// Deps carries the collaborators shared by all built-in operations.
type Deps struct {
	Client ticketapi.Client
	Jobs   *jobstore.Store
	Queue  queue.Queue
	Exec   *batch.Executor
	Log    *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

// ticketClient returns the configured ticket store client or
// ErrNotConfigured, so operations fail with a captured Result instead of
// dereferencing a nil interface.
func (d Deps) ticketClient() (ticketapi.Client, error) {
	if d.Client == nil {
		return nil, ticketapi.ErrNotConfigured
	}
	return d.Client, nil
}

func (d Deps) executor() *batch.Executor {
	if d.Exec == nil {
		return batch.New(-1, -1)
	}
	return d.Exec
}

// RegisterAll registers every built-in operation with the registry.
//
// This is the explicit registration call list evaluated at startup:
// registration order and completeness live here, not in import side
// effects. A duplicate slug is a programmer error and aborts startup.
func RegisterAll(reg *ops.Registry, deps Deps) error {
	for _, op := range []ops.Operation{
		NewTagAdd(deps),
		NewTagRemove(deps),
		NewMacroApply(deps),
		NewMacroSearch(deps),
	} {
		if err := reg.Register(op); err != nil {
			return err
		}
	}
	return nil
}
