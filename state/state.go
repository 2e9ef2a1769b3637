package state

import (
	"context"
	"log/slog"
)

// State access must be done only on the node's own goroutine
type State struct {
	*Env
	*RouterState
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan func(s *State) error
	SimCfg
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
}
