package state

import (
	"context"
)

// DispatchWaitContext dispatches fun to run on the node goroutine and waits for
// its result, giving up when ctx or the node is done. The function may still
// run after ctx is done, its result is then discarded.
func (e *Env) DispatchWaitContext(ctx context.Context, fun func(*State) (any, error)) (any, error) {
	ret := make(chan Pair[any, error], 1)
	wrapped := func(s *State) error {
		res, err := fun(s)
		ret <- Pair[any, error]{res, err}
		return err
	}
	select {
	case e.DispatchChannel <- wrapped:
	case <-e.Context.Done():
		return nil, context.Cause(e.Context)
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
	select {
	case res := <-ret:
		return res.V1, res.V2
	case <-e.Context.Done():
		return nil, context.Cause(e.Context)
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
