package api

import (
	"context"
	"sync"
)

// StartBackgroundWorkers runs the reindex worker until ctx is cancelled.
// The returned WaitGroup completes once the worker has stopped.
func (a *API) StartBackgroundWorkers(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	if a.scheduler == nil {
		return &wg
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Run(ctx)
	}()
	a.log.Info("background workers started (reindex)")
	return &wg
}
