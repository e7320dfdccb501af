// Package query contains the per-request driver: it spawns the engine on a
// dedicated OS thread, performs the results-buffer handshake, feeds the
// script, drains emitted values, and joins the engine task.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/infrastructure/logging"
	"github.com/R3E-Network/query_layer/infrastructure/metrics"
	"github.com/R3E-Network/query_layer/internal/engine"
)

// Host is the engine-side contract the driver consumes. Both engine host
// flavours satisfy it.
type Host interface {
	Run(ctx context.Context, scripts <-chan string, handoff chan<- *engine.Results) error
}

// Driver executes one script per Execute call. It is safe for concurrent
// use; every Execute call gets its own engine, buffer, and thread.
type Driver struct {
	host    Host
	log     *logging.Logger
	metrics *metrics.Metrics
}

// NewDriver creates a driver over the given host.
func NewDriver(host Host, log *logging.Logger, m *metrics.Metrics) *Driver {
	if log == nil {
		log = logging.Default()
	}
	return &Driver{host: host, log: log, metrics: m}
}

// Execute runs one script to completion and returns the values it emitted,
// in emission order. On any terminal failure the error replaces the
// partial results.
func (d *Driver) Execute(ctx context.Context, script string) ([]json.RawMessage, error) {
	started := time.Now()
	if d.metrics != nil {
		d.metrics.EnginesInFlight.Inc()
		defer d.metrics.EnginesInFlight.Dec()
	}

	scripts := make(chan string, 1)
	handoff := make(chan *engine.Results, 1)
	joined := make(chan error, 1)

	go func() {
		// The engine instance must never move between threads; pin the
		// goroutine that owns it for the whole execution.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		joined <- d.host.Run(ctx, scripts, handoff)
	}()

	var results *engine.Results
	select {
	case results = <-handoff:
	case err := <-joined:
		if err == nil {
			err = fmt.Errorf("engine exited before the results handshake")
		}
		return nil, d.finish(ctx, nil, started, errors.Internal("results handshake", err))
	case <-ctx.Done():
		err := <-joined
		if err == nil {
			err = ctx.Err()
		}
		return nil, d.finish(ctx, nil, started, errors.Internal("results handshake", err))
	}

	scripts <- script

	values := make([]json.RawMessage, 0, 64)
	for {
		value, ok, err := results.ConsumeOne(ctx)
		if err != nil {
			// The execution context is shared with the engine, so the join
			// cannot hang here.
			<-joined
			return nil, d.finish(ctx, values, started, errors.Internal("consume results", err))
		}
		if !ok {
			break
		}
		values = append(values, value)
	}

	if err := <-joined; err != nil {
		return nil, d.finish(ctx, values, started, err)
	}

	return values, d.finish(ctx, values, started, nil)
}

// finish records the outcome once, whatever the exit path.
func (d *Driver) finish(ctx context.Context, values []json.RawMessage, started time.Time, err error) error {
	d.log.LogQueryExecution(ctx, len(values), time.Since(started), err)
	if d.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = string(errors.ErrCodeInternal)
			if svcErr := errors.GetServiceError(err); svcErr != nil {
				outcome = string(svcErr.Code)
			}
		}
		d.metrics.RecordQuery("queryserver", outcome, time.Since(started))
	}
	return err
}
