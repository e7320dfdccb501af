// Package engine embeds the goja JavaScript runtime and exposes the host
// ops that let an untrusted script page through a data source and emit
// results. One fresh runtime is constructed per request; nothing is shared
// between executions except the provider.
//
// Two host flavours exist. StreamHost registers the batched cursor ops
// (database.begin / database.next / database.more / database.send) behind
// the sealed-cursor protocol. TableHost registers the synchronous
// iterator-table ops (table.open / table.next / table.close) for backends
// that expose plain row iterators.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/dop251/goja"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/infrastructure/logging"
	"github.com/R3E-Network/query_layer/infrastructure/metrics"
	"github.com/R3E-Network/query_layer/internal/ringbuffer"
)

// interrupted is the value passed to goja.Runtime.Interrupt when a limit
// fires; the engine raises it at its next safepoint.
const interrupted = "execution terminated"

// Config carries the per-host settings shared by every execution.
type Config struct {
	Limits          Limits
	ResultsCapacity int
	Log             *logging.Logger
	Metrics         *metrics.Metrics
}

func (c Config) withDefaults() Config {
	if c.ResultsCapacity <= 0 {
		c.ResultsCapacity = ringbuffer.DefaultCapacity
	}
	if c.Log == nil {
		c.Log = logging.Default()
	}
	return c
}

// Results is the buffer type streaming emitted values to the driver.
// Values are marshalled at emission time so anything in the buffer is
// already known to be valid JSON.
type Results = ringbuffer.Buffer[json.RawMessage]

// session owns one engine execution: the runtime, the results buffer, and
// the execution context that limit enforcement cancels.
type session struct {
	cfg     Config
	vm      *goja.Runtime
	results *Results
	ctx     context.Context
	cancel  context.CancelFunc
	limit   atomic.Value // string: which limit terminated the run
}

// newSession builds the runtime and wires console capture. The field name
// mapper makes Go structs (sealed cursors in particular) cross into script
// space under their json tags.
func newSession(ctx context.Context, cfg Config, results *Results) *session {
	execCtx, cancel := context.WithCancel(ctx)

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	s := &session{
		cfg:     cfg,
		vm:      vm,
		results: results,
		ctx:     execCtx,
		cancel:  cancel,
	}
	s.attachConsole()
	return s
}

// terminate is called from the limit enforcers. It records the limit,
// interrupts the engine, and cancels the execution context so ops blocked
// in Go unwind as well.
func (s *session) terminate(limit string) {
	s.limit.CompareAndSwap(nil, limit)
	s.vm.Interrupt(interrupted)
	s.cancel()
}

// attachConsole routes script console output into the structured log.
func (s *session) attachConsole() {
	log := s.cfg.Log
	console := s.vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		log.WithContext(s.ctx).Debug("script console: ", fmt.Sprint(args...))
		return goja.Undefined()
	}
	_ = console.Set("log", logFn)
	_ = console.Set("info", logFn)
	_ = console.Set("warn", logFn)
	_ = console.Set("error", logFn)
	_ = s.vm.Set("console", console)
}

// run executes the glue and the user script under the configured limits.
func (s *session) run(glue *goja.Program, script string) error {
	defer s.cancel()

	if _, err := s.vm.RunProgram(glue); err != nil {
		return errors.Internal("load glue script", err)
	}

	stop := s.arm(s.cfg.Limits)
	defer stop()

	// A dead execution context must also stop a script that never calls an
	// op; the interrupt lands at the engine's next safepoint.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-s.ctx.Done():
			s.vm.Interrupt(interrupted)
		case <-watchDone:
		}
	}()

	_, err := s.vm.RunString(script)
	return s.mapRunError(err)
}

// mapRunError classifies an engine error into the service error taxonomy.
func (s *session) mapRunError(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(*goja.InterruptedError); ok {
		if limit, _ := s.limit.Load().(string); limit != "" {
			return errors.LimitExceeded(limit)
		}
		// Interrupted without a limit on record: the request context died.
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return errors.Internal("execution cancelled", ctxErr)
		}
		return errors.ScriptFailure(err)
	}

	if ex, ok := err.(*goja.Exception); ok {
		return errors.ScriptFailure(ex)
	}

	return errors.ScriptFailure(err)
}

// emit marshals each exported value and produces it into the results
// buffer, blocking under back-pressure. Order within the batch is
// preserved.
func (s *session) emit(values []any) error {
	raws := make([]json.RawMessage, 0, len(values))
	for _, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return errors.ScriptFailure(fmt.Errorf("emitted value is not serialisable: %w", err))
		}
		raws = append(raws, raw)
	}
	if err := s.results.ProduceMany(s.ctx, raws); err != nil {
		return errors.Internal("emit values", err)
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RecordEmitted(len(raws))
	}
	return nil
}

// exportBatch pulls a JS array argument into Go values for emission.
func exportBatch(payload goja.Value) ([]any, error) {
	if payload == nil || goja.IsUndefined(payload) || goja.IsNull(payload) {
		return nil, errors.InvalidInput("values", "must be an array")
	}
	exported := payload.Export()
	values, ok := exported.([]any)
	if !ok {
		return nil, errors.InvalidInput("values", "must be an array")
	}
	return values, nil
}
