package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/internal/cursor"
	"github.com/R3E-Network/query_layer/internal/provider"
	"github.com/R3E-Network/query_layer/internal/ringbuffer"
)

// Op names registered with the stream host. These are the wire contract
// with the glue script.
const (
	opBegin = "database.begin"
	opNext  = "database.next"
	opMore  = "database.more"
	opSend  = "database.send"
)

// StreamHost executes scripts against a batched stream provider through
// the sealed-cursor protocol.
type StreamHost struct {
	provider provider.BatchedStream
	cfg      Config
}

// NewStreamHost binds a provider to the host configuration.
func NewStreamHost(p provider.BatchedStream, cfg Config) *StreamHost {
	return &StreamHost{provider: p, cfg: cfg.withDefaults()}
}

// Run executes one request's script. The results buffer is handed to the
// driver through handoff before execution begins, and is closed on every
// exit path so the consumer always observes end-of-stream.
func (h *StreamHost) Run(ctx context.Context, scripts <-chan string, handoff chan<- *Results) error {
	results := ringbuffer.New[json.RawMessage](h.cfg.ResultsCapacity)
	defer results.Close()

	select {
	case handoff <- results:
	case <-ctx.Done():
		return errors.Internal("results handshake", ctx.Err())
	}

	var script string
	select {
	case script = <-scripts:
	case <-ctx.Done():
		return errors.Internal("receive script", ctx.Err())
	}

	auth, err := cursor.NewAuthenticator()
	if err != nil {
		return err
	}

	s := newSession(ctx, h.cfg, results)
	if err := s.vm.Set("__query_op", h.dispatch(s, auth)); err != nil {
		return errors.Internal("register ops", err)
	}

	return s.run(streamGlueProgram, script)
}

// dispatch builds the single host function the glue script captures. A
// non-nil error return is thrown into the script as an exception, which it
// may catch or let unwind the execution.
func (h *StreamHost) dispatch(s *session, auth *cursor.Authenticator) func(string, goja.Value) (any, error) {
	return func(name string, payload goja.Value) (any, error) {
		switch name {
		case opBegin:
			data, err := h.provider.Begin(s.ctx)
			if err != nil {
				return nil, err
			}
			return auth.Seal(data), nil

		case opNext:
			data, err := openSealed(s.vm, auth, payload)
			if err != nil {
				return nil, err
			}
			started := time.Now()
			next, rows, err := h.provider.Next(s.ctx, data)
			s.cfg.Log.LogProviderFetch(s.ctx, h.provider.Driver(), len(rows), time.Since(started), err)
			if err != nil {
				return nil, err
			}
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordProviderBatch("queryserver", h.provider.Driver(), len(rows))
			}
			if rows == nil {
				rows = []any{}
			}
			return map[string]any{
				"cursor": auth.Seal(next),
				"rows":   rows,
			}, nil

		case opMore:
			data, err := openSealed(s.vm, auth, payload)
			if err != nil {
				return nil, err
			}
			return h.provider.More(s.ctx, data)

		case opSend:
			values, err := exportBatch(payload)
			if err != nil {
				return nil, err
			}
			return nil, s.emit(values)
		}

		return nil, errors.InvalidInput("op", fmt.Sprintf("unknown op %q", name))
	}
}

// openSealed verifies a sealed cursor passed back by the script. Anything
// that is not a well-formed, correctly signed pair fails as an invalid
// cursor.
func openSealed(vm *goja.Runtime, auth *cursor.Authenticator, payload goja.Value) (string, error) {
	if payload == nil || goja.IsUndefined(payload) || goja.IsNull(payload) {
		return "", errors.InvalidCursor()
	}
	var sealed cursor.Sealed
	if err := vm.ExportTo(payload, &sealed); err != nil {
		return "", errors.InvalidCursor()
	}
	return auth.Open(sealed)
}
