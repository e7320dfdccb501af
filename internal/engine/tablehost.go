package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/internal/provider"
	"github.com/R3E-Network/query_layer/internal/ringbuffer"
)

// Op names registered with the table host.
const (
	opTableOpen  = "table.open"
	opTableNext  = "table.next"
	opTableClose = "table.close"
)

// TableHost is the synchronous host flavour: the script opens named tables
// and walks them row by row through opaque handles, with no cursor state
// of its own to protect.
type TableHost struct {
	provider provider.TableProvider
	cfg      Config
}

// NewTableHost binds a table provider to the host configuration.
func NewTableHost(p provider.TableProvider, cfg Config) *TableHost {
	return &TableHost{provider: p, cfg: cfg.withDefaults()}
}

// Run executes one request's script. Mirrors StreamHost.Run: handshake
// first, buffer closed on every exit path, leaked iterators closed after
// the script finishes.
func (h *TableHost) Run(ctx context.Context, scripts <-chan string, handoff chan<- *Results) error {
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

	table := NewIteratorTable()
	defer table.CloseAll()

	s := newSession(ctx, h.cfg, results)
	if err := s.vm.Set("__query_op", h.dispatch(s, table)); err != nil {
		return errors.Internal("register ops", err)
	}

	return s.run(tableGlueProgram, script)
}

func (h *TableHost) dispatch(s *session, table *IteratorTable) func(string, goja.Value) (any, error) {
	return func(name string, payload goja.Value) (any, error) {
		switch name {
		case opTableOpen:
			tableName := payload.String()
			it, err := h.provider.OpenTable(s.ctx, tableName)
			if err != nil {
				return nil, err
			}
			handle, err := table.Add(it)
			if err != nil {
				_ = it.Close()
				return nil, err
			}
			return handle, nil

		case opTableNext:
			it, err := lookupIterator(s.vm, table, payload)
			if err != nil {
				return nil, err
			}
			row, ok, err := it.Next(s.ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				return map[string]any{"done": true}, nil
			}
			return map[string]any{"done": false, "row": row}, nil

		case opTableClose:
			var handle uint32
			if err := s.vm.ExportTo(payload, &handle); err != nil {
				return nil, errors.InvalidInput("handle", "must be an integer")
			}
			if it, ok := table.Remove(handle); ok {
				_ = it.Close()
			}
			return nil, nil

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

func lookupIterator(vm *goja.Runtime, table *IteratorTable, payload goja.Value) (provider.RowIterator, error) {
	var handle uint32
	if err := vm.ExportTo(payload, &handle); err != nil {
		return nil, errors.InvalidInput("handle", "must be an integer")
	}
	it, ok := table.Get(handle)
	if !ok {
		return nil, errors.InvalidInput("handle", "unknown iterator")
	}
	return it, nil
}
