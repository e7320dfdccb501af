package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/query_layer/internal/provider"
)

type sliceIterator struct {
	rows   []any
	pos    int
	closed bool
}

func (it *sliceIterator) Next(ctx context.Context) (any, bool, error) {
	if it.pos >= len(it.rows) {
		return nil, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

func (it *sliceIterator) Close() error {
	it.closed = true
	return nil
}

type fakeTables struct {
	tables map[string][]any
	opened []*sliceIterator
}

func (f *fakeTables) OpenTable(ctx context.Context, name string) (provider.RowIterator, error) {
	rows, ok := f.tables[name]
	if !ok {
		return nil, fmt.Errorf("no such table %q", name)
	}
	it := &sliceIterator{rows: rows}
	f.opened = append(f.opened, it)
	return it, nil
}

func runTable(t *testing.T, p provider.TableProvider, cfg Config, script string) ([]json.RawMessage, error) {
	t.Helper()
	ctx := context.Background()

	host := NewTableHost(p, cfg)
	scripts := make(chan string, 1)
	handoff := make(chan *Results, 1)
	errCh := make(chan error, 1)

	go func() {
		errCh <- host.Run(ctx, scripts, handoff)
	}()

	buf := <-handoff
	scripts <- script

	var out []json.RawMessage
	for {
		v, ok, err := buf.ConsumeOne(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, v)
	}

	select {
	case err := <-errCh:
		return out, err
	case <-time.After(10 * time.Second):
		t.Fatal("engine did not join")
		return nil, nil
	}
}

func TestTableHostEnumerates(t *testing.T) {
	p := &fakeTables{tables: map[string][]any{
		"rows": {map[string]any{"a": 1.0}, map[string]any{"a": 2.0}},
	}}
	out, err := runTable(t, p, Config{}, `
		database.table("rows").forEach(function (row) { emit(row); });
	`)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.JSONEq(t, `{"a":1}`, string(out[0]))
	require.JSONEq(t, `{"a":2}`, string(out[1]))

	// The iterator was closed once the script walked off the end.
	require.Len(t, p.opened, 1)
	require.True(t, p.opened[0].closed)
}

func TestTableHostUnknownTable(t *testing.T) {
	p := &fakeTables{tables: map[string][]any{}}
	_, err := runTable(t, p, Config{}, `
		database.table("missing").forEach(function (row) { emit(row); });
	`)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}

func TestTableHostLeakedIteratorsClosedOnExit(t *testing.T) {
	p := &fakeTables{tables: map[string][]any{
		"rows": {map[string]any{"a": 1.0}},
	}}
	_, err := runTable(t, p, Config{}, `
		database.table("rows");
		database.table("rows");
	`)
	require.NoError(t, err)
	require.Len(t, p.opened, 2)
	for _, it := range p.opened {
		require.True(t, it.closed)
	}
}

func TestTableHostCaughtScriptError(t *testing.T) {
	p := &fakeTables{tables: map[string][]any{}}
	out, err := runTable(t, p, Config{}, `
		try {
			database.send([1]); // sent before the throw; must still arrive
			var step = __bogus;
		} catch (e) {
			emit("caught");
		}
	`)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestIteratorTableHandlesAreUnique(t *testing.T) {
	table := NewIteratorTable()
	seen := make(map[uint32]bool)
	for i := 0; i < 1000; i++ {
		handle, err := table.Add(&sliceIterator{})
		require.NoError(t, err)
		require.False(t, seen[handle], "duplicate handle %d", handle)
		seen[handle] = true
	}
	require.Equal(t, 1000, table.Len())
}

func TestIteratorTableRemove(t *testing.T) {
	table := NewIteratorTable()
	it := &sliceIterator{}
	handle, err := table.Add(it)
	require.NoError(t, err)

	got, ok := table.Get(handle)
	require.True(t, ok)
	require.Same(t, it, got)

	_, ok = table.Remove(handle)
	require.True(t, ok)
	_, ok = table.Get(handle)
	require.False(t, ok)
	_, ok = table.Remove(handle)
	require.False(t, ok)
}

func TestIteratorTableCloseAll(t *testing.T) {
	table := NewIteratorTable()
	its := []*sliceIterator{{}, {}, {}}
	for _, it := range its {
		_, err := table.Add(it)
		require.NoError(t, err)
	}
	table.CloseAll()
	require.Equal(t, 0, table.Len())
	for _, it := range its {
		require.True(t, it.closed)
	}
}
