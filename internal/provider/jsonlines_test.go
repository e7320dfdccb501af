package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func drain(t *testing.T, p *JSONLines) []any {
	t.Helper()
	ctx := context.Background()

	cursor, err := p.Begin(ctx)
	require.NoError(t, err)

	var rows []any
	for {
		more, err := p.More(ctx, cursor)
		require.NoError(t, err)
		if !more {
			break
		}
		next, batch, err := p.Next(ctx, cursor)
		require.NoError(t, err)
		cursor = next
		rows = append(rows, batch...)
	}
	return rows
}

func TestJSONLinesEnumeratesInOrder(t *testing.T) {
	path := writeSource(t, "{\"a\":1}\n{\"a\":2}\n{\"a\":3}\n")
	p := NewJSONLines(path, 0, nil)

	rows := drain(t, p)
	require.Len(t, rows, 3)
	for i, row := range rows {
		obj, ok := row.(map[string]any)
		require.True(t, ok)
		require.Equal(t, float64(i+1), obj["a"])
	}
}

func TestJSONLinesSkipsBlankAndMalformedLines(t *testing.T) {
	path := writeSource(t, "{\"a\":1}\n\n   \nnot json at all\n{\"a\":2}\n")
	p := NewJSONLines(path, 0, nil)

	rows := drain(t, p)
	require.Len(t, rows, 2)
}

func TestJSONLinesEmptySource(t *testing.T) {
	path := writeSource(t, "")
	p := NewJSONLines(path, 0, nil)

	ctx := context.Background()
	cursor, err := p.Begin(ctx)
	require.NoError(t, err)

	more, err := p.More(ctx, cursor)
	require.NoError(t, err)
	require.False(t, more)

	_, batch, err := p.Next(ctx, cursor)
	require.NoError(t, err)
	require.Empty(t, batch)
}

func TestJSONLinesBatchBoundary(t *testing.T) {
	var content string
	for i := 0; i < 10000; i++ {
		content += fmt.Sprintf("{\"n\":%d}\n", i)
	}
	path := writeSource(t, content)

	// A small batch size forces many Next calls.
	p := NewJSONLines(path, 4096, nil)

	rows := drain(t, p)
	require.Len(t, rows, 10000)
	for i, row := range rows {
		obj := row.(map[string]any)
		require.Equal(t, float64(i), obj["n"])
	}
}

func TestJSONLinesMissingTrailingNewline(t *testing.T) {
	path := writeSource(t, "{\"a\":1}\n{\"a\":2}")
	p := NewJSONLines(path, 0, nil)

	rows := drain(t, p)
	require.Len(t, rows, 2)
}

func TestJSONLinesNextEventuallyEmpty(t *testing.T) {
	path := writeSource(t, "{\"a\":1}\n")
	p := NewJSONLines(path, 0, nil)
	ctx := context.Background()

	cursor, err := p.Begin(ctx)
	require.NoError(t, err)

	cursor, rows, err := p.Next(ctx, cursor)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	more, err := p.More(ctx, cursor)
	require.NoError(t, err)
	require.False(t, more)

	_, rows, err = p.Next(ctx, cursor)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestJSONLinesRejectsNegativeOffset(t *testing.T) {
	path := writeSource(t, "{\"a\":1}\n")
	p := NewJSONLines(path, 0, nil)

	_, _, err := p.Next(context.Background(), `{"offset":-5}`)
	require.Error(t, err)
}

func TestJSONLinesTableIterator(t *testing.T) {
	path := writeSource(t, "{\"a\":1}\nbroken\n{\"a\":2}\n")
	p := NewJSONLines(path, 0, nil)
	ctx := context.Background()

	it, err := p.OpenTable(ctx, "rows")
	require.NoError(t, err)
	defer it.Close()

	var rows []any
	for {
		row, ok, err := it.Next(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)

	// Exhausted iterators stay exhausted.
	_, ok, err := it.Next(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
