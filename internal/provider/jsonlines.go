package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/infrastructure/logging"
)

// DefaultBatchBytes is how much file data a single Next call accumulates
// before returning a batch.
const DefaultBatchBytes = 64 * 1024

// jsonLinesCursor is the serialised cursor form: a byte offset into the file.
type jsonLinesCursor struct {
	Offset int64 `json:"offset"`
}

// JSONLines reads one JSON value per line from a file. Blank lines are
// skipped. Malformed lines are skipped as well; see the review note in
// DESIGN.md about surfacing them as provider errors instead.
type JSONLines struct {
	path       string
	batchBytes int64
	log        *logging.Logger
}

// NewJSONLines creates a file-backed provider. batchBytes <= 0 selects
// DefaultBatchBytes.
func NewJSONLines(path string, batchBytes int64, log *logging.Logger) *JSONLines {
	if batchBytes <= 0 {
		batchBytes = DefaultBatchBytes
	}
	if log == nil {
		log = logging.Default()
	}
	return &JSONLines{path: path, batchBytes: batchBytes, log: log}
}

// Driver implements BatchedStream.
func (p *JSONLines) Driver() string { return "jsonlines" }

func (p *JSONLines) encodeCursor(c jsonLinesCursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", errors.Internal("encode cursor", err)
	}
	return string(data), nil
}

func (p *JSONLines) decodeCursor(raw string) (jsonLinesCursor, error) {
	var c jsonLinesCursor
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, errors.ProviderFailure("decode cursor", err)
	}
	if c.Offset < 0 {
		return c, errors.ProviderFailure("decode cursor", fmt.Errorf("negative offset %d", c.Offset))
	}
	return c, nil
}

// Begin implements BatchedStream.
func (p *JSONLines) Begin(ctx context.Context) (string, error) {
	return p.encodeCursor(jsonLinesCursor{Offset: 0})
}

// Next implements BatchedStream. It reads lines from the cursor offset
// until at least batchBytes of file data have been consumed, decoding each
// line as a JSON value.
func (p *JSONLines) Next(ctx context.Context, cursor string) (string, []any, error) {
	c, err := p.decodeCursor(cursor)
	if err != nil {
		return "", nil, err
	}

	f, err := os.Open(p.path)
	if err != nil {
		return "", nil, errors.ProviderFailure("open", err)
	}
	defer f.Close()

	if _, err := f.Seek(c.Offset, io.SeekStart); err != nil {
		return "", nil, errors.ProviderFailure("seek", err)
	}

	reader := bufio.NewReader(f)
	rows := make([]any, 0, 16)
	var consumed int64

	for consumed < p.batchBytes {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}

		line, readErr := reader.ReadString('\n')
		if len(line) > 0 {
			consumed += int64(len(line))
			if row, ok := p.decodeLine(line); ok {
				rows = append(rows, row)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", nil, errors.ProviderFailure("read", readErr)
		}
	}

	next, err := p.encodeCursor(jsonLinesCursor{Offset: c.Offset + consumed})
	if err != nil {
		return "", nil, err
	}
	return next, rows, nil
}

// decodeLine parses one line as a JSON value. Blank and malformed lines
// yield ok=false.
func (p *JSONLines) decodeLine(line string) (any, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, false
	}
	if !gjson.Valid(trimmed) {
		p.log.WithFields(map[string]interface{}{"line_bytes": len(line)}).
			Debug("skipping malformed line")
		return nil, false
	}
	var row any
	if err := json.Unmarshal([]byte(trimmed), &row); err != nil {
		p.log.WithError(err).Debug("skipping malformed line")
		return nil, false
	}
	return row, true
}

// More implements BatchedStream: true while the cursor sits before the end
// of the file.
func (p *JSONLines) More(ctx context.Context, cursor string) (bool, error) {
	c, err := p.decodeCursor(cursor)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(p.path)
	if err != nil {
		return false, errors.ProviderFailure("stat", err)
	}
	return c.Offset < info.Size(), nil
}

// OpenTable implements TableProvider. The file is a single unnamed table;
// the name argument is accepted and ignored.
func (p *JSONLines) OpenTable(ctx context.Context, _ string) (RowIterator, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, errors.ProviderFailure("open", err)
	}
	return &jsonLinesIterator{provider: p, file: f, reader: bufio.NewReader(f)}, nil
}

type jsonLinesIterator struct {
	provider *JSONLines
	file     *os.File
	reader   *bufio.Reader
	done     bool
}

func (it *jsonLinesIterator) Next(ctx context.Context) (any, bool, error) {
	if it.done {
		return nil, false, nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}

		line, readErr := it.reader.ReadString('\n')
		if len(line) > 0 {
			if row, ok := it.provider.decodeLine(line); ok {
				if readErr == io.EOF {
					it.done = true
				}
				return row, true, nil
			}
		}
		if readErr == io.EOF {
			it.done = true
			return nil, false, nil
		}
		if readErr != nil {
			return nil, false, errors.ProviderFailure("read", readErr)
		}
	}
}

func (it *jsonLinesIterator) Close() error {
	return it.file.Close()
}
