package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/infrastructure/logging"
)

// DefaultPostgresBatch is the number of rows fetched per Next call.
const DefaultPostgresBatch = 256

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// postgresCursor is the serialised cursor form: the last primary key seen.
// Keyset pagination keeps batches stable under concurrent appends.
type postgresCursor struct {
	After int64 `json:"after"`
}

// Postgres serves rows from a table with a bigint primary key `id` and a
// JSONB column `doc`.
type Postgres struct {
	db    *sqlx.DB
	table string
	batch int64
	log   *logging.Logger
}

// NewPostgres creates a table-backed provider. The table name must be a
// plain identifier since it is interpolated into queries.
func NewPostgres(db *sqlx.DB, table string, batch int64, log *logging.Logger) (*Postgres, error) {
	if !identifierPattern.MatchString(table) {
		return nil, errors.InvalidInput("table", "must be a plain identifier")
	}
	if batch <= 0 {
		batch = DefaultPostgresBatch
	}
	if log == nil {
		log = logging.Default()
	}
	return &Postgres{db: db, table: table, batch: batch, log: log}, nil
}

// Driver implements BatchedStream.
func (p *Postgres) Driver() string { return "postgres" }

func (p *Postgres) encodeCursor(c postgresCursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", errors.Internal("encode cursor", err)
	}
	return string(data), nil
}

func (p *Postgres) decodeCursor(raw string) (postgresCursor, error) {
	var c postgresCursor
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, errors.ProviderFailure("decode cursor", err)
	}
	return c, nil
}

// Begin implements BatchedStream.
func (p *Postgres) Begin(ctx context.Context) (string, error) {
	return p.encodeCursor(postgresCursor{After: 0})
}

// Next implements BatchedStream: one keyset page ordered by primary key.
func (p *Postgres) Next(ctx context.Context, cursor string) (string, []any, error) {
	c, err := p.decodeCursor(cursor)
	if err != nil {
		return "", nil, err
	}

	query := fmt.Sprintf("SELECT id, doc FROM %s WHERE id > $1 ORDER BY id LIMIT $2", p.table)
	dbRows, err := p.db.QueryContext(ctx, query, c.After, p.batch)
	if err != nil {
		return "", nil, errors.ProviderFailure("select", err)
	}
	defer dbRows.Close()

	rows := make([]any, 0, 16)
	last := c.After
	for dbRows.Next() {
		var (
			id  int64
			doc []byte
		)
		if err := dbRows.Scan(&id, &doc); err != nil {
			return "", nil, errors.ProviderFailure("scan", err)
		}
		last = id

		var row any
		if err := json.Unmarshal(doc, &row); err != nil {
			return "", nil, errors.ProviderDecode(err)
		}
		rows = append(rows, row)
	}
	if err := dbRows.Err(); err != nil {
		return "", nil, errors.ProviderFailure("select", err)
	}

	next, err := p.encodeCursor(postgresCursor{After: last})
	if err != nil {
		return "", nil, err
	}
	return next, rows, nil
}

// More implements BatchedStream.
func (p *Postgres) More(ctx context.Context, cursor string) (bool, error) {
	c, err := p.decodeCursor(cursor)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id > $1)", p.table)
	var exists bool
	if err := p.db.QueryRowContext(ctx, query, c.After).Scan(&exists); err != nil {
		return false, errors.ProviderFailure("exists", err)
	}
	return exists, nil
}
