package provider

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
	"github.com/R3E-Network/query_layer/infrastructure/logging"
)

// DefaultRedisBatch is the number of list elements fetched per Next call.
const DefaultRedisBatch = 256

// redisCursor is the serialised cursor form: the next list index to read.
type redisCursor struct {
	Index int64 `json:"index"`
}

// Redis serves rows from a Redis list whose elements are JSON documents.
// The same skip-on-malformed policy applies as for the file backend.
type Redis struct {
	client *redis.Client
	key    string
	batch  int64
	log    *logging.Logger
}

// NewRedis creates a list-backed provider. batch <= 0 selects
// DefaultRedisBatch.
func NewRedis(client *redis.Client, key string, batch int64, log *logging.Logger) *Redis {
	if batch <= 0 {
		batch = DefaultRedisBatch
	}
	if log == nil {
		log = logging.Default()
	}
	return &Redis{client: client, key: key, batch: batch, log: log}
}

// Driver implements BatchedStream.
func (p *Redis) Driver() string { return "redis" }

func (p *Redis) encodeCursor(c redisCursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", errors.Internal("encode cursor", err)
	}
	return string(data), nil
}

func (p *Redis) decodeCursor(raw string) (redisCursor, error) {
	var c redisCursor
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, errors.ProviderFailure("decode cursor", err)
	}
	return c, nil
}

// Begin implements BatchedStream.
func (p *Redis) Begin(ctx context.Context) (string, error) {
	return p.encodeCursor(redisCursor{Index: 0})
}

// Next implements BatchedStream: one LRANGE page from the cursor index.
func (p *Redis) Next(ctx context.Context, cursor string) (string, []any, error) {
	c, err := p.decodeCursor(cursor)
	if err != nil {
		return "", nil, err
	}

	raws, err := p.client.LRange(ctx, p.key, c.Index, c.Index+p.batch-1).Result()
	if err != nil {
		return "", nil, errors.ProviderFailure("lrange", err)
	}

	rows := make([]any, 0, len(raws))
	for _, raw := range raws {
		var row any
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			p.log.WithError(err).Debug("skipping malformed list element")
			continue
		}
		rows = append(rows, row)
	}

	next, err := p.encodeCursor(redisCursor{Index: c.Index + int64(len(raws))})
	if err != nil {
		return "", nil, err
	}
	return next, rows, nil
}

// More implements BatchedStream.
func (p *Redis) More(ctx context.Context, cursor string) (bool, error) {
	c, err := p.decodeCursor(cursor)
	if err != nil {
		return false, err
	}

	length, err := p.client.LLen(ctx, p.key).Result()
	if err != nil {
		return false, errors.ProviderFailure("llen", err)
	}
	return c.Index < length, nil
}
