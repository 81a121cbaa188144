// Package iterator scans tables in bounded batches ordered by an
// auto-incrementing column.
package iterator

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"

	"github.com/breez/txsync/store"
)

const (
	DefaultBatchSize = 50
	DefaultColumn    = "id"
)

// ErrDone is returned by NextBatch once a fetch comes back empty.
var ErrDone = errors.New("iterator done")

type Config struct {
	BatchSize int
	Column    string
}

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Column == "" {
		c.Column = DefaultColumn
	}
	return c
}

func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.Column == "" {
		return errors.New("ordering column is required")
	}
	return nil
}

// AutoIncrementIterator walks a table by watermark: each batch holds rows
// whose ordering column is >= the watermark, and the watermark then moves to
// the last value seen plus one. Rows appended ahead of the watermark are
// picked up by later batches. Rows sharing the last seen value that show up
// after the watermark moved past it are skipped.
//
// An iterator is not safe for concurrent use.
type AutoIncrementIterator struct {
	table  store.Table
	config Config

	watermark int64
	done      bool

	batch  []store.Record
	pos    int
	record store.Record
	err    error
}

func New(table store.Table, config Config) (*AutoIncrementIterator, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AutoIncrementIterator{table: table, config: config}, nil
}

func (it *AutoIncrementIterator) Config() Config {
	return it.config
}

func (it *AutoIncrementIterator) Watermark() int64 {
	return it.watermark
}

// Reset restarts the scan from the beginning of the key space.
func (it *AutoIncrementIterator) Reset() {
	it.watermark = 0
	it.done = false
	it.batch = nil
	it.pos = 0
	it.record = nil
	it.err = nil
}

// NextBatch fetches the next batch and advances the watermark. It returns
// ErrDone when no rows are left.
func (it *AutoIncrementIterator) NextBatch(ctx context.Context) ([]store.Record, error) {
	if it.done {
		return nil, ErrDone
	}
	records, err := it.table.Select(ctx, store.Query{
		Filters: []store.Filter{{Column: it.config.Column, Op: store.OpGte, Value: it.watermark}},
		OrderBy: it.config.Column,
		Limit:   uint(it.config.BatchSize),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch batch from %s at %d: %w", it.table.Name(), it.watermark, err)
	}
	if len(records) == 0 {
		it.done = true
		return nil, ErrDone
	}

	last, err := orderingValue(records[len(records)-1][it.config.Column])
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", it.table.Name(), it.config.Column, err)
	}
	it.watermark = last + 1
	return records, nil
}

// Next advances to the next record, fetching a new batch when the current
// one is used up. It returns false at the end of the table or on error.
func (it *AutoIncrementIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for it.pos >= len(it.batch) {
		batch, err := it.NextBatch(ctx)
		if errors.Is(err, ErrDone) {
			it.record = nil
			return false
		}
		if err != nil {
			it.err = err
			it.record = nil
			return false
		}
		it.batch = batch
		it.pos = 0
	}
	it.record = it.batch[it.pos]
	it.pos++
	return true
}

func (it *AutoIncrementIterator) Record() store.Record {
	return it.record
}

// Err returns the error that stopped Next, if any. Reaching the end of the
// table is not an error.
func (it *AutoIncrementIterator) Err() error {
	return it.err
}

// All ranges over the remaining records. Iteration stops after yielding an
// error.
func (it *AutoIncrementIterator) All(ctx context.Context) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		for it.Next(ctx) {
			if !yield(it.Record(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// CompactMap lazily maps the remaining records through fn and keeps only the
// results fn reports as present.
func CompactMap[T any](ctx context.Context, it *AutoIncrementIterator, fn func(store.Record) (T, bool, error)) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for record, err := range it.All(ctx) {
			if err != nil {
				yield(zero, err)
				return
			}
			v, ok, err := fn(record)
			if err != nil {
				yield(zero, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func orderingValue(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint:
		if uint64(n) > 1<<63-1 {
			return 0, fmt.Errorf("ordering value %d overflows int64", n)
		}
		return int64(n), nil
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("ordering value %d overflows int64", n)
		}
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("ordering value %q is not an integer", n)
		}
		return i, nil
	case nil:
		return 0, errors.New("ordering value is null")
	default:
		return 0, fmt.Errorf("unsupported ordering value type %T", v)
	}
}
