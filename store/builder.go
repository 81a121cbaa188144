package store

import (
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// Builder renders prepared statements for one SQL dialect. The dialect must
// be registered by importing the matching goqu dialect package.
type Builder struct {
	dialect goqu.DialectWrapper
}

func NewBuilder(dialect string) Builder {
	return Builder{dialect: goqu.Dialect(dialect)}
}

func (b Builder) Select(table string, q Query) (string, []any, error) {
	ds := b.dialect.From(table).Prepared(true)
	if len(q.Filters) > 0 {
		exps := make([]exp.Expression, 0, len(q.Filters))
		for _, f := range q.Filters {
			switch f.Op {
			case OpEq:
				exps = append(exps, goqu.C(f.Column).Eq(f.Value))
			case OpGte:
				exps = append(exps, goqu.C(f.Column).Gte(f.Value))
			default:
				return "", nil, fmt.Errorf("unsupported filter op %d on %s", f.Op, f.Column)
			}
		}
		ds = ds.Where(exps...)
	}
	if q.OrderBy != "" {
		ds = ds.Order(goqu.C(q.OrderBy).Asc())
	}
	if q.Limit > 0 {
		ds = ds.Limit(q.Limit)
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build select on %s: %w", table, err)
	}
	return query, args, nil
}

func (b Builder) Lookup(table string, key map[string]any) (string, []any, error) {
	query, args, err := b.dialect.From(table).Prepared(true).Where(goqu.Ex(key)).Limit(1).ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build lookup on %s: %w", table, err)
	}
	return query, args, nil
}

func (b Builder) Insert(table string, values map[string]any) (string, []any, error) {
	query, args, err := b.dialect.Insert(table).Prepared(true).Rows(goqu.Record(values)).ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build insert on %s: %w", table, err)
	}
	return query, args, nil
}

func (b Builder) Update(table string, key, values map[string]any) (string, []any, error) {
	query, args, err := b.dialect.Update(table).Prepared(true).Set(goqu.Record(values)).Where(goqu.Ex(key)).ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("failed to build update on %s: %w", table, err)
	}
	return query, args, nil
}

// Normalize converts driver byte slices to strings so records compare and
// encode the same across backends.
func Normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
