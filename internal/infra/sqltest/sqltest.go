// Package sqltest provides in-memory doubles for infra.SQLExecutor.
package sqltest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call records one statement issued against an Executor.
type Call struct {
	Query string
	Args  []any
}

// Executor records every call and delegates to the optional hooks. Missing
// hooks behave like an empty database.
type Executor struct {
	ExecFn     func(query string, args []any) (pgconn.CommandTag, error)
	QueryRowFn func(query string, args []any) pgx.Row
	QueryFn    func(query string, args []any) (pgx.Rows, error)

	mu    sync.Mutex
	calls []Call
}

func (e *Executor) record(query string, args []any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Query: query, Args: args})
}

// Calls returns a snapshot of recorded statements.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

// Last returns the most recent call whose SQL contains fragment.
func (e *Executor) Last(fragment string) (Call, bool) {
	calls := e.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if strings.Contains(calls[i].Query, fragment) {
			return calls[i], true
		}
	}
	return Call{}, false
}

func (e *Executor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	e.record(query, args)
	if e.ExecFn == nil {
		return pgconn.NewCommandTag("UPDATE 0"), nil
	}
	return e.ExecFn(query, args)
}

func (e *Executor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	e.record(query, args)
	if e.QueryRowFn == nil {
		return ErrRow(pgx.ErrNoRows)
	}
	return e.QueryRowFn(query, args)
}

func (e *Executor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	e.record(query, args)
	if e.QueryFn == nil {
		return NewRows(), nil
	}
	return e.QueryFn(query, args)
}

// Tag builds a command tag reporting n affected rows.
func Tag(n int) pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", n))
}

type row struct {
	values []any
	err    error
}

// ValuesRow scans values positionally into the destinations.
func ValuesRow(values ...any) pgx.Row { return row{values: values} }

// ErrRow fails every Scan with err.
func ErrRow(err error) pgx.Row { return row{err: err} }

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

// Rows is a pgx.Rows over fixed records.
type Rows struct {
	records [][]any
	pos     int
	err     error
	closed  bool
}

func NewRows(records ...[]any) *Rows {
	return &Rows{records: records}
}

// WithErr makes Err report err after iteration.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	if r.closed || r.pos >= len(r.records) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.records) {
		return fmt.Errorf("sqltest: scan without current row")
	}
	return scanInto(r.records[r.pos-1], dest)
}

func (r *Rows) Values() ([]any, error) {
	if r.pos == 0 || r.pos > len(r.records) {
		return nil, fmt.Errorf("sqltest: no current row")
	}
	return r.records[r.pos-1], nil
}

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("sqltest: %d values for %d destinations", len(values), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return fmt.Errorf("sqltest: column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, src any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination must be a non-nil pointer")
	}
	target := dv.Elem()
	if src == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case sv.Type().ConvertibleTo(target.Type()):
		target.Set(sv.Convert(target.Type()))
	case target.Kind() == reflect.Pointer && sv.Type().AssignableTo(target.Type().Elem()):
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(sv)
		target.Set(p)
	default:
		return fmt.Errorf("cannot assign %T to %s", src, target.Type())
	}
	return nil
}
