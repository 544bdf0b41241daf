// Package sqltest provides a database/sql driver that replays a fixed script
// of expected calls. Queries are compared after collapsing whitespace.
package sqltest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

type kind int

const (
	kindExec kind = iota
	kindQuery
	kindBegin
	kindCommit
	kindRollback
)

func (k kind) String() string {
	return [...]string{"exec", "query", "begin", "commit", "rollback"}[k]
}

// Result is returned from a scripted Exec.
type Result struct {
	LastID   int64
	Affected int64
}

// LastInsertId implements driver.Result.
func (r Result) LastInsertId() (int64, error) { return r.LastID, nil }

// RowsAffected implements driver.Result.
func (r Result) RowsAffected() (int64, error) { return r.Affected, nil }

// Step is one expected database call.
type Step struct {
	kind    kind
	sql     string
	result  Result
	columns []string
	rows    [][]driver.Value
	err     error
	args    func([]driver.NamedValue) error
}

// Exec expects an ExecContext call with query.
func Exec(query string, result Result) Step {
	return Step{kind: kindExec, sql: query, result: result}
}

// Query expects a QueryContext call with query and answers with rows.
func Query(query string, columns []string, rows ...[]driver.Value) Step {
	return Step{kind: kindQuery, sql: query, columns: columns, rows: rows}
}

// Begin expects a transaction to start.
func Begin() Step { return Step{kind: kindBegin} }

// Commit expects the open transaction to commit.
func Commit() Step { return Step{kind: kindCommit} }

// Rollback expects the open transaction to roll back.
func Rollback() Step { return Step{kind: kindRollback} }

// Fails makes the step return err instead of its result.
func (s Step) Fails(err error) Step {
	s.err = err
	return s
}

// Args attaches a check on the bound arguments of the call.
func (s Step) Args(check func([]driver.NamedValue) error) Step {
	s.args = check
	return s
}

// Script is a registered scripted driver.
type Script struct {
	mu    sync.Mutex
	steps []Step
	pos   int
}

var seq atomic.Int32

// Open registers a new scripted driver and returns a single-connection DB on
// it. The test fails at cleanup if any step was not consumed.
func Open(t testing.TB, steps ...Step) *sql.DB {
	t.Helper()
	script := &Script{steps: steps}
	name := fmt.Sprintf("sqltest-%d", seq.Add(1))
	sql.Register(name, script)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open scripted db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = db.Close()
		script.mu.Lock()
		defer script.mu.Unlock()
		if script.pos != len(script.steps) {
			t.Errorf("only %d of %d scripted calls happened", script.pos, len(script.steps))
		}
	})
	return db
}

func (s *Script) advance(k kind, query string, args []driver.NamedValue) (*Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.steps) {
		return nil, fmt.Errorf("unexpected %s call: %s", k, squash(query))
	}
	step := &s.steps[s.pos]
	if step.kind != k {
		return nil, fmt.Errorf("want %s call, got %s", step.kind, k)
	}
	s.pos++
	if step.sql != "" && squash(step.sql) != squash(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", squash(step.sql), squash(query))
	}
	if step.args != nil {
		if err := step.args(args); err != nil {
			return nil, fmt.Errorf("%s %q: %w", k, squash(query), err)
		}
	}
	if step.err != nil {
		return nil, step.err
	}
	return step, nil
}

// Open implements driver.Driver.
func (s *Script) Open(string) (driver.Conn, error) { return &conn{script: s}, nil }

type conn struct {
	script *Script
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *conn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if _, err := c.script.advance(kindBegin, "", nil); err != nil {
		return nil, err
	}
	return &tx{script: c.script}, nil
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	step, err := c.script.advance(kindExec, query, args)
	if err != nil {
		return nil, err
	}
	return step.result, nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	step, err := c.script.advance(kindQuery, query, args)
	if err != nil {
		return nil, err
	}
	return &rows{columns: step.columns, values: step.rows}, nil
}

func (c *conn) Ping(context.Context) error { return nil }

type tx struct {
	script *Script
}

func (t *tx) Commit() error {
	_, err := t.script.advance(kindCommit, "", nil)
	return err
}

func (t *tx) Rollback() error {
	_, err := t.script.advance(kindRollback, "", nil)
	return err
}

type rows struct {
	columns []string
	values  [][]driver.Value
	next    int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.next])
	r.next++
	return nil
}

func squash(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
