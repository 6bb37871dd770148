package timedata

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptConn answers queries from a script: errs are returned in order, then
// rows is served.
type scriptConn struct {
	mu      sync.Mutex
	errs    []error
	rows    [][]driver.Value
	queries []string
	args    [][]driver.NamedValue
}

func (c *scriptConn) next(query string, args []driver.NamedValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
	c.args = append(c.args, args)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		return err
	}
	return nil
}

func (c *scriptConn) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

func (c *scriptConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.next(query, args); err != nil {
		return nil, err
	}
	return &scriptRows{rows: c.rows}, nil
}

func (c *scriptConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.next(query, args); err != nil {
		return nil, err
	}
	return driver.RowsAffected(1), nil
}

func (c *scriptConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *scriptConn) Close() error { return nil }

func (c *scriptConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

type scriptRows struct {
	rows [][]driver.Value
	pos  int
}

func (r *scriptRows) Columns() []string { return []string{"value"} }

func (r *scriptRows) Close() error { return nil }

func (r *scriptRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}

type scriptConnector struct {
	conn *scriptConn
}

func (c scriptConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }

func (c scriptConnector) Driver() driver.Driver { return scriptDriver{} }

type scriptDriver struct{}

func (scriptDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("open through the connector")
}

func newScriptDB(t *testing.T, conn *scriptConn) *sql.DB {
	t.Helper()
	db := sql.OpenDB(scriptConnector{conn: conn})
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresLatestValueNoRows(t *testing.T) {
	conn := &scriptConn{}
	store := NewPostgresStore(newScriptDB(t, conn), fastPolicy)

	v, ok, err := store.LatestValue(context.Background(), testAddr)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 1, conn.calls())
}

func TestPostgresLatestValueReturnsNewest(t *testing.T) {
	conn := &scriptConn{rows: [][]driver.Value{{float64(1234.5)}}}
	store := NewPostgresStore(newScriptDB(t, conn), fastPolicy)

	v, ok, err := store.LatestValue(context.Background(), testAddr)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1234.5, v)

	require.Equal(t, 1, conn.calls())
	assert.Contains(t, conn.queries[0], "ORDER BY recorded_at DESC")
	assert.Contains(t, conn.queries[0], "LIMIT 1")
	require.Len(t, conn.args[0], 2)
	assert.Equal(t, "evcs0", conn.args[0][0].Value)
	assert.Equal(t, "ActiveConsumptionEnergy", conn.args[0][1].Value)
}

func TestPostgresLatestValueRetriesTransientErrors(t *testing.T) {
	conn := &scriptConn{
		errs: []error{errors.New("connection refused"), errors.New("connection refused")},
		rows: [][]driver.Value{{float64(42)}},
	}
	store := NewPostgresStore(newScriptDB(t, conn), fastPolicy)

	v, ok, err := store.LatestValue(context.Background(), testAddr)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42.0, v)
	assert.Equal(t, 3, conn.calls())
}

func TestPostgresLatestValueGivesUp(t *testing.T) {
	down := errors.New("database down")
	conn := &scriptConn{errs: []error{down, down, down, down, down}}
	store := NewPostgresStore(newScriptDB(t, conn), fastPolicy)

	_, ok, err := store.LatestValue(context.Background(), testAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "evcs0")
	assert.False(t, ok)
	assert.Equal(t, 4, conn.calls())
}

func TestPostgresRecordRetries(t *testing.T) {
	conn := &scriptConn{errs: []error{errors.New("connection reset")}}
	store := NewPostgresStore(newScriptDB(t, conn), fastPolicy)
	at := time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*60*60))

	require.NoError(t, store.Record(context.Background(), testAddr, 7400, at))

	require.Equal(t, 2, conn.calls())
	assert.Contains(t, conn.queries[1], "INSERT INTO timedata")
	require.Len(t, conn.args[1], 4)
	assert.Equal(t, 7400.0, conn.args[1][2].Value)
	assert.Equal(t, at.UTC(), conn.args[1][3].Value)
}
