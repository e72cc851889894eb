package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// stuckConn 查询一直阻塞到 ctx 结束；Exec 立即返回固定的影响行数
type stuckConn struct{ rowsAffected int64 }

func (stuckConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (stuckConn) Close() error                        { return nil }
func (stuckConn) Begin() (driver.Tx, error)           { return nil, errors.New("tx not supported") }

func (stuckConn) QueryContext(ctx context.Context, _ string, _ []driver.NamedValue) (driver.Rows, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (c stuckConn) ExecContext(_ context.Context, _ string, _ []driver.NamedValue) (driver.Result, error) {
	return driver.RowsAffected(c.rowsAffected), nil
}

type stuckConnector struct{ rowsAffected int64 }

func (c stuckConnector) Connect(context.Context) (driver.Conn, error) {
	return stuckConn{rowsAffected: c.rowsAffected}, nil
}
func (c stuckConnector) Driver() driver.Driver { return stuckDriver{} }

type stuckDriver struct{}

func (stuckDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use connector") }

func openStuckDB(t *testing.T, rowsAffected int64) *gorm.DB {
	sqlDB := sql.OpenDB(stuckConnector{rowsAffected: rowsAffected})
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return db
}

func TestQueryTimeoutAppliesWithoutCallerDeadline(t *testing.T) {
	repo := NewDocumentRepository(openStuckDB(t, 0), 50*time.Millisecond)

	start := time.Now()
	_, err := repo.GetByID(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestQueryTimeoutOnFixtureRead(t *testing.T) {
	repo := NewFixtureRepository(openStuckDB(t, 0), 50*time.Millisecond)

	_, err := repo.ListUpcoming(context.Background(), time.Now(), time.Now().Add(time.Hour), 10)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSetVectorIDMissingChunk(t *testing.T) {
	repo := NewDocumentRepository(openStuckDB(t, 0), time.Second)

	err := repo.SetVectorID(context.Background(), "6f1c", "6f1c")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSetVectorIDUpdatesRow(t *testing.T) {
	repo := NewDocumentRepository(openStuckDB(t, 1), time.Second)

	assert.NoError(t, repo.SetVectorID(context.Background(), "6f1c", "6f1c"))
}

func TestNewConnDefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultQueryTimeout, newConn(nil, 0).timeout)
	assert.Equal(t, time.Second, newConn(nil, time.Second).timeout)
}
