package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	pkgerrors "github.com/rxledger/pharmacy-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func countRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&testModel{}).Count(&count).Error)
	return count
}

func TestPing(t *testing.T) {
	client := &Client{conn: newTestDB(t)}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestRunInTx_RetriesTransientFailures(t *testing.T) {
	db := newTestDB(t)
	calls := 0
	retried := []int{}

	policy := DefaultRetryPolicy()
	policy.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := RunInTx(context.Background(), db, policy, func(tx *gorm.DB) error {
		calls++
		if err := tx.Create(&testModel{Name: fmt.Sprintf("attempt-%d", calls)}).Error; err != nil {
			return err
		}
		if calls < 3 {
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
	assert.Equal(t, int64(1), countRows(t, db), "failed attempts must roll back")
}

func TestRunInTx_ExhaustionSurfacesTransientStorage(t *testing.T) {
	db := newTestDB(t)
	calls := 0

	err := RunInTx(context.Background(), db, DefaultRetryPolicy(), func(tx *gorm.DB) error {
		calls++
		return &pq.Error{Code: "40P01", Message: "deadlock detected"}
	})

	require.Error(t, err)
	assert.Equal(t, DefaultAttempts, calls)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeTransientStorage, typed.Code())
	assert.Equal(t, pkgerrors.ReasonRetryExhausted, typed.Reason())
}

func TestRunInTx_DoesNotRetryBusinessErrors(t *testing.T) {
	db := newTestDB(t)
	calls := 0
	businessErr := pkgerrors.Validation("invalid sale", map[string]string{"items": "insufficient stock"})

	err := RunInTx(context.Background(), db, DefaultRetryPolicy(), func(tx *gorm.DB) error {
		calls++
		return businessErr
	})

	assert.Same(t, businessErr, err)
	assert.Equal(t, 1, calls)
}

func TestRunInTx_CustomClassifier(t *testing.T) {
	db := newTestDB(t)
	sentinel := errors.New("flaky")
	calls := 0

	err := RunInTx(context.Background(), db, RetryPolicy{
		Attempts:    2,
		IsTransient: func(err error) bool { return errors.Is(err, sentinel) },
	}, func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return sentinel
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunInTx_AttemptTimeoutCountsAsTransient(t *testing.T) {
	db := newTestDB(t)
	calls := 0

	err := RunInTx(context.Background(), db, RetryPolicy{
		Attempts:       2,
		AttemptTimeout: 20 * time.Millisecond,
	}, func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			<-tx.Statement.Context.Done()
			return tx.Statement.Context.Err()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsTransient(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", &pq.Error{Code: "40P01"})))
	assert.True(t, IsTransient(errors.New("database is locked")))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsTransient(nil))

	assert.True(t, IsConnectivity(&pgconn.PgError{Code: "08006"}))
	assert.False(t, IsConnectivity(&pgconn.PgError{Code: "40001"}))

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}, ""))
	assert.True(t, IsNotFound(fmt.Errorf("load: %w", gorm.ErrRecordNotFound)))
}

func TestUniqueViolationOnSQLite(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)
	err := db.Create(&testModel{Name: "dup"}).Error
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err, ""))
}
