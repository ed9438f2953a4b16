package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/pkg/config"
	"github.com/flagit/flagit-backend/pkg/logger"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestWrapAdoptsConnection(t *testing.T) {
	conn := newTestDB(t)
	client := Wrap(conn)
	if client.DB() != conn {
		t.Fatal("expected wrapped client to expose the same connection")
	}
}

func TestSetLockTimeoutSkipsNonPostgres(t *testing.T) {
	conn := newTestDB(t)
	client := Wrap(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return SetLockTimeout(tx, 5*time.Second)
	})
	if err != nil {
		t.Fatalf("expected sqlite lock timeout to be a no-op, got %v", err)
	}
	if err := SetLockTimeout(nil, time.Second); !errors.Is(err, gorm.ErrInvalidTransaction) {
		t.Fatalf("expected invalid transaction for nil tx, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "lock timeout", err: fmt.Errorf("lock store: %w", &pgconn.PgError{Code: "55P03"}), want: true},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "unique", err: &pgconn.PgError{Code: "23505"}, want: false},
		{name: "sqlite busy", err: errors.New("database is locked"), want: true},
		{name: "plain", err: errors.New("boom"), want: false},
	}
	for _, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.want, got)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "ux_coupons_code"`), "") {
		t.Fatal("expected duplicate key to be detected")
	}
	if !IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "ux_coupons_code"`), "ux_coupons_code") {
		t.Fatal("expected named constraint to be detected")
	}
	if IsUniqueViolation(errors.New("boom"), "") {
		t.Fatal("unexpected unique violation")
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)
	var before int64
	if err := db.Model(&testModel{}).Count(&before).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "panicked"}).Error; err != nil {
				return err
			}
			panic("evaluation bug")
		})
	}()

	var after int64
	if err := db.Model(&testModel{}).Count(&after).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if after != before {
		t.Fatalf("expected panic to roll back, before=%d after=%d", before, after)
	}
}

func TestDialectorFor(t *testing.T) {
	if _, err := dialectorFor(config.DBConfig{Driver: "mysql"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
	d, err := dialectorFor(config.DBConfig{Driver: " SQLite ", DSN: ":memory:"})
	if err != nil || d.Name() != DriverSQLite {
		t.Fatalf("expected sqlite dialector, got %v, %v", d, err)
	}
	d, err = dialectorFor(config.DBConfig{DSN: "postgres://localhost/flagit"})
	if err != nil || d.Name() != DriverPostgres {
		t.Fatalf("expected postgres by default, got %v, %v", d, err)
	}
}

func TestQueryLoggerReportsOnlySlowStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf, Format: logger.FormatJSON})
	ql := newQueryLogger(logg, 100*time.Millisecond)
	stmt := func() (string, int64) { return "SELECT * FROM stores WHERE id = 1 FOR UPDATE", 1 }

	ql.Trace(context.Background(), time.Now(), stmt, nil)
	if buf.Len() != 0 {
		t.Fatalf("fast statement should not be logged: %s", buf.String())
	}

	ql.Trace(context.Background(), time.Now().Add(-time.Second), stmt, nil)
	entry := buf.String()
	if !strings.Contains(entry, "db.slow_query") || !strings.Contains(entry, "FOR UPDATE") {
		t.Fatalf("expected slow query entry, got %s", entry)
	}

	buf.Reset()
	newQueryLogger(logg, 0).Trace(context.Background(), time.Now().Add(-time.Minute), stmt, nil)
	if buf.Len() != 0 {
		t.Fatalf("zero threshold disables slow query logging: %s", buf.String())
	}
}
