package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pressly/goose/v3"
)

// Sandbox is one test's private schema inside the shared container.
type Sandbox struct {
	DB     *sql.DB
	Schema string
	Close  func()
}

var (
	bootOnce  sync.Once
	booted    bool
	bootErr   error
	schemaSeq atomic.Int64
	gooseMu   sync.Mutex
)

// BootOnce starts the shared container. Call it from TestMain before any
// NewSandbox.
func BootOnce(t *testing.T, opts ...Option) {
	t.Helper()
	bootOnce.Do(func() {
		booted = true
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		cfg := &config{}
		for _, o := range opts {
			o(cfg)
		}
		bootErr = boot(ctx, cfg)
	})
	if bootErr != nil {
		t.Fatalf("pgtest boot failed: %v", bootErr)
	}
}

// NewSandbox creates a fresh schema, points a new connection pool at it via
// search_path, and applies the goose migrations from migFS inside it. The
// schema is dropped on test cleanup.
func NewSandbox(t *testing.T, migFS fs.FS) *Sandbox {
	t.Helper()
	if !booted {
		t.Fatalf("pgtest not booted. Call pgtest.BootOnce(...) in TestMain first.")
	}

	admin, err := sql.Open("pgx", connString) // admin connection (no search_path)
	if err != nil {
		t.Fatalf("open admin: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := fmt.Sprintf("t_%d_%x", schemaSeq.Add(1), time.Now().UnixNano())
	if _, err := admin.ExecContext(ctx, `CREATE SCHEMA "`+schema+`"`); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	// Every pooled connection carries the sandbox search_path, so the
	// migrations and all statements resolve inside this schema only.
	db, err := sql.Open("pgx", withSearchPath(connString, schema))
	if err != nil {
		t.Fatalf("open sandbox: %v", err)
	}

	gooseMu.Lock()
	goose.SetBaseFS(migFS)
	err = goose.SetDialect("postgres")
	if err == nil {
		goose.SetTableName(schema + ".goose_db_version")
		err = goose.Up(db, ".")
		goose.SetTableName("goose_db_version")
	}
	gooseMu.Unlock()
	if err != nil {
		t.Fatalf("migrate sandbox: %v", err)
	}

	sbx := &Sandbox{DB: db, Schema: schema}
	sbx.Close = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.ExecContext(ctx, `DROP SCHEMA IF EXISTS "`+schema+`" CASCADE`)
		_ = db.Close()
		_ = admin.Close()
	}
	t.Cleanup(sbx.Close)
	return sbx
}

func withSearchPath(base, schema string) string {
	u, _ := url.Parse(base)
	q := u.Query()
	q.Set("options", fmt.Sprintf("-csearch_path=%s", schema))
	u.RawQuery = q.Encode()
	return u.String()
}
