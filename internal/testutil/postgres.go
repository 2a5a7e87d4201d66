package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDBContainer wraps a PostgreSQL test container with a ready
// connection pool. The container runs the pgvector image and has the
// project schema applied.
type TestDBContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container and runs
// the schema migration. The returned cleanup function terminates the
// container.
func SetupTestDB(t *testing.T) (*TestDBContainer, func()) {
	t.Helper()
	db, cleanup, err := SetupTestDBForMain()
	if err != nil {
		t.Fatalf("setting up test database: %v", err)
	}
	return db, cleanup
}

// SetupTestDBForMain is the TestMain-friendly variant of SetupTestDB:
// it returns errors instead of failing a *testing.T, so one container
// can be shared across a package's integration tests.
func SetupTestDBForMain() (*TestDBContainer, func(), error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("anidex_test"),
		postgres.WithUsername("anidex_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("starting postgres container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("resolving connection string: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := applySchema(ctx, pool); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("applying schema: %w", err)
	}

	db := &TestDBContainer{
		Container: pgContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}
	return db, cleanup, nil
}

// CleanTables truncates the shows table for test isolation.
func CleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), `TRUNCATE shows`); err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}

// applySchema runs the up migrations from db/migrations in order.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := findProjectRoot()
	if err != nil {
		return err
	}
	pattern := filepath.Join(root, "db", "migrations", "*.up.sql")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found at %s", pattern)
	}

	for _, path := range files {
		sql, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", path, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("executing migration %s: %w", path, err)
		}
	}
	return nil
}

// findProjectRoot walks up from this file until it hits go.mod, so
// tests resolve migration paths regardless of the working directory.
func findProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("resolving current file path")
	}
	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("project root with go.mod not found")
		}
		dir = parent
	}
}
