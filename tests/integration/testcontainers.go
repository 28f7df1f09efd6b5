// Package integration exercises the portfolio engine against a real
// Postgres instance started with testcontainers-go. These tests require
// Docker to be running.
//
// Usage:
//
//	Run integration tests with: go test ./tests/integration/
//
// The tests automatically start a PostgreSQL container, run the
// migrations/sql scripts, and clean up after completion.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/wealthfolio/portfolio-engine/internal/db"
)

// TestContainer holds the Postgres container and an open connection to it.
type TestContainer struct {
	Container testcontainers.Container
	DB        *db.DB
	Config    *db.Config
}

// SetupTestContainer starts a Postgres container, applies every migration
// under migrations/sql in order, and returns a connected *db.DB.
func SetupTestContainer(t *testing.T) *TestContainer {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	migrationsDir, err := filepath.Abs("../../migrations/sql")
	if err != nil {
		t.Fatalf("resolve migrations dir: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("portfolio_test"),
		postgres.WithUsername("portfolio_user"),
		postgres.WithPassword("portfolio_password"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp").WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	config := &db.Config{
		Dialect:  db.DialectPostgres,
		Host:     host,
		Port:     port.Port(),
		User:     "portfolio_user",
		Password: "portfolio_password",
		Name:     "portfolio_test",
		SSLMode:  "disable",
	}

	database, err := db.Connect(config)
	if err != nil {
		t.Fatalf("connect to test database: %v", err)
	}

	if err := applyMigrations(database, migrationsDir); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	return &TestContainer{Container: pgContainer, DB: database, Config: config}
}

// Cleanup closes the connection and terminates the container.
func (tc *TestContainer) Cleanup(t *testing.T) {
	t.Helper()

	if tc.DB != nil {
		tc.DB.Close()
	}
	if tc.Container != nil {
		if err := tc.Container.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
}

// applyMigrations runs every NNNN_name.sql file in dir in numeric order,
// mirroring cmd/migrate's own ordering logic against the same files.
func applyMigrations(database *db.DB, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	type file struct {
		id   int
		name string
	}
	var files []file
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		id, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		files = append(files, file{id: id, name: e.Name()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].id < files[j].id })

	sqlDB, err := database.GetSQLDB()
	if err != nil {
		return err
	}
	for _, f := range files {
		contents, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return fmt.Errorf("read %s: %w", f.name, err)
		}
		if _, err := sqlDB.Exec(string(contents)); err != nil {
			return fmt.Errorf("exec %s: %w", f.name, err)
		}
	}
	return nil
}
