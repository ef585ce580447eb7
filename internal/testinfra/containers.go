// Package testinfra starts throwaway postgres, redis and memgraph containers for
// integration tests. Tests are skipped in -short mode or when no container
// runtime is reachable.
package testinfra

import (
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/fern/pkg/database"
)

func Logger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func skip(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

func start(t *testing.T, req testcontainers.ContainerRequest, port string) (string, string) {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to resolve container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("failed to resolve container port: %v", err)
	}
	return host, mapped.Port()
}

func migrationFolder() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "db", "pg")
}

// Postgres returns a migrated database in a fresh postgres container.
func Postgres(t *testing.T) database.DB {
	t.Helper()
	skip(t)

	host, port := start(t, testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fern",
			"POSTGRES_PASSWORD": "fern",
			"POSTGRES_DB":       "fern",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432")

	logger := Logger()
	db, err := database.Connect(context.Background(), database.ConnectionConfig{
		Host:     host,
		Port:     port,
		User:     "fern",
		Password: "fern",
		Name:     "fern",
		SSLMode:  "disable",
	}, logger)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: migrationFolder()})
	if err := migrations.Migrate("fern", db.SQL()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

// Redis returns the address of a fresh redis container.
func Redis(t *testing.T) string {
	t.Helper()
	skip(t)

	host, port := start(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForLog("Ready to accept connections").
			WithStartupTimeout(30 * time.Second),
	}, "6379")
	return host + ":" + port
}

// Memgraph returns the bolt host and port of a fresh memgraph container.
func Memgraph(t *testing.T) (string, int) {
	t.Helper()
	skip(t)

	host, port := start(t, testcontainers.ContainerRequest{
		Image:        "memgraph/memgraph:2.14.0",
		ExposedPorts: []string{"7687/tcp"},
		WaitingFor: wait.ForListeningPort("7687/tcp").
			WithStartupTimeout(60 * time.Second),
	}, "7687")

	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("invalid memgraph port %q: %v", port, err)
	}
	return host, p
}
