package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/archon-research/oracle-pusher/db"
	"github.com/archon-research/oracle-pusher/db/migrator"
)

const postgresImage = "postgres:17-alpine"

// StartPostgres starts a throwaway PostgreSQL container and returns its DSN.
// The container is terminated when the test ends.
func StartPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "oracle",
				"POSTGRES_PASSWORD": "oracle",
				"POSTGRES_DB":       "oracle",
			},
			// The entrypoint restarts the server once after init.
			WaitingFor: wait.ForAll(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
				wait.ForListeningPort("5432/tcp").
					WithStartupTimeout(60*time.Second),
			),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	return fmt.Sprintf("postgres://oracle:oracle@%s:%s/oracle?sslmode=disable", host, port.Port())
}

// ConnectPool opens a pool for dsn and waits until the server answers. The
// pool is closed when the test ends.
func ConnectPool(t *testing.T, dsn string) *pgxpool.Pool {
	t.Helper()

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	ok := WaitFor(t, 5*time.Second, 100*time.Millisecond, func() bool {
		return pool.Ping(context.Background()) == nil
	})
	if !ok {
		t.Fatal("timed out waiting for database connection")
	}
	return pool
}

// SetupPostgres starts a container, connects and applies the embedded
// migrations. Most integration tests use this.
func SetupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool := ConnectPool(t, StartPostgres(t))
	if err := migrator.NewFS(pool, db.Migrations(), DiscardLogger()).ApplyAll(context.Background()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return pool
}
