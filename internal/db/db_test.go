//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/pluisje-go/internal/metrics"
	"github.com/raphaelgruber/pluisje-go/internal/models"
	"github.com/raphaelgruber/pluisje-go/internal/store"
	"github.com/raphaelgruber/pluisje-go/internal/store/storetest"
)

const surrealImage = "surrealdb/surrealdb:v2.3.7"

var (
	testDB      *Client
	testMetrics = metrics.NewCollector()
)

// startSurrealDB runs a throwaway SurrealDB container and returns its RPC URL.
func startSurrealDB(ctx context.Context) (string, testcontainers.Container, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        surrealImage,
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return "", nil, fmt.Errorf("start container: %w", err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		return "", c, fmt.Errorf("container host: %w", err)
	}
	// Some docker setups report "null".
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := c.MappedPort(ctx, "8000")
	if err != nil {
		return "", c, fmt.Errorf("mapped port: %w", err)
	}
	return fmt.Sprintf("ws://%s:%s/rpc", host, port.Port()), c, nil
}

func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	url, container, err := startSurrealDB(ctx)
	if err != nil {
		if container != nil {
			_ = container.Terminate(ctx)
		}
		log.Fatalf("surrealdb: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       url,
		Namespace: "pluisje_test",
		Database:  "chat",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil, testMetrics)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}

	code := m.Run()
	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestConformance(t *testing.T) {
	storetest.Run(t, testDB)
}

func TestInitSchemaIdempotent(t *testing.T) {
	require.NoError(t, testDB.InitSchema(context.Background()))
}

func TestDuplicateAccountWrapsSentinel(t *testing.T) {
	ctx := context.Background()
	acc := models.Account{Email: "dup@example.com", PasswordHash: "h"}

	require.NoError(t, testDB.CreateAccount(ctx, acc))
	err := testDB.CreateAccount(ctx, acc)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestQueriesRecordMetrics(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, testDB.Ping(ctx))
	before := testMetrics.Snapshot().DBQuery.Count

	require.NoError(t, testDB.Ping(ctx))
	_, err := testDB.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, before+2, testMetrics.Snapshot().DBQuery.Count)
}

func TestWipeData(t *testing.T) {
	ctx := context.Background()
	_, err := testDB.AppendTurns(ctx, "wipe@example.com", store.DefaultPolicy(),
		models.Turn{Role: models.RoleUser, Content: "q"})
	require.NoError(t, err)

	require.NoError(t, testDB.WipeData(ctx))

	st, err := testDB.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Stats{}, st)
}
