package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"petshop/config"
)

const (
	couchDBImage          = "couchdb:3.3"
	mongoDBImage          = "mongo:7"
	containerStartTimeout = 120 * time.Second
)

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() || os.Getenv("PETSHOP_INTEGRATION") != "1" {
		t.Skip("Skipping integration test: set PETSHOP_INTEGRATION=1 to run")
	}
}

// startContainer starts image and returns host:port for the given container port
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Failed to start %s container", req.Image)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate %s container: %v", req.Image, err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err, "Failed to get container host")
	mappedPort, err := container.MappedPort(ctx, port)
	require.NoError(t, err, "Failed to get mapped port")

	return fmt.Sprintf("%s:%s", host, mappedPort.Port())
}

func TestCouchStoreIntegration(t *testing.T) {
	skipUnlessIntegration(t)

	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        couchDBImage,
		ExposedPorts: []string{"5984/tcp"},
		Env: map[string]string{
			"COUCHDB_USER":     "admin",
			"COUCHDB_PASSWORD": "pass",
		},
		WaitingFor: wait.ForHTTP("/_up").WithPort("5984/tcp").WithStartupTimeout(containerStartTimeout),
	}, "5984/tcp")

	for _, authType := range []string{config.AuthBasic, config.AuthCouchDBSession} {
		t.Run(authType, func(t *testing.T) {
			cfg := config.CloudantConfig{
				URL:      "http://admin:pass@" + addr,
				Database: "pets_" + strings.ToLower(authType),
				AuthType: authType,
			}
			creds, err := config.NewCredentialProvider(cfg).Credentials()
			require.NoError(t, err)

			couch, err := NewCouchDB(cfg, creds, zap.NewNop().Sugar())
			require.NoError(t, err)

			ctx := context.Background()
			store, err := couch.EnsureDatabase(ctx)
			require.NoError(t, err)
			defer store.Close(ctx)

			exists, err := couch.DatabaseExists(ctx)
			require.NoError(t, err)
			require.True(t, exists)

			runPetStoreContract(t, store)
		})
	}
}

func TestMongoStoreIntegration(t *testing.T) {
	skipUnlessIntegration(t)

	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        mongoDBImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(containerStartTimeout),
	}, "27017/tcp")

	ctx := context.Background()
	logger := zap.NewNop().Sugar()
	mongoDB, err := NewMongoDB(ctx, "mongodb://"+addr, "pets_test", 10, 30*time.Second, logger)
	require.NoError(t, err)

	store, err := NewMongoStore(ctx, mongoDB, logger)
	require.NoError(t, err)
	defer store.Close(ctx)

	runPetStoreContract(t, store)
}
