package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/smartmark/internal/changefeed"
	"github.com/patric-chuzhbe/smartmark/internal/config"
	"github.com/patric-chuzhbe/smartmark/internal/db/postgresdb"
	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
)

func TestGetAvailableStorageType(t *testing.T) {
	testCases := []struct {
		name     string
		cfg      config.Config
		expected int
	}{
		{name: "dsn wins", cfg: config.Config{DatabaseDSN: "postgres://x", DBFileName: "db.json"}, expected: models.StorageTypePostgresql},
		{name: "file", cfg: config.Config{DBFileName: "db.json"}, expected: models.StorageTypeFile},
		{name: "memory", cfg: config.Config{}, expected: models.StorageTypeMemory},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Equal(t, testCase.expected, getAvailableStorageType(&testCase.cfg))
		})
	}
}

func TestSetupChangeFeed(t *testing.T) {
	require.NoError(t, logger.Init("error"))

	inProcess := &App{cfg: &config.Config{SubscriberBuffer: 4}}
	require.NoError(t, inProcess.setupChangeFeed(context.Background()))
	assert.Same(t, inProcess.hub, inProcess.publisher)
	assert.Empty(t, inProcess.feedRunners)

	withPostgres := &App{cfg: &config.Config{SubscriberBuffer: 4, DatabaseDSN: "postgres://localhost/smartmark"}}
	require.NoError(t, withPostgres.setupChangeFeed(context.Background()))
	assert.Equal(t, changefeed.Nop{}, withPostgres.publisher, "The trigger publishes, the service must not")
	require.Len(t, withPostgres.feedRunners, 1)
	assert.IsType(t, &postgresdb.Listener{}, withPostgres.feedRunners[0])
}

func TestNewWithMemoryStorage(t *testing.T) {
	t.Setenv("GRPC_ADDRESS", "127.0.0.1:39217")

	app, err := New(config.WithDisableFlagsParsing(true))
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.httpHandler)
	assert.NotNil(t, app.grpcServer)
	app.grpcServer.Stop()
	require.NoError(t, app.grpcLis.Close())
	require.NoError(t, app.db.Close())
}
