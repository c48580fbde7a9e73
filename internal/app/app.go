// Package app initializes and runs the smartmark server.
// It configures logging, storage, the change feed, authentication, the
// HTTP and gRPC servers, and handles graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/smartmark/internal/auth"
	"github.com/patric-chuzhbe/smartmark/internal/changefeed"
	"github.com/patric-chuzhbe/smartmark/internal/config"
	"github.com/patric-chuzhbe/smartmark/internal/db/jsondb"
	"github.com/patric-chuzhbe/smartmark/internal/db/memorystorage"
	"github.com/patric-chuzhbe/smartmark/internal/db/postgresdb"
	"github.com/patric-chuzhbe/smartmark/internal/db/storage"
	"github.com/patric-chuzhbe/smartmark/internal/grpcserver"
	"github.com/patric-chuzhbe/smartmark/internal/ipchecker"
	"github.com/patric-chuzhbe/smartmark/internal/logger"
	"github.com/patric-chuzhbe/smartmark/internal/models"
	"github.com/patric-chuzhbe/smartmark/internal/router"
	"github.com/patric-chuzhbe/smartmark/internal/service"
)

const shutdownTimeout = 10 * time.Second

// runner is a background loop that lives until its context ends.
type runner interface {
	Run(ctx context.Context) error
}

// App encapsulates the configuration, storage, change feed and servers
// needed to run the bookmark service.
type App struct {
	cfg         *config.Config
	db          storage.Storage
	hub         *changefeed.Hub
	publisher   changefeed.Publisher
	feedRunners []runner
	closers     []func() error
	httpHandler http.Handler
	grpcServer  *grpc.Server
	grpcLis     net.Listener
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage
// - choosing how change events reach subscribers
// - setting up the HTTP router and the gRPC server
func New(optionsProto ...config.InitOption) (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New(optionsProto...)
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	if err := app.setupChangeFeed(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	theAuth := auth.New(
		app.db,
		app.cfg.AuthCookieName,
		[]byte(app.cfg.AuthCookieSigningSecretKey),
		app.cfg.BaseURL,
		auth.Provider{
			Name:         app.cfg.OAuthProvider,
			ClientID:     app.cfg.OAuthClientID,
			ClientSecret: app.cfg.OAuthClientSecret,
			AuthURL:      app.cfg.OAuthAuthURL,
			TokenURL:     app.cfg.OAuthTokenURL,
			UserInfoURL:  app.cfg.OAuthUserInfoURL,
			Scopes:       app.cfg.OAuthScopes,
		},
		auth.WithSessionTTL(app.cfg.SessionTTL),
	)

	checker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	svc := service.New(app.db, app.publisher)

	app.httpHandler = router.New(
		svc,
		app.hub,
		theAuth,
		checker,
		router.WithHeartbeat(app.cfg.ChangesHeartbeat),
	)

	if app.cfg.GRPCAddr != "" {
		app.grpcServer, app.grpcLis, err = grpcserver.NewGRPCServer(
			app.cfg.GRPCAddr,
			grpcserver.NewBookmarkHandler(svc, app.hub),
			theAuth,
		)
		if err != nil {
			return nil, err
		}
	}

	return app, nil
}

// setupChangeFeed picks the path change events take to the local hub:
// through Redis when configured, from the Postgres trigger via LISTEN,
// or straight from the service.
func (a *App) setupChangeFeed(ctx context.Context) error {
	a.hub = changefeed.NewHub(a.cfg.SubscriberBuffer)

	switch {
	case a.cfg.RedisAddr != "":
		relay, err := changefeed.NewRedisRelay(ctx, changefeed.RedisOptions{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		}, a.hub)
		if err != nil {
			return err
		}
		a.publisher = relay
		a.feedRunners = append(a.feedRunners, relay)
		a.closers = append(a.closers, relay.Close)
		logger.Log.Infow("change feed: redis", "addr", a.cfg.RedisAddr)

	case getAvailableStorageType(a.cfg) == models.StorageTypePostgresql:
		a.publisher = changefeed.Nop{}
		a.feedRunners = append(a.feedRunners, postgresdb.NewListener(a.cfg.DatabaseDSN, a.hub))
		logger.Log.Infow("change feed: postgres LISTEN", "channel", postgresdb.ChangesChannel)

	default:
		a.publisher = a.hub
		logger.Log.Infow("change feed: in-process")
	}

	return nil
}

// Run starts the servers and the change feed with graceful shutdown
// support. It listens for system signals and cleans up resources upon
// termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	feedCtx, stopFeed := context.WithCancel(context.Background())
	defer stopFeed()
	for _, r := range a.feedRunners {
		go func(r runner) {
			if err := r.Run(feedCtx); err != nil {
				logger.Log.Errorw("change feed stopped", "err", err)
			}
		}(r)
	}

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 2)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	if a.grpcServer != nil {
		logger.Log.Infoln("gRPC server running", "GRPCAddr", a.cfg.GRPCAddr)
		go func() {
			serverErrCh <- a.grpcServer.Serve(a.grpcLis)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing connections and exiting...")
		return a.shutdown(server, stopFeed)

	case err := <-serverErrCh:
		shutdownErr := a.shutdown(server, stopFeed)
		if errors.Is(err, http.ErrServerClosed) {
			return shutdownErr
		}
		return errors.Join(fmt.Errorf("server error: %w", err), shutdownErr)
	}
}

func (a *App) shutdown(server *http.Server, stopFeed context.CancelFunc) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Ends open event streams, which would otherwise hold Shutdown.
	a.hub.Close()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Debugln("error while `server.Shutdown()` calling: ", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			errs = append(errs, closeErr)
		}
	}

	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}

	stopFeed()
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.db.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
