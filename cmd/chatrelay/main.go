package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/chatrelay/internal/auth"
	"github.com/goevery/chatrelay/internal/broadcaster"
	"github.com/goevery/chatrelay/internal/cluster"
	"github.com/goevery/chatrelay/internal/handler"
	"github.com/goevery/chatrelay/internal/persistence/mongodb"
	"github.com/goevery/chatrelay/internal/presence"
	"github.com/goevery/chatrelay/internal/server"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"
)

type App struct {
	logger   *zap.Logger
	settings Settings

	redisClient *redis.Client
	natsRelay   *cluster.NATSRelay
	mongoClient *mongo.Client

	eventRouter     *broadcaster.Router
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(ctx context.Context, logger *zap.Logger, settings Settings) (*App, error) {
	app := &App{
		logger:   logger,
		settings: settings,
	}

	app.redisClient = redis.NewClient(&redis.Options{
		Addr:     settings.RedisAddr,
		Password: settings.RedisPassword,
		DB:       settings.RedisDB,
	})

	pingCtx, pingCtxCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCtxCancel()

	err := app.redisClient.Ping(pingCtx).Err()
	if err != nil {
		logger.Warn("redis not reachable, presence updates will fail until it is",
			zap.String("address", settings.RedisAddr),
			zap.Error(err))
	}

	presenceStore := presence.NewRedisStore(app.redisClient, settings.PresenceTTL)

	var routerOptions []broadcaster.RouterOption
	routerOptions = append(routerOptions, broadcaster.WithFanoutConcurrency(settings.FanoutConcurrency))

	if settings.NATSURL != "" {
		nodeId := gonanoid.Must()

		natsConn, err := nats.Connect(settings.NATSURL,
			nats.Name("chatrelay-"+nodeId),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(500*time.Millisecond),
			nats.Timeout(3*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to nats: %w", err)
		}

		app.natsRelay = cluster.NewNATSRelay(logger, natsConn, settings.NATSSubject, nodeId)
		routerOptions = append(routerOptions, broadcaster.WithRelay(app.natsRelay))
	}

	var contactsHandler *handler.ContactsHandler
	validator := handler.NewValidator()

	if settings.MongoDBURI != "" {
		app.mongoClient, err = mongo.Connect(options.Client().ApplyURI(settings.MongoDBURI))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}

		persistenceEngine := mongodb.NewPersistenceEngine(app.mongoClient, settings.MongoDBDatabase)

		err = persistenceEngine.Setup(pingCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to setup persistence engine: %w", err)
		}

		contactsHandler = handler.NewContactsHandler(validator, persistenceEngine, presenceStore)
	}

	rooms := broadcaster.NewRoomIndex()
	registry := broadcaster.NewConnectionRegistry(rooms)
	app.eventRouter = broadcaster.NewRouter(logger, registry, rooms, presenceStore, routerOptions...)
	lifecycle := broadcaster.NewLifecycle(logger, registry, rooms, presenceStore)

	originChecker := server.NewOriginChecker(settings.allowedOrigins())
	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       originChecker.Check,
		EnableCompression: true,
	}

	authenticator := auth.NewAuthenticator(settings.JWTSecret, settings.apiKeys())

	heartbeatHandler := handler.NewHeartbeatHandler(logger, registry, presenceStore)
	eventHandler := handler.NewEventHandler(validator, app.eventRouter)
	pushHandler := handler.NewPushHandler(validator, app.eventRouter)
	roomHandler := handler.NewRoomHandler(validator, app.eventRouter)

	router := server.NewRouter(
		logger,
		heartbeatHandler,
		eventHandler,
	)

	app.websocketServer = server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		lifecycle,
		router,
		server.WebSocketOptions{
			SendBufferSize: settings.SendBufferSize,
			ReadLimit:      settings.ReadLimit,
		},
	)
	app.restServer = server.NewRESTServer(
		logger,
		authenticator,
		pushHandler,
		roomHandler,
		contactsHandler,
		app.eventRouter,
	)

	return app, nil
}

func (a *App) run(ctx context.Context) error {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	if a.natsRelay != nil {
		err := a.natsRelay.Subscribe(notifyCtx, a.eventRouter)
		if err != nil {
			return fmt.Errorf("failed to subscribe to cluster relay: %w", err)
		}
	}

	if a.settings.ReconcileInterval > 0 {
		go a.reconcileLoop(notifyCtx)
	}

	a.startHttpServer(notifyCtx)

	a.close()

	return nil
}

func (a *App) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(a.settings.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.eventRouter.Reconcile()
		}
	}
}

func (a *App) startHttpServer(ctx context.Context) {
	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(router)
	a.restServer.Register(router)

	httpServer := &http.Server{
		Addr:    address,
		Handler: router,
	}

	a.logger.Info("starting http server",
		zap.String("address", address))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-ctx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http server shutdown failed",
			zap.Error(err))
	}

	a.logger.Info("http server stopped")
}

func (a *App) close() {
	if a.natsRelay != nil {
		err := a.natsRelay.Close()
		if err != nil {
			a.logger.Warn("failed to drain nats connection", zap.Error(err))
		}
	}

	err := a.redisClient.Close()
	if err != nil {
		a.logger.Warn("failed to close redis client", zap.Error(err))
	}

	if a.mongoClient != nil {
		disconnectCtx, disconnectCtxCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCtxCancel()

		err = a.mongoClient.Disconnect(disconnectCtx)
		if err != nil {
			a.logger.Warn("failed to disconnect from mongodb", zap.Error(err))
		}
	}
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	var settings Settings
	_, err := env.UnmarshalFromEnviron(&settings)
	if err != nil {
		panic(fmt.Errorf("failed to parse settings from environment: %w", err))
	}

	logger, err := buildZapLogger(settings.LogEncoding, settings.LogLevel)
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}
	defer logger.Sync()

	app, err := NewApp(ctx, logger, settings)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}

	err = app.run(ctx)
	if err != nil {
		logger.Fatal("failed to run", zap.Error(err))
	}
}
