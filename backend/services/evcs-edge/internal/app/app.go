package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	libmongo "evcsedge/backend/libs/mongo"
	libredis "evcsedge/backend/libs/redis"
	"evcsedge/backend/services/evcs-edge/internal/config"
	"evcsedge/backend/services/evcs-edge/internal/cycle"
	"evcsedge/backend/services/evcs-edge/internal/db"
	"evcsedge/backend/services/evcs-edge/internal/evcs"
	"evcsedge/backend/services/evcs-edge/internal/handlers"
	"evcsedge/backend/services/evcs-edge/internal/httpapi"
	"evcsedge/backend/services/evcs-edge/internal/metrics"
	"evcsedge/backend/services/evcs-edge/internal/mqtt"
	"evcsedge/backend/services/evcs-edge/internal/ocpp"
	"evcsedge/backend/services/evcs-edge/internal/repository"
	"evcsedge/backend/services/evcs-edge/internal/service"
	"evcsedge/backend/services/evcs-edge/internal/sessions"
	"evcsedge/backend/services/evcs-edge/internal/simulator"
	"evcsedge/backend/services/evcs-edge/internal/timedata"
	"evcsedge/backend/services/evcs-edge/internal/ws"
)

// App wires all dependencies of the edge controller.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *sql.DB
	redis    *redis.Client
	mongo    *mongo.Client
	mqtt     *mqtt.Publisher
	registry *sessions.Registry
	commands *ocpp.CommandManager
	manager  *ws.Manager
	driver   *cycle.Driver
	handler  http.Handler
	server   *httpapi.Server
	cancel   context.CancelFunc
}

// New builds the application graph. Connections live until ctx is cancelled
// or Close is called.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	ctx, cancel := context.WithCancel(ctx)
	a := &App{cfg: cfg, logger: logger, cancel: cancel}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg

	var (
		stations handlers.StationStore
		frames   httpapi.FrameLister
		logRepo  ocpp.OCPPLogRepository
	)
	if cfg.Database.DSN != "" {
		sqlDB, err := db.NewPostgres(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		a.db = sqlDB
		if err := db.Migrate(ctx, sqlDB); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		stations = repository.NewStationRepository(sqlDB)
		if cfg.Database.LogFrames {
			frameRepo := repository.NewOCPPLogRepository(sqlDB)
			logRepo = frameRepo
			frames = frameRepo
		}
	}

	store, err := a.timedataStore(ctx)
	if err != nil {
		return err
	}

	commands := ocpp.NewCommandManager(ocpp.CommandManagerConfig{
		Timeout:     cfg.CommandTimeout(),
		MaxAttempts: cfg.OCPP.CommandMaxAttempts,
		Logger:      a.logger.Named("commands"),
	})
	a.commands = commands
	registry := sessions.NewRegistry(ocpp.NewSessionServer(commands), a.logger.Named("sessions"))
	a.registry = registry
	a.driver = cycle.NewDriver(cfg.CyclePeriod(), a.logger.Named("cycle"))

	for _, chargerCfg := range cfg.EnabledChargers() {
		componentCfg, err := chargerCfg.Component()
		if err != nil {
			return err
		}
		opts := []evcs.Option{evcs.WithLogger(a.logger)}
		if store != nil {
			opts = append(opts, evcs.WithTimedata(store))
		}
		component, err := evcs.New(componentCfg, chargerCfg.Profile(), opts...)
		if err != nil {
			return fmt.Errorf("charger %s: %w", chargerCfg.ID, err)
		}
		if err := registry.Register(component); err != nil {
			return err
		}
		a.driver.Register(component)
	}
	if err := a.registerGridMeters(); err != nil {
		return err
	}

	var recorder handlers.EnergyRecorder
	if store != nil {
		recorder = store
	}
	state := service.NewStationState()
	router := ocpp.NewRouter()
	handlers.Register(router, handlers.Deps{
		Components:        registry,
		Stations:          stations,
		State:             state,
		Transactions:      service.NewTransactionStore(),
		Recorder:          recorder,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		Logger:            a.logger.Named("ocpp"),
	})
	processor := ocpp.NewProcessor(ocpp.NewParser(), router, commands, logRepo, a.logger.Named("ocpp"))

	a.manager = ws.NewManager(cfg.PingInterval(), a.logger.Named("ws"))
	wsServer := ws.NewServer(ctx, a.manager, processor, &stationHooks{
		commands: commands,
		registry: registry,
		logger:   a.logger.Named("ws"),
	}, ws.NewBasicAuth(cfg.StationPasswords()), cfg.WriteTimeout(), a.logger.Named("ws"))

	if cfg.MQTT.Broker != "" {
		if err := a.connectMQTT(); err != nil {
			return err
		}
	}

	a.handler = httpapi.NewRouter(httpapi.RouterDeps{
		Chargers:  httpapi.NewChargerHandlers(registry, a.logger.Named("api")),
		Stations:  httpapi.NewStationHandlers(state, a.manager, commands, frames, a.logger.Named("api")),
		WebSocket: wsServer.HandleWS,
		Metrics:   metrics.Handler(),
		JWTSecret: cfg.Auth.JWTSecret,
	})
	a.server = httpapi.NewServer(cfg.HTTPAddress(), a.handler, a.logger, httpapi.LoggingMiddleware(a.logger))
	return nil
}

// timedataStore returns the configured history backend, nil when disabled.
func (a *App) timedataStore(ctx context.Context) (timedata.Store, error) {
	cfg := a.cfg
	policy := timedata.DefaultRetryPolicy
	if cfg.Timedata.MaxRetries > 0 {
		policy.MaxRetries = uint64(cfg.Timedata.MaxRetries)
	}

	var store timedata.Store
	switch cfg.Timedata.Backend {
	case config.TimedataPostgres:
		if a.db == nil {
			return nil, fmt.Errorf("timedata: postgres backend needs a database")
		}
		store = timedata.NewPostgresStore(a.db, policy)
	case config.TimedataMongo:
		client, err := libmongo.NewMongoClient(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		a.mongo = client
		mongoStore := timedata.NewMongoStore(client.Database(cfg.Mongo.Database), policy)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		store = mongoStore
	default:
		return nil, nil
	}

	if cfg.Redis.Addr != "" {
		client, err := libredis.NewRedisClient(ctx, libredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.redis = client
		store = timedata.NewCache(client, store, cfg.RedisTTL(), a.logger.Named("timedata"))
	}
	return store, nil
}

func (a *App) registerGridMeters() error {
	for _, gm := range a.cfg.Simulator.GridMeters {
		if !gm.Enabled {
			continue
		}
		dsCfg, ok := a.cfg.Datasource(gm.DatasourceID)
		if !ok {
			return fmt.Errorf("grid meter %s: unknown datasource %s", gm.ID, gm.DatasourceID)
		}
		source, err := simulator.LoadCSV(dsCfg.ID, dsCfg.Path, dsCfg.Column)
		if err != nil {
			return err
		}
		meter, err := simulator.NewGridMeter(simulator.GridMeterConfig{
			ID:           gm.ID,
			Alias:        gm.Alias,
			Enabled:      gm.Enabled,
			DatasourceID: gm.DatasourceID,
			ModbusID:     gm.ModbusID,
			ModbusUnitID: gm.ModbusUnitID,
		}, source, a.logger.Named("simulator"))
		if err != nil {
			return err
		}
		a.driver.Register(meter)
	}
	return nil
}

func (a *App) connectMQTT() error {
	cfg := a.cfg
	client, err := mqtt.Connect(mqtt.ClientOptions{
		Broker:   cfg.MQTT.Broker,
		ClientID: cfg.MQTT.ClientID,
		Username: cfg.MQTT.Username,
		Password: cfg.MQTT.Password,
	}, a.logger.Named("mqtt"))
	if err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	publisher := mqtt.NewPublisher(client, a.registry, cfg.MQTT.TopicPrefix, a.logger.Named("mqtt"))
	a.mqtt = publisher
	if err := publisher.SubscribeLimits(); err != nil {
		return fmt.Errorf("mqtt subscribe: %w", err)
	}
	a.driver.Register(publisher)
	return nil
}

// Handler returns the HTTP handler serving the API and the OCPP endpoint.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Registry returns the configured components.
func (a *App) Registry() *sessions.Registry {
	return a.registry
}

// Driver returns the control cycle.
func (a *App) Driver() *cycle.Driver {
	return a.driver
}

// Run starts the ping loop, the control cycle and the HTTP server and blocks
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.manager.Start(ctx) })
	g.Go(func() error { return a.driver.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })
	return g.Wait()
}

// Close releases resources.
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
	if a.mongo != nil {
		if err := a.mongo.Disconnect(context.Background()); err != nil {
			a.logger.Warn("failed to close mongo", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}

// stationHooks binds station connections to command delivery and sessions.
type stationHooks struct {
	commands *ocpp.CommandManager
	registry *sessions.Registry
	logger   *zap.Logger
}

func (h *stationHooks) Connected(stationID string, conn *ws.Connection) {
	h.commands.AttachConnection(stationID, conn)
	if _, ok := h.registry.Attach(stationID); !ok {
		h.logger.Info("station has no configured chargers", zap.String("station_id", stationID))
	}
}

func (h *stationHooks) Disconnected(stationID string, conn *ws.Connection) {
	h.registry.Detach(stationID)
	h.commands.DetachConnection(stationID, conn)
	if n := h.commands.FailQueued(stationID, "station disconnected"); n > 0 {
		h.logger.Info("dropped queued commands", zap.String("station_id", stationID), zap.Int("count", n))
	}
}
