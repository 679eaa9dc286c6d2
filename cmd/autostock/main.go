package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"autostock/internal/auth"
	"autostock/internal/cache"
	"autostock/internal/config"
	"autostock/internal/db"
	"autostock/internal/handler"
	"autostock/internal/logger"
	"autostock/internal/metrics"
	"autostock/internal/notify"
	gormrepository "autostock/internal/repository/gorm"
	"autostock/internal/scheduler"
	"autostock/internal/service"
	"autostock/internal/storage"

	_ "autostock/docs"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("AS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if envOnlyRaw := os.Getenv("AS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.AppName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			Tags:            map[string]string{"env": cfg.App.Env},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Warn("pyroscope start failed", zap.Error(err))
		} else {
			defer func() { _ = profiler.Stop() }()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sh := shared{
		cfg:      cfg,
		logger:   log,
		notifier: notify.New(cfg.Notify, log),
		metrics:  metrics.New(),
	}

	var dbConn *db.DB
	switch cfg.Storage.Driver {
	case "db":
		dbConn, err = db.Open(ctx, cfg.DB)
		if err != nil {
			log.Fatal("db open failed", zap.Error(err))
		}
		defer dbConn.Close()
		if err := dbConn.AutoMigrate(); err != nil {
			log.Fatal("auto-migrate failed", zap.Error(err))
		}
		sh.store = storage.NewGormStore(dbConn.Gorm)
		sh.journal = gormrepository.New(dbConn.Gorm)
	default:
		sh.store = storage.NewFileStore(cfg.Storage.Dir)
	}

	sh.quotes, err = cache.New(ctx, cfg.Cache)
	if err != nil {
		log.Warn("quote cache unavailable, falling back to memory", zap.String("driver", cfg.Cache.Driver), zap.Error(err))
		sh.quotes = cache.NewMemoryStore()
	}

	var services []*service.MarketService
	var schedulers []*scheduler.Scheduler
	for _, id := range cfg.EnabledMarkets() {
		mc := cfg.Markets[id]
		svc, err := buildMarket(ctx, id, mc, sh)
		if err != nil {
			log.Fatal("market wiring failed", zap.String("market", id), zap.Error(err))
		}
		services = append(services, svc)
		schedulers = append(schedulers, scheduler.New(id, svc, mc, log))
	}
	registry := service.NewRegistry(services...)
	coordinator := scheduler.NewCoordinator(cfg.Coordinator, log, schedulers...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coordinator.Run(gctx)
	})

	if cfg.Server.Enabled {
		srv := &http.Server{
			Addr:    cfg.Server.HTTPAddr,
			Handler: newEngine(cfg, registry, sh, dbConn, log),
		}
		g.Go(func() error {
			log.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("autostock started", zap.Strings("markets", registry.Markets()), zap.Bool("dry_run", cfg.App.DryRun))
	if err := g.Wait(); err != nil {
		log.Error("stopped with error", zap.Error(err))
		return
	}
	log.Info("shutdown complete")
}

func newEngine(cfg config.Config, registry *service.Registry, sh shared, dbConn *db.DB, log *zap.Logger) *gin.Engine {
	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(auth.RequireBearer(auth.JWT{Secret: []byte(cfg.Server.AuthSecret), Issuer: "autostock"}))

	health := &handler.HealthHandler{Registry: registry}
	if dbConn != nil {
		health.DB = dbConn
	}
	health.Register(engine)
	handler.RegisterDocs(engine)
	(&handler.MarketHandler{Registry: registry, Logger: log}).Register(engine)
	(&handler.StreamHandler{Registry: registry, Interval: cfg.Server.StreamInterval, Logger: log}).Register(engine)

	engine.GET("/metrics", gin.WrapH(sh.metrics.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return engine
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
