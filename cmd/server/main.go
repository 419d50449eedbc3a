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
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/dunmininu/oms-trading/internal/audit"
	"github.com/dunmininu/oms-trading/internal/auth"
	"github.com/dunmininu/oms-trading/internal/config"
	cronrunner "github.com/dunmininu/oms-trading/internal/cron"
	"github.com/dunmininu/oms-trading/internal/db"
	"github.com/dunmininu/oms-trading/internal/handler"
	"github.com/dunmininu/oms-trading/internal/idempotency"
	"github.com/dunmininu/oms-trading/internal/logger"
	"github.com/dunmininu/oms-trading/internal/metrics"
	"github.com/dunmininu/oms-trading/internal/models"
	gormrepository "github.com/dunmininu/oms-trading/internal/repository/gorm"
	"github.com/dunmininu/oms-trading/internal/service"

	_ "github.com/dunmininu/oms-trading/docs"
)

const version = "0.1.0"

func main() {
	cfgPath := os.Getenv("OMS_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("OMS_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Ping(pingCtx, dbConn); err != nil {
		cancelPing()
		logger.Fatal("db unreachable", zap.Error(err))
	}
	cancelPing()

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	auditRec := &audit.DBRecorder{Repo: store, Logger: logger}

	var redisClient *redis.Client
	var idemStore idempotency.Store = &idempotency.TableStore{Repo: store, TTL: cfg.Idempotency.TTL}
	if strings.EqualFold(cfg.Idempotency.Backend, "redis") && cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unreachable, idempotency falls back to table", zap.Error(err))
		} else {
			idemStore = &idempotency.RedisStore{Client: redisClient, TTL: cfg.Idempotency.TTL}
		}
	}

	instrumentSvc := &service.InstrumentService{Repo: store, Logger: logger}
	positionSvc := &service.PositionService{Repo: store, Logger: logger}
	orderSvc := &service.OrderService{
		Repo:   store,
		Logger: logger,
		Audit:  auditRec,
		Idem:   idemStore,
		Config: service.OrderConfig{
			DefaultTimeInForce: cfg.OMS.DefaultTimeInForce,
			MaxBulkItems:       cfg.OMS.MaxBulkItems,
			MaxOrderQuantity:   decimal.NewFromFloat(cfg.OMS.MaxOrderQuantity),
		},
	}
	executionSvc := &service.ExecutionService{
		Repo:   store,
		Orders: orderSvc,
		Ledger: positionSvc,
		Audit:  auditRec,
		Logger: logger,
	}
	pnlSvc := &service.PnLService{Repo: store, Audit: auditRec, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	// Routes registered before the auth middleware stay public.
	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Version: version}
	healthHandler.Register(engine)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	handler.RegisterDocs(engine)

	if cfg.Auth.Disabled {
		logger.Warn("auth disabled, tenant taken from headers")
		seedDevTenant(store, logger)
		engine.Use(auth.DevBypass())
	} else {
		if cfg.Auth.JWTSecret == "" {
			logger.Fatal("auth.jwt_secret is required unless auth.disabled")
		}
		engine.Use(auth.Middleware(auth.JWT{
			Secret: []byte(cfg.Auth.JWTSecret),
			Issuer: cfg.Auth.Issuer,
		}))
	}

	instrumentHandler := &handler.InstrumentHandler{Repo: store, Instruments: instrumentSvc}
	instrumentHandler.Register(engine)
	orderHandler := &handler.OrderHandler{Repo: store, Orders: orderSvc}
	orderHandler.Register(engine)
	executionHandler := &handler.ExecutionHandler{Repo: store, Executions: executionSvc}
	executionHandler.Register(engine)
	positionHandler := &handler.PositionHandler{Repo: store, Positions: positionSvc}
	positionHandler.Register(engine)
	pnlHandler := &handler.PnLHandler{Repo: store, PnL: pnlSvc}
	pnlHandler.Register(engine)
	accountHandler := &handler.AccountHandler{Repo: store}
	accountHandler.Register(engine)
	auditHandler := &handler.AuditHandler{Repo: store}
	auditHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)

		_, err = cronRunner.Add("pnl_snapshot", cfg.Cron.PnLSnapshot, func(ctx context.Context) {
			if err := pnlSvc.SnapshotAll(ctx); err != nil {
				logger.Warn("cron pnl snapshot failed", zap.Error(err))
				return
			}
			logger.Info("cron pnl snapshot ok")
		})
		if err != nil {
			logger.Warn("cron register pnl snapshot failed", zap.Error(err))
		}

		_, err = cronRunner.Add("mark_refresh", cfg.Cron.MarkRefresh, func(ctx context.Context) {
			if err := positionSvc.RefreshMarks(ctx); err != nil {
				logger.Warn("position mark refresh failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("cron register mark refresh failed", zap.Error(err))
		}

		_, err = cronRunner.Add("idempotency_purge", cfg.Cron.IdempotencyPurge, func(ctx context.Context) {
			n, err := store.DeleteExpiredIdempotencyRecords(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("idempotency purge failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("purged expired idempotency records", zap.Int64("count", n))
			}
		})
		if err != nil {
			logger.Warn("cron register idempotency purge failed", zap.Error(err))
		}

		cronRunner.Start()
		defer cronRunner.Stop()
	}

	if cfg.MarketFeed.Enabled {
		streamSvc := &service.MarketStreamService{
			Repo:        store,
			Instruments: instrumentSvc,
			Logger:      logger,
		}
		go func() {
			err := streamSvc.RunQuoteStream(ctx, cfg.MarketFeed)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("quote stream stopped", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if redisClient != nil {
		_ = redisClient.Close()
	}
}

// seedDevTenant makes sure the tenant the header bypass defaults to
// exists, so rows created through the dev flow have a parent to point at.
func seedDevTenant(store *gormrepository.Store, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	existing, err := store.GetTenantByID(ctx, 1)
	if err != nil || existing != nil {
		return
	}
	bySub, err := store.GetTenantBySubdomain(ctx, "dev")
	if err != nil || bySub != nil {
		return
	}
	seed := &models.Tenant{ID: 1, Name: "Dev", Subdomain: "dev", IsActive: true}
	if err := store.InsertTenant(ctx, seed); err != nil {
		if log != nil {
			log.Warn("dev tenant seed failed", zap.Error(err))
		}
		return
	}
	if log != nil {
		log.Info("seeded dev tenant", zap.Uint64("tenant_id", seed.ID))
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Idempotency-Key,X-Tenant-ID,X-Tenant-Subdomain,X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
