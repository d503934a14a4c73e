package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"crosspay.facilitator/internal/config"
	"crosspay.facilitator/internal/domain/entities"
	"crosspay.facilitator/internal/infrastructure/blockchain"
	"crosspay.facilitator/internal/infrastructure/bridge"
	"crosspay.facilitator/internal/infrastructure/jobs"
	"crosspay.facilitator/internal/infrastructure/models"
	"crosspay.facilitator/internal/infrastructure/repositories"
	"crosspay.facilitator/internal/interfaces/http/handlers"
	"crosspay.facilitator/internal/interfaces/http/middleware"
	"crosspay.facilitator/internal/scheme/crosschain"
	"crosspay.facilitator/internal/scheme/exactevm"
	"crosspay.facilitator/internal/usecases"
	"crosspay.facilitator/pkg/jwt"
	"crosspay.facilitator/pkg/logger"
	"crosspay.facilitator/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := loadCfg()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	// Redis is optional; without it the idempotency cache is disabled.
	if cfg.Redis.URL != "" {
		if err := initRedis(cfg.Redis.URL, cfg.Redis.Password); err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		logger.Info(context.Background(), "Redis initialized")
	}

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := openDB(cfg.Database.URL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database not available: %w", err)
	}
	if err := db.AutoMigrate(&models.BridgeJob{}, &models.BridgeEvent{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	logger.Info(context.Background(), "Connected to PostgreSQL")

	// Repositories
	unitOfWork := repositories.NewUnitOfWork(db)
	bridgeJobRepo := repositories.NewBridgeJobRepository(db)
	bridgeEventRepo := repositories.NewBridgeEventRepository(db)

	// Chain registry and blockchain plumbing
	registry := entities.NewChainRegistry(entities.DefaultChains)
	clientFactory := blockchain.NewClientFactory(cfg.Blockchain, registry)
	nonceRegistry := blockchain.NewNonceRegistry(clientFactory)

	settleSigner, err := blockchain.NewTxSigner(cfg.Blockchain.PrivateKey)
	if err != nil {
		return fmt.Errorf("invalid settlement key: %w", err)
	}
	// When the bridge key equals the settlement key both paths resolve
	// the same nonce manager through the shared registry.
	bridgeSigner, err := blockchain.NewTxSigner(cfg.Blockchain.BridgePrivateKey)
	if err != nil {
		return fmt.Errorf("invalid bridge key: %w", err)
	}

	// Payment schemes
	exactScheme, err := exactevm.New(clientFactory, settleSigner, nonceRegistry, exactevm.Config{
		DeployERC4337WithEIP6492: cfg.Blockchain.DeployERC4337WithEIP6492,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize exact scheme: %w", err)
	}

	provider, err := bridge.NewCCTPProvider(clientFactory, bridgeSigner, nonceRegistry, registry, bridge.Config{
		AttestationURL: cfg.Bridge.AttestationURL,
		SettleAddress:  settleSigner.Address(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize bridge provider: %w", err)
	}

	router := crosschain.NewRouter(exactScheme, provider, settleSigner.Address())

	// Usecases
	bridgeUsecase := usecases.NewBridgeUsecase(unitOfWork, bridgeJobRepo, bridgeEventRepo, provider, cfg.Bridge)
	facilitatorUsecase := usecases.NewFacilitatorUsecase(
		[]usecases.SchemeFacilitator{exactScheme, router},
		registry,
		usecases.Hooks{},
		bridgeUsecase,
		cfg.Bridge.Enabled,
	)

	// Handlers
	jwtService := jwt.NewJWTService(cfg.Security.AdminJWTSecret, cfg.Security.AdminTokenTTL)
	facilitatorHandler := handlers.NewFacilitatorHandler(facilitatorUsecase)
	bridgeJobHandler := handlers.NewBridgeJobHandler(bridgeUsecase)

	// Background jobs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Bridge.Enabled {
		recoveryJob := jobs.NewBridgeRecoveryJob(bridgeUsecase, cfg.Bridge.RecoveryInterval)
		go recoveryJob.Start(ctx)
		defer recoveryJob.Stop()
	}

	// Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	registerRoutes(r, routeDeps{
		facilitatorHandler: facilitatorHandler,
		bridgeJobHandler:   bridgeJobHandler,
		jwtService:         jwtService,
		adminEnabled:       cfg.Security.AdminJWTSecret != "",
	})

	logger.Info(ctx, "Starting facilitator", zap.String("port", cfg.Server.Port))
	return runServer(r, cfg.Server.Port)
}
