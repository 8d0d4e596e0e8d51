package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/doccache-backend/internal/data/db"
	apphttp "github.com/yungbote/doccache-backend/internal/http"
	"github.com/yungbote/doccache-backend/internal/observability"
	"github.com/yungbote/doccache-backend/internal/platform/envutil"
	"github.com/yungbote/doccache-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Clients  Clients
	Services Services

	mu           sync.Mutex
	server       *apphttp.Server
	closeDB      func() error
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "doccache",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})

	theDB, closeDB, err := openDatabase(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = closeDB()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	reposet := wireRepos(theDB, log)

	clientset, err := wireClients(log, cfg)
	if err != nil {
		_ = closeDB()
		log.Sync()
		return nil, err
	}

	serviceset, err := wireServices(log, cfg, clock.New(), reposet, clientset)
	if err != nil {
		clientset.Close()
		_ = closeDB()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, theDB, serviceset)
	router := wireRouter(log, cfg, handlerset)

	return &App{
		Log:          log,
		DB:           theDB,
		Router:       router,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		closeDB:      closeDB,
		otelShutdown: otelShutdown,
	}, nil
}

func openDatabase(log *logger.Logger, cfg Config) (*gorm.DB, func() error, error) {
	if cfg.DBDriver == DriverSQLite {
		gdb, err := db.OpenSQLite(cfg.SQLitePath, log, false)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite: %w", err)
		}
		return gdb, func() error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}, nil
	}
	pg, err := db.NewPostgresService(log)
	if err != nil {
		return nil, nil, fmt.Errorf("init postgres: %w", err)
	}
	return pg.DB(), pg.Close, nil
}

// Start launches background work: the scheduled expiry sweep.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Start(ctx)
	}
}

// Run serves HTTP on addr until Shutdown. Call it once.
func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	srv := apphttp.NewServer(a.Router, addr)
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()
	a.Log.Info("HTTP server listening", "addr", addr)
	return srv.Run()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	srv := a.server
	a.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Stop()
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.closeDB != nil {
		if err := a.closeDB(); err != nil && a.Log != nil {
			a.Log.Warn("closing database failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
