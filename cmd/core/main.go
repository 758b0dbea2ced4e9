package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpc_adapter "github.com/JoeShih716/go-atm-ledger/internal/app/core/adapter/in/grpc"
	cache_adapter "github.com/JoeShih716/go-atm-ledger/internal/app/core/adapter/out/cache"
	memory_adapter "github.com/JoeShih716/go-atm-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-atm-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-atm-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-atm-ledger/internal/config"
	"github.com/JoeShih716/go-atm-ledger/pkg/ledgerrpc"
	"github.com/JoeShih716/go-atm-ledger/pkg/logger"
	"github.com/JoeShih716/go-atm-ledger/pkg/mysql"
	"github.com/JoeShih716/go-atm-ledger/pkg/postgres"
	"github.com/JoeShih716/go-atm-ledger/pkg/redis"
	"github.com/JoeShih716/go-atm-ledger/pkg/wal"
)

// migrator SQL 類 Ledger 提供的建表功能
type migrator interface {
	Migrate(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "", "config file (default $LEDGER_CONFIG or config/config.yaml)")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Error("ledger server exited with error", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
	zl.Info("server exited")
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化 Ledger (Driven Adapter)
	ledger, closeLedger, err := newLedger(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeLedger()

	// 3. 初始化快取
	accountCache, closeCache, err := newCache(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer closeCache()

	// 4. 初始化 UseCase
	core := usecase.NewCoreUseCase(ledger, accountCache, zl.Named("core"),
		usecase.WithRefreshOnWrite(cfg.Cache.RefreshOnWrite))
	if err := seedAccounts(ctx, core, cfg.Ledger.SeedAccounts, zl); err != nil {
		return err
	}

	// 交易在 server 停止後才關閉，讓 in-flight RPC 拿得到結果
	executor := usecase.NewExecutor(core, usecase.ExecutorOptions{
		Workers:   cfg.Executor.Workers,
		QueueSize: cfg.Executor.QueueSize,
	}, zl.Named("executor"))
	executor.Start(context.Background())
	defer executor.Close()

	// 5. 初始化 gRPC Adapter (Driving Adapter)
	lis, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(grpc_adapter.UnaryLoggingInterceptor(zl.Named("rpc"))))
	ledgerrpc.RegisterLedgerServiceServer(s, grpc_adapter.NewGrpcServer(core, executor, zl.Named("rpc")))

	// 6. 啟動 gRPC Server，收到訊號後 Graceful Shutdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("starting gRPC server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("backend", cfg.Ledger.Backend),
			zap.String("cache", cfg.Cache.Backend))
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down server")
		gracefulStop(s, cfg.Server.ShutdownTimeout)
		return nil
	})
	return g.Wait()
}

func gracefulStop(s *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.Stop()
	}
}

func newLedger(ctx context.Context, cfg *config.Config, zl *zap.Logger) (usecase.Ledger, func(), error) {
	ledgerLog := zl.Named("ledger").With(zap.String("backend", cfg.Ledger.Backend))

	var (
		ledger  usecase.Ledger
		closeFn func()
	)
	switch cfg.Ledger.Backend {
	case config.BackendMySQL:
		dbClient, err := mysql.NewClient(ctx, cfg.MySQL, ledgerLog)
		if err != nil {
			return nil, nil, err
		}
		ledger = mysql_adapter.NewMySQLLedger(dbClient.DB(),
			mysql_adapter.WithLockTimeout(cfg.Ledger.LockTimeout),
			mysql_adapter.WithLogger(ledgerLog))
		closeFn = func() { _ = dbClient.Close() }
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		ledger = postgres_adapter.NewPostgresLedger(db,
			postgres_adapter.WithLockTimeout(cfg.Ledger.LockTimeout),
			postgres_adapter.WithLogger(ledgerLog))
		closeFn = func() { _ = db.Close() }
	default:
		opts := []memory_adapter.Option{
			memory_adapter.WithLockTimeout(cfg.Ledger.LockTimeout),
			memory_adapter.WithLogger(ledgerLog),
		}
		if cfg.Ledger.RefIDRetention > 0 {
			opts = append(opts, memory_adapter.WithRefIDRetention(cfg.Ledger.RefIDRetention))
		}
		var walFile *wal.WAL
		if cfg.Ledger.WALPath != "" {
			w, err := wal.NewWAL(cfg.Ledger.WALPath)
			if err != nil {
				return nil, nil, fmt.Errorf("init wal: %w", err)
			}
			walFile = w
			opts = append(opts, memory_adapter.WithWAL(w))
		}
		mutexLedger, err := memory_adapter.NewMutexLedger(nil, opts...)
		if err != nil {
			if walFile != nil {
				_ = walFile.Close()
			}
			return nil, nil, err
		}
		ledger = mutexLedger
		closeFn = func() {
			if walFile != nil {
				_ = walFile.Close()
			}
		}
	}

	if m, ok := ledger.(migrator); ok && cfg.Ledger.Migrate {
		if err := m.Migrate(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		ledgerLog.Info("schema migrated")
	}
	return ledger, closeFn, nil
}

func newCache(ctx context.Context, cfg *config.Config, zl *zap.Logger) (usecase.AccountCache, func(), error) {
	if cfg.Cache.Backend != config.CacheRedis {
		return cache_adapter.NewMemoryCache(), func() {}, nil
	}
	client, err := redis.NewClient(ctx, cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	c := cache_adapter.NewRedisCache(client, cfg.Cache.Redis.KeyPrefix, zl.Named("cache"))
	return c, func() { _ = client.Close() }, nil
}

// seedAccounts 建立設定檔中的帳戶，已存在的略過
func seedAccounts(ctx context.Context, core *usecase.CoreUseCase, seeds []config.SeedAccount, zl *zap.Logger) error {
	created := 0
	for _, seed := range seeds {
		acc, err := seed.Account()
		if err != nil {
			return err
		}
		err = core.OpenAccount(ctx, acc, seed.PIN)
		if errors.Is(err, domain.ErrAccountAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("seed account %d: %w", seed.ID, err)
		}
		created++
	}
	zl.Info("seed accounts loaded", zap.Int("configured", len(seeds)), zap.Int("created", created))
	return nil
}
