package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	grpc_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/in/rest"
	kafka_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/out/kafka"
	memory_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/out/memory"
	metrics_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/out/metrics"
	mysql_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/out/mysql"
	postgres_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/out/postgres"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/config"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	grpcx "github.com/JoeShih716/go-credit-ledger/pkg/grpc"
	"github.com/JoeShih716/go-credit-ledger/pkg/logger"
	"github.com/JoeShih716/go-credit-ledger/pkg/mysql"
	"github.com/JoeShih716/go-credit-ledger/pkg/postgres"
	"github.com/JoeShih716/go-credit-ledger/pkg/wal"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the yaml config")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// 1. 載入設定
	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log, nil)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server exited")
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. 初始化 Ledger
	ledger, closeLedger, err := newLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	// 3. Metrics 與事件
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	opts := []usecase.Option{
		usecase.WithLogger(log),
		usecase.WithMetrics(metrics_adapter.NewRecorder(registry)),
		usecase.WithStatementSize(cfg.Ledger.StatementSize),
	}
	if cfg.Kafka.Enabled() {
		publisher := kafka_adapter.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("close kafka publisher")
			}
		}()
		opts = append(opts, usecase.WithPublisher(publisher))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("publishing transaction events")
	}

	// 4. 初始化 UseCase
	coreUseCase := usecase.NewCoreUseCase(ledger, opts...)

	// 5. 初始化 Driving Adapters
	httpServer := rest.NewServer(cfg.Server.HTTPAddr, rest.NewHandler(coreUseCase, log,
		rest.WithMetricsHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	), log)

	grpcServer := grpcx.NewServer(cfg.Server.GRPCAddr, log)
	grpc_adapter.RegisterLedgerServiceServer(grpcServer.Server, grpc_adapter.NewGrpcServer(coreUseCase))
	grpcServer.SetServing(grpc_adapter.ServiceName, true)

	// 6. 啟動，任一 server 失敗或收到訊號時全部關閉
	g, gctx := errgroup.WithContext(ctx)
	g.Go(httpServer.Start)
	g.Go(grpcServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down servers")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		grpcServer.Stop(shutdownCtx)
		return httpServer.Stop(shutdownCtx)
	})

	log.Info().
		Str("engine", string(cfg.Ledger.Engine)).
		Str("http", cfg.Server.HTTPAddr).
		Str("grpc", cfg.Server.GRPCAddr).
		Msg("ledger service started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newLedger 依設定建立 Ledger，回傳的 close 會在 server 都停止後呼叫
func newLedger(ctx context.Context, cfg config.Config, log zerolog.Logger) (usecase.Ledger, func(), error) {
	accounts := cfg.SeedAccounts()

	switch cfg.Ledger.Engine {
	case config.EngineMySQL:
		dbClient, err := mysql.NewClient(ctx, cfg.MySQL, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mysql: %w", err)
		}
		ledger := mysql_adapter.NewMySQLLedger(dbClient, cfg.Ledger.MaxRetries)
		if err := ledger.EnsureSchema(ctx, accounts); err != nil {
			_ = dbClient.Close()
			return nil, nil, err
		}
		log.Info().Int("accounts", len(accounts)).Msg("mysql ledger ready")
		return ledger, func() { _ = dbClient.Close() }, nil

	case config.EnginePostgres:
		db, err := postgres.NewDB(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		ledger := postgres_adapter.NewPostgresLedger(db, cfg.Ledger.MaxRetries)
		if err := ledger.EnsureSchema(ctx, accounts); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.Info().Int("accounts", len(accounts)).Msg("postgres ledger ready")
		return ledger, func() { _ = db.Close() }, nil

	case config.EngineMutex, config.EngineLMAX:
		walFile, err := wal.NewWAL(cfg.Ledger.WALPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open wal: %w", err)
		}
		closeWAL := func() {
			if err := walFile.Close(); err != nil {
				log.Warn().Err(err).Msg("close wal")
			}
		}
		memOpts := []memory_adapter.Option{
			memory_adapter.WithLogger(log),
			memory_adapter.WithHistorySize(cfg.Ledger.StatementSize),
		}

		if cfg.Ledger.Engine == config.EngineMutex {
			ledger, err := memory_adapter.NewMutexLedger(accounts, walFile, memOpts...)
			if err != nil {
				closeWAL()
				return nil, nil, err
			}
			return ledger, closeWAL, nil
		}

		if cfg.Ledger.Partitions > 0 {
			memOpts = append(memOpts, memory_adapter.WithPartitions(cfg.Ledger.Partitions))
		}
		ledger, err := memory_adapter.NewLMAXLedger(accounts, walFile, memOpts...)
		if err != nil {
			closeWAL()
			return nil, nil, err
		}
		// 引擎的生命週期獨立於訊號，server 停止後才讓它處理完剩下的請求
		engineCtx, cancel := context.WithCancel(context.Background())
		ledger.Start(engineCtx)
		return ledger, func() {
			cancel()
			<-ledger.Done()
			closeWAL()
		}, nil
	}
	return nil, nil, fmt.Errorf("invalid ledger engine %q", cfg.Ledger.Engine)
}
