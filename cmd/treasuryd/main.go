package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/meridianpay/treasury/allocation"
	"github.com/meridianpay/treasury/audit"
	"github.com/meridianpay/treasury/operator"
	"github.com/meridianpay/treasury/oracle"
	"github.com/meridianpay/treasury/pkg/common"
	"github.com/meridianpay/treasury/pkg/common/db"
	"github.com/meridianpay/treasury/pkg/common/migrations"
	"github.com/meridianpay/treasury/policy"
	"github.com/meridianpay/treasury/proposal"
	"github.com/meridianpay/treasury/server"
	"github.com/meridianpay/treasury/sweeper"
	"github.com/meridianpay/treasury/webhook"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrationsDir := flag.String("migrations", "migrations", "path to migrations directory")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	database, err := db.Connect(cfg.DB, log)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer database.Close()

	if err := migrations.Run(database, *migrationsDir, log); err != nil {
		log.Fatal("migrations failed", zap.Error(err))
	}

	// Repositories and collaborators.
	allocRepo := allocation.NewPostgresRepository(database)
	proposalRepo := proposal.NewPostgresRepository(database)
	operators := operator.NewPostgresStore(database)
	recorder := audit.NewPostgresRecorder(database, log)

	endpoints := make([]webhook.Endpoint, 0, len(cfg.Webhooks))
	for _, wh := range cfg.Webhooks {
		endpoints = append(endpoints, webhook.Endpoint{
			WorkspaceID: wh.WorkspaceID, URL: wh.URL, Secret: wh.Secret,
		})
	}
	webhooks := webhook.NewDispatcher(endpoints, log)

	gate := policy.NewRegistryGate()
	gate.OnInsuranceChange(func(workspaceID string, status policy.WorkspaceStatus) {
		metadata := map[string]any{"insurance_active": status.InsuranceActive}
		recorder.Record(context.Background(), audit.Event{
			EventType:   audit.EventInsuranceStatusChanged,
			WorkspaceID: workspaceID,
			Actor:       "system",
			Metadata:    metadata,
		})
		webhooks.Dispatch(audit.EventInsuranceStatusChanged, workspaceID, metadata)
	})
	for _, v := range cfg.Vaults {
		gate.AddVault(policy.Vault{Address: v.Address, ChainID: v.ChainID, Name: v.Name})
	}
	for _, ws := range cfg.Workspaces {
		gate.SetWorkspaceStatus(ws.ID, policy.WorkspaceStatus{
			KYCApproved:     ws.KYCApproved,
			InsuranceActive: ws.InsuranceActive,
		})
	}

	// Engines.
	reconciler := allocation.NewReconciler(allocRepo, log)
	allocator, err := allocation.NewAllocator(allocRepo, cfg.Split.TaxBPS, cfg.Split.LiquidityBPS, log)
	if err != nil {
		log.Fatal("allocator init failed", zap.Error(err))
	}
	lifecycle := proposal.NewLifecycle(proposalRepo, gate, recorder, webhooks, log)

	var balances oracle.BalanceReader
	if cfg.Oracle.RPCURL != "" {
		balances = oracle.NewERC20Reader(cfg.Oracle.RPCURL, cfg.Oracle.TokenAddress, cfg.Oracle.Timeout.Duration, log)
	}

	if cfg.Sweep.Enabled {
		sw := sweeper.New(allocRepo, reconciler, balances, cfg.Sweep.Accounts, cfg.Sweep.Interval.Duration, log)
		if err := sw.Start(); err != nil {
			log.Fatal("sweeper start failed", zap.Error(err))
		}
		defer sw.Stop()
	}

	srv := server.New(server.Deps{
		Reconciler:  reconciler,
		Allocator:   allocator,
		Allocations: allocRepo,
		Lifecycle:   lifecycle,
		Operators:   operators,
		Balances:    balances,
		Recorder:    recorder,
		Webhooks:    webhooks,
		JWTSecret:   cfg.JWTSecret,
		Log:         log,
	})

	httpServer := &http.Server{Addr: ":" + cfg.Port, Handler: srv}
	go func() {
		log.Info("treasuryd listening", zap.String("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	httpServer.Close()
	webhooks.Wait()
}
