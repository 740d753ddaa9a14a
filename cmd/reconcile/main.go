package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/skaiscraper/backend/internal/config"
	"github.com/skaiscraper/backend/internal/database"
	"github.com/skaiscraper/backend/internal/logger"
	"github.com/skaiscraper/backend/internal/services"
	"go.uber.org/zap"
)

// reconcile repairs wallet projections that have drifted from the ledger.
// With -tenant it rebuilds a single organization, otherwise it scans for
// every drifted wallet.
func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", ".env", "path to config file")
	tenantID := flag.String("tenant", "", "rebuild a single organization")
	limit := flag.Int("limit", 1000, "maximum number of drifted wallets to repair")
	verify := flag.Bool("verify", false, "replay the tenant's ledger and check every balance_after (requires -tenant)")
	flag.Parse()

	if err := config.Init(*configFile); err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	zl, err := logger.New(config.LoadServerConfig().LogLevel)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer zl.Sync()
	zl = zl.Named("reconcile")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, zl)
	if err != nil {
		zl.Error("failed to initialize database", zap.Error(err))
		return 1
	}
	defer db.Close()

	svc := services.NewTokenService(db, config.LoadLedgerConfig(), zl, nil)

	if *tenantID != "" {
		return reconcileTenant(ctx, zl, svc, *tenantID, *verify)
	}
	if *verify {
		zl.Error("-verify requires -tenant")
		return 1
	}

	repaired, err := svc.ReconcileDrifted(ctx, *limit)
	for _, r := range repaired {
		zl.Info("wallet repaired",
			zap.String("tenant_id", r.TenantID),
			zap.Int64("projected_balance", r.ProjectedBalance),
			zap.Int64("ledger_balance", r.LedgerBalance),
		)
	}
	if err != nil {
		zl.Error("reconciliation stopped", zap.Int("repaired", len(repaired)), zap.Error(err))
		return 1
	}
	zl.Info("reconciliation complete", zap.Int("repaired", len(repaired)))
	return 0
}

func reconcileTenant(ctx context.Context, zl *zap.Logger, svc *services.TokenService, tenantID string, verify bool) int {
	balance, err := svc.RebuildFromLedger(ctx, tenantID)
	if err != nil {
		zl.Error("rebuild failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return 1
	}
	zl.Info("wallet rebuilt", zap.String("tenant_id", tenantID), zap.Int64("balance", balance))

	if !verify {
		return 0
	}

	report, err := svc.VerifyChain(ctx, tenantID)
	if err != nil {
		zl.Error("chain verification failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return 1
	}
	if !report.Consistent {
		zl.Error("ledger chain inconsistent",
			zap.String("tenant_id", tenantID),
			zap.Int64("first_bad_seq", report.FirstBadSeq),
			zap.Int64("expected_balance_after", report.Expected),
			zap.Int64("recorded_balance_after", report.Recorded),
		)
		return 2
	}
	zl.Info("ledger chain consistent", zap.String("tenant_id", tenantID), zap.Int64("entries", report.Entries))
	return 0
}
