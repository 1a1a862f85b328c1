// Command reconcile pulls the billing provider's charges and documents for
// the given bookings and writes them back locally. Run it after an action
// ended with an unknown outcome.
//
//	reconcile 11 12 40
package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"frontdesk/internal/config"
	"frontdesk/internal/database"
	"frontdesk/internal/domain"
	"frontdesk/internal/modules/actions"
	"frontdesk/internal/modules/billing"
	"frontdesk/internal/modules/bookingstate"
	"frontdesk/internal/modules/documents"
	"frontdesk/internal/modules/orchestrator"
	"frontdesk/internal/pkg/cardvault"
	"frontdesk/internal/pkg/lock"
	"frontdesk/internal/repository"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ids, err := parseIDs(os.Args[1:])
	if err != nil || len(ids) == 0 {
		logger.Fatal("usage: reconcile <booking-id>...", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	vault, err := cardvault.NewFromHex(cfg.CardVaultKey)
	if err != nil {
		logger.Fatal("card vault", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		client, err := lock.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisLockDB)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		// shares locks with the API so a running action is not raced
		locker = lock.NewRedisLocker(client, "frontdesk:lock:", logger)
	}

	reg := prometheus.NewRegistry()
	bookings := repository.NewBookingRepository(db, vault)
	client := billing.NewClient(billing.Config{
		BaseURL:       cfg.BillingBaseURL,
		Timeout:       cfg.BillingTimeout,
		RatePerSecond: cfg.BillingRatePerSecond,
		Currency:      cfg.BillingCurrency,
	}, logger, billing.NewMetrics(reg))

	creds := make(map[domain.Location]billing.Credentials, len(cfg.BillingTenants))
	for loc, c := range cfg.BillingTenants {
		creds[loc] = billing.Credentials{APIKey: c.APIKey, APISecret: c.APISecret}
	}

	registry := documents.NewRegistry(documents.NewStore(db), logger)
	orch := orchestrator.New(orchestrator.Deps{
		Bookings:  bookings,
		Gateway:   client,
		Sessions:  billing.NewSessionManager(client, creds, logger),
		Documents: registry,
		Updater:   bookingstate.NewUpdater(bookings, logger),
		Selector:  actions.NewSelector(registry),
		Locker:    locker,
	}, orchestrator.Config{LockTTL: cfg.BookingLockTTL, Currency: cfg.BillingCurrency}, logger, orchestrator.NewMetrics(reg))

	failed := 0
	for _, id := range ids {
		report, err := orch.Reconcile(ctx, id)
		if err != nil {
			failed++
			logger.Error("reconcile failed", zap.Int64("booking_id", id), zap.Error(err))
			continue
		}
		logger.Info("reconciled",
			zap.Int64("booking_id", id),
			zap.Int("provider_documents", len(report.ProviderDocuments)),
			zap.Int("documents_added", len(report.DocumentsAdded)),
			zap.Int("succeeded_charges", len(report.SucceededCharges)),
			zap.Bool("payment_status_applied", report.PaymentStatusApplied),
			zap.Bool("invoice_receipt_applied", report.InvoiceReceiptApplied),
		)
	}
	if failed > 0 {
		logger.Fatal("reconcile finished with failures", zap.Int("failed", failed))
	}
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
