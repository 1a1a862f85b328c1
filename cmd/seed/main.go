package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"frontdesk/internal/config"
	"frontdesk/internal/database"
	"frontdesk/internal/domain"
	"frontdesk/internal/pkg/cardvault"
	jwtsvc "frontdesk/internal/pkg/jwt"
	"frontdesk/internal/repository"
)

type demoBooking struct {
	booking domain.Booking
	card    *domain.StoredCard
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.CardVaultKey == "" {
		logger.Fatal("CARD_VAULT_KEY is required to seed stored cards")
	}

	db, err := database.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("db connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("migrate failed", zap.Error(err))
	}

	vault, err := cardvault.NewFromHex(cfg.CardVaultKey)
	if err != nil {
		logger.Fatal("card vault", zap.Error(err))
	}

	logger.Info("cleaning old data")
	for _, table := range []string{"financial_documents", "bookings"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			logger.Fatal("cleanup failed", zap.String("table", table), zap.Error(err))
		}
	}

	ctx := context.Background()
	repo := repository.NewBookingRepository(db, vault)

	for _, d := range demoBookings(time.Now()) {
		b := d.booking
		if err := repo.Create(ctx, &b); err != nil {
			logger.Fatal("create booking", zap.String("guest", b.GuestName), zap.Error(err))
		}
		if d.card != nil {
			if err := repo.StoreCard(ctx, b.ID, *d.card); err != nil {
				logger.Fatal("store card", zap.Int64("booking_id", b.ID), zap.Error(err))
			}
		}
		logger.Info("booking seeded",
			zap.Int64("booking_id", b.ID),
			zap.String("location", string(b.Location)),
			zap.String("price", b.Price.StringFixed(2)),
			zap.Bool("card", d.card != nil),
		)
	}

	tokens := jwtsvc.New(cfg.JWTSecret, cfg.JWTTTL)
	staff := []struct {
		id       int64
		role     string
		location domain.Location
	}{
		{1, jwtsvc.RoleManager, ""},
		{2, jwtsvc.RoleFrontDesk, domain.LocationOrYehuda},
		{3, jwtsvc.RoleFrontDesk, domain.LocationRothschild},
	}
	for _, s := range staff {
		token, err := tokens.GenerateToken(s.id, s.role, string(s.location))
		if err != nil {
			logger.Fatal("generate token", zap.Error(err))
		}
		logger.Info("staff token", zap.Int64("user_id", s.id), zap.String("role", s.role), zap.String("location", string(s.location)), zap.String("token", token))
	}

	logger.Info("seed completed")
}

func demoBookings(now time.Time) []demoBooking {
	day := time.Date(now.Year(), now.Month(), now.Day(), 15, 0, 0, 0, time.UTC)
	visa := &domain.StoredCard{Number: "4580458045804580", Expiry: "12/29", CVV: "123"}
	master := &domain.StoredCard{Number: "5326105300985614", Expiry: "08/28", CVV: "456"}

	return []demoBooking{
		{
			booking: domain.Booking{
				Location:   domain.LocationOrYehuda,
				GuestName:  "Dana Levi",
				GuestEmail: "dana@example.com",
				RoomName:   "Deluxe 12",
				CheckIn:    day,
				CheckOut:   day.AddDate(0, 0, 2),
				Price:      decimal.NewFromInt(500),
			},
			card: visa,
		},
		{
			booking: domain.Booking{
				Location:   domain.LocationRothschild,
				GuestName:  "Yossi Cohen",
				GuestPhone: "+972501234567",
				RoomName:   "Loft 3",
				CheckIn:    day.AddDate(0, 0, 1),
				CheckOut:   day.AddDate(0, 0, 4),
				Price:      decimal.RequireFromString("840.50"),
			},
			card: master,
		},
		{
			// no card on file: only document actions are offered
			booking: domain.Booking{
				Location:  domain.LocationRothschild,
				GuestName: "Noa Peretz",
				RoomName:  "Studio 7",
				CheckIn:   day,
				CheckOut:  day.AddDate(0, 0, 1),
				Price:     decimal.NewFromInt(320),
			},
		},
	}
}
