package bootstrap

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"smmpanel/pkg/config"
	"smmpanel/services/affiliate"
	"smmpanel/services/catalog"
	"smmpanel/services/funds"
	"smmpanel/services/order"
	"smmpanel/services/provider"
	"smmpanel/services/ticket"
	"smmpanel/services/user"
)

// Module migrates the schema and seeds the baseline rows on startup.
var Module = fx.Module("bootstrap",
	fx.Invoke(run),
)

type params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    *config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
}

func run(p params) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := migrate(p.DB); err != nil {
				return err
			}
			if err := seed(ctx, p.Config, p.DB, p.Node); err != nil {
				return err
			}
			return nil
		},
	})
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&provider.Provider{},
		&catalog.Category{},
		&catalog.Service{},
		&order.Order{},
		&funds.Currency{},
		&funds.Transaction{},
		&funds.AddFund{},
		&affiliate.Affiliate{},
		&affiliate.Referral{},
		&affiliate.Commission{},
		&affiliate.Payout{},
		&ticket.Ticket{},
		&ticket.Message{},
	)
}

// seed creates the home and default display currencies plus the first admin.
// Every write here is skipped when the row already exists.
func seed(ctx context.Context, cfg *config.Config, db *gorm.DB, node *snowflake.Node) error {
	currencies := []funds.Currency{
		{Code: "USD", Name: "US Dollar", Symbol: "$", Rate: 1, Enabled: true},
		{Code: "BDT", Name: "Bangladeshi Taka", Symbol: "৳", Rate: 110, Enabled: true},
	}
	for _, currency := range currencies {
		var count int64
		if err := db.WithContext(ctx).Model(&funds.Currency{}).Where("code = ?", currency.Code).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := db.WithContext(ctx).Create(&currency).Error; err != nil {
				return err
			}
		}
	}

	var admins int64
	if err := db.WithContext(ctx).Model(&user.User{}).Where("role = ?", user.RoleAdmin).Count(&admins).Error; err != nil {
		return err
	}
	if admins > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &user.User{
		ID:           node.Generate().String(),
		Email:        "admin@localhost",
		PasswordHash: string(hash),
		Name:         "Administrator",
		Role:         user.RoleAdmin,
		Status:       user.StatusActive,
		CurrencyCode: cfg.Currency.HomeCode,
		APIKey:       uuid.NewString(),
	}
	if err := db.WithContext(ctx).Create(admin).Error; err != nil {
		return err
	}

	zap.L().Warn("seeded initial admin account, change the password immediately",
		zap.String("email", admin.Email),
	)
	return nil
}
