package funds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smmpanel/pkg/config"
	"smmpanel/pkg/db/option"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/pkg/sequence"
)

type CurrencyInput struct {
	Code    string   `json:"code" binding:"required"`
	Name    string   `json:"name"`
	Symbol  string   `json:"symbol"`
	Rate    *float64 `json:"rate"`
	Enabled *bool    `json:"enabled"`
}

type AddFundInput struct {
	Amount       float64 `json:"amount" binding:"required,gt=0"`
	CurrencyCode string  `json:"currency_code"`
	Method       string  `json:"method" binding:"required"`
}

// CallbackInput is the normalized payment gateway notification.
type CallbackInput struct {
	Key         string  `json:"key" form:"key"`
	Code        string  `json:"code" form:"code"`
	ExternalRef string  `json:"external_ref" form:"external_ref"`
	Amount      float64 `json:"amount" form:"amount"`
}

type Service interface {
	ListCurrencies(ctx context.Context, enabledOnly bool) ([]*Currency, error)
	UpsertCurrency(ctx context.Context, in CurrencyInput) (*Currency, error)
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)

	CreateAddFund(ctx context.Context, userID string, in AddFundInput) (*AddFund, error)
	ApproveAddFund(ctx context.Context, adminID, id string) (*AddFund, error)
	CancelAddFund(ctx context.Context, adminID, id string) (*AddFund, error)
	HandleCallback(ctx context.Context, gateway string, in CallbackInput) (*AddFund, error)
	ListAddFunds(ctx context.Context, userID string, limit, offset int) ([]*AddFund, error)

	Transactions(ctx context.Context, userID string, limit, offset int) ([]*Transaction, error)
}

type service struct {
	cfg          *config.Config
	db           *gorm.DB
	node         *snowflake.Node
	sequences    sequence.Generator
	converter    Converter
	wallet       Wallet
	currencies   repository.Repository[Currency]
	addFunds     repository.Repository[AddFund]
	transactions repository.Repository[Transaction]
}

type ServiceParams struct {
	fx.In

	Config       *config.Config
	DB           *gorm.DB
	Node         *snowflake.Node
	Sequences    sequence.Generator
	Converter    Converter
	Wallet       Wallet
	Currencies   repository.Repository[Currency]
	AddFunds     repository.Repository[AddFund]
	Transactions repository.Repository[Transaction]
}

func NewService(p ServiceParams) Service {
	return &service{
		cfg:          p.Config,
		db:           p.DB,
		node:         p.Node,
		sequences:    p.Sequences,
		converter:    p.Converter,
		wallet:       p.Wallet,
		currencies:   p.Currencies,
		addFunds:     p.AddFunds,
		transactions: p.Transactions,
	}
}

func (s *service) ListCurrencies(ctx context.Context, enabledOnly bool) ([]*Currency, error) {
	if enabledOnly {
		return s.currencies.Find(ctx, &Currency{Enabled: true})
	}
	return s.currencies.Find(ctx, &Currency{})
}

func (s *service) UpsertCurrency(ctx context.Context, in CurrencyInput) (*Currency, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if len(code) != 3 {
		return nil, errutil.BadRequest("Currency code must be three letters")
	}
	if in.Rate != nil && *in.Rate <= 0 {
		return nil, errutil.BadRequest("Rate must be positive")
	}
	if code == s.cfg.Currency.HomeCode && in.Rate != nil && *in.Rate != 1 {
		return nil, errutil.BadRequest("Home currency rate is fixed at 1")
	}

	existing, err := s.currencies.FindOne(ctx, &Currency{Code: code})
	if err != nil {
		return nil, err
	}
	defer s.converter.Invalidate()

	if existing == nil {
		if in.Rate == nil {
			return nil, errutil.BadRequest("Rate is required for a new currency")
		}
		currency := &Currency{Code: code, Name: in.Name, Symbol: in.Symbol, Rate: *in.Rate, Enabled: true}
		if in.Enabled != nil {
			currency.Enabled = *in.Enabled
		}
		if err := s.currencies.Create(ctx, currency); err != nil {
			return nil, err
		}
		return currency, nil
	}

	values := map[string]any{}
	if in.Name != "" {
		values["name"] = in.Name
	}
	if in.Symbol != "" {
		values["symbol"] = in.Symbol
	}
	if in.Rate != nil {
		values["rate"] = *in.Rate
	}
	if in.Enabled != nil {
		if code == s.cfg.Currency.HomeCode && !*in.Enabled {
			return nil, errutil.BadRequest("Home currency cannot be disabled")
		}
		values["enabled"] = *in.Enabled
	}
	if len(values) > 0 {
		if err := s.db.WithContext(ctx).Model(&Currency{}).Where("code = ?", code).Updates(values).Error; err != nil {
			return nil, err
		}
	}
	return s.currencies.FindOne(ctx, &Currency{Code: code})
}

func (s *service) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	return s.converter.Convert(ctx, amount, from, to)
}

func (s *service) CreateAddFund(ctx context.Context, userID string, in AddFundInput) (*AddFund, error) {
	currency := strings.ToUpper(in.CurrencyCode)
	if currency == "" {
		currency = s.cfg.Currency.DisplayDefault
	}

	amountUSD, err := s.converter.Convert(ctx, in.Amount, currency, s.cfg.Currency.HomeCode)
	if err != nil {
		return nil, err
	}
	// BDT snapshot is best effort; panels without a BDT row keep it at zero.
	amountBDT, err := s.converter.Convert(ctx, amountUSD, s.cfg.Currency.HomeCode, "BDT")
	if err != nil {
		amountBDT = 0
	}

	code, err := s.sequences.NextInvoiceCode(ctx)
	if err != nil {
		return nil, err
	}

	fund := &AddFund{
		ID:           s.node.Generate().String(),
		Code:         code,
		UserID:       userID,
		Method:       in.Method,
		Amount:       in.Amount,
		AmountUSD:    amountUSD,
		AmountBDT:    amountBDT,
		CurrencyCode: currency,
		Status:       AddFundPending,
	}
	if err := s.addFunds.Create(ctx, fund); err != nil {
		return nil, err
	}
	return fund, nil
}

// ApproveAddFund completes a pending deposit and credits the wallet in one
// transaction. Approving an already completed deposit is a no-op, so gateway
// retries and a racing admin click cannot double-credit.
func (s *service) ApproveAddFund(ctx context.Context, adminID, id string) (*AddFund, error) {
	span := trace.SpanFromContext(ctx)

	var fund *AddFund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockAddFund(ctx, tx, id)
		if err != nil {
			return err
		}
		fund = loaded

		switch fund.Status {
		case AddFundCompleted:
			return nil
		case AddFundCancelled:
			return errutil.Conflict("Deposit was cancelled")
		}

		now := time.Now()
		if err := s.addFunds.WithTrx(tx).Update(ctx, fund.ID, map[string]any{
			"status":      AddFundCompleted,
			"approved_by": adminID,
			"approved_at": now,
		}); err != nil {
			return err
		}

		if _, err := s.wallet.Credit(ctx, tx, Entry{
			UserID:      fund.UserID,
			AmountUSD:   fund.AmountUSD,
			Type:        TxnDeposit,
			ReferenceID: fund.ID,
			Note:        "Deposit " + fund.Code,
		}); err != nil {
			return err
		}

		fund.Status = AddFundCompleted
		fund.ApprovedBy = adminID
		fund.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("deposit approved",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("add_fund_id", id),
		zap.String("approved_by", adminID),
	)
	return fund, nil
}

func (s *service) CancelAddFund(ctx context.Context, adminID, id string) (*AddFund, error) {
	var fund *AddFund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockAddFund(ctx, tx, id)
		if err != nil {
			return err
		}
		fund = loaded

		switch fund.Status {
		case AddFundCancelled:
			return nil
		case AddFundCompleted:
			return errutil.Conflict("Deposit was already completed")
		}

		if err := s.addFunds.WithTrx(tx).Update(ctx, fund.ID, map[string]any{
			"status":      AddFundCancelled,
			"approved_by": adminID,
		}); err != nil {
			return err
		}
		fund.Status = AddFundCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fund, nil
}

// HandleCallback completes a deposit from a payment gateway notification.
// The shared callback key is the only authentication gateways get.
func (s *service) HandleCallback(ctx context.Context, gateway string, in CallbackInput) (*AddFund, error) {
	if s.cfg.Payment.CallbackKey == "" || in.Key != s.cfg.Payment.CallbackKey {
		return nil, errutil.Unauthorized("Invalid callback key")
	}

	fund, err := s.addFunds.FindOne(ctx, &AddFund{Code: in.Code})
	if err != nil {
		return nil, err
	}
	if fund == nil && in.ExternalRef != "" {
		fund, err = s.addFunds.FindOne(ctx, &AddFund{ExternalRef: in.ExternalRef})
		if err != nil {
			return nil, err
		}
	}
	if fund == nil {
		return nil, errutil.NotFound("Deposit not found")
	}

	// The gateway reports what was actually paid, in the deposit's own
	// currency. A short payment must not credit the full recorded value.
	if in.Amount > 0 && in.Amount < fund.Amount-0.01 {
		return nil, errutil.UnprocessableEntity(
			fmt.Sprintf("Paid amount %.2f does not cover deposit %s", in.Amount, fund.Code))
	}

	if in.ExternalRef != "" && fund.ExternalRef == "" {
		if err := s.addFunds.Update(ctx, fund.ID, map[string]any{"external_ref": in.ExternalRef}); err != nil {
			return nil, err
		}
	}
	return s.ApproveAddFund(ctx, "gateway:"+gateway, fund.ID)
}

func (s *service) lockAddFund(ctx context.Context, tx *gorm.DB, id string) (*AddFund, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var fund AddFund
	if err := q.First(&fund, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("Deposit not found")
		}
		return nil, err
	}
	return &fund, nil
}

func (s *service) ListAddFunds(ctx context.Context, userID string, limit, offset int) ([]*AddFund, error) {
	return s.addFunds.Find(ctx, &AddFund{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}

func (s *service) Transactions(ctx context.Context, userID string, limit, offset int) ([]*Transaction, error) {
	return s.transactions.Find(ctx, &Transaction{UserID: userID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}
