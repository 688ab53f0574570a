package affiliate

import (
	"context"
	"strconv"
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
	"smmpanel/services/funds"
)

type PayoutInput struct {
	AmountUSD float64 `json:"amount_usd" binding:"required,gt=0"`
	Method    string  `json:"method" binding:"required"`
	Details   string  `json:"details"`
}

type Service interface {
	GetOrCreate(ctx context.Context, userID string) (*Affiliate, error)
	TrackVisit(ctx context.Context, code string) (*Affiliate, error)
	RecordSignup(ctx context.Context, userID, refCode string) error

	// Commission lifecycle, driven by the order state machine inside the
	// order's own transaction.
	CreateForOrder(ctx context.Context, tx *gorm.DB, orderID, buyerID string, chargeUSD float64) error
	ApproveForOrder(ctx context.Context, tx *gorm.DB, orderID string) error
	CancelForOrder(ctx context.Context, tx *gorm.DB, orderID string) error

	Commissions(ctx context.Context, affiliateID string, limit, offset int) ([]*Commission, error)
	RequestPayout(ctx context.Context, userID string, in PayoutInput) (*Payout, error)
	ListPayouts(ctx context.Context, affiliateID string, limit, offset int) ([]*Payout, error)
	MarkPayoutPaid(ctx context.Context, adminID, id string) (*Payout, error)
	RejectPayout(ctx context.Context, adminID, id string) (*Payout, error)
}

type service struct {
	cfg         *config.Config
	db          *gorm.DB
	node        *snowflake.Node
	sequences   sequence.Generator
	wallet      funds.Wallet
	affiliates  repository.Repository[Affiliate]
	referrals   repository.Repository[Referral]
	commissions repository.Repository[Commission]
	payouts     repository.Repository[Payout]
}

type ServiceParams struct {
	fx.In

	Config      *config.Config
	DB          *gorm.DB
	Node        *snowflake.Node
	Sequences   sequence.Generator
	Wallet      funds.Wallet
	Affiliates  repository.Repository[Affiliate]
	Referrals   repository.Repository[Referral]
	Commissions repository.Repository[Commission]
	Payouts     repository.Repository[Payout]
}

func NewService(p ServiceParams) Service {
	return &service{
		cfg:         p.Config,
		db:          p.DB,
		node:        p.Node,
		sequences:   p.Sequences,
		wallet:      p.Wallet,
		affiliates:  p.Affiliates,
		referrals:   p.Referrals,
		commissions: p.Commissions,
		payouts:     p.Payouts,
	}
}

func (s *service) GetOrCreate(ctx context.Context, userID string) (*Affiliate, error) {
	existing, err := s.affiliates.FindOne(ctx, &Affiliate{UserID: userID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	id := s.node.Generate()
	a := &Affiliate{
		ID:     id.String(),
		UserID: userID,
		Code:   strings.ToLower(strconv.FormatInt(id.Int64(), 36)),
		Rate:   s.cfg.Affiliate.DefaultRate,
	}
	if err := s.affiliates.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *service) TrackVisit(ctx context.Context, code string) (*Affiliate, error) {
	a, err := s.affiliates.FindOne(ctx, &Affiliate{Code: strings.ToLower(code)})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errutil.NotFound("Unknown referral code")
	}
	if err := s.db.WithContext(ctx).Model(&Affiliate{}).Where("id = ?", a.ID).
		UpdateColumn("visits", gorm.Expr("visits + 1")).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// RecordSignup attributes a fresh signup to the affiliate behind refCode.
// Self-referrals and repeat attributions are silently dropped.
func (s *service) RecordSignup(ctx context.Context, userID, refCode string) error {
	a, err := s.affiliates.FindOne(ctx, &Affiliate{Code: strings.ToLower(refCode)})
	if err != nil {
		return err
	}
	if a == nil || a.UserID == userID {
		return nil
	}

	existing, err := s.referrals.FindOne(ctx, &Referral{ReferredUserID: userID})
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.referrals.WithTrx(tx).Create(ctx, &Referral{
			ID:             s.node.Generate().String(),
			AffiliateID:    a.ID,
			ReferredUserID: userID,
		}); err != nil {
			return err
		}
		return tx.WithContext(ctx).Model(&Affiliate{}).Where("id = ?", a.ID).
			UpdateColumn("signups", gorm.Expr("signups + 1")).Error
	})
}

// CreateForOrder records a pending commission when a referred user places an
// order. Buyers without a referral produce nothing.
func (s *service) CreateForOrder(ctx context.Context, tx *gorm.DB, orderID, buyerID string, chargeUSD float64) error {
	referral, err := s.referrals.WithTrx(tx).FindOne(ctx, &Referral{ReferredUserID: buyerID})
	if err != nil {
		return err
	}
	if referral == nil {
		return nil
	}

	a, err := s.affiliates.WithTrx(tx).FindOne(ctx, &Affiliate{ID: referral.AffiliateID})
	if err != nil {
		return err
	}
	if a == nil || a.Rate <= 0 {
		return nil
	}

	existing, err := s.commissions.WithTrx(tx).FindOne(ctx, &Commission{OrderID: orderID})
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	return s.commissions.WithTrx(tx).Create(ctx, &Commission{
		ID:          s.node.Generate().String(),
		AffiliateID: a.ID,
		OrderID:     orderID,
		UserID:      buyerID,
		AmountUSD:   chargeUSD * a.Rate / 100,
		Rate:        a.Rate,
		Status:      CommissionPending,
	})
}

// ApproveForOrder moves the order's commission to approved and credits the
// affiliate once. Already approved commissions are left alone.
func (s *service) ApproveForOrder(ctx context.Context, tx *gorm.DB, orderID string) error {
	c, err := s.lockCommission(ctx, tx, orderID)
	if err != nil || c == nil {
		return err
	}
	if c.Status != CommissionPending {
		return nil
	}

	now := time.Now()
	if err := s.commissions.WithTrx(tx).Update(ctx, c.ID, map[string]any{
		"status":      CommissionApproved,
		"approved_at": now,
	}); err != nil {
		return err
	}

	if err := tx.WithContext(ctx).Model(&Affiliate{}).Where("id = ?", c.AffiliateID).Updates(map[string]any{
		"earnings":       gorm.Expr("earnings + ?", c.AmountUSD),
		"total_earnings": gorm.Expr("total_earnings + ?", c.AmountUSD),
	}).Error; err != nil {
		return err
	}

	zap.L().Info("commission approved",
		zap.String("trace_id", trace.SpanFromContext(ctx).SpanContext().TraceID().String()),
		zap.String("order_id", orderID),
		zap.String("affiliate_id", c.AffiliateID),
		zap.Float64("amount_usd", c.AmountUSD),
	)
	return nil
}

// CancelForOrder voids the order's commission. An approved commission is
// reversed out of the affiliate's earnings.
func (s *service) CancelForOrder(ctx context.Context, tx *gorm.DB, orderID string) error {
	c, err := s.lockCommission(ctx, tx, orderID)
	if err != nil || c == nil {
		return err
	}
	if c.Status == CommissionCancelled {
		return nil
	}

	if c.Status == CommissionApproved {
		if err := tx.WithContext(ctx).Model(&Affiliate{}).Where("id = ?", c.AffiliateID).Updates(map[string]any{
			"earnings":       gorm.Expr("earnings - ?", c.AmountUSD),
			"total_earnings": gorm.Expr("total_earnings - ?", c.AmountUSD),
		}).Error; err != nil {
			return err
		}
	}

	return s.commissions.WithTrx(tx).Update(ctx, c.ID, map[string]any{
		"status": CommissionCancelled,
	})
}

func (s *service) lockCommission(ctx context.Context, tx *gorm.DB, orderID string) (*Commission, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c Commission
	if err := q.First(&c, "order_id = ?", orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *service) Commissions(ctx context.Context, affiliateID string, limit, offset int) ([]*Commission, error) {
	return s.commissions.Find(ctx, &Commission{AffiliateID: affiliateID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}

// RequestPayout reserves earnings for withdrawal. Method "balance" settles
// instantly into the wallet; anything else waits for an admin.
func (s *service) RequestPayout(ctx context.Context, userID string, in PayoutInput) (*Payout, error) {
	a, err := s.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	code, err := s.sequences.NextPayoutCode(ctx)
	if err != nil {
		return nil, err
	}

	payout := &Payout{
		ID:          s.node.Generate().String(),
		Code:        code,
		AffiliateID: a.ID,
		AmountUSD:   in.AmountUSD,
		Method:      in.Method,
		Details:     in.Details,
		Status:      PayoutPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.WithContext(ctx).Model(&Affiliate{}).
			Where("id = ? AND earnings >= ?", a.ID, in.AmountUSD).
			UpdateColumn("earnings", gorm.Expr("earnings - ?", in.AmountUSD))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errutil.UnprocessableEntity("Insufficient affiliate earnings")
		}

		if err := s.payouts.WithTrx(tx).Create(ctx, payout); err != nil {
			return err
		}

		if strings.EqualFold(in.Method, "balance") {
			if _, err := s.wallet.Credit(ctx, tx, funds.Entry{
				UserID:      userID,
				AmountUSD:   in.AmountUSD,
				Type:        funds.TxnPayout,
				ReferenceID: payout.ID,
				Note:        "Affiliate payout " + code,
			}); err != nil {
				return err
			}
			now := time.Now()
			if err := s.payouts.WithTrx(tx).Update(ctx, payout.ID, map[string]any{
				"status":       PayoutPaid,
				"processed_by": "system",
				"processed_at": now,
			}); err != nil {
				return err
			}
			payout.Status = PayoutPaid
			payout.ProcessedAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

func (s *service) ListPayouts(ctx context.Context, affiliateID string, limit, offset int) ([]*Payout, error) {
	return s.payouts.Find(ctx, &Payout{AffiliateID: affiliateID},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(limit),
		option.WithOffset(offset),
	)
}

func (s *service) MarkPayoutPaid(ctx context.Context, adminID, id string) (*Payout, error) {
	return s.processPayout(ctx, adminID, id, PayoutPaid)
}

func (s *service) RejectPayout(ctx context.Context, adminID, id string) (*Payout, error) {
	return s.processPayout(ctx, adminID, id, PayoutRejected)
}

func (s *service) processPayout(ctx context.Context, adminID, id, target string) (*Payout, error) {
	var payout *Payout
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.WithContext(ctx)
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var p Payout
		if err := q.First(&p, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return errutil.NotFound("Payout not found")
			}
			return err
		}
		payout = &p

		if p.Status == target {
			return nil
		}
		if p.Status != PayoutPending {
			return errutil.Conflict("Payout was already processed")
		}

		if target == PayoutRejected {
			if err := tx.WithContext(ctx).Model(&Affiliate{}).Where("id = ?", p.AffiliateID).
				UpdateColumn("earnings", gorm.Expr("earnings + ?", p.AmountUSD)).Error; err != nil {
				return err
			}
		}

		now := time.Now()
		if err := s.payouts.WithTrx(tx).Update(ctx, p.ID, map[string]any{
			"status":       target,
			"processed_by": adminID,
			"processed_at": now,
		}); err != nil {
			return err
		}
		payout.Status = target
		payout.ProcessedBy = adminID
		payout.ProcessedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}
