package affiliate

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/services/funds"
	"smmpanel/services/testutil"
	"smmpanel/services/user"
)

type fixture struct {
	db         *gorm.DB
	service    Service
	affiliates repository.Repository[Affiliate]
	users      repository.Repository[user.User]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&user.User{}, &funds.Currency{}, &funds.Transaction{},
		&Affiliate{}, &Referral{}, &Commission{}, &Payout{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Currency.HomeCode = "USD"
	cfg.Affiliate.DefaultRate = 5

	currencies := repository.ProvideStore[funds.Currency](db)
	require.NoError(t, currencies.Create(context.Background(), &funds.Currency{Code: "USD", Rate: 1, Enabled: true}))

	wallet := funds.NewWallet(cfg, node, funds.NewConverter(currencies), repository.ProvideStore[funds.Transaction](db))

	svc := NewService(ServiceParams{
		Config:      cfg,
		DB:          db,
		Node:        node,
		Sequences:   &testutil.SequenceStub{},
		Wallet:      wallet,
		Affiliates:  repository.ProvideStore[Affiliate](db),
		Referrals:   repository.ProvideStore[Referral](db),
		Commissions: repository.ProvideStore[Commission](db),
		Payouts:     repository.ProvideStore[Payout](db),
	})

	return &fixture{
		db:         db,
		service:    svc,
		affiliates: repository.ProvideStore[Affiliate](db),
		users:      repository.ProvideStore[user.User](db),
	}
}

func (f *fixture) createUser(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.users.Create(context.Background(), &user.User{
		ID:           id,
		Email:        id + "@test.local",
		PasswordHash: "x",
		CurrencyCode: "USD",
		APIKey:       "key-" + id,
	}))
}

func TestGetOrCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, first.Code)
	require.Equal(t, 5.0, first.Rate)

	second, err := f.service.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestTrackVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.service.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	_, err = f.service.TrackVisit(ctx, a.Code)
	require.NoError(t, err)
	_, err = f.service.TrackVisit(ctx, a.Code)
	require.NoError(t, err)

	reloaded, err := f.affiliates.FindOne(ctx, &Affiliate{ID: a.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), reloaded.Visits)

	_, err = f.service.TrackVisit(ctx, "nope")
	require.Error(t, err)
}

func TestRecordSignup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.service.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, f.service.RecordSignup(ctx, "u2", a.Code))
	// Repeated and self attributions are dropped.
	require.NoError(t, f.service.RecordSignup(ctx, "u2", a.Code))
	require.NoError(t, f.service.RecordSignup(ctx, "u1", a.Code))
	// Unknown code is not an error during signup.
	require.NoError(t, f.service.RecordSignup(ctx, "u3", "nope"))

	reloaded, err := f.affiliates.FindOne(ctx, &Affiliate{ID: a.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), reloaded.Signups)
}

func (f *fixture) referredOrder(t *testing.T, orderID string, chargeUSD float64) *Affiliate {
	t.Helper()
	ctx := context.Background()

	a, err := f.service.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, f.service.RecordSignup(ctx, "u2", a.Code))

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.service.CreateForOrder(ctx, tx, orderID, "u2", chargeUSD)
	}))
	return a
}

func TestCommissionApproveIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.referredOrder(t, "o1", 100)

	for i := 0; i < 2; i++ {
		require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
			return f.service.ApproveForOrder(ctx, tx, "o1")
		}))
	}

	reloaded, err := f.affiliates.FindOne(ctx, &Affiliate{ID: a.ID})
	require.NoError(t, err)
	require.InDelta(t, 5, reloaded.Earnings, 1e-9)
	require.InDelta(t, 5, reloaded.TotalEarnings, 1e-9)

	commissions, err := f.service.Commissions(ctx, a.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, commissions, 1)
	require.Equal(t, CommissionApproved, commissions[0].Status)
}

func TestCommissionCancelReversesApproved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.referredOrder(t, "o1", 100)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.service.ApproveForOrder(ctx, tx, "o1")
	}))
	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.service.CancelForOrder(ctx, tx, "o1")
	}))

	reloaded, err := f.affiliates.FindOne(ctx, &Affiliate{ID: a.ID})
	require.NoError(t, err)
	require.InDelta(t, 0, reloaded.Earnings, 1e-9)
}

func TestCommissionWithoutReferral(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.service.CreateForOrder(ctx, tx, "o1", "stranger", 100)
	}))

	var count int64
	require.NoError(t, f.db.Model(&Commission{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestRequestPayoutInsufficient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.GetOrCreate(ctx, "u1")
	require.NoError(t, err)

	_, err = f.service.RequestPayout(ctx, "u1", PayoutInput{AmountUSD: 10, Method: "bkash"})
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.CodeOf(err))
}

func TestRequestPayoutToBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1")
	a := f.referredOrder(t, "o1", 100)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.service.ApproveForOrder(ctx, tx, "o1")
	}))

	payout, err := f.service.RequestPayout(ctx, "u1", PayoutInput{AmountUSD: 5, Method: "balance"})
	require.NoError(t, err)
	require.Equal(t, PayoutPaid, payout.Status)

	u, err := f.users.FindOne(ctx, &user.User{ID: "u1"})
	require.NoError(t, err)
	require.InDelta(t, 5, u.BalanceUSD, 1e-9)

	reloaded, err := f.affiliates.FindOne(ctx, &Affiliate{ID: a.ID})
	require.NoError(t, err)
	require.InDelta(t, 0, reloaded.Earnings, 1e-9)
}

func TestRejectPayoutReturnsEarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.referredOrder(t, "o1", 100)

	require.NoError(t, f.db.Transaction(func(tx *gorm.DB) error {
		return f.service.ApproveForOrder(ctx, tx, "o1")
	}))

	payout, err := f.service.RequestPayout(ctx, "u1", PayoutInput{AmountUSD: 5, Method: "bkash"})
	require.NoError(t, err)
	require.Equal(t, PayoutPending, payout.Status)

	_, err = f.service.RejectPayout(ctx, "admin1", payout.ID)
	require.NoError(t, err)

	reloaded, err := f.affiliates.FindOne(ctx, &Affiliate{ID: a.ID})
	require.NoError(t, err)
	require.InDelta(t, 5, reloaded.Earnings, 1e-9)
}
