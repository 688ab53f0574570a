package user

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/services/testutil"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	db := testutil.NewTestDB(t, &User{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Session.Secret = "test-secret"
	cfg.Session.TokenTTL = time.Hour
	cfg.Currency.DisplayDefault = "USD"

	return NewService(ServiceParams{
		Config: cfg,
		Node:   node,
		Users:  repository.ProvideStore[User](db),
	})
}

func TestRegister(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{
		Email:    "Alice@Example.com",
		Password: "correct horse",
		Name:     "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", u.Email)
	require.Equal(t, RoleUser, u.Role)
	require.Equal(t, "USD", u.CurrencyCode)
	require.NotEmpty(t, u.APIKey)
	require.NotEqual(t, "correct horse", u.PasswordHash)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "12345678"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Email: "A@B.com", Password: "12345678"})
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.CodeOf(err))
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "12345678"})
	require.NoError(t, err)

	token, u, err := svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "12345678"})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, "a@b.com", u.Email)

	_, _, err = svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "wrong"})
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnauthorized, errutil.CodeOf(err))
}

func TestLoginSuspended(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "12345678"})
	require.NoError(t, err)

	suspended := StatusSuspended
	_, err = svc.Update(ctx, u.ID, UpdateInput{Status: &suspended})
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, LoginInput{Email: "a@b.com", Password: "12345678"})
	require.Error(t, err)
	require.Equal(t, errutil.StatusForbidden, errutil.CodeOf(err))
}

type rateStub struct{ rates map[string]float64 }

func (s *rateStub) Convert(_ context.Context, amount float64, from, to string) (float64, error) {
	return amount / s.rates[from] * s.rates[to], nil
}

func TestUpdateCurrencyRefreshesBalance(t *testing.T) {
	db := testutil.NewTestDB(t, &User{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Session.Secret = "test-secret"
	cfg.Session.TokenTTL = time.Hour
	cfg.Currency.HomeCode = "USD"
	cfg.Currency.DisplayDefault = "USD"

	users := repository.ProvideStore[User](db)
	svc := NewService(ServiceParams{
		Config:    cfg,
		Node:      node,
		Users:     users,
		Converter: &rateStub{rates: map[string]float64{"USD": 1, "BDT": 110}},
	})

	ctx := context.Background()
	u, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "12345678"})
	require.NoError(t, err)
	require.NoError(t, users.Update(ctx, u.ID, map[string]any{"balance": 10.0, "balance_usd": 10.0}))

	bdt := "BDT"
	updated, err := svc.Update(ctx, u.ID, UpdateInput{CurrencyCode: &bdt})
	require.NoError(t, err)
	require.Equal(t, "BDT", updated.CurrencyCode)
	require.InDelta(t, 1100, updated.Balance, 1e-9)
	require.InDelta(t, 10, updated.BalanceUSD, 1e-9)
}

func TestRotateAPIKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "12345678"})
	require.NoError(t, err)

	key, err := svc.RotateAPIKey(ctx, u.ID)
	require.NoError(t, err)
	require.NotEqual(t, u.APIKey, key)

	got, err := svc.GetByAPIKey(ctx, key)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = svc.GetByAPIKey(ctx, u.APIKey)
	require.Error(t, err)
}
