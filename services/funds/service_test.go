package funds

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/services/testutil"
	"smmpanel/services/user"
)

type fixture struct {
	db      *gorm.DB
	service Service
	wallet  Wallet
	users   repository.Repository[user.User]
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, &user.User{}, &Currency{}, &AddFund{}, &Transaction{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Currency.HomeCode = "USD"
	cfg.Currency.DisplayDefault = "USD"
	cfg.Payment.CallbackKey = "cbkey"

	currencies := repository.ProvideStore[Currency](db)
	transactions := repository.ProvideStore[Transaction](db)
	converter := NewConverter(currencies)
	wallet := NewWallet(cfg, node, converter, transactions)

	svc := NewService(ServiceParams{
		Config:       cfg,
		DB:           db,
		Node:         node,
		Sequences:    &testutil.SequenceStub{},
		Converter:    converter,
		Wallet:       wallet,
		Currencies:   currencies,
		AddFunds:     repository.ProvideStore[AddFund](db),
		Transactions: transactions,
	})

	ctx := context.Background()
	rate := 1.0
	_, err = svc.UpsertCurrency(ctx, CurrencyInput{Code: "USD", Name: "US Dollar", Rate: &rate})
	require.NoError(t, err)
	bdt := 110.0
	_, err = svc.UpsertCurrency(ctx, CurrencyInput{Code: "BDT", Name: "Taka", Rate: &bdt})
	require.NoError(t, err)

	return &fixture{
		db:      db,
		service: svc,
		wallet:  wallet,
		users:   repository.ProvideStore[user.User](db),
	}
}

func (f *fixture) createUser(t *testing.T, id, currency string, balanceUSD float64) {
	t.Helper()
	balance := balanceUSD
	if currency == "BDT" {
		balance = balanceUSD * 110
	}
	require.NoError(t, f.users.Create(context.Background(), &user.User{
		ID:           id,
		Email:        id + "@test.local",
		PasswordHash: "x",
		CurrencyCode: currency,
		Balance:      balance,
		BalanceUSD:   balanceUSD,
		APIKey:       "key-" + id,
	}))
}

func TestConvert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	got, err := f.service.Convert(ctx, 10, "USD", "BDT")
	require.NoError(t, err)
	require.InDelta(t, 1100, got, 1e-9)

	got, err = f.service.Convert(ctx, 220, "BDT", "USD")
	require.NoError(t, err)
	require.InDelta(t, 2, got, 1e-9)

	// Round trip against the same rate snapshot.
	there, err := f.service.Convert(ctx, 37.5, "USD", "BDT")
	require.NoError(t, err)
	back, err := f.service.Convert(ctx, there, "BDT", "USD")
	require.NoError(t, err)
	require.InDelta(t, 37.5, back, 1e-9)
}

func TestConvertUnknownCurrency(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Convert(context.Background(), 10, "USD", "XYZ")
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.CodeOf(err))
}

func TestDebitInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", "USD", 5)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.wallet.Debit(ctx, tx, Entry{UserID: "u1", AmountUSD: 10, Type: TxnOrder})
		return err
	})
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.CodeOf(err))

	u, err := f.users.FindOne(ctx, &user.User{ID: "u1"})
	require.NoError(t, err)
	require.Equal(t, 5.0, u.BalanceUSD)
}

func TestWalletLedgerSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", "BDT", 10)

	var entry *Transaction
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = f.wallet.Debit(ctx, tx, Entry{UserID: "u1", AmountUSD: 2, Type: TxnOrder, ReferenceID: "o1"})
		return err
	})
	require.NoError(t, err)

	require.InDelta(t, -220, entry.Amount, 1e-9)
	require.InDelta(t, -2, entry.AmountUSD, 1e-9)
	require.InDelta(t, 880, entry.BalanceAfter, 1e-9)
	require.InDelta(t, 8, entry.BalanceAfterUSD, 1e-9)
	require.Equal(t, "BDT", entry.CurrencyCode)
}

func TestWalletColdRateCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", "BDT", 0)

	// A fresh converter has nothing cached, so the rate lookup happens
	// while the transaction already holds the pool's only connection.
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	cfg := &config.Config{}
	cfg.Currency.HomeCode = "USD"
	cold := NewWallet(cfg, node,
		NewConverter(repository.ProvideStore[Currency](f.db)),
		repository.ProvideStore[Transaction](f.db))

	var entry *Transaction
	err = f.db.Transaction(func(tx *gorm.DB) error {
		entry, err = cold.Credit(ctx, tx, Entry{UserID: "u1", AmountUSD: 5, Type: TxnDeposit})
		return err
	})
	require.NoError(t, err)
	require.InDelta(t, 550, entry.Amount, 1e-9)
	require.InDelta(t, 5, entry.AmountUSD, 1e-9)
}

func TestApproveAddFundIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", "USD", 0)

	fund, err := f.service.CreateAddFund(ctx, "u1", AddFundInput{Amount: 25, Method: "manual"})
	require.NoError(t, err)
	require.Equal(t, AddFundPending, fund.Status)
	require.InDelta(t, 25, fund.AmountUSD, 1e-9)
	require.InDelta(t, 2750, fund.AmountBDT, 1e-9)

	approved, err := f.service.ApproveAddFund(ctx, "admin1", fund.ID)
	require.NoError(t, err)
	require.Equal(t, AddFundCompleted, approved.Status)

	// Second approval must not credit again.
	_, err = f.service.ApproveAddFund(ctx, "admin1", fund.ID)
	require.NoError(t, err)

	u, err := f.users.FindOne(ctx, &user.User{ID: "u1"})
	require.NoError(t, err)
	require.InDelta(t, 25, u.BalanceUSD, 1e-9)
}

func TestCancelCompletedAddFund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", "USD", 0)

	fund, err := f.service.CreateAddFund(ctx, "u1", AddFundInput{Amount: 10, Method: "manual"})
	require.NoError(t, err)

	_, err = f.service.ApproveAddFund(ctx, "admin1", fund.ID)
	require.NoError(t, err)

	_, err = f.service.CancelAddFund(ctx, "admin1", fund.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.CodeOf(err))
}

func TestHandleCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", "USD", 0)

	fund, err := f.service.CreateAddFund(ctx, "u1", AddFundInput{Amount: 10, Method: "bkash"})
	require.NoError(t, err)

	_, err = f.service.HandleCallback(ctx, "bkash", CallbackInput{Key: "wrong", Code: fund.Code})
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnauthorized, errutil.CodeOf(err))

	completed, err := f.service.HandleCallback(ctx, "bkash", CallbackInput{Key: "cbkey", Code: fund.Code, ExternalRef: "trx-9"})
	require.NoError(t, err)
	require.Equal(t, AddFundCompleted, completed.Status)
	require.Equal(t, "gateway:bkash", completed.ApprovedBy)

	// Gateway retry is a no-op.
	_, err = f.service.HandleCallback(ctx, "bkash", CallbackInput{Key: "cbkey", Code: fund.Code})
	require.NoError(t, err)

	u, err := f.users.FindOne(ctx, &user.User{ID: "u1"})
	require.NoError(t, err)
	require.InDelta(t, 10, u.BalanceUSD, 1e-9)
}

func TestHandleCallbackShortPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", "USD", 0)

	fund, err := f.service.CreateAddFund(ctx, "u1", AddFundInput{Amount: 10, Method: "bkash"})
	require.NoError(t, err)

	_, err = f.service.HandleCallback(ctx, "bkash", CallbackInput{Key: "cbkey", Code: fund.Code, Amount: 4})
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.CodeOf(err))

	u, err := f.users.FindOne(ctx, &user.User{ID: "u1"})
	require.NoError(t, err)
	require.Zero(t, u.BalanceUSD)

	// An overpayment still credits the recorded amount.
	completed, err := f.service.HandleCallback(ctx, "bkash", CallbackInput{Key: "cbkey", Code: fund.Code, Amount: 12})
	require.NoError(t, err)
	require.Equal(t, AddFundCompleted, completed.Status)
}

func TestHomeCurrencyGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rate := 2.0
	_, err := f.service.UpsertCurrency(ctx, CurrencyInput{Code: "USD", Rate: &rate})
	require.Error(t, err)

	disabled := false
	_, err = f.service.UpsertCurrency(ctx, CurrencyInput{Code: "USD", Enabled: &disabled})
	require.Error(t, err)
}
