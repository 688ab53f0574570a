package order

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/services/affiliate"
	"smmpanel/services/catalog"
	"smmpanel/services/funds"
	"smmpanel/services/provider"
	"smmpanel/services/realtime"
	"smmpanel/services/testutil"
	"smmpanel/services/user"
)

type stubUpstream struct {
	addID     string
	addErr    error
	status    *provider.RemoteStatus
	statusErr error
	multi     map[string]*provider.RemoteStatus
	refillID  string
	cancelled []string
}

func (s *stubUpstream) AddOrder(ctx context.Context, p *provider.Provider, req provider.AddRequest) (string, error) {
	return s.addID, s.addErr
}

func (s *stubUpstream) OrderStatus(ctx context.Context, p *provider.Provider, remoteID string) (*provider.RemoteStatus, error) {
	return s.status, s.statusErr
}

func (s *stubUpstream) MultiStatus(ctx context.Context, p *provider.Provider, remoteIDs []string) (map[string]*provider.RemoteStatus, error) {
	return s.multi, nil
}

func (s *stubUpstream) Refill(ctx context.Context, p *provider.Provider, remoteID string) (string, error) {
	return s.refillID, nil
}

func (s *stubUpstream) Cancel(ctx context.Context, p *provider.Provider, remoteIDs []string) error {
	s.cancelled = append(s.cancelled, remoteIDs...)
	return nil
}

type fixture struct {
	db        *gorm.DB
	service   Service
	upstream  *stubUpstream
	hub       *realtime.Hub
	users     repository.Repository[user.User]
	orders    repository.Repository[Order]
	serviceID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t,
		&user.User{}, &funds.Currency{}, &funds.Transaction{},
		&affiliate.Affiliate{}, &affiliate.Referral{}, &affiliate.Commission{}, &affiliate.Payout{},
		&catalog.Category{}, &catalog.Service{}, &provider.Provider{}, &Order{},
	)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Currency.HomeCode = "USD"
	cfg.Currency.DisplayDefault = "USD"
	cfg.Affiliate.DefaultRate = 10

	ctx := context.Background()

	currencies := repository.ProvideStore[funds.Currency](db)
	require.NoError(t, currencies.Create(ctx, &funds.Currency{Code: "USD", Rate: 1, Enabled: true}))
	require.NoError(t, currencies.Create(ctx, &funds.Currency{Code: "BDT", Rate: 110, Enabled: true}))

	converter := funds.NewConverter(currencies)
	wallet := funds.NewWallet(cfg, node, converter, repository.ProvideStore[funds.Transaction](db))

	affiliates := affiliate.NewService(affiliate.ServiceParams{
		Config:      cfg,
		DB:          db,
		Node:        node,
		Sequences:   &testutil.SequenceStub{},
		Wallet:      wallet,
		Affiliates:  repository.ProvideStore[affiliate.Affiliate](db),
		Referrals:   repository.ProvideStore[affiliate.Referral](db),
		Commissions: repository.ProvideStore[affiliate.Commission](db),
		Payouts:     repository.ProvideStore[affiliate.Payout](db),
	})

	cat := catalog.NewCatalog(catalog.CatalogParams{
		Node:       node,
		Categories: repository.ProvideStore[catalog.Category](db),
		Services:   repository.ProvideStore[catalog.Service](db),
	})

	providers := repository.ProvideStore[provider.Provider](db)
	require.NoError(t, providers.Create(ctx, &provider.Provider{
		ID: "p1", Name: "upstream", APIURL: "http://upstream.test", APIKey: "k", Status: provider.StatusActive,
	}))

	category, err := cat.CreateCategory(ctx, catalog.CategoryInput{Name: "Followers"})
	require.NoError(t, err)
	rate := 2.0
	svcRow, err := cat.CreateService(ctx, catalog.ServiceInput{
		CategoryID:        category.ID,
		ProviderID:        "p1",
		ProviderServiceID: "42",
		Name:              "IG Followers",
		Rate:              &rate,
		Min:               10,
		Max:               10000,
		Refill:            true,
		Cancel:            true,
	})
	require.NoError(t, err)

	upstream := &stubUpstream{}
	hub := realtime.NewHub()

	svc := NewService(ServiceParams{
		Config:      cfg,
		DB:          db,
		Node:        node,
		Sequences:   &testutil.SequenceStub{},
		Hub:         hub,
		Converter:   converter,
		Wallet:      wallet,
		Commissions: affiliates,
		Catalog:     cat,
		Upstream:    upstream,
		Orders:      repository.ProvideStore[Order](db),
		Providers:   providers,
		Users:       repository.ProvideStore[user.User](db),
	})

	return &fixture{
		db:        db,
		service:   svc,
		upstream:  upstream,
		hub:       hub,
		users:     repository.ProvideStore[user.User](db),
		orders:    repository.ProvideStore[Order](db),
		serviceID: svcRow.ID,
	}
}

func (f *fixture) createUser(t *testing.T, id string, balanceUSD float64) {
	t.Helper()
	require.NoError(t, f.users.Create(context.Background(), &user.User{
		ID:           id,
		Email:        id + "@test.local",
		PasswordHash: "x",
		CurrencyCode: "USD",
		Balance:      balanceUSD,
		BalanceUSD:   balanceUSD,
		APIKey:       "key-" + id,
	}))
}

func (f *fixture) balanceUSD(t *testing.T, id string) float64 {
	t.Helper()
	u, err := f.users.FindOne(context.Background(), &user.User{ID: id})
	require.NoError(t, err)
	return u.BalanceUSD
}

func TestCanTransition(t *testing.T) {
	require.True(t, StatusPending.CanTransition(StatusProcessing))
	require.True(t, StatusPending.CanTransition(StatusCancelled))
	require.True(t, StatusProcessing.CanTransition(StatusInProgress))
	require.True(t, StatusInProgress.CanTransition(StatusCompleted))
	require.True(t, StatusProcessing.CanTransition(StatusFailed))

	// Never backwards, never out of a terminal state.
	require.False(t, StatusInProgress.CanTransition(StatusProcessing))
	require.False(t, StatusProcessing.CanTransition(StatusPending))
	require.False(t, StatusCompleted.CanTransition(StatusRefunded))
	require.False(t, StatusCancelled.CanTransition(StatusProcessing))
	require.False(t, StatusPending.CanTransition(StatusPending))
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)

	sub := f.hub.Subscribe("admin", true)
	defer sub.Close()

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)
	require.Equal(t, StatusPending, o.Status)
	require.InDelta(t, 2, o.ChargeUSD, 1e-9)
	require.InDelta(t, 220, o.ChargeBDT, 1e-9)
	require.Equal(t, "USD", o.CurrencyCode)
	require.Equal(t, 1000, o.Remains)
	require.NotEmpty(t, o.Code)

	require.InDelta(t, 48, f.balanceUSD(t, "u1"), 1e-9)
	require.Equal(t, "order_created", (<-sub.Events()).Type)
}

func TestPlaceOrderInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1", 1)

	_, err := f.service.Place(context.Background(), "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.CodeOf(err))

	// Nothing committed.
	require.InDelta(t, 1, f.balanceUSD(t, "u1"), 1e-9)
	orders, err := f.service.List(context.Background(), ListFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestPlaceOrderQuantityBounds(t *testing.T) {
	f := newFixture(t)
	f.createUser(t, "u1", 100)

	_, err := f.service.Place(context.Background(), "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 5})
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadRequest, errutil.CodeOf(err))
}

func TestSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)
	f.upstream.addID = "900"

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)

	require.NoError(t, f.service.Submit(ctx, o.ID))

	reloaded, err := f.service.Get(ctx, "", o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, reloaded.Status)

	// Resubmission is a no-op.
	require.NoError(t, f.service.Submit(ctx, o.ID))
}

func TestSubmitRejectedRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)
	f.upstream.addErr = errutil.BadGateway("not enough funds")

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)
	require.InDelta(t, 48, f.balanceUSD(t, "u1"), 1e-9)

	require.NoError(t, f.service.Submit(ctx, o.ID))

	reloaded, err := f.service.Get(ctx, "", o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, reloaded.Status)
	require.InDelta(t, 50, f.balanceUSD(t, "u1"), 1e-9)
}

func TestSyncCompletedApprovesCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "ref", 0)
	f.createUser(t, "u1", 50)

	// u1 was referred by ref.
	affiliates := f.affiliateService(t)
	a, err := affiliates.GetOrCreate(ctx, "ref")
	require.NoError(t, err)
	require.NoError(t, affiliates.RecordSignup(ctx, "u1", a.Code))

	f.upstream.addID = "900"
	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)
	require.NoError(t, f.service.Submit(ctx, o.ID))

	f.upstream.status = &provider.RemoteStatus{Status: provider.RemoteCompleted, StartCount: 100, Remains: 0}
	synced, err := f.service.SyncOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, synced.Status)
	require.Equal(t, 100, synced.StartCount)
	require.Zero(t, synced.Remains)

	// 10% of the 2 USD charge.
	reloaded, err := repository.ProvideStore[affiliate.Affiliate](f.db).FindOne(ctx, &affiliate.Affiliate{ID: a.ID})
	require.NoError(t, err)
	require.InDelta(t, 0.2, reloaded.Earnings, 1e-9)

	// A second identical sync changes nothing.
	_, err = f.service.SyncOrder(ctx, o.ID)
	require.NoError(t, err)
	reloaded, err = repository.ProvideStore[affiliate.Affiliate](f.db).FindOne(ctx, &affiliate.Affiliate{ID: a.ID})
	require.NoError(t, err)
	require.InDelta(t, 0.2, reloaded.Earnings, 1e-9)
	require.InDelta(t, 48, f.balanceUSD(t, "u1"), 1e-9)
}

func (f *fixture) affiliateService(t *testing.T) affiliate.Service {
	t.Helper()
	ledger, ok := f.service.(*service)
	require.True(t, ok)
	svc, ok := ledger.commissions.(affiliate.Service)
	require.True(t, ok)
	return svc
}

func TestSyncPartialRefundsRemains(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)
	f.upstream.addID = "900"

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)
	require.NoError(t, f.service.Submit(ctx, o.ID))

	f.upstream.status = &provider.RemoteStatus{Status: provider.RemotePartial, StartCount: 100, Remains: 500}
	synced, err := f.service.SyncOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, synced.Status)

	// Half the 2 USD charge comes back.
	require.InDelta(t, 49, f.balanceUSD(t, "u1"), 1e-9)
}

func TestCancelUnsubmittedRefunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)

	cancelled, err := f.service.RequestCancel(ctx, "u1", o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.InDelta(t, 50, f.balanceUSD(t, "u1"), 1e-9)
}

func TestCancelSubmittedGoesUpstream(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)
	f.upstream.addID = "900"

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)
	require.NoError(t, f.service.Submit(ctx, o.ID))

	still, err := f.service.RequestCancel(ctx, "u1", o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, still.Status)
	require.Equal(t, []string{"900"}, f.upstream.cancelled)
}

func TestSetStatusRespectsStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)
	f.upstream.addID = "900"

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)
	require.NoError(t, f.service.Submit(ctx, o.ID))

	completed, err := f.service.SetStatus(ctx, o.ID, StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)

	_, err = f.service.SetStatus(ctx, o.ID, StatusRefunded)
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.CodeOf(err))
}

func TestSyncOpenOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)
	f.upstream.addID = "900"

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)
	require.NoError(t, f.service.Submit(ctx, o.ID))

	f.upstream.multi = map[string]*provider.RemoteStatus{
		"900": {Status: provider.RemoteInProgress, StartCount: 10, Remains: 800},
	}
	require.NoError(t, f.service.SyncOpenOrders(ctx))

	reloaded, err := f.service.Get(ctx, "", o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, reloaded.Status)
	require.Equal(t, 800, reloaded.Remains)
}

func TestRefill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.createUser(t, "u1", 50)
	f.upstream.addID = "900"
	f.upstream.refillID = "r7"

	o, err := f.service.Place(ctx, "u1", PlaceInput{ServiceID: f.serviceID, Link: "https://example.com/x", Quantity: 1000})
	require.NoError(t, err)
	require.NoError(t, f.service.Submit(ctx, o.ID))

	_, err = f.service.RequestRefill(ctx, "u1", o.ID)
	require.Error(t, err) // not completed yet

	_, err = f.service.SetStatus(ctx, o.ID, StatusCompleted)
	require.NoError(t, err)

	refilled, err := f.service.RequestRefill(ctx, "u1", o.ID)
	require.NoError(t, err)
	require.Equal(t, "r7", refilled.RefillID)

	_, err = f.service.RequestRefill(ctx, "u1", o.ID)
	require.Error(t, err)
	require.Equal(t, errutil.StatusConflict, errutil.CodeOf(err))
}
