package order

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"smmpanel/pkg/config"
	"smmpanel/pkg/db/option"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/pkg/sequence"
	"smmpanel/pkg/task"
	"smmpanel/services/catalog"
	"smmpanel/services/funds"
	"smmpanel/services/provider"
	"smmpanel/services/realtime"
	"smmpanel/services/user"
)

// Upstream is the slice of the provider adapter the order lifecycle needs.
type Upstream interface {
	AddOrder(ctx context.Context, p *provider.Provider, req provider.AddRequest) (string, error)
	OrderStatus(ctx context.Context, p *provider.Provider, remoteID string) (*provider.RemoteStatus, error)
	MultiStatus(ctx context.Context, p *provider.Provider, remoteIDs []string) (map[string]*provider.RemoteStatus, error)
	Refill(ctx context.Context, p *provider.Provider, remoteID string) (string, error)
	Cancel(ctx context.Context, p *provider.Provider, remoteIDs []string) error
}

// CommissionLedger is the affiliate hook driven by the order state machine.
type CommissionLedger interface {
	CreateForOrder(ctx context.Context, tx *gorm.DB, orderID, buyerID string, chargeUSD float64) error
	ApproveForOrder(ctx context.Context, tx *gorm.DB, orderID string) error
	CancelForOrder(ctx context.Context, tx *gorm.DB, orderID string) error
}

type PlaceInput struct {
	ServiceID string `json:"service_id" binding:"required"`
	Link      string `json:"link" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
	Runs      int    `json:"runs"`
	Interval  int    `json:"interval"`
}

type ListFilter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}

type Service interface {
	Place(ctx context.Context, userID string, in PlaceInput) (*Order, error)
	Get(ctx context.Context, userID, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
	RequestRefill(ctx context.Context, userID, id string) (*Order, error)
	RequestCancel(ctx context.Context, userID, id string) (*Order, error)
	SetStatus(ctx context.Context, id string, target Status) (*Order, error)

	// Worker entry points.
	Submit(ctx context.Context, orderID string) error
	SyncOrder(ctx context.Context, orderID string) (*Order, error)
	SyncOpenOrders(ctx context.Context) error
}

type service struct {
	cfg         *config.Config
	db          *gorm.DB
	node        *snowflake.Node
	sequences   sequence.Generator
	enqueuer    task.Enqueuer
	hub         *realtime.Hub
	converter   funds.Converter
	wallet      funds.Wallet
	commissions CommissionLedger
	catalog     catalog.Catalog
	upstream    Upstream
	orders      repository.Repository[Order]
	providers   repository.Repository[provider.Provider]
	users       repository.Repository[user.User]
}

type ServiceParams struct {
	fx.In

	Config      *config.Config
	DB          *gorm.DB
	Node        *snowflake.Node
	Sequences   sequence.Generator
	Enqueuer    task.Enqueuer `optional:"true"`
	Hub         *realtime.Hub
	Converter   funds.Converter
	Wallet      funds.Wallet
	Commissions CommissionLedger
	Catalog     catalog.Catalog
	Upstream    Upstream
	Orders      repository.Repository[Order]
	Providers   repository.Repository[provider.Provider]
	Users       repository.Repository[user.User]
}

func NewService(p ServiceParams) Service {
	return &service{
		cfg:         p.Config,
		db:          p.DB,
		node:        p.Node,
		sequences:   p.Sequences,
		enqueuer:    p.Enqueuer,
		hub:         p.Hub,
		converter:   p.Converter,
		wallet:      p.Wallet,
		commissions: p.Commissions,
		catalog:     p.Catalog,
		upstream:    p.Upstream,
		orders:      p.Orders,
		providers:   p.Providers,
		users:       p.Users,
	}
}

// Place charges the wallet, snapshots the price and records the pending
// commission in one transaction, then hands the order to the worker queue.
func (s *service) Place(ctx context.Context, userID string, in PlaceInput) (*Order, error) {
	span := trace.SpanFromContext(ctx)

	svc, err := s.catalog.GetService(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	if svc.Status != catalog.StatusActive {
		return nil, errutil.UnprocessableEntity("Service is not available")
	}
	if in.Quantity < svc.Min || in.Quantity > svc.Max {
		return nil, errutil.BadRequest("Quantity is out of the allowed range")
	}
	if in.Runs > 0 && !svc.Dripfeed {
		return nil, errutil.BadRequest("Service does not support dripfeed")
	}
	link := strings.TrimSpace(in.Link)
	if link == "" {
		return nil, errutil.BadRequest("Link is required")
	}

	buyer, err := s.users.FindOne(ctx, &user.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if buyer == nil {
		return nil, errutil.NotFound("User not found")
	}

	chargeUSD := svc.Rate * float64(in.Quantity) / 1000
	charge, err := s.converter.Convert(ctx, chargeUSD, s.cfg.Currency.HomeCode, buyer.CurrencyCode)
	if err != nil {
		return nil, err
	}
	chargeBDT, err := s.converter.Convert(ctx, chargeUSD, s.cfg.Currency.HomeCode, "BDT")
	if err != nil {
		chargeBDT = 0
	}

	code, err := s.sequences.NextOrderCode(ctx)
	if err != nil {
		return nil, err
	}

	o := &Order{
		ID:           s.node.Generate().String(),
		Code:         code,
		UserID:       userID,
		ServiceID:    svc.ID,
		CategoryID:   svc.CategoryID,
		ServiceName:  svc.Name,
		Link:         link,
		Quantity:     in.Quantity,
		Runs:         in.Runs,
		Interval:     in.Interval,
		Charge:       charge,
		ChargeUSD:    chargeUSD,
		ChargeBDT:    chargeBDT,
		CurrencyCode: buyer.CurrencyCode,
		Status:       StatusPending,
		Remains:      in.Quantity,
		ProviderID:   svc.ProviderID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.wallet.Debit(ctx, tx, funds.Entry{
			UserID:      userID,
			AmountUSD:   chargeUSD,
			Type:        funds.TxnOrder,
			ReferenceID: o.ID,
			Note:        "Order " + code,
		}); err != nil {
			return err
		}
		if err := s.orders.WithTrx(tx).Create(ctx, o); err != nil {
			return err
		}
		return s.commissions.CreateForOrder(ctx, tx, o.ID, userID, chargeUSD)
	})
	if err != nil {
		return nil, err
	}

	s.enqueueSubmit(ctx, o.ID)
	s.publish("order_created", o)

	zap.L().Info("order placed",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("span_id", span.SpanContext().SpanID().String()),
		zap.String("order_id", o.ID),
		zap.String("user_id", userID),
		zap.Float64("charge_usd", chargeUSD),
	)
	return o, nil
}

func (s *service) enqueueSubmit(ctx context.Context, orderID string) {
	if s.enqueuer == nil {
		return
	}
	payload, _ := json.Marshal(SubmitPayload{OrderID: orderID})
	if _, err := s.enqueuer.Enqueue(ctx, asynq.NewTask(TypeSubmitOrder, payload), asynq.Queue("critical"), asynq.MaxRetry(5)); err != nil {
		zap.L().Error("failed to enqueue order submission",
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}

func (s *service) publish(eventType string, o *Order) {
	s.hub.Publish(realtime.Event{
		Type:   eventType,
		UserID: o.UserID,
		Data: map[string]any{
			"order_id":    o.ID,
			"code":        o.Code,
			"status":      string(o.Status),
			"start_count": o.StartCount,
			"remains":     o.Remains,
		},
	})
}

// Get scopes to the owner unless userID is empty (admin path).
func (s *service) Get(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.orders.FindOne(ctx, &Order{ID: id})
	if err != nil {
		return nil, err
	}
	if o == nil || (userID != "" && o.UserID != userID) {
		return nil, errutil.NotFound("Order not found")
	}
	return o, nil
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]*Order, error) {
	return s.orders.Find(ctx, &Order{UserID: filter.UserID, Status: filter.Status},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.WithLimit(filter.Limit),
		option.WithOffset(filter.Offset),
	)
}

func (s *service) RequestRefill(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusCompleted {
		return nil, errutil.UnprocessableEntity("Only completed orders can be refilled")
	}
	if o.RefillID != "" {
		return nil, errutil.Conflict("Refill was already requested")
	}

	svc, err := s.catalog.GetService(ctx, o.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.Refill {
		return nil, errutil.UnprocessableEntity("Service does not support refill")
	}

	p, err := s.loadProvider(ctx, o.ProviderID)
	if err != nil {
		return nil, err
	}
	refillID, err := s.upstream.Refill(ctx, p, o.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	if refillID == "" {
		refillID = "requested"
	}
	if err := s.orders.Update(ctx, o.ID, map[string]any{"refill_id": refillID}); err != nil {
		return nil, err
	}
	o.RefillID = refillID
	return o, nil
}

// RequestCancel cancels an unsubmitted order locally with a refund; orders
// already upstream only get a cancel request, the sync sweep settles them.
func (s *service) RequestCancel(ctx context.Context, userID, id string) (*Order, error) {
	o, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, errutil.Conflict("Order is already finished")
	}

	if o.ProviderOrderID == "" {
		updated, _, err := s.applyStatus(ctx, o.ID, StatusCancelled, nil, "cancelled by user")
		return updated, err
	}

	svc, err := s.catalog.GetService(ctx, o.ServiceID)
	if err != nil {
		return nil, err
	}
	if !svc.Cancel {
		return nil, errutil.UnprocessableEntity("Service does not support cancellation")
	}

	p, err := s.loadProvider(ctx, o.ProviderID)
	if err != nil {
		return nil, err
	}
	if err := s.upstream.Cancel(ctx, p, []string{o.ProviderOrderID}); err != nil {
		return nil, err
	}
	return o, nil
}

// SetStatus is the admin override. It still respects the state machine.
func (s *service) SetStatus(ctx context.Context, id string, target Status) (*Order, error) {
	o, err := s.Get(ctx, "", id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(target) {
		return nil, errutil.Conflict("Status transition is not allowed")
	}
	updated, _, err := s.applyStatus(ctx, id, target, nil, "set by admin")
	return updated, err
}

func (s *service) loadProvider(ctx context.Context, id string) (*provider.Provider, error) {
	if id == "" {
		return nil, errutil.UnprocessableEntity("Order has no provider")
	}
	p, err := s.providers.FindOne(ctx, &provider.Provider{ID: id})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.NotFound("Provider not found")
	}
	return p, nil
}

// Submit pushes a pending order to its provider. Orders without a provider
// stay pending for manual handling. A rejected submission fails the order,
// which refunds the charge.
func (s *service) Submit(ctx context.Context, orderID string) error {
	o, err := s.Get(ctx, "", orderID)
	if err != nil {
		return err
	}
	if o.Status != StatusPending || o.ProviderOrderID != "" {
		return nil
	}
	if o.ProviderID == "" {
		return nil
	}

	svc, err := s.catalog.GetService(ctx, o.ServiceID)
	if err != nil {
		return err
	}
	p, err := s.loadProvider(ctx, o.ProviderID)
	if err != nil {
		return err
	}
	if p.Status != provider.StatusActive {
		return errutil.UnprocessableEntity("Provider is not active")
	}

	remoteID, err := s.upstream.AddOrder(ctx, p, provider.AddRequest{
		Service:  svc.ProviderServiceID,
		Link:     o.Link,
		Quantity: o.Quantity,
		Runs:     o.Runs,
		Interval: o.Interval,
	})
	if err != nil {
		if errutil.CodeOf(err) == errutil.StatusBadGateway {
			if _, _, applyErr := s.applyStatus(ctx, o.ID, StatusFailed, nil, err.Error()); applyErr != nil {
				return applyErr
			}
			return nil
		}
		// Transient failures bubble up so the queue retries.
		return err
	}

	if err := s.orders.Update(ctx, o.ID, map[string]any{"provider_order_id": remoteID}); err != nil {
		return err
	}
	if _, _, err := s.applyStatus(ctx, o.ID, StatusProcessing, nil, ""); err != nil {
		return err
	}
	return nil
}

// SyncOrder refreshes one order from its provider.
func (s *service) SyncOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.Get(ctx, "", orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() || o.ProviderOrderID == "" {
		return o, nil
	}

	p, err := s.loadProvider(ctx, o.ProviderID)
	if err != nil {
		return nil, err
	}
	remote, err := s.upstream.OrderStatus(ctx, p, o.ProviderOrderID)
	if err != nil {
		return nil, err
	}

	updated, _, err := s.applyStatus(ctx, o.ID, statusFromRemote(remote.Status), remote, remote.Error)
	return updated, err
}

// SyncOpenOrders sweeps every order still in flight, batched per provider.
func (s *service) SyncOpenOrders(ctx context.Context) error {
	span := trace.SpanFromContext(ctx)

	open, err := s.orders.Find(ctx, &Order{},
		option.ApplyOperator(option.Condition{Field: "provider_order_id", Operator: option.NE, Value: ""}),
		func(tx *gorm.DB) *gorm.DB {
			return tx.Where("status IN ?", []Status{StatusPending, StatusProcessing, StatusInProgress})
		},
	)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return nil
	}

	byProvider := map[string][]*Order{}
	for _, o := range open {
		byProvider[o.ProviderID] = append(byProvider[o.ProviderID], o)
	}

	for providerID, orders := range byProvider {
		p, err := s.loadProvider(ctx, providerID)
		if err != nil {
			zap.L().Warn("order sync skipped provider",
				zap.String("provider_id", providerID),
				zap.Error(err),
			)
			continue
		}
		synced := s.syncBatch(ctx, p, orders)

		// Admin-only progress events; the hub skips non-admin subscribers
		// when no user id is set.
		s.hub.Publish(realtime.Event{
			Type: "sync_progress",
			Data: map[string]any{
				"provider_id": p.ID,
				"provider":    p.Name,
				"orders":      len(orders),
				"synced":      synced,
			},
		})
	}

	zap.L().Info("order sync sweep finished",
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.Int("orders", len(open)),
	)
	return nil
}

// syncBatch queries up to 100 remote ids per request and reports how many
// orders were reconciled.
func (s *service) syncBatch(ctx context.Context, p *provider.Provider, orders []*Order) int {
	const batchSize = 100

	synced := 0

	byRemote := make(map[string]*Order, len(orders))
	for _, o := range orders {
		byRemote[o.ProviderOrderID] = o
	}

	remoteIDs := make([]string, 0, len(orders))
	for id := range byRemote {
		remoteIDs = append(remoteIDs, id)
	}

	for start := 0; start < len(remoteIDs); start += batchSize {
		end := int(math.Min(float64(start+batchSize), float64(len(remoteIDs))))
		statuses, err := s.upstream.MultiStatus(ctx, p, remoteIDs[start:end])
		if err != nil {
			zap.L().Warn("order status batch failed",
				zap.String("provider_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		for remoteID, remote := range statuses {
			o := byRemote[remoteID]
			if o == nil || remote == nil {
				continue
			}
			if remote.Error != "" && remote.Status == "" {
				continue
			}
			if _, _, err := s.applyStatus(ctx, o.ID, statusFromRemote(remote.Status), remote, ""); err != nil {
				zap.L().Warn("order reconciliation failed",
					zap.String("order_id", o.ID),
					zap.Error(err),
				)
				continue
			}
			synced++
		}
	}
	return synced
}
