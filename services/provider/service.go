package provider

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
)

const balanceCacheKey = "provider:balance:"

type CreateInput struct {
	Name        string         `json:"name" binding:"required"`
	APIURL      string         `json:"api_url" binding:"required,url"`
	APIKey      string         `json:"api_key" binding:"required"`
	Format      string         `json:"format"`
	ParamMap    map[string]any `json:"param_map"`
	ActionMap   map[string]any `json:"action_map"`
	EndpointMap map[string]any `json:"endpoint_map"`
}

type UpdateInput struct {
	Name        *string         `json:"name"`
	APIURL      *string         `json:"api_url"`
	APIKey      *string         `json:"api_key"`
	Format      *string         `json:"format"`
	ParamMap    *map[string]any `json:"param_map"`
	ActionMap   *map[string]any `json:"action_map"`
	EndpointMap *map[string]any `json:"endpoint_map"`
	Status      *string         `json:"status"`
}

type BalanceInfo struct {
	Balance  float64   `json:"balance"`
	Currency string    `json:"currency"`
	SyncedAt time.Time `json:"synced_at"`
}

// TestResult is one provider's outcome in a batch connection test.
type TestResult struct {
	ProviderID string       `json:"provider_id"`
	Name       string       `json:"name"`
	OK         bool         `json:"ok"`
	Error      string       `json:"error,omitempty"`
	Balance    *BalanceInfo `json:"balance,omitempty"`
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (*Provider, error)
	Get(ctx context.Context, id string) (*Provider, error)
	List(ctx context.Context, includeTrash bool) ([]*Provider, error)
	Update(ctx context.Context, id string, in UpdateInput) (*Provider, error)
	Trash(ctx context.Context, id string) error
	Restore(ctx context.Context, id string) error
	TestConnection(ctx context.Context, id string) (*BalanceInfo, error)
	TestAll(ctx context.Context) ([]TestResult, error)
	Balance(ctx context.Context, id string) (*BalanceInfo, error)
	SyncBalances(ctx context.Context) error
	FetchServices(ctx context.Context, id string) ([]RemoteService, error)
}

type service struct {
	cfg       *config.Config
	node      *snowflake.Node
	redis     *goredis.Client
	adapter   *Adapter
	providers repository.Repository[Provider]
}

type ServiceParams struct {
	fx.In

	Config    *config.Config
	Node      *snowflake.Node
	Redis     *goredis.Client
	Adapter   *Adapter
	Providers repository.Repository[Provider]
}

func NewService(p ServiceParams) Service {
	return &service{
		cfg:       p.Config,
		node:      p.Node,
		redis:     p.Redis,
		adapter:   p.Adapter,
		providers: p.Providers,
	}
}

func (s *service) Create(ctx context.Context, in CreateInput) (*Provider, error) {
	format := strings.ToLower(in.Format)
	if format == "" {
		format = "form"
	}
	if format != "form" && format != "json" {
		return nil, errutil.BadRequest("Format must be form or json")
	}

	p := &Provider{
		ID:          s.node.Generate().String(),
		Name:        in.Name,
		APIURL:      strings.TrimRight(in.APIURL, "/"),
		APIKey:      in.APIKey,
		Format:      format,
		ParamMap:    datatypes.JSONMap(in.ParamMap),
		ActionMap:   datatypes.JSONMap(in.ActionMap),
		EndpointMap: datatypes.JSONMap(in.EndpointMap),
		Status:      StatusActive,
	}
	if err := s.providers.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *service) Get(ctx context.Context, id string) (*Provider, error) {
	p, err := s.providers.FindOne(ctx, &Provider{ID: id})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errutil.NotFound("Provider not found")
	}
	return p, nil
}

func (s *service) List(ctx context.Context, includeTrash bool) ([]*Provider, error) {
	all, err := s.providers.Find(ctx, &Provider{})
	if err != nil {
		return nil, err
	}
	if includeTrash {
		return all, nil
	}
	visible := make([]*Provider, 0, len(all))
	for _, p := range all {
		if p.Status != StatusTrash {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

func (s *service) Update(ctx context.Context, id string, in UpdateInput) (*Provider, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	values := map[string]any{}
	if in.Name != nil {
		values["name"] = *in.Name
	}
	if in.APIURL != nil {
		values["api_url"] = strings.TrimRight(*in.APIURL, "/")
	}
	if in.APIKey != nil {
		values["api_key"] = *in.APIKey
	}
	if in.Format != nil {
		format := strings.ToLower(*in.Format)
		if format != "form" && format != "json" {
			return nil, errutil.BadRequest("Format must be form or json")
		}
		values["format"] = format
	}
	if in.ParamMap != nil {
		values["param_map"] = datatypes.JSONMap(*in.ParamMap)
	}
	if in.ActionMap != nil {
		values["action_map"] = datatypes.JSONMap(*in.ActionMap)
	}
	if in.EndpointMap != nil {
		values["endpoint_map"] = datatypes.JSONMap(*in.EndpointMap)
	}
	if in.Status != nil {
		switch *in.Status {
		case StatusActive, StatusInactive:
			values["status"] = *in.Status
		default:
			return nil, errutil.BadRequest("Status must be active or inactive")
		}
	}
	if len(values) == 0 {
		return s.Get(ctx, id)
	}
	if err := s.providers.Update(ctx, id, values); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Trash hides a provider from placement without losing its order history.
func (s *service) Trash(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.providers.Update(ctx, id, map[string]any{"status": StatusTrash})
}

func (s *service) Restore(ctx context.Context, id string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusTrash {
		return errutil.Conflict("Provider is not trashed")
	}
	return s.providers.Update(ctx, id, map[string]any{"status": StatusInactive})
}

// TestConnection bypasses the balance cache so admins see a live result.
func (s *service) TestConnection(ctx context.Context, id string) (*BalanceInfo, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.refreshBalance(ctx, p)
}

// TestAll probes every non-trashed provider. Failures are reported per
// provider so one broken upstream does not abort the batch.
func (s *service) TestAll(ctx context.Context) ([]TestResult, error) {
	providers, err := s.List(ctx, false)
	if err != nil {
		return nil, err
	}

	results := make([]TestResult, 0, len(providers))
	for _, p := range providers {
		result := TestResult{ProviderID: p.ID, Name: p.Name}
		info, err := s.refreshBalance(ctx, p)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.OK = true
			result.Balance = info
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *service) Balance(ctx context.Context, id string) (*BalanceInfo, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if cached, err := s.redis.Get(ctx, balanceCacheKey+id).Bytes(); err == nil {
		var info BalanceInfo
		if json.Unmarshal(cached, &info) == nil {
			return &info, nil
		}
	}
	return s.refreshBalance(ctx, p)
}

func (s *service) refreshBalance(ctx context.Context, p *Provider) (*BalanceInfo, error) {
	balance, currency, err := s.adapter.Balance(ctx, p)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	info := &BalanceInfo{Balance: balance, Currency: currency, SyncedAt: now}

	if err := s.providers.Update(ctx, p.ID, map[string]any{
		"balance":           balance,
		"balance_currency":  currency,
		"balance_synced_at": now,
	}); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(info); err == nil {
		ttl := s.cfg.Provider.BalanceCacheTTL
		if ttl <= 0 {
			ttl = 10 * time.Minute
		}
		s.redis.Set(ctx, balanceCacheKey+p.ID, encoded, ttl)
	}
	return info, nil
}

// SyncBalances refreshes every active provider. Scheduled from the worker;
// one failing provider does not stop the sweep.
func (s *service) SyncBalances(ctx context.Context) error {
	span := trace.SpanFromContext(ctx)

	providers, err := s.providers.Find(ctx, &Provider{Status: StatusActive})
	if err != nil {
		return err
	}
	for _, p := range providers {
		if _, err := s.refreshBalance(ctx, p); err != nil {
			zap.L().Warn("provider balance sync failed",
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.String("provider_id", p.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *service) FetchServices(ctx context.Context, id string) ([]RemoteService, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusTrash {
		return nil, errutil.Conflict("Provider is trashed")
	}
	return s.adapter.Services(ctx, p)
}
