package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
)

// Op is a canonical upstream operation. The wire value of the action field is
// resolved through the provider's ActionMap.
type Op string

const (
	OpServices    Op = "services"
	OpBalance     Op = "balance"
	OpAdd         Op = "add"
	OpStatus      Op = "status"
	OpMultiStatus Op = "multistatus"
	OpRefill      Op = "refill"
	OpCancel      Op = "cancel"
)

// Canonical order status vocabulary reported by upstreams.
const (
	RemotePending    = "pending"
	RemoteProcessing = "processing"
	RemoteInProgress = "in_progress"
	RemoteCompleted  = "completed"
	RemotePartial    = "partial"
	RemoteCancelled  = "cancelled"
	RemoteRefunded   = "refunded"
	RemoteFailed     = "failed"
)

// RemoteService is one entry of an upstream service list.
type RemoteService struct {
	Service  string  `json:"service"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Category string  `json:"category"`
	Rate     float64 `json:"rate"`
	Min      int     `json:"min"`
	Max      int     `json:"max"`
	Dripfeed bool    `json:"dripfeed"`
	Refill   bool    `json:"refill"`
	Cancel   bool    `json:"cancel"`
}

// RemoteStatus is the upstream view of one order.
type RemoteStatus struct {
	Status     string
	Charge     float64
	StartCount int
	Remains    int
	Currency   string
	Error      string
}

// AddRequest places an order upstream.
type AddRequest struct {
	Service  string
	Link     string
	Quantity int
	Runs     int
	Interval int
}

// Adapter talks to upstream SMM APIs. All providers share the same canonical
// request shape; per-provider differences live in ParamMap and ActionMap rows.
type Adapter struct {
	http    *http.Client
	metrics *Metrics
}

func NewAdapter(cfg *config.Config, metrics *Metrics) *Adapter {
	timeout := cfg.Provider.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

func (a *Adapter) Services(ctx context.Context, p *Provider) ([]RemoteService, error) {
	raw, err := a.call(ctx, p, OpServices, nil)
	if err != nil {
		return nil, err
	}
	list, err := decodeSlice(raw)
	if err != nil {
		return nil, errutil.BadGateway("Provider returned an unexpected service list", errutil.WithErr(err))
	}

	services := make([]RemoteService, 0, len(list))
	for _, item := range list {
		services = append(services, RemoteService{
			Service:  firstString(item, "service", "id", "service_id"),
			Name:     firstString(item, "name", "title"),
			Type:     firstString(item, "type"),
			Category: firstString(item, "category"),
			Rate:     firstFloat(item, "rate", "price", "price_per_1000"),
			Min:      firstInt(item, "min", "minimal"),
			Max:      firstInt(item, "max", "maximal"),
			Dripfeed: firstBool(item, "dripfeed", "drip_feed"),
			Refill:   firstBool(item, "refill"),
			Cancel:   firstBool(item, "cancel"),
		})
	}
	return services, nil
}

func (a *Adapter) Balance(ctx context.Context, p *Provider) (float64, string, error) {
	raw, err := a.call(ctx, p, OpBalance, nil)
	if err != nil {
		return 0, "", err
	}
	data, err := decodeMap(raw)
	if err != nil {
		return 0, "", errutil.BadGateway("Provider returned an unexpected balance response", errutil.WithErr(err))
	}
	if msg := firstString(data, "error"); msg != "" {
		return 0, "", errutil.BadGateway(msg)
	}
	return firstFloat(data, "balance", "funds"), firstString(data, "currency"), nil
}

func (a *Adapter) AddOrder(ctx context.Context, p *Provider, req AddRequest) (string, error) {
	params := map[string]string{
		ParamService:  req.Service,
		ParamLink:     req.Link,
		ParamQuantity: strconv.Itoa(req.Quantity),
	}
	if req.Runs > 0 {
		params[ParamRuns] = strconv.Itoa(req.Runs)
		params[ParamInterval] = strconv.Itoa(req.Interval)
	}

	raw, err := a.call(ctx, p, OpAdd, params)
	if err != nil {
		return "", err
	}
	data, err := decodeMap(raw)
	if err != nil {
		return "", errutil.BadGateway("Provider returned an unexpected order response", errutil.WithErr(err))
	}
	if msg := firstString(data, "error"); msg != "" {
		return "", errutil.BadGateway(msg)
	}
	remoteID := firstString(data, "order", "order_id", "id")
	if remoteID == "" {
		return "", errutil.BadGateway("Provider accepted the order without returning an order id")
	}
	return remoteID, nil
}

func (a *Adapter) OrderStatus(ctx context.Context, p *Provider, remoteID string) (*RemoteStatus, error) {
	raw, err := a.call(ctx, p, OpStatus, map[string]string{ParamOrder: remoteID})
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(raw)
	if err != nil {
		return nil, errutil.BadGateway("Provider returned an unexpected status response", errutil.WithErr(err))
	}
	return remoteStatusFrom(data), nil
}

// MultiStatus fetches up to 100 orders in one upstream request. The result is
// keyed by remote order id; orders the upstream did not recognize carry an
// Error and no status.
func (a *Adapter) MultiStatus(ctx context.Context, p *Provider, remoteIDs []string) (map[string]*RemoteStatus, error) {
	raw, err := a.call(ctx, p, OpMultiStatus, map[string]string{ParamOrders: strings.Join(remoteIDs, ",")})
	if err != nil {
		return nil, err
	}
	data, err := decodeMap(raw)
	if err != nil {
		return nil, errutil.BadGateway("Provider returned an unexpected status response", errutil.WithErr(err))
	}

	result := make(map[string]*RemoteStatus, len(remoteIDs))
	for _, id := range remoteIDs {
		entry, err := decodeMap(data[id])
		if err != nil {
			result[id] = &RemoteStatus{Error: "missing from provider response"}
			continue
		}
		result[id] = remoteStatusFrom(entry)
	}
	return result, nil
}

func (a *Adapter) Refill(ctx context.Context, p *Provider, remoteID string) (string, error) {
	raw, err := a.call(ctx, p, OpRefill, map[string]string{ParamOrder: remoteID})
	if err != nil {
		return "", err
	}
	data, err := decodeMap(raw)
	if err != nil {
		return "", errutil.BadGateway("Provider returned an unexpected refill response", errutil.WithErr(err))
	}
	if msg := firstString(data, "error"); msg != "" {
		return "", errutil.BadGateway(msg)
	}
	return firstString(data, "refill", "refill_id", "id"), nil
}

func (a *Adapter) Cancel(ctx context.Context, p *Provider, remoteIDs []string) error {
	raw, err := a.call(ctx, p, OpCancel, map[string]string{ParamOrders: strings.Join(remoteIDs, ",")})
	if err != nil {
		return err
	}
	if data, err := decodeMap(raw); err == nil {
		if msg := firstString(data, "error"); msg != "" {
			return errutil.BadGateway(msg)
		}
	}
	return nil
}

// call performs one upstream request and returns the decoded JSON body.
func (a *Adapter) call(ctx context.Context, p *Provider, op Op, params map[string]string) (any, error) {
	if p.APIURL == "" || p.APIKey == "" {
		return nil, errutil.UnprocessableEntity("Provider configuration is missing an API URL or key")
	}

	wire := map[string]string{
		p.paramName(ParamKey):    p.APIKey,
		p.paramName(ParamAction): p.actionValue(op),
	}
	for canonical, value := range params {
		wire[p.paramName(canonical)] = value
	}

	started := time.Now()
	raw, err := a.post(ctx, p, p.endpointURL(op), wire)
	a.metrics.ObserveUpstream(p.Name, string(op), time.Since(started), err)

	if err != nil {
		zap.L().Warn("provider request failed",
			zap.String("provider_id", p.ID),
			zap.String("op", string(op)),
			zap.Error(err),
		)
	}
	return raw, err
}

func (a *Adapter) post(ctx context.Context, p *Provider, endpoint string, wire map[string]string) (any, error) {
	var body io.Reader
	contentType := "application/x-www-form-urlencoded"

	if strings.EqualFold(p.Format, "json") {
		encoded, err := json.Marshal(wire)
		if err != nil {
			return nil, errutil.Internal("Failed to encode provider request", errutil.WithErr(err))
		}
		body = bytes.NewReader(encoded)
		contentType = "application/json"
	} else {
		form := url.Values{}
		for k, v := range wire {
			form.Set(k, v)
		}
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, errutil.Internal("Failed to build provider request", errutil.WithErr(err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errutil.Timeout("Provider request timed out")
		}
		return nil, errutil.BadGateway("Provider is unreachable", errutil.WithErr(err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errutil.BadGateway("Failed to read provider response", errutil.WithErr(err))
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, errutil.BadGateway(fmt.Sprintf("Provider responded with status %d", resp.StatusCode))
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, errutil.BadGateway("Provider returned a non-JSON response", errutil.WithErr(err))
	}
	return decoded, nil
}

func remoteStatusFrom(data map[string]any) *RemoteStatus {
	return &RemoteStatus{
		Status:     NormalizeStatus(firstString(data, "status", "state")),
		Charge:     firstFloat(data, "charge", "cost", "price"),
		StartCount: firstInt(data, "start_count", "startcount", "start"),
		Remains:    firstInt(data, "remains", "remain"),
		Currency:   firstString(data, "currency"),
		Error:      firstString(data, "error"),
	}
}

// NormalizeStatus folds the many spellings upstreams use into the canonical
// vocabulary. Unknown values map to empty so callers can skip them.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "pending", "queued", "waiting":
		return RemotePending
	case "processing", "process":
		return RemoteProcessing
	case "inprogress", "active", "running":
		return RemoteInProgress
	case "completed", "complete", "success", "done":
		return RemoteCompleted
	case "partial", "partiallycompleted":
		return RemotePartial
	case "canceled", "cancelled", "cancel":
		return RemoteCancelled
	case "refunded", "refund":
		return RemoteRefunded
	case "failed", "fail", "error":
		return RemoteFailed
	default:
		return ""
	}
}

func decodeMap(raw any) (map[string]any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", raw)
	}
	return m, nil
}

func decodeSlice(raw any) ([]map[string]any, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", raw)
	}
	result := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, err := decodeMap(item)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	return result, nil
}

// firstString returns the first present key rendered as a string. Upstreams
// disagree on field names and on whether numbers arrive quoted.
func firstString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := data[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		case json.Number:
			return t.String()
		}
	}
	return ""
}

func firstFloat(data map[string]any, keys ...string) float64 {
	for _, key := range keys {
		v, ok := data[key]
		if !ok || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

func firstInt(data map[string]any, keys ...string) int {
	return int(firstFloat(data, keys...))
}

func firstBool(data map[string]any, keys ...string) bool {
	for _, key := range keys {
		v, ok := data[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t
		case string:
			s := strings.ToLower(strings.TrimSpace(t))
			return s == "true" || s == "1" || s == "yes"
		case float64:
			return t != 0
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
