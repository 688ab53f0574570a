package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
)

func newTestAdapter() *Adapter {
	cfg := &config.Config{}
	return NewAdapter(cfg, nil)
}

func TestAddOrderParamMapping(t *testing.T) {
	var form url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Write([]byte(`{"order": 99001}`))
	}))
	defer srv.Close()

	p := &Provider{
		ID:     "1",
		Name:   "upstream",
		APIURL: srv.URL,
		APIKey: "sekrit",
		ParamMap: map[string]any{
			ParamKey:      "api_token",
			ParamQuantity: "amount",
		},
		ActionMap: map[string]any{string(OpAdd): "create"},
	}

	remoteID, err := newTestAdapter().AddOrder(context.Background(), p, AddRequest{
		Service:  "42",
		Link:     "https://example.com/profile",
		Quantity: 500,
	})
	require.NoError(t, err)
	require.Equal(t, "99001", remoteID)

	require.Equal(t, "sekrit", form.Get("api_token"))
	require.Equal(t, "create", form.Get("action"))
	require.Equal(t, "500", form.Get("amount"))
	require.Equal(t, "42", form.Get("service"))
	require.Empty(t, form.Get("key"))
	require.Empty(t, form.Get("quantity"))
}

func TestAddOrderUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "not enough funds"}`))
	}))
	defer srv.Close()

	p := &Provider{ID: "1", Name: "upstream", APIURL: srv.URL, APIKey: "k"}
	_, err := newTestAdapter().AddOrder(context.Background(), p, AddRequest{Service: "1", Link: "x", Quantity: 10})
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadGateway, errutil.CodeOf(err))
	require.Contains(t, err.Error(), "not enough funds")
}

func TestOrderStatusNormalization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "In progress", "charge": "1.25", "start_count": "100", "remains": 40}`))
	}))
	defer srv.Close()

	p := &Provider{ID: "1", Name: "upstream", APIURL: srv.URL, APIKey: "k"}
	status, err := newTestAdapter().OrderStatus(context.Background(), p, "99001")
	require.NoError(t, err)
	require.Equal(t, RemoteInProgress, status.Status)
	require.Equal(t, 1.25, status.Charge)
	require.Equal(t, 100, status.StartCount)
	require.Equal(t, 40, status.Remains)
}

func TestMultiStatusMissingEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"7": {"status": "Completed", "remains": 0}, "8": "Incorrect order ID"}`))
	}))
	defer srv.Close()

	p := &Provider{ID: "1", Name: "upstream", APIURL: srv.URL, APIKey: "k"}
	statuses, err := newTestAdapter().MultiStatus(context.Background(), p, []string{"7", "8", "9"})
	require.NoError(t, err)

	require.Equal(t, RemoteCompleted, statuses["7"].Status)
	require.NotEmpty(t, statuses["8"].Error)
	require.NotEmpty(t, statuses["9"].Error)
}

func TestServicesJSONFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`[{"service": 12, "name": "Followers", "rate": "0.90", "min": "10", "max": 5000, "refill": true}]`))
	}))
	defer srv.Close()

	p := &Provider{ID: "1", Name: "upstream", APIURL: srv.URL, APIKey: "k", Format: "json"}
	services, err := newTestAdapter().Services(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, services, 1)
	require.Equal(t, "12", services[0].Service)
	require.Equal(t, 0.9, services[0].Rate)
	require.Equal(t, 10, services[0].Min)
	require.True(t, services[0].Refill)
}

func TestEndpointMapping(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"balance": "12.50", "currency": "USD"}`))
	}))
	defer srv.Close()

	p := &Provider{
		ID:          "1",
		Name:        "upstream",
		APIURL:      srv.URL,
		APIKey:      "k",
		EndpointMap: map[string]any{string(OpBalance): "/v1/balance"},
	}
	balance, currency, err := newTestAdapter().Balance(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, "/v1/balance", path)
	require.Equal(t, 12.5, balance)
	require.Equal(t, "USD", currency)
}

func TestMissingConfigFailsFast(t *testing.T) {
	p := &Provider{ID: "1", Name: "upstream", APIURL: "", APIKey: "k"}
	_, _, err := newTestAdapter().Balance(context.Background(), p)
	require.Error(t, err)
	require.Equal(t, errutil.StatusUnprocessableEntity, errutil.CodeOf(err))
}

func TestNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	p := &Provider{ID: "1", Name: "upstream", APIURL: srv.URL, APIKey: "k"}
	_, err := newTestAdapter().Balance(context.Background(), p)
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadGateway, errutil.CodeOf(err))
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]string{
		"Completed":   RemoteCompleted,
		"complete":    RemoteCompleted,
		"In progress": RemoteInProgress,
		"Partial":     RemotePartial,
		"Canceled":    RemoteCancelled,
		"cancelled":   RemoteCancelled,
		"Refunded":    RemoteRefunded,
		"Pending":     RemotePending,
		"Processing":  RemoteProcessing,
		"fail":        RemoteFailed,
		"whatever":    "",
	}
	for input, want := range cases {
		require.Equal(t, want, NormalizeStatus(input), "input %q", input)
	}
}
