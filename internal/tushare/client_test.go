package tushare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"futuresync/internal/remote"
	"futuresync/internal/testutil"
)

func newTestClient(serverURL string) *Client {
	return NewClient("test_token", serverURL, 10000, testutil.DiscardLogger())
}

func TestNewClient(t *testing.T) {
	c := newTestClient("https://api.tushare.pro")
	if c == nil {
		t.Fatal("NewClient() returned nil")
	}
	if c.token != "test_token" {
		t.Errorf("token = %q, want %q", c.token, "test_token")
	}
	if c.client == nil {
		t.Error("client is nil")
	}
	if c.limiter == nil {
		t.Error("limiter is nil")
	}
}

func TestHoldings_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.APIName != "fut_holding" {
			t.Errorf("api_name = %q, want fut_holding", req.APIName)
		}
		if req.Token != "test_token" {
			t.Errorf("token = %q, want test_token", req.Token)
		}
		if req.Params["trade_date"] != "20260102" {
			t.Errorf("trade_date = %q, want vendor-compact 20260102", req.Params["trade_date"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"code": 0,
			"msg": "",
			"data": {
				"fields": ["symbol", "trade_date", "broker", "vol", "long_hld", "short_hld"],
				"items": [
					["cu2603", "20260102", "CITIC Futures", 12045, 8200, 3845],
					["cu2603", "20260102", "Galaxy Futures", 9100, 4100, 5000]
				]
			}
		}`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	c := newTestClient(server.URL)
	defer c.Close()

	batch, err := c.Holdings(context.Background(), "SHFE", "cu2603", "2026-01-02")
	if err != nil {
		t.Fatalf("Holdings() returned error: %v", err)
	}

	if len(batch) != 2 {
		t.Fatalf("got %d records, want 2", len(batch))
	}
	first := batch[0]
	if first["exchange"] != "SHFE" {
		t.Errorf("exchange = %v, want SHFE injected", first["exchange"])
	}
	if first["trade_date"] != "2026-01-02" {
		t.Errorf("trade_date = %v, want ISO 2026-01-02", first["trade_date"])
	}
	if first["broker"] != "CITIC Futures" {
		t.Errorf("broker = %v, want CITIC Futures", first["broker"])
	}
}

func TestTradingDays_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req apiRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.APIName != "trade_cal" {
			t.Errorf("api_name = %q, want trade_cal", req.APIName)
		}
		if req.Params["is_open"] != "1" {
			t.Errorf("is_open = %q, want 1", req.Params["is_open"])
		}

		w.Write([]byte(`{
			"code": 0,
			"data": {
				"fields": ["cal_date"],
				"items": [["20260102"], ["20260105"], ["20260106"]]
			}
		}`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	c := newTestClient(server.URL)
	defer c.Close()

	days, err := c.TradingDays(context.Background(), "SHFE", "2026-01-01", "2026-01-07")
	if err != nil {
		t.Fatalf("TradingDays() returned error: %v", err)
	}

	want := []string{"2026-01-02", "2026-01-05", "2026-01-06"}
	if len(days) != len(want) {
		t.Fatalf("got %d days, want %d", len(days), len(want))
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("days[%d] = %q, want %q", i, days[i], want[i])
		}
	}
}

func TestDaily_EmptyItemsIsEmptyBatch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 0, "data": {"fields": [], "items": []}}`))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	c := newTestClient(server.URL)
	defer c.Close()

	batch, err := c.Daily(context.Background(), "SHFE", "cu2603", "2026-01-02")
	if err != nil {
		t.Fatalf("Daily() returned error: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("got %d records for empty response, want 0", len(batch))
	}
}

func TestCall_HTTPErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantType      remote.ErrorType
		wantRetryable bool
	}{
		{"throttled", http.StatusTooManyRequests, remote.ErrorTypeRateLimit, true},
		{"server down", http.StatusBadGateway, remote.ErrorTypeServer, true},
		{"bad request", http.StatusBadRequest, remote.ErrorTypeClient, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			server := httptest.NewServer(handler)
			defer server.Close()

			c := newTestClient(server.URL)
			defer c.Close()

			_, err := c.Contracts(context.Background(), "SHFE")
			if err == nil {
				t.Fatal("Contracts() expected error, got nil")
			}

			var apiErr *remote.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not an APIError", err)
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("error type = %s, want %s", apiErr.Type, tt.wantType)
			}
			if apiErr.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", apiErr.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestCall_VendorCodeClassification(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantType      remote.ErrorType
		wantRetryable bool
	}{
		{
			"vendor throttle code",
			`{"code": 40203, "msg": "too many requests"}`,
			remote.ErrorTypeRateLimit,
			true,
		},
		{
			"bad token",
			`{"code": 2002, "msg": "token invalid"}`,
			remote.ErrorTypeClient,
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			server := httptest.NewServer(handler)
			defer server.Close()

			c := newTestClient(server.URL)
			defer c.Close()

			_, err := c.Contracts(context.Background(), "SHFE")
			if err == nil {
				t.Fatal("Contracts() expected error, got nil")
			}

			var apiErr *remote.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not an APIError", err)
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("error type = %s, want %s", apiErr.Type, tt.wantType)
			}
			if apiErr.Retryable != tt.wantRetryable {
				t.Errorf("retryable = %v, want %v", apiErr.Retryable, tt.wantRetryable)
			}
		})
	}
}

func TestCall_NetworkError(t *testing.T) {
	// Nothing listens here.
	c := newTestClient("http://127.0.0.1:1")
	defer c.Close()

	_, err := c.Contracts(context.Background(), "SHFE")
	if err == nil {
		t.Fatal("Contracts() expected error, got nil")
	}
	if !remote.IsTransient(err) {
		t.Errorf("network error %v should be transient", err)
	}
}

func TestDateConversion(t *testing.T) {
	tests := []struct {
		iso     string
		compact string
	}{
		{"2026-01-02", "20260102"},
		{"1999-12-31", "19991231"},
	}

	for _, tt := range tests {
		if got := compactDate(tt.iso); got != tt.compact {
			t.Errorf("compactDate(%q) = %q, want %q", tt.iso, got, tt.compact)
		}
		if got := isoDate(tt.compact); got != tt.iso {
			t.Errorf("isoDate(%q) = %q, want %q", tt.compact, got, tt.iso)
		}
	}

	// Pass-through for values that are not compact dates.
	if got := isoDate("2026-01-02"); got != "2026-01-02" {
		t.Errorf("isoDate(iso) = %q, want unchanged", got)
	}
	if got := isoDate("cu2603"); got != "cu2603" {
		t.Errorf("isoDate(symbol) = %q, want unchanged", got)
	}
}
