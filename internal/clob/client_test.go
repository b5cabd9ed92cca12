package clob

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/signal"
	"github.com/TrueFaxx/polymarketbot/internal/strategy"
)

func TestMidpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/midpoint" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("token_id"); got != "cond-1" {
			t.Fatalf("unexpected token_id %q", got)
		}
		_, _ = w.Write([]byte(`{"mid":"0.5200"}`))
	}))
	defer server.Close()

	c := New(server.URL, "", 0, zerolog.Nop())
	mid, err := c.Midpoint(context.Background(), "cond-1")
	if err != nil {
		t.Fatalf("Midpoint returned error: %v", err)
	}
	if mid != 0.52 {
		t.Fatalf("expected 0.52, got %f", mid)
	}
}

func TestMidpointRejectsBadPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"mid":""}`))
	}))
	defer server.Close()

	c := New(server.URL, "", 0, zerolog.Nop())
	if _, err := c.Midpoint(context.Background(), "cond-1"); err == nil {
		t.Fatalf("expected error for empty mid")
	}
}

func TestLatestIndicators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTC","price":64250.5,"ema_short":64100.0,"ema_long":63900.0,"prev_ema_short":63800.0,"prev_ema_long":63850.0,"rsi":55.2}`))
	}))
	defer server.Close()

	c := New(server.URL, "", 0, zerolog.Nop())
	set, err := c.Latest(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Latest returned error: %v", err)
	}
	if set.EMAShort != 64100 || set.EMALong != 63900 || set.RSI != 55.2 {
		t.Fatalf("unexpected indicator set: %+v", set)
	}
	if set.PrevEMAShort != 63800 || set.PrevEMALong != 63850 {
		t.Fatalf("previous EMAs not decoded: %+v", set)
	}
}

func TestLatestMissingFieldsIsDataUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"BTC","price":64250.5}`))
	}))
	defer server.Close()

	c := New(server.URL, "", 0, zerolog.Nop())
	_, err := c.Latest(context.Background(), "BTC")
	if !errors.Is(err, strategy.ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}

func TestPlaceOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/order" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key123" {
			t.Fatalf("missing auth header, got %q", got)
		}
		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode order request: %v", err)
		}
		if req.TokenID != "cond-1" || req.Side != "BUY" || req.Size != 200 {
			t.Fatalf("unexpected order request: %+v", req)
		}
		_, _ = w.Write([]byte(`{"order_id":"ord-1","status":"matched","filled_price":0.51,"filled_size":190}`))
	}))
	defer server.Close()

	c := New(server.URL, "key123", 0, zerolog.Nop())
	fill, err := c.PlaceOrder(context.Background(), "cond-1", signal.Buy, 200, 0.50)
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if fill.OrderID != "ord-1" || fill.FilledPrice != 0.51 || fill.FilledSize != 190 {
		t.Fatalf("unexpected fill: %+v", fill)
	}
}

func TestPlaceOrderUnfilled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"order_id":"ord-2","status":"live"}`))
	}))
	defer server.Close()

	c := New(server.URL, "", 0, zerolog.Nop())
	if _, err := c.PlaceOrder(context.Background(), "cond-1", signal.Buy, 10, 0.50); err == nil {
		t.Fatalf("expected error for unfilled order")
	}
}

func TestBalance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balance":2500.75}`))
	}))
	defer server.Close()

	c := New(server.URL, "", 0, zerolog.Nop())
	bal, err := c.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance returned error: %v", err)
	}
	if bal != 2500.75 {
		t.Fatalf("unexpected balance %f", bal)
	}
}
