// Package clob is the HTTP client for the venue's central limit order book
// API: reference prices, trend indicators, and (in live mode) order placement.
package clob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TrueFaxx/polymarketbot/internal/execution"
	"github.com/TrueFaxx/polymarketbot/internal/signal"
	"github.com/TrueFaxx/polymarketbot/internal/strategy"
)

const defaultTimeout = 10 * time.Second

// Client talks to the venue REST API. It satisfies execution.Broker,
// execution.PriceSource, and strategy.IndicatorSource.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// New builds a client for the given API base URL.
func New(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type midpointResponse struct {
	Mid string `json:"mid"`
}

// Midpoint returns the current mid price for a market. The API reports prices
// as decimal strings.
func (c *Client) Midpoint(ctx context.Context, market string) (float64, error) {
	endpoint := fmt.Sprintf("%s/midpoint?token_id=%s", c.baseURL, url.QueryEscape(market))
	var payload midpointResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return 0, err
	}
	mid, err := strconv.ParseFloat(payload.Mid, 64)
	if err != nil || mid <= 0 {
		return 0, fmt.Errorf("bad midpoint %q for %s", payload.Mid, market)
	}
	return mid, nil
}

type indicatorsResponse struct {
	Symbol       string   `json:"symbol"`
	Price        float64  `json:"price"`
	EMAShort     *float64 `json:"ema_short"`
	EMALong      *float64 `json:"ema_long"`
	PrevEMAShort *float64 `json:"prev_ema_short"`
	PrevEMALong  *float64 `json:"prev_ema_long"`
	RSI          *float64 `json:"rsi"`
}

// Latest fetches the current indicator set for a symbol. Missing fields map to
// strategy.ErrDataUnavailable so the analyzer can skip the cycle.
func (c *Client) Latest(ctx context.Context, symbol string) (strategy.IndicatorSet, error) {
	endpoint := fmt.Sprintf("%s/indicators?symbol=%s", c.baseURL, url.QueryEscape(symbol))
	var payload indicatorsResponse
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return strategy.IndicatorSet{}, fmt.Errorf("%w: %v", strategy.ErrDataUnavailable, err)
	}
	if payload.EMAShort == nil || payload.EMALong == nil || payload.RSI == nil {
		return strategy.IndicatorSet{}, strategy.ErrDataUnavailable
	}
	set := strategy.IndicatorSet{
		EMAShort: *payload.EMAShort,
		EMALong:  *payload.EMALong,
		RSI:      *payload.RSI,
		Price:    payload.Price,
	}
	if payload.PrevEMAShort != nil {
		set.PrevEMAShort = *payload.PrevEMAShort
	}
	if payload.PrevEMALong != nil {
		set.PrevEMALong = *payload.PrevEMALong
	}
	return set, nil
}

type orderRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Size    float64 `json:"size"`
	Price   float64 `json:"price"`
}

type orderResponse struct {
	OrderID     string  `json:"order_id"`
	Status      string  `json:"status"`
	FilledPrice float64 `json:"filled_price"`
	FilledSize  float64 `json:"filled_size"`
	Message     string  `json:"message"`
}

// PlaceOrder submits a marketable limit order and waits for the synchronous
// fill confirmation.
func (c *Client) PlaceOrder(ctx context.Context, market string, side signal.Side, size, price float64) (execution.BrokerFill, error) {
	body, err := json.Marshal(orderRequest{TokenID: market, Side: string(side), Size: size, Price: price})
	if err != nil {
		return execution.BrokerFill{}, fmt.Errorf("encode order: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/order", bytes.NewReader(body))
	if err != nil {
		return execution.BrokerFill{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return execution.BrokerFill{}, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	var payload orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return execution.BrokerFill{}, fmt.Errorf("decode order response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return execution.BrokerFill{}, fmt.Errorf("order refused (%d): %s", resp.StatusCode, payload.Message)
	}
	if payload.Status != "matched" && payload.Status != "filled" {
		return execution.BrokerFill{}, fmt.Errorf("order not filled: %s", payload.Status)
	}
	if payload.FilledSize <= 0 || payload.FilledPrice <= 0 {
		return execution.BrokerFill{}, errors.New("fill confirmation missing price or size")
	}
	return execution.BrokerFill{
		OrderID:     payload.OrderID,
		FilledPrice: payload.FilledPrice,
		FilledSize:  payload.FilledSize,
	}, nil
}

type balanceResponse struct {
	Balance float64 `json:"balance"`
}

// Balance returns the venue account's free collateral.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var payload balanceResponse
	if err := c.getJSON(ctx, c.baseURL+"/balance", &payload); err != nil {
		return 0, err
	}
	return payload.Balance, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("User-Agent", "polymarketbot/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
