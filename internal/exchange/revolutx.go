package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kraken-autotrade/internal/indicators"
)

// RevolutX implements Exchange against RevolutX's REST API. RevolutX can
// only ever serve as the trading exchange — spec.md §4.1 hardcodes Kraken as
// the data exchange — but its own quoted price carries a hidden markup the
// engine corrects for via the markup tracker (§4.8).
type RevolutX struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client
	nonce     *NonceGenerator
	limiter   *RateLimiter
	takerFee  float64
	makerFee  float64
}

func NewRevolutX(apiKey, apiSecret, baseURL string, limiter *RateLimiter) *RevolutX {
	return &RevolutX{
		apiKey: apiKey, apiSecret: apiSecret, baseURL: baseURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		nonce:    &NonceGenerator{},
		limiter:  limiter,
		takerFee: 0.0099, makerFee: 0.0049,
	}
}

func (r *RevolutX) Name() string         { return "revolutx" }
func (r *RevolutX) TakerFeePct() float64 { return r.takerFee }
func (r *RevolutX) MakerFeePct() float64 { return r.makerFee }

func (r *RevolutX) GetTicker(ctx context.Context, pair string) (float64, error) {
	var out struct {
		Price string `json:"price"`
	}
	if err := r.get(ctx, fmt.Sprintf("/api/v1/ticker/%s", revolutxSymbol(pair)), &out); err != nil {
		return 0, err
	}
	return parseF(out.Price), nil
}

// GetOHLC is unused in practice — per spec.md §4.1 the data exchange is
// always Kraken — and always returns a PermanentReject error; RevolutX
// candles are not fetched.
func (r *RevolutX) GetOHLC(ctx context.Context, pair string, interval indicators.Interval, limit int) ([]indicators.Candle, error) {
	return nil, New("revolutx", KindPermanentReject, fmt.Errorf("revolutx is never the data exchange"))
}

func (r *RevolutX) GetBalance(ctx context.Context) ([]Balance, error) {
	var out []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	}
	if err := r.private(ctx, http.MethodGet, "/api/v1/account/balances", nil, &out); err != nil {
		return nil, err
	}
	balances := make([]Balance, len(out))
	for i, b := range out {
		balances[i] = Balance{Asset: b.Asset, Free: parseF(b.Free), Locked: parseF(b.Locked)}
	}
	return balances, nil
}

func (r *RevolutX) PairInfo(ctx context.Context, pair string) (PairInfo, error) {
	return PairInfo{Pair: pair, MinOrderSize: 0.0001, PriceStep: 0.01, QtyStep: 0.00000001}, nil
}

func (r *RevolutX) SubmitOrder(ctx context.Context, p SubmitOrderParams) (OrderResult, error) {
	payload := map[string]interface{}{
		"symbol":          revolutxSymbol(p.Pair),
		"side":            strings.ToLower(string(p.Side)),
		"type":            string(p.Type),
		"quantity":        p.Amount,
		"clientOrderId":   p.ClientOrderID,
	}
	if p.Type == OrderTypeLimit {
		payload["price"] = p.Price
	}
	var out struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}
	if err := r.private(ctx, http.MethodPost, "/api/v1/orders", payload, &out); err != nil {
		return OrderResult{}, err
	}
	return OrderResult{
		OrderID: out.OrderID, ClientOrderID: p.ClientOrderID,
		Status: revolutxStatus(out.Status), SubmittedAt: time.Now().UTC(),
	}, nil
}

func (r *RevolutX) GetOrderStatus(ctx context.Context, orderID string) (OrderState, error) {
	var out struct {
		OrderID      string `json:"orderId"`
		Status       string `json:"status"`
		AvgPrice     string `json:"avgPrice"`
		ExecutedQty  string `json:"executedQty"`
		Fee          string `json:"fee"`
	}
	if err := r.private(ctx, http.MethodGet, "/api/v1/orders/"+orderID, nil, &out); err != nil {
		return OrderState{}, err
	}
	return OrderState{
		OrderID: orderID, Status: revolutxStatus(out.Status),
		FilledPrice: parseF(out.AvgPrice), FilledAmount: parseF(out.ExecutedQty), FeeQuote: parseF(out.Fee),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (r *RevolutX) CancelOrder(ctx context.Context, orderID string) error {
	return r.private(ctx, http.MethodDelete, "/api/v1/orders/"+orderID, nil, &struct{}{})
}

func (r *RevolutX) ListFills(ctx context.Context, since time.Time) ([]Fill, error) {
	var out []struct {
		FillID     string `json:"fillId"`
		OrderID    string `json:"orderId"`
		Symbol     string `json:"symbol"`
		Side       string `json:"side"`
		Price      string `json:"price"`
		Quantity   string `json:"quantity"`
		Fee        string `json:"fee"`
		ExecutedAt int64  `json:"executedAt"`
	}
	path := fmt.Sprintf("/api/v1/fills?since=%d", since.UnixMilli())
	if err := r.private(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	fills := make([]Fill, len(out))
	for i, f := range out {
		side := SideBuy
		if strings.EqualFold(f.Side, "sell") {
			side = SideSell
		}
		price, qty := parseF(f.Price), parseF(f.Quantity)
		fills[i] = Fill{
			FillID: f.FillID, OrderID: f.OrderID, Pair: f.Symbol, Side: side,
			Price: price, Amount: qty, Cost: price * qty, Fee: parseF(f.Fee),
			ExecutedAt: time.UnixMilli(f.ExecutedAt).UTC(),
		}
	}
	return fills, nil
}

func (r *RevolutX) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return New("revolutx", KindTransient, err)
	}
	return r.do(req, out)
}

// private signs the request with HMAC-SHA256 over (nonce + method + path +
// body), RevolutX's authentication scheme.
func (r *RevolutX) private(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	if r.limiter != nil {
		if err := r.limiter.Acquire(ctx, "revolutx"); err != nil {
			return err
		}
	}
	var body []byte
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return New("revolutx", KindTransient, err)
		}
		body = b
	}
	nonce := r.nonce.Next()
	sig := r.sign(nonce, method, path, body)

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return New("revolutx", KindTransient, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", r.apiKey)
	req.Header.Set("X-Nonce", strconv.FormatInt(nonce, 10))
	req.Header.Set("X-Signature", sig)
	return r.do(req, out)
}

func (r *RevolutX) sign(nonce int64, method, path string, body []byte) string {
	msg := strconv.FormatInt(nonce, 10) + method + path + string(body)
	mac := hmac.New(sha256.New, []byte(r.apiSecret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

func (r *RevolutX) do(req *http.Request, out interface{}) error {
	resp, err := r.http.Do(req)
	if err != nil {
		return New("revolutx", KindTransient, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return NewRateLimited("revolutx", 5*time.Second, fmt.Errorf("rate limited"))
	case http.StatusUnauthorized, http.StatusForbidden:
		return New("revolutx", KindAuth, fmt.Errorf("http %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return New("revolutx", KindTransient, err)
	}
	if resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "insufficient") {
		return New("revolutx", KindInsufficientFunds, fmt.Errorf("%s", body))
	}
	if resp.StatusCode >= 500 {
		return New("revolutx", KindTransient, fmt.Errorf("http %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode >= 400 {
		return New("revolutx", KindPermanentReject, fmt.Errorf("http %d: %s", resp.StatusCode, body))
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return New("revolutx", KindTransient, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func revolutxStatus(s string) OrderStatus {
	switch strings.ToLower(s) {
	case "filled":
		return StatusFilled
	case "partially_filled":
		return StatusPartiallyFilled
	case "new", "pending":
		return StatusPending
	case "canceled", "cancelled", "expired":
		return StatusCanceled
	default:
		return StatusRejected
	}
}

func revolutxSymbol(pair string) string {
	return strings.ReplaceAll(pair, "/", "-")
}
