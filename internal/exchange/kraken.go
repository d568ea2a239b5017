package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kraken-autotrade/internal/indicators"
	"kraken-autotrade/internal/logging"
)

// Kraken implements Exchange against Kraken's REST API. Kraken is always the
// data exchange (spec.md §4.1: "Always Kraken — hardcoded because its
// candle API is authoritative") and may additionally serve as the trading
// exchange.
type Kraken struct {
	apiKey    string
	apiSecret []byte // base64-decoded
	baseURL   string
	http      *http.Client
	nonce     *NonceGenerator
	limiter   *RateLimiter
	log       *logging.Logger
	takerFee  float64
	makerFee  float64
}

// NewKraken constructs a Kraken client. apiSecret is the base64 string
// Kraken issues alongside the API key.
func NewKraken(apiKey, apiSecret, baseURL string, limiter *RateLimiter, log *logging.Logger) (*Kraken, error) {
	secret, err := base64.StdEncoding.DecodeString(apiSecret)
	if err != nil {
		return nil, New("kraken", KindAuth, fmt.Errorf("decoding api secret: %w", err))
	}
	return &Kraken{
		apiKey: apiKey, apiSecret: secret, baseURL: baseURL,
		http:     &http.Client{Timeout: 10 * time.Second},
		nonce:    &NonceGenerator{},
		limiter:  limiter,
		log:      log,
		takerFee: 0.0026, makerFee: 0.0016,
	}, nil
}

func (k *Kraken) Name() string          { return "kraken" }
func (k *Kraken) TakerFeePct() float64  { return k.takerFee }
func (k *Kraken) MakerFeePct() float64  { return k.makerFee }

func (k *Kraken) GetTicker(ctx context.Context, pair string) (float64, error) {
	if err := k.limiter.Acquire(ctx, "kraken"); err != nil {
		return 0, err
	}
	var out struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			C []string `json:"c"` // [price, lot volume]
		} `json:"result"`
	}
	if err := k.public(ctx, "Ticker", url.Values{"pair": {krakenPairCode(pair)}}, &out); err != nil {
		return 0, err
	}
	if len(out.Error) > 0 {
		return 0, New("kraken", KindTransient, fmt.Errorf("%s", strings.Join(out.Error, "; ")))
	}
	for _, v := range out.Result {
		if len(v.C) > 0 {
			return parseF(v.C[0]), nil
		}
	}
	return 0, New("kraken", KindTransient, fmt.Errorf("no ticker data for %s", pair))
}

func (k *Kraken) GetOHLC(ctx context.Context, pair string, interval indicators.Interval, limit int) ([]indicators.Candle, error) {
	if err := k.limiter.Acquire(ctx, "kraken"); err != nil {
		return nil, err
	}
	params := url.Values{"pair": {krakenPairCode(pair)}, "interval": {strconv.Itoa(krakenIntervalMinutes(interval))}}
	var out struct {
		Error  []string                   `json:"error"`
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := k.public(ctx, "OHLC", params, &out); err != nil {
		return nil, err
	}
	if len(out.Error) > 0 {
		return nil, New("kraken", KindTransient, fmt.Errorf("%s", strings.Join(out.Error, "; ")))
	}
	var rows [][]interface{}
	for name, raw := range out.Result {
		if name == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, New("kraken", KindTransient, fmt.Errorf("parsing OHLC: %w", err))
		}
	}
	candles := make([]indicators.Candle, 0, len(rows))
	for _, r := range rows {
		if len(r) < 7 {
			continue
		}
		ts, _ := r[0].(float64)
		candles = append(candles, indicators.Candle{
			OpenTs: time.Unix(int64(ts), 0).UTC(),
			Open:   toF(r[1]), High: toF(r[2]), Low: toF(r[3]), Close: toF(r[4]),
			Volume: toF(r[6]),
		})
	}
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

func (k *Kraken) GetBalance(ctx context.Context) ([]Balance, error) {
	var out struct {
		Error  []string          `json:"error"`
		Result map[string]string `json:"result"`
	}
	if err := k.private(ctx, "Balance", url.Values{}, &out); err != nil {
		return nil, err
	}
	if err := krakenErr(out.Error); err != nil {
		return nil, err
	}
	balances := make([]Balance, 0, len(out.Result))
	for asset, amt := range out.Result {
		balances = append(balances, Balance{Asset: asset, Free: parseF(amt)})
	}
	return balances, nil
}

func (k *Kraken) PairInfo(ctx context.Context, pair string) (PairInfo, error) {
	// Returns fixed conservative defaults for every pair; Kraken's AssetPairs
	// endpoint (which carries precision metadata) is not queried.
	return PairInfo{Pair: pair, MinOrderSize: 0.0001, PriceStep: 0.01, QtyStep: 0.00000001}, nil
}

func (k *Kraken) SubmitOrder(ctx context.Context, p SubmitOrderParams) (OrderResult, error) {
	form := url.Values{
		"pair":      {krakenPairCode(p.Pair)},
		"type":      {strings.ToLower(string(p.Side))},
		"ordertype": {string(p.Type)},
		"volume":    {strconv.FormatFloat(p.Amount, 'f', -1, 64)},
		"userref":   {p.ClientOrderID},
	}
	if p.Type == OrderTypeLimit {
		form.Set("price", strconv.FormatFloat(p.Price, 'f', -1, 64))
	}
	var out struct {
		Error  []string `json:"error"`
		Result struct {
			TxID []string `json:"txid"`
		} `json:"result"`
	}
	if err := k.private(ctx, "AddOrder", form, &out); err != nil {
		return OrderResult{}, err
	}
	if err := krakenErr(out.Error); err != nil {
		return OrderResult{}, err
	}
	if len(out.Result.TxID) == 0 {
		return OrderResult{}, New("kraken", KindTransient, fmt.Errorf("AddOrder returned no txid"))
	}
	return OrderResult{
		OrderID: out.Result.TxID[0], ClientOrderID: p.ClientOrderID,
		Status: StatusPending, SubmittedAt: time.Now().UTC(),
	}, nil
}

func (k *Kraken) GetOrderStatus(ctx context.Context, orderID string) (OrderState, error) {
	var out struct {
		Error  []string `json:"error"`
		Result map[string]struct {
			Status      string `json:"status"`
			Price       string `json:"price"`
			Vol         string `json:"vol"`
			VolExec     string `json:"vol_exec"`
			Fee         string `json:"fee"`
			UserRef     int64  `json:"userref"`
			CloseTime   float64 `json:"closetm"`
		} `json:"result"`
	}
	if err := k.private(ctx, "QueryOrders", url.Values{"txid": {orderID}}, &out); err != nil {
		return OrderState{}, err
	}
	if err := krakenErr(out.Error); err != nil {
		return OrderState{}, err
	}
	o, ok := out.Result[orderID]
	if !ok {
		return OrderState{}, New("kraken", KindTransient, fmt.Errorf("order %s not found", orderID))
	}
	return OrderState{
		OrderID: orderID, Status: krakenStatus(o.Status),
		FilledPrice: parseF(o.Price), FilledAmount: parseF(o.VolExec), FeeQuote: parseF(o.Fee),
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func (k *Kraken) CancelOrder(ctx context.Context, orderID string) error {
	var out struct{ Error []string `json:"error"` }
	if err := k.private(ctx, "CancelOrder", url.Values{"txid": {orderID}}, &out); err != nil {
		return err
	}
	return krakenErr(out.Error)
}

func (k *Kraken) ListFills(ctx context.Context, since time.Time) ([]Fill, error) {
	var out struct {
		Error  []string `json:"error"`
		Result struct {
			Trades map[string]struct {
				OrderTxID string `json:"ordertxid"`
				Pair      string `json:"pair"`
				Time      float64 `json:"time"`
				Type      string `json:"type"`
				Price     string `json:"price"`
				Vol       string `json:"vol"`
				Cost      string `json:"cost"`
				Fee       string `json:"fee"`
			} `json:"trades"`
		} `json:"result"`
	}
	form := url.Values{"start": {strconv.FormatInt(since.Unix(), 10)}}
	if err := k.private(ctx, "TradesHistory", form, &out); err != nil {
		return nil, err
	}
	if err := krakenErr(out.Error); err != nil {
		return nil, err
	}
	fills := make([]Fill, 0, len(out.Result.Trades))
	for id, t := range out.Result.Trades {
		side := SideBuy
		if strings.EqualFold(t.Type, "sell") {
			side = SideSell
		}
		fills = append(fills, Fill{
			FillID: id, OrderID: t.OrderTxID, Pair: t.Pair, Side: side,
			Price: parseF(t.Price), Amount: parseF(t.Vol), Cost: parseF(t.Cost), Fee: parseF(t.Fee),
			ExecutedAt: time.Unix(int64(t.Time), 0).UTC(),
		})
	}
	return fills, nil
}

// public calls an unauthenticated Kraken endpoint.
func (k *Kraken) public(ctx context.Context, method string, params url.Values, out interface{}) error {
	endpoint := fmt.Sprintf("%s/0/public/%s?%s", k.baseURL, method, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return New("kraken", KindTransient, err)
	}
	return k.do(req, out)
}

// private calls an authenticated Kraken endpoint, signing the request with
// HMAC-SHA512 over the path and a SHA256 hash of (nonce + postdata), per
// Kraken's REST authentication scheme.
func (k *Kraken) private(ctx context.Context, method string, form url.Values, out interface{}) error {
	path := "/0/private/" + method
	nonce := k.nonce.Next()
	form.Set("nonce", strconv.FormatInt(nonce, 10))
	body := form.Encode()

	sig := k.sign(path, nonce, body)

	endpoint := k.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return New("kraken", KindTransient, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("API-Key", k.apiKey)
	req.Header.Set("API-Sign", sig)
	return k.do(req, out)
}

func (k *Kraken) sign(path string, nonce int64, postdata string) string {
	nonceBody := strconv.FormatInt(nonce, 10) + postdata
	sha := sha256.Sum256([]byte(nonceBody))

	mac := hmac.New(sha512.New, k.apiSecret)
	mac.Write([]byte(path))
	mac.Write(sha[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (k *Kraken) do(req *http.Request, out interface{}) error {
	resp, err := k.http.Do(req)
	if err != nil {
		return New("kraken", KindTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return NewRateLimited("kraken", 5*time.Second, fmt.Errorf("rate limited"))
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return New("kraken", KindAuth, fmt.Errorf("http %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return New("kraken", KindTransient, err)
	}
	if resp.StatusCode >= 500 {
		return New("kraken", KindTransient, fmt.Errorf("http %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode >= 400 {
		return New("kraken", KindPermanentReject, fmt.Errorf("http %d: %s", resp.StatusCode, body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return New("kraken", KindTransient, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func krakenErr(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	joined := strings.Join(errs, "; ")
	switch {
	case strings.Contains(joined, "Invalid nonce"):
		return New("kraken", KindNonce, fmt.Errorf("%s", joined))
	case strings.Contains(joined, "Insufficient funds"):
		return New("kraken", KindInsufficientFunds, fmt.Errorf("%s", joined))
	case strings.Contains(joined, "Permission denied") || strings.Contains(joined, "Invalid key"):
		return New("kraken", KindAuth, fmt.Errorf("%s", joined))
	case strings.Contains(joined, "Rate limit"):
		return NewRateLimited("kraken", 3*time.Second, fmt.Errorf("%s", joined))
	case strings.Contains(joined, "Market is closed") || strings.Contains(joined, "Market in cancel_only mode"):
		return New("kraken", KindMarketClosed, fmt.Errorf("%s", joined))
	default:
		return New("kraken", KindPermanentReject, fmt.Errorf("%s", joined))
	}
}

func krakenStatus(s string) OrderStatus {
	switch s {
	case "closed":
		return StatusFilled
	case "open", "pending":
		return StatusPending
	case "canceled", "expired":
		return StatusCanceled
	default:
		return StatusRejected
	}
}

func krakenPairCode(pair string) string {
	return strings.ReplaceAll(pair, "/", "")
}

func krakenIntervalMinutes(i indicators.Interval) int {
	switch i {
	case indicators.Interval1m:
		return 1
	case indicators.Interval5m:
		return 5
	case indicators.Interval15m:
		return 15
	case indicators.Interval1h:
		return 60
	case indicators.Interval4h:
		return 240
	case indicators.Interval1d:
		return 1440
	default:
		return 5
	}
}

func parseF(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func toF(v interface{}) float64 {
	switch x := v.(type) {
	case string:
		return parseF(x)
	case float64:
		return x
	default:
		return 0
	}
}
