package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// HTTPAPIConfig contains configuration for a generic JSON REST upstream
type HTTPAPIConfig struct {
	BaseURL               string
	BarsPath              string // default "/v1/bars"
	APIKey                string
	AuthHeader            string        // default "Authorization"
	Timeout               time.Duration // per-request HTTP timeout, default 10s
	RateLimitPerSecond    float64       // outbound request budget, 0 = unlimited
	RateBurst             int           // default 1
	SupportedTimeframes   []market.Timeframe
	MaxBarsPerRequest     int // default 5000
	HistoricalFrom        time.Time
	SupportsExtendedHours bool
	WebsocketURL          string // enables realtime streaming when set
}

// HTTPAPI adapts any JSON REST bar endpoint to the Provider contract. The
// upstream is expected to answer GET {BarsPath}?symbol=&timeframe=&from=&to=
// &limit= with a JSON array of bars. Timeframes the upstream lacks are
// served by fetching a finer supported one and folding it up.
type HTTPAPI struct {
	cfg     HTTPAPIConfig
	caps    Capabilities
	host    string
	client  *http.Client
	limiter *rate.Limiter

	mu   sync.Mutex
	subs []*wsSubscription
}

// NewHTTPAPI creates a REST bar adapter.
func NewHTTPAPI(cfg HTTPAPIConfig) (*HTTPAPI, error) {
	if cfg.BaseURL == "" {
		return nil, market.NewConfigurationError("httpapi adapter needs a base URL")
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, market.NewConfigurationError(fmt.Sprintf("invalid base URL %q: %v", cfg.BaseURL, err))
	}
	if cfg.BarsPath == "" {
		cfg.BarsPath = "/v1/bars"
	}
	if cfg.AuthHeader == "" {
		cfg.AuthHeader = "Authorization"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBarsPerRequest <= 0 {
		cfg.MaxBarsPerRequest = 5000
	}
	if len(cfg.SupportedTimeframes) == 0 {
		cfg.SupportedTimeframes = market.Timeframes()
	}

	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
	}

	return &HTTPAPI{
		cfg:  cfg,
		host: parsed.Host,
		caps: Capabilities{
			SupportedTimeframes:   cfg.SupportedTimeframes,
			MaxBarsPerRequest:     cfg.MaxBarsPerRequest,
			NeedsAuth:             cfg.APIKey != "",
			RateLimitPerSecond:    cfg.RateLimitPerSecond,
			HistoricalFrom:        cfg.HistoricalFrom,
			SupportsExtendedHours: cfg.SupportsExtendedHours,
			SupportsRealtime:      cfg.WebsocketURL != "",
		},
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
	}, nil
}

// Capabilities implements Provider.
func (h *HTTPAPI) Capabilities() Capabilities {
	return h.caps
}

// ValidateSymbol implements Provider. The generic upstream takes any
// canonical symbol; resolution failures surface as 404s at fetch time.
func (h *HTTPAPI) ValidateSymbol(sym market.Symbol) bool {
	return sym.Canonical != ""
}

// GetBars implements Provider.
func (h *HTTPAPI) GetBars(ctx context.Context, q Query) ([]market.Bar, error) {
	src, ok := h.caps.SourceTimeframe(q.Timeframe)
	if !ok {
		return nil, market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("timeframe %s not supported by %s", q.Timeframe, h.host))
	}

	fetch := q
	fetch.Timeframe = src
	if src != q.Timeframe && q.Limit > 0 {
		ratio := int(q.Timeframe.Duration() / src.Duration())
		fetch.Limit = q.Limit * ratio
	}
	if fetch.Limit > h.caps.MaxBarsPerRequest {
		log.Debug().
			Str("provider", h.host).
			Int("requested", fetch.Limit).
			Int("max", h.caps.MaxBarsPerRequest).
			Msg("Clamping bar request to provider maximum")
		fetch.Limit = h.caps.MaxBarsPerRequest
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, market.NewCancelledError(err)
		}
	}

	bars, err := h.fetchBars(ctx, fetch)
	if err != nil {
		return nil, err
	}

	bars = market.SortDedup(bars)
	if src != q.Timeframe {
		bars, err = market.Aggregate(bars, src, q.Timeframe, false)
		if err != nil {
			return nil, err
		}
	}
	return normalizeBars(bars, q), nil
}

// fetchBars performs one upstream GET and maps failures into the taxonomy.
func (h *HTTPAPI) fetchBars(ctx context.Context, q Query) ([]market.Bar, error) {
	params := url.Values{}
	params.Set("symbol", q.Symbol.Canonical)
	params.Set("timeframe", q.Timeframe.String())
	if q.From != nil {
		params.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if q.To != nil {
		params.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	reqURL := h.cfg.BaseURL + h.cfg.BarsPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, market.NewTransportError(h.host, err)
	}
	req.Header.Set("Accept", "application/json")
	if h.cfg.APIKey != "" {
		req.Header.Set(h.cfg.AuthHeader, h.cfg.APIKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, market.NewTransportError(h.host, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, market.NewRateLimitError(h.host, parseRetryAfter(resp.Header.Get("Retry-After")))
	case http.StatusNotFound:
		return nil, market.NewSymbolResolutionError(q.Symbol.Canonical, "")
	case http.StatusBadRequest:
		return nil, market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("%s rejected the bar request", h.host))
	default:
		return nil, market.NewTransportError(h.host,
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, h.host))
	}

	var bars []market.Bar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, market.NewTransportError(h.host, fmt.Errorf("failed to decode bars: %w", err))
	}
	return bars, nil
}

// parseRetryAfter reads the header's delay-seconds form; anything else maps
// to "unspecified".
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// wsSubscription tracks one live stream so it can be torn down.
type wsSubscription struct {
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscription) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

// stop cancels the stream context and closes the socket so a blocked read
// unblocks immediately.
func (s *wsSubscription) stop() {
	s.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Subscribe implements Subscriber. Bars arrive on the handler until the
// context is cancelled or UnsubscribeAll is called; transient socket errors
// reconnect with a fixed delay.
func (h *HTTPAPI) Subscribe(ctx context.Context, sym market.Symbol, tf market.Timeframe, handler BarHandler) error {
	if h.cfg.WebsocketURL == "" {
		return market.NewValidationError(market.CodeInvalidArgs,
			fmt.Sprintf("%s does not support realtime streaming", h.host))
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &wsSubscription{cancel: cancel}
	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-subCtx.Done():
				return
			default:
			}
			if err := h.streamBars(subCtx, sub, sym, tf, handler); err != nil {
				select {
				case <-subCtx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}()

	return nil
}

// streamBars dials, subscribes, and pumps messages until the socket fails.
func (h *HTTPAPI) streamBars(ctx context.Context, sub *wsSubscription, sym market.Symbol, tf market.Timeframe, handler BarHandler) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, h.cfg.WebsocketURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	sub.setConn(conn)
	defer conn.Close()

	subMsg := map[string]string{
		"op":        "subscribe",
		"symbol":    sym.Canonical,
		"timeframe": tf.String(),
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("websocket subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}

		var bar market.Bar
		if err := json.Unmarshal(message, &bar); err != nil {
			// Heartbeats and acks share the stream; skip anything that
			// is not a bar.
			continue
		}
		if bar.Validate() != nil {
			continue
		}
		handler(sym, tf, bar)
	}
}

// UnsubscribeAll implements Subscriber.
func (h *HTTPAPI) UnsubscribeAll() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	if len(subs) > 0 {
		log.Debug().
			Str("provider", h.host).
			Int("subscriptions", len(subs)).
			Msg("Closed realtime subscriptions")
	}
}
