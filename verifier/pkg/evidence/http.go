// Package evidence fetches the strategy specific evidence a security
// verifier checks for a message.
package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier"
)

const (
	DefaultRequestTimeout    = 5 * time.Second
	DefaultCoolDown          = 30 * time.Second
	DefaultRequestsPerSecond = 10
	// maxCoolDownDuration caps how long a Retry-After header can block requests.
	maxCoolDownDuration = 10 * time.Minute
	// maxResponseSize bounds the evidence response body.
	maxResponseSize = 4 << 20
)

var (
	ErrNotReady        = errors.New("evidence not ready")
	ErrRateLimit       = errors.New("evidence API is being rate limited")
	ErrTimeout         = errors.New("evidence API timed out")
	ErrUnknownResponse = errors.New("unexpected response from evidence API")
)

// IsTemporary reports whether a later fetch of the same evidence may succeed.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

var _ protocol.EvidenceProvider = (*HTTPClient)(nil)

type evidenceResponse struct {
	Evidence protocol.ByteSlice `json:"evidence"`
}

// HTTPClient fetches evidence from GET {url}/evidence/{messageID}. It
// self rate limits and backs off for a cool down period once the API
// answers 429.
type HTTPClient struct {
	lggr       logger.Logger
	metrics    verifier.MetricLabeler
	client     *http.Client
	apiURL     *url.URL
	apiTimeout time.Duration
	rate       *rate.Limiter
	// coolDownDuration is used when a 429 response carries no Retry-After header.
	coolDownDuration time.Duration
	coolDownUntil    time.Time
	coolDownMu       sync.RWMutex
}

func NewHTTPClient(cfg verifier.EvidenceConfig, metrics verifier.MetricLabeler, lggr logger.Logger) (*HTTPClient, error) {
	u, err := url.ParseRequestURI(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid evidence url: %w", err)
	}
	timeout, err := durationOr(cfg.RequestTimeout, DefaultRequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request_timeout: %w", err)
	}
	coolDown, err := durationOr(cfg.CoolDown, DefaultCoolDown)
	if err != nil {
		return nil, fmt.Errorf("cool_down: %w", err)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}

	return &HTTPClient{
		lggr:             logger.With(lggr, "component", "EvidenceClient", "url", u.String()),
		metrics:          metrics,
		client:           &http.Client{},
		apiURL:           u,
		apiTimeout:       timeout,
		rate:             rate.NewLimiter(rate.Limit(rps), 1),
		coolDownDuration: coolDown,
	}, nil
}

// Evidence returns the evidence published for id.
func (h *HTTPClient) Evidence(ctx context.Context, id protocol.MessageID) ([]byte, error) {
	start := time.Now()
	body, status, err := h.get(ctx, path.Join("evidence", id.String()))
	if h.metrics != nil {
		h.metrics.RecordEvidenceRequestDuration(ctx, time.Since(start), err != nil && !errors.Is(err, ErrNotReady))
	}
	h.lggr.Debugw("Response from evidence API", "messageID", id, "status", status, "err", err)
	if err != nil {
		return nil, err
	}

	var resp evidenceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownResponse, err)
	}
	if len(resp.Evidence) == 0 {
		return nil, ErrNotReady
	}
	return resp.Evidence, nil
}

func (h *HTTPClient) get(ctx context.Context, requestPath string) ([]byte, int, error) {
	if coolDown, remaining := h.inCoolDownPeriod(); coolDown {
		h.lggr.Warnw("Rate limited by evidence API, dropping request", "coolDownRemaining", remaining)
		return nil, http.StatusTooManyRequests, ErrRateLimit
	}
	if err := h.rate.Wait(ctx); err != nil {
		return nil, http.StatusTooManyRequests, fmt.Errorf("%w: %w", ErrRateLimit, err)
	}

	requestURL := *h.apiURL
	requestURL.Path = path.Join(requestURL.Path, requestPath)

	timeoutCtx, cancel := context.WithTimeoutCause(ctx, h.apiTimeout, ErrTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, requestURL.String(), nil)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	req.Header.Add("accept", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		if errors.Is(context.Cause(timeoutCtx), ErrTimeout) {
			return nil, http.StatusRequestTimeout, ErrTimeout
		}
		return nil, http.StatusBadRequest, err
	}
	//nolint:errcheck // closing body, error can be ignored here
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusTooManyRequests:
		h.setCoolDownPeriod(res.Header)
		return nil, res.StatusCode, ErrRateLimit
	case res.StatusCode == http.StatusNotFound:
		return nil, res.StatusCode, ErrNotReady
	case res.StatusCode >= http.StatusInternalServerError:
		h.setCoolDownPeriod(res.Header)
		return nil, res.StatusCode, ErrUnknownResponse
	case res.StatusCode != http.StatusOK:
		return nil, res.StatusCode, ErrUnknownResponse
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseSize))
	return body, res.StatusCode, err
}

func (h *HTTPClient) setCoolDownPeriod(headers http.Header) {
	coolDown := h.coolDownDuration
	if retryAfter := headers.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
			coolDown = time.Duration(secs) * time.Second
		} else if t, err := time.Parse(time.RFC1123, retryAfter); err == nil {
			coolDown = time.Until(t)
		}
	}
	coolDown = min(coolDown, maxCoolDownDuration)
	h.lggr.Errorw("Evidence API unavailable, setting cool down", "coolDownDuration", coolDown)

	h.coolDownMu.Lock()
	defer h.coolDownMu.Unlock()
	h.coolDownUntil = time.Now().Add(coolDown)
}

func (h *HTTPClient) inCoolDownPeriod() (bool, time.Duration) {
	h.coolDownMu.RLock()
	defer h.coolDownMu.RUnlock()
	return time.Now().Before(h.coolDownUntil), time.Until(h.coolDownUntil)
}

func durationOr(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
