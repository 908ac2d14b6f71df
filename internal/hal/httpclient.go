package hal

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/jonasfh/picobell/internal/logging"
)

// AuthScheme is the Authorization scheme the backend expects.
const AuthScheme = "Apartment"

// RestyHTTP is the board HTTP client.
type RestyHTTP struct {
	client *resty.Client

	mu     sync.RWMutex
	apiKey string
}

// NewRestyHTTP creates a client that tags every request with firmwareVersion.
func NewRestyHTTP(firmwareVersion string, timeout time.Duration) *RestyHTTP {
	client := resty.New().
		SetTimeout(timeout).
		SetAuthScheme(AuthScheme).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("X-FW-Version", firmwareVersion).
		SetLogger(logging.GetLogger().Sugar())

	return &RestyHTTP{client: client}
}

// SetAPIKey sets the token sent as "Authorization: Apartment <key>".
func (h *RestyHTTP) SetAPIKey(key string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.apiKey = key
}

func (h *RestyHTTP) Get(ctx context.Context, url string) (*Response, error) {
	return h.do(ctx, resty.MethodGet, url, nil)
}

func (h *RestyHTTP) Post(ctx context.Context, url string, body []byte) (*Response, error) {
	return h.do(ctx, resty.MethodPost, url, body)
}

func (h *RestyHTTP) do(ctx context.Context, method, url string, body []byte) (*Response, error) {
	h.mu.RLock()
	key := h.apiKey
	h.mu.RUnlock()

	req := h.client.R().SetContext(ctx)
	if key != "" {
		req.SetAuthToken(key)
	}
	if body != nil {
		req.SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, url)
	elapsed := time.Since(start)

	if err != nil {
		reqErr := ClassifyNetworkError(err, url)
		logging.LogHTTPExchange(method, url, 0, elapsed, reqErr)
		return nil, reqErr
	}

	out := &Response{StatusCode: resp.StatusCode(), Body: resp.Body()}
	if !resp.IsSuccess() {
		reqErr := NewHTTPError(resp.StatusCode(), url)
		logging.LogHTTPExchange(method, url, out.StatusCode, elapsed, reqErr)
		return out, reqErr
	}

	logging.LogHTTPExchange(method, url, out.StatusCode, elapsed, nil)
	logging.Debug("Response body", zap.String("url", url), zap.Int("bytes", len(out.Body)))
	return out, nil
}
