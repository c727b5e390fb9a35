// Package geo talks to the Earth Engine REST API: it authenticates once with a
// service account, resolves country boundaries and reduces raster datasets
// over them.
package geo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/forest-dashboard/backend/internal/metrics"
	"github.com/forest-dashboard/backend/pkg/apperror"
	"github.com/forest-dashboard/backend/pkg/circuitbreaker"
	"github.com/forest-dashboard/backend/pkg/config"
	"github.com/forest-dashboard/backend/pkg/lazy"
	"github.com/forest-dashboard/backend/pkg/logger"
)

const (
	backendName = "geo"

	Scope = "https://www.googleapis.com/auth/earthengine"

	tokenTimeout = 30 * time.Second
)

// Authenticator turns a service-account key into a token source. It should
// fetch one token so that bad credentials surface during initialization.
type Authenticator func(ctx context.Context, keyJSON []byte) (oauth2.TokenSource, error)

// GoogleAuthenticator uses the OAuth2 JWT flow for service accounts.
func GoogleAuthenticator(ctx context.Context, keyJSON []byte) (oauth2.TokenSource, error) {
	jwtCfg, err := google.JWTConfigFromJSON(keyJSON, Scope)
	if err != nil {
		return nil, err
	}

	// The token source refreshes with this context long after initialization
	// returns.
	tokenCtx := context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, &http.Client{Timeout: tokenTimeout})
	ts := jwtCfg.TokenSource(tokenCtx)
	if _, err := ts.Token(); err != nil {
		return nil, err
	}
	return ts, nil
}

// Session is an authenticated Earth Engine session.
type Session struct {
	Project string
	Tokens  oauth2.TokenSource
}

type serviceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

type Client struct {
	cfg        config.GeoConfig
	auth       Authenticator
	httpClient *http.Client
	session    *lazy.Value[*Session]
	cb         *circuitbreaker.CircuitBreaker
}

type Option func(*Client)

func WithAuthenticator(auth Authenticator) Option {
	return func(c *Client) {
		c.auth = auth
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(cfg config.GeoConfig, opts ...Option) *Client {
	c := &Client{
		cfg:        cfg,
		auth:       GoogleAuthenticator,
		httpClient: &http.Client{},
		session:    lazy.New[*Session](cfg.InitTimeout()),
		cb: circuitbreaker.NewCircuitBreaker(backendName, circuitbreaker.Config{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			IsSuccessful:     countsAsSuccess,
			OnStateChange:    metrics.BreakerStateChanged,
			Logger:           logger.GetLogger(),
		}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) State() lazy.State {
	return c.session.State()
}

// Initialize authenticates on first use. Concurrent callers share one
// attempt; a failed attempt is not remembered.
func (c *Client) Initialize(ctx context.Context) (*Session, error) {
	return c.session.Get(ctx, func(ctx context.Context) (*Session, error) {
		sess, err := c.initialize(ctx)
		metrics.ObserveSessionInit(backendName, err)
		if err != nil {
			logger.Error("Failed to initialize Earth Engine",
				zap.String("key_file", c.cfg.KeyFile),
				zap.Error(err),
			)
			return nil, err
		}
		logger.Info("Earth Engine initialized", zap.String("project", sess.Project))
		return sess, nil
	})
}

func (c *Client) initialize(ctx context.Context) (*Session, error) {
	keyJSON, err := os.ReadFile(c.cfg.KeyFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperror.Configuration("Service account key file not found at: "+c.cfg.KeyFile, nil)
		}
		return nil, apperror.Configuration("failed to read service account key file", err)
	}

	var key serviceAccountKey
	if err := json.Unmarshal(keyJSON, &key); err != nil {
		return nil, apperror.Configuration("failed to parse service account key", err)
	}
	if key.ProjectID == "" || key.ClientEmail == "" {
		return nil, apperror.Configuration("service account key is missing project_id or client_email", nil)
	}

	tokens, err := c.auth(ctx, keyJSON)
	if err != nil {
		return nil, apperror.Initialization("failed to initialize Earth Engine", err)
	}

	return &Session{Project: key.ProjectID, Tokens: tokens}, nil
}

// statusError is a non-2xx answer from the engine.
type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("Earth Engine returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("Earth Engine returned status %d", e.Code)
}

// countsAsSuccess keeps request errors such as a bad dataset id from opening
// the breaker shared by every geo endpoint. Only 5xx, 429 and transport
// failures count.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code < http.StatusInternalServerError && se.Code != http.StatusTooManyRequests
	}
	return false
}

type computeRequest struct {
	Expression expression `json:"expression"`
}

type expression struct {
	Result string          `json:"result"`
	Values map[string]Expr `json:"values"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// compute evaluates expr and decodes the result into out.
func (c *Client) compute(ctx context.Context, op string, expr Expr, out any) error {
	sess, err := c.Initialize(ctx)
	if err != nil {
		return err
	}

	if timeout := c.cfg.RequestTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := circuitbreaker.Call(ctx, c.cb, func() (json.RawMessage, error) {
		return c.post(ctx, sess, expr)
	})
	metrics.ObserveBackendCall(backendName, op, start, err)
	if err != nil {
		logger.Error("Earth Engine request failed",
			zap.String("operation", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return apperror.Backend(fmt.Sprintf("earth engine %s failed", op), err)
	}

	logger.Debug("Earth Engine request completed",
		zap.String("operation", op),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := json.Unmarshal(result, out); err != nil {
		return apperror.Backend(fmt.Sprintf("earth engine %s returned an unexpected result", op), err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, sess *Session, expr Expr) (json.RawMessage, error) {
	body, err := json.Marshal(computeRequest{
		Expression: expression{Result: "0", Values: map[string]Expr{"0": expr}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode expression: %w", err)
	}

	token, err := sess.Tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	url := fmt.Sprintf("%s/v1/projects/%s/value:compute", strings.TrimRight(c.cfg.BaseURL, "/"), sess.Project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Earth Engine: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &statusError{Code: resp.StatusCode}
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil {
			statusErr.Message = apiErr.Error.Message
		}
		return nil, statusErr
	}

	var computed struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(respBody, &computed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return computed.Result, nil
}
