package horizon

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"resty.dev/v3"

	"wallet-notifier/internal/domain"
)

// Default configuration values.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultRetryCount        = 3
	DefaultRetryWaitTime     = 1 * time.Second
	DefaultRetryMaxWaitTime  = 10 * time.Second
	DefaultReconnectDelay    = 1 * time.Second
	DefaultMaxReconnectDelay = 30 * time.Second
	DefaultPageLimit         = 200

	MainnetURL = "https://horizon.stellar.org"
	TestnetURL = "https://horizon-testnet.stellar.org"
)

// Client implements API and EffectSource over Horizon's REST interface.
type Client struct {
	network domain.Network
	baseURL string

	rest   *resty.Client
	stream *resty.Client

	limiter           *Limiter
	logger            *log.Logger
	timeout           time.Duration
	retryCount        int
	retryWait         time.Duration
	retryMaxWait      time.Duration
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	pageLimit         int

	closeOnce sync.Once
	closeErr  error
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the timeout of REST requests. Streams have no timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithRetry sets REST retry count and backoff bounds.
func WithRetry(count int, wait, maxWait time.Duration) ClientOption {
	return func(c *Client) {
		c.retryCount = count
		c.retryWait = wait
		c.retryMaxWait = maxWait
	}
}

// WithLimiter shares a rate limiter between clients.
func WithLimiter(l *Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithReconnectDelay sets the initial and maximum stream reconnect delay.
func WithReconnectDelay(initial, max time.Duration) ClientOption {
	return func(c *Client) {
		c.reconnectDelay = initial
		c.maxReconnectDelay = max
	}
}

// WithPageLimit sets the page size of list requests.
func WithPageLimit(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageLimit = n
		}
	}
}

// WithLogger sets the logger used for stream diagnostics.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// NewClient creates a Horizon client for network at baseURL.
func NewClient(network domain.Network, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		network:           network,
		baseURL:           baseURL,
		logger:            log.New(os.Stdout, "[horizon] ", log.LstdFlags),
		timeout:           DefaultTimeout,
		retryCount:        DefaultRetryCount,
		retryWait:         DefaultRetryWaitTime,
		retryMaxWait:      DefaultRetryMaxWaitTime,
		reconnectDelay:    DefaultReconnectDelay,
		maxReconnectDelay: DefaultMaxReconnectDelay,
		pageLimit:         DefaultPageLimit,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.rest = resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/hal+json").
		SetTimeout(c.timeout).
		SetRetryCount(c.retryCount).
		SetRetryWaitTime(c.retryWait).
		SetRetryMaxWaitTime(c.retryMaxWait).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)

	c.stream = resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "text/event-stream").
		SetHeader("Cache-Control", "no-cache")

	return c
}

// Network returns the network the client talks to.
func (c *Client) Network() domain.Network {
	return c.network
}

// Close releases client resources. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if err := c.rest.Close(); err != nil {
			c.closeErr = err
		}
		if err := c.stream.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// retryCondition retries network errors, 408, 429 and 5xx.
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	switch code := r.StatusCode(); {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Debug("retrying horizon request due to error",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}
	slog.Debug("retrying horizon request due to status code",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}

// get performs a rate limited GET and decodes the body into result.
func (c *Client) get(ctx context.Context, path string, pathParams, query map[string]string, result any) error {
	if err := c.limiter.Wait(ctx, c.network); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	problem := &Error{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetPathParams(pathParams).
		SetQueryParams(query).
		SetResult(result).
		SetError(problem).
		Get(path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if !resp.IsSuccess() {
		if problem.Status == 0 {
			problem.Status = resp.StatusCode()
		}
		if problem.Title == "" {
			problem.Title = http.StatusText(resp.StatusCode())
		}
		return problem
	}
	return nil
}

type assetJSON struct {
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}

func (a assetJSON) toDomain() domain.Asset {
	if a.AssetType == "native" {
		return domain.NativeAsset()
	}
	return domain.NewAsset(a.AssetCode, a.AssetIssuer)
}

type offerJSON struct {
	domain.Offer
	Selling assetJSON `json:"selling"`
	Buying  assetJSON `json:"buying"`
}

type offersPage struct {
	Embedded struct {
		Records []offerJSON `json:"records"`
	} `json:"_embedded"`
}

// Offers returns every open offer of accountID, following pagination.
func (c *Client) Offers(ctx context.Context, accountID string) ([]domain.Offer, error) {
	var offers []domain.Offer
	cursor := ""

	for {
		query := map[string]string{
			"limit": strconv.Itoa(c.pageLimit),
			"order": "asc",
		}
		if cursor != "" {
			query["cursor"] = cursor
		}

		var page offersPage
		if err := c.get(ctx, "/accounts/{account}/offers", map[string]string{"account": accountID}, query, &page); err != nil {
			return nil, fmt.Errorf("offers of %s: %w", accountID, err)
		}

		for _, rec := range page.Embedded.Records {
			o := rec.Offer
			o.Selling = rec.Selling.toDomain()
			o.Buying = rec.Buying.toDomain()
			offers = append(offers, o)
		}

		records := page.Embedded.Records
		if len(records) < c.pageLimit {
			return offers, nil
		}
		cursor = records[len(records)-1].PagingToken
		if cursor == "" {
			return offers, nil
		}
	}
}

type accountJSON struct {
	ID            string `json:"id"`
	Sequence      string `json:"sequence"`
	SubentryCount int    `json:"subentry_count"`
	Balances      []struct {
		assetJSON
		Balance string `json:"balance"`
	} `json:"balances"`
	Signers []struct {
		Key    string `json:"key"`
		Weight int    `json:"weight"`
	} `json:"signers"`
}

// Account returns the account record of accountID.
func (c *Client) Account(ctx context.Context, accountID string) (*domain.AccountData, error) {
	var raw accountJSON
	if err := c.get(ctx, "/accounts/{account}", map[string]string{"account": accountID}, nil, &raw); err != nil {
		return nil, fmt.Errorf("account %s: %w", accountID, err)
	}

	data := &domain.AccountData{
		ID:            raw.ID,
		Sequence:      raw.Sequence,
		SubentryCount: raw.SubentryCount,
	}
	for _, b := range raw.Balances {
		data.Balances = append(data.Balances, domain.Balance{
			Asset:   b.assetJSON.toDomain(),
			Balance: b.Balance,
		})
	}
	for _, s := range raw.Signers {
		data.Signers = append(data.Signers, domain.Signer{AccountID: s.Key, Weight: s.Weight})
	}
	return data, nil
}

type rootJSON struct {
	HistoryLatestLedger int64  `json:"history_latest_ledger"`
	CoreLatestLedger    int64  `json:"core_latest_ledger"`
	NetworkPassphrase   string `json:"network_passphrase"`
}

// LatestLedger returns the ledger summary of the Horizon root resource.
func (c *Client) LatestLedger(ctx context.Context) (*domain.LedgerInfo, error) {
	var raw rootJSON
	if err := c.get(ctx, "/", nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("root: %w", err)
	}
	return &domain.LedgerInfo{
		Network:           c.network,
		Sequence:          raw.HistoryLatestLedger,
		CoreSequence:      raw.CoreLatestLedger,
		NetworkPassphrase: raw.NetworkPassphrase,
		ObservedAt:        time.Now().UTC(),
	}, nil
}

var (
	_ API          = (*Client)(nil)
	_ EffectSource = (*Client)(nil)
)
