package pos

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"settlement-reconciliation-service/pkg/errors"
	"settlement-reconciliation-service/pkg/logger"
)

// DefaultBaseURL is the POS report API.
const DefaultBaseURL = "https://clinic.beautycenter.id/api"

// ClientConfig holds configuration for the POS HTTP client
type ClientConfig struct {
	BaseURL   string        `json:"base_url"`
	Timeout   time.Duration `json:"timeout"`
	UserAgent string        `json:"user_agent"`
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   DefaultBaseURL,
		Timeout:   30 * time.Second,
		UserAgent: "settlement-reconciler",
	}
}

// Validate checks if the client configuration is valid
func (c *ClientConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base URL must use http or https, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %s", c.Timeout)
	}
	return nil
}

// envelope is the paginated response body. next_page_url is kept loose:
// anything but null, "" or false means another page exists.
type envelope struct {
	Data        []Record    `json:"data"`
	NextPageURL interface{} `json:"next_page_url"`
}

// Client fetches report pages over HTTP. It implements PageFetcher.
type Client struct {
	baseURL    *url.URL
	config     *ClientConfig
	httpClient *http.Client
	logger     logger.Logger
}

// NewClient creates a POS client. A nil httpClient uses a fresh
// http.Client; the per-request timeout is applied through the context.
func NewClient(config *ClientConfig, httpClient *http.Client) (*Client, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "api-base-url", config.BaseURL, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	base, _ := url.Parse(strings.TrimRight(config.BaseURL, "/"))

	return &Client{
		baseURL:    base,
		config:     config,
		httpClient: httpClient,
		logger:     logger.GetGlobalLogger().WithComponent("pos_client"),
	}, nil
}

// PageURL builds the request URL for one page of a category report
func (c *Client) PageURL(category TransactionCategory, dateRange DateRange, page int) string {
	u := c.baseURL.JoinPath(category.Endpoint())
	query := u.Query()
	query.Set("dari_tanggal", dateRange.Start)
	query.Set("sampai_tanggal", dateRange.End)
	query.Set("page", strconv.Itoa(page))
	u.RawQuery = query.Encode()
	return u.String()
}

// FetchPage requests one page. Transport failures, non-2xx statuses and
// undecodable bodies are returned as network errors.
func (c *Client) FetchPage(ctx context.Context, category TransactionCategory, dateRange DateRange, page int) (*Page, error) {
	if !category.IsValid() {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "category", category, nil)
	}

	endpoint := c.PageURL(category, dateRange, page)

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.NetworkError(errors.CodeTimeout, endpoint, err).
				WithContext("timeout", c.config.Timeout.String())
		}
		return nil, errors.NetworkError(errors.CodeConnectionFailed, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, errors.NetworkError(errors.CodeBadStatus, endpoint,
			fmt.Errorf("status %d", resp.StatusCode)).
			WithContext("status", resp.StatusCode)
	}

	var body envelope
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		return nil, errors.NetworkError(errors.CodeMalformedBody, endpoint, err)
	}

	c.logger.WithFields(logger.Fields{
		"category": string(category),
		"page":     page,
		"records":  len(body.Data),
		"duration": time.Since(start).String(),
	}).Debug("Fetched report page")

	return &Page{
		Records:     body.Data,
		NextPageURL: nextPageIndicator(body.NextPageURL),
	}, nil
}

func nextPageIndicator(value interface{}) *string {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return &v
	case bool:
		if !v {
			return nil
		}
		s := "true"
		return &s
	default:
		s := fmt.Sprint(v)
		return &s
	}
}
