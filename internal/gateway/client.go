package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is where the finance API lives in local development
const DefaultBaseURL = "http://localhost:8000/api"

// cacheBustParam is appended to every GET so intermediaries never serve stale aggregates
const cacheBustParam = "_t"

// Client is a typed HTTP client for the finance and AI API
type Client struct {
	baseURL string
	client  *http.Client
	token   func() string
}

// NewClient creates a Client. The underlying http.Client has no overall
// timeout; callers bound individual calls through their context.
func NewClient(baseURL string) *Client {
	return NewClientWithHTTP(baseURL, &http.Client{})
}

// NewClientWithHTTP creates a Client with a custom http.Client for testing
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  hc,
		token:   cacheToken,
	}
}

// cacheToken returns a UUIDv7, which the uuid package keeps monotonic within a process
func cacheToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return id.String()
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ParseVoice turns a spoken sentence into a transaction draft
func (c *Client) ParseVoice(ctx context.Context, text string) (*VoiceParseResult, error) {
	var out VoiceParseResult
	if err := c.postJSON(ctx, "/ai/parse-voice", map[string]string{"text": text}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanReceipt uploads an image as the multipart field "file"
func (c *Client) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*ScanResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("creating form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("writing form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	var out ScanResult
	if err := c.do(ctx, http.MethodPost, "/ai/scan-receipt", nil, &body, writer.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat sends a question to the assistant along with prior turns
func (c *Client) Chat(ctx context.Context, query string, history []ChatMessage) (*ChatReply, error) {
	req := struct {
		Query   string        `json:"query"`
		History []ChatMessage `json:"history,omitempty"`
	}{Query: query, History: history}

	var out ChatReply
	if err := c.postJSON(ctx, "/ai/chat", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AIConfig reports how the AI backend is configured
func (c *Client) AIConfig(ctx context.Context) (*AIConfig, error) {
	var out AIConfig
	if err := c.get(ctx, "/ai/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListTransactions returns transactions matching q, most recent first
func (c *Client) ListTransactions(ctx context.Context, q TransactionQuery) ([]Transaction, error) {
	out := make([]Transaction, 0)
	if err := c.get(ctx, "/transactions/", q.values(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTransaction returns a single transaction
func (c *Client) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	var out Transaction
	if err := c.get(ctx, transactionPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTransaction persists a new transaction and returns it with its ID
func (c *Client) CreateTransaction(ctx context.Context, t NewTransaction) (*Transaction, error) {
	var out Transaction
	if err := c.postJSON(ctx, "/transactions/", t.payload(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateTransaction applies a partial update
func (c *Client) UpdateTransaction(ctx context.Context, id int64, u TransactionUpdate) (*Transaction, error) {
	data, err := json.Marshal(u.payload())
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	var out Transaction
	if err := c.do(ctx, http.MethodPut, transactionPath(id), nil, bytes.NewReader(data), "application/json", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteTransaction removes a transaction
func (c *Client) DeleteTransaction(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, transactionPath(id), nil, nil, "", nil)
}

// ExportCSV streams the CSV export. The caller must close the reader.
func (c *Client) ExportCSV(ctx context.Context, start, end Date) (io.ReadCloser, error) {
	q := TransactionQuery{StartDate: start, EndDate: end}.values()
	resp, err := c.send(ctx, http.MethodGet, "/transactions/export/csv", c.bust(q), nil, "")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// MonthlyStats returns totals for the given month
func (c *Client) MonthlyStats(ctx context.Context, p Period) (*MonthlyStats, error) {
	var out MonthlyStats
	if err := c.get(ctx, "/statistics/monthly", p.values(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CategoryStats returns the per-category breakdown for one kind
func (c *Client) CategoryStats(ctx context.Context, kind Kind, p Period) ([]CategoryStat, error) {
	q := p.values()
	if kind != "" {
		q.Set("type", string(kind))
	}
	out := make([]CategoryStat, 0)
	if err := c.get(ctx, "/statistics/category", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Trend returns daily income and expense totals for the last days days.
// The payload is rejected as a whole if its sequences differ in length.
func (c *Client) Trend(ctx context.Context, days int) (*TrendSeries, error) {
	q := url.Values{}
	if days > 0 {
		q.Set("days", strconv.Itoa(days))
	}
	var out TrendSeries
	if err := c.get(ctx, "/statistics/trend", q, &out); err != nil {
		return nil, err
	}
	if out.Len() < 0 {
		return nil, fmt.Errorf("%w: %d dates, %d expense, %d income",
			ErrMalformedTrend, len(out.Dates), len(out.Expense), len(out.Income))
	}
	return &out, nil
}

// CurrentUser returns the signed-in user
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.get(ctx, "/user/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserStats returns lifetime totals for the current user
func (c *Client) UserStats(ctx context.Context) (*UserStats, error) {
	var out UserStats
	if err := c.get(ctx, "/user/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func transactionPath(id int64) string {
	return "/transactions/" + strconv.FormatInt(id, 10)
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func (c *Client) bust(q url.Values) url.Values {
	if q == nil {
		q = url.Values{}
	}
	q.Set(cacheBustParam, c.token())
	return q
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, c.bust(q), nil, "", out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(data), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, out any) error {
	resp, err := c.send(ctx, method, path, q, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// send performs the request and returns the response only for 2xx statuses
func (c *Client) send(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string) (*http.Response, error) {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s: %w", method, path, newAPIError(resp.StatusCode, data))
	}
	return resp, nil
}
