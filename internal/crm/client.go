package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"reportflow_backend/platform/config"
	"reportflow_backend/platform/logger"
)

// maxErrorBody bounds how much of an upstream error body is kept in errors.
const maxErrorBody = 512

// Client is the HTTP client for the CRM backend. Requests carry the configured
// API key and honor the caller's context; failures are returned as-is with no
// retry, the workflow decides what is fatal.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	log        *logger.Logger
}

// New creates a new CRM client from configuration.
func New(cfg config.CRMConfig, log *logger.Logger) *Client {
	timeout := cfg.GetCRMTimeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.GetCRMBaseURL(),
		apiKey:     cfg.GetCRMAPIKey(),
		log:        log,
	}
}

// ListLeads fetches up to limit leads ordered by the CRM's default recency sort.
func (c *Client) ListLeads(ctx context.Context, limit int) ([]Lead, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var payload struct {
		Leads []Lead `json:"leads"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/leads?"+params.Encode(), nil, &payload); err != nil {
		return nil, err
	}
	return payload.Leads, nil
}

// GetLead fetches a single lead by ID.
func (c *Client) GetLead(ctx context.Context, id string) (*Lead, error) {
	var lead Lead
	if err := c.doJSON(ctx, http.MethodGet, "/api/leads/"+url.PathEscape(id), nil, &lead); err != nil {
		return nil, err
	}
	return &lead, nil
}

// GetBusinessProfile fetches the operator's company profile.
func (c *Client) GetBusinessProfile(ctx context.Context) (*BusinessProfile, error) {
	var profile BusinessProfile
	if err := c.doJSON(ctx, http.MethodGet, "/api/business-profile", nil, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetPricing fetches the operator's pricing catalog.
func (c *Client) GetPricing(ctx context.Context) ([]PricingItem, error) {
	var payload struct {
		Items []PricingItem `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/pricing", nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// GenerateContent asks the CRM's hosted model to draft section text.
func (c *Client) GenerateContent(ctx context.Context, req GenerateContentRequest) (string, error) {
	var payload GenerateContentResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/reports/generate-content", req, &payload); err != nil {
		return "", err
	}
	return payload.Content, nil
}

// CreateReport creates a new report record and returns it with its assigned ID.
func (c *Client) CreateReport(ctx context.Context, req SaveReportRequest) (*Report, error) {
	var report Report
	if err := c.doJSON(ctx, http.MethodPost, "/api/reports", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// UpdateReport overwrites an existing report record.
func (c *Client) UpdateReport(ctx context.Context, id string, req SaveReportRequest) (*Report, error) {
	var report Report
	if err := c.doJSON(ctx, http.MethodPut, "/api/reports/"+url.PathEscape(id), req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// GeneratePDF renders the report server-side and returns the PDF bytes.
func (c *Client) GeneratePDF(ctx context.Context, id string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/reports/"+url.PathEscape(id)+"/generate-pdf", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// CreateShareLink issues a public share token for the report.
func (c *Client) CreateShareLink(ctx context.Context, id string) (*ShareLink, error) {
	var link ShareLink
	if err := c.doJSON(ctx, http.MethodPost, "/api/reports/"+url.PathEscape(id)+"/share", nil, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

// SendReport asks the CRM to deliver the rendered report to the lead.
func (c *Client) SendReport(ctx context.Context, id string, req SendRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/api/reports/"+url.PathEscape(id)+"/send", req, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.log != nil {
			c.log.UpstreamError("crm", method+" "+path, err)
		}
		return nil, fmt.Errorf("crm request: %w", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("crm %s: status %d: %s", resp.Request.URL.Path, resp.StatusCode, bytes.TrimSpace(excerpt))
}
