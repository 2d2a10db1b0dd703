package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bidagents/bidagents-api/internal/models"
)

// ErrTimeout marks an agent call that hit its capability deadline. It maps to
// a distinct HTTP status so callers can tell a slow backend from a broken one.
var ErrTimeout = errors.New("agent call timed out")

// DownstreamError is a non-2xx reply or transport failure from the agent
// backend. Body carries the raw detail for operator logs; handlers decide how
// much of it reaches the caller.
type DownstreamError struct {
	Capability string
	StatusCode int
	Body       string
}

func (e *DownstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s agent unreachable: %s", e.Capability, e.Body)
	}
	return fmt.Sprintf("%s agent returned status %d: %s", e.Capability, e.StatusCode, e.Body)
}

// maxErrorBody bounds how much of a failed reply is kept for logging.
const maxErrorBody = 4 << 10

type Client struct {
	BaseURL  string
	Registry *Registry

	http *http.Client
}

// NewClient builds a client for the agent backend. The per-request timeout
// comes from the capability registry, not the http.Client, so the transport
// carries no Timeout of its own.
func NewClient(baseURL string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:5000"
	}

	reg, err := LoadRegistry()
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		BaseURL:  baseURL,
		Registry: reg,
		http:     &http.Client{Transport: transport},
	}, nil
}

// run posts payload to the capability endpoint and decodes the reply into
// out. The call runs under the capability's deadline, as a child of ctx, so an
// abandoned request also cancels the outbound call.
func (c *Client) run(ctx context.Context, capabilityID string, payload interface{}, out interface{}) error {
	cfg, ok := c.Registry.Capability(capabilityID)
	if !ok {
		return fmt.Errorf("unknown agent capability %q", capabilityID)
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, "POST", c.BaseURL+cfg.Path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s agent: %w", capabilityID, ErrTimeout)
		}
		return &DownstreamError{Capability: capabilityID, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &DownstreamError{Capability: capabilityID, StatusCode: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &DownstreamError{Capability: capabilityID, StatusCode: resp.StatusCode, Body: fmt.Sprintf("invalid JSON reply: %v", err)}
	}

	return nil
}

// Request/response shapes for the four capabilities. Every request carries the
// authenticated userId; the caller never supplies it.

type DiscoveryRequest struct {
	UserID     string   `json:"userId"`
	Keywords   string   `json:"keywords"`
	NAICSCodes []string `json:"naicsCodes,omitempty"`
	Geography  string   `json:"geography,omitempty"`
	Portals    []string `json:"portals,omitempty"`
}

// DiscoveredBid is one opportunity as the discovery agent reports it. Deadline
// stays a plain date string on the wire.
type DiscoveredBid struct {
	Title          string  `json:"title"`
	Agency         string  `json:"agency"`
	Location       string  `json:"location"`
	Description    string  `json:"description"`
	Deadline       string  `json:"deadline"`
	Portal         string  `json:"portal"`
	SourceURL      string  `json:"sourceUrl"`
	RelevanceScore float64 `json:"relevanceScore"`
}

type DiscoveryResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Bids    []DiscoveredBid `json:"bids"`
}

type AnalysisRequest struct {
	UserID string `json:"userId"`
	BidID  string `json:"bidId"`
}

type AnalysisResult struct {
	Success      bool                 `json:"success"`
	Message      string               `json:"message"`
	Requirements *models.Requirements `json:"requirements,omitempty"`
}

type PrefillRequest struct {
	UserID      string            `json:"userId"`
	BidID       string            `json:"bidId"`
	CompanyData map[string]string `json:"companyData"`
}

type PrefillResult struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	PreFilledPath string            `json:"preFilledPath"`
	PreFilledData map[string]string `json:"preFilledData,omitempty"`
}

type SubmitRequest struct {
	UserID           string `json:"userId"`
	BidID            string `json:"bidId"`
	SubmissionMethod string `json:"submissionMethod"`
	SubmissionEmail  string `json:"submissionEmail,omitempty"`
}

type SubmitResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (c *Client) RunDiscovery(ctx context.Context, req DiscoveryRequest) (*DiscoveryResult, error) {
	var result DiscoveryResult
	if err := c.run(ctx, CapDiscovery, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RunAnalysis(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	var result AnalysisResult
	if err := c.run(ctx, CapAnalysis, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RunPrefill(ctx context.Context, req PrefillRequest) (*PrefillResult, error) {
	var result PrefillResult
	if err := c.run(ctx, CapPrefill, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) RunSubmit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	var result SubmitResult
	if err := c.run(ctx, CapSubmit, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
