package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ruteo-sync-agent/internal/model"
)

// ErrShiftAlreadyClosed is returned when the authority reports the target
// shift was already closed for the day.
var ErrShiftAlreadyClosed = errors.New("shift already closed")

const alreadyClosedCode = "ALREADY_CLOSED"

// evidenceTimeoutStep adds one second of submission timeout per this many
// bytes of attached evidence, up to the configured maximum.
const evidenceTimeoutStep = 64 * 1024

// Config holds the client settings for the remote sales authority.
type Config struct {
	BaseURL     string
	APIKey      string
	BaseTimeout time.Duration
	MaxTimeout  time.Duration
}

// Client talks to the remote sales authority. Every call carries a bounded
// timeout; transport failures are reported as OutcomeTransportFailed, never
// as terminal errors.
type Client struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	baseTimeout time.Duration
	maxTimeout  time.Duration
}

// New creates an authority client.
func New(cfg Config) *Client {
	return NewWithClient(cfg, &http.Client{})
}

// NewWithClient creates an authority client on an existing http.Client.
func NewWithClient(cfg Config, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{}
	}
	base := cfg.BaseTimeout
	if base <= 0 {
		base = 10 * time.Second
	}
	max := cfg.MaxTimeout
	if max < base {
		max = base
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		client:      client,
		baseTimeout: base,
		maxTimeout:  max,
	}
}

// RequestError is a non-transport failure reported by the authority.
type RequestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" && e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Code)
	}
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type submitResponse struct {
	AlreadyExisted bool `json:"already_existed"`
}

// CreateSale submits one pending sale. The (vendor, local id, device id)
// tuple is the idempotency key; a replay resolves to OutcomeAlreadyApplied.
func (c *Client) CreateSale(ctx context.Context, sale *model.PendingSale) (model.Outcome, error) {
	timeout := c.timeoutFor(sale.EvidenceSize())
	status, body, err := c.request(ctx, http.MethodPost, "/v1/sales", sale, timeout)
	if err != nil {
		return model.OutcomeTransportFailed, err
	}
	return c.submissionOutcome(status, body)
}

// UpdateOrderStatus submits one pending order action.
func (c *Client) UpdateOrderStatus(ctx context.Context, action *model.PendingAction) (model.Outcome, error) {
	path := "/v1/orders/" + url.PathEscape(action.OrderRef) + "/status"
	status, body, err := c.request(ctx, http.MethodPost, path, action, c.baseTimeout)
	if err != nil {
		return model.OutcomeTransportFailed, err
	}
	return c.submissionOutcome(status, body)
}

func (c *Client) submissionOutcome(status int, body []byte) (model.Outcome, error) {
	switch {
	case status == http.StatusCreated:
		return model.OutcomeCreated, nil
	case status == http.StatusOK:
		var resp submitResponse
		if err := json.Unmarshal(body, &resp); err == nil && resp.AlreadyExisted {
			return model.OutcomeAlreadyApplied, nil
		}
		return model.OutcomeCreated, nil
	case status == http.StatusConflict:
		return model.OutcomeConflicted, decodeError(status, body)
	case status >= 400 && status < 500:
		return model.OutcomeRejected, decodeError(status, body)
	default:
		// 5xx: the authority is unhealthy, not the record. Retry later.
		return model.OutcomeTransportFailed, decodeError(status, body)
	}
}

type verifyResponse struct {
	Active   bool      `json:"active"`
	Day      string    `json:"day"`
	OpenedAt time.Time `json:"opened_at"`
}

// VerifyShift asks the authority for the vendor's current shift state.
func (c *Client) VerifyShift(ctx context.Context, vendorID string) (*model.ShiftSnapshot, error) {
	path := "/v1/shifts/" + url.PathEscape(vendorID)
	status, body, err := c.request(ctx, http.MethodGet, path, nil, c.baseTimeout)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, decodeError(status, body)
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	snap := &model.ShiftSnapshot{
		VendorID: vendorID,
		Day:      resp.Day,
		OpenedAt: resp.OpenedAt,
		Status:   model.ShiftClosed,
	}
	if resp.Active {
		snap.Status = model.ShiftOpen
	}
	return snap, nil
}

type openRequest struct {
	Day    string `json:"day"`
	Forced bool   `json:"forced,omitempty"`
}

type snapshotEnvelope struct {
	Snapshot struct {
		Day      string    `json:"day"`
		OpenedAt time.Time `json:"opened_at"`
	} `json:"snapshot"`
}

// OpenShift opens the vendor's shift for the given day. Returns
// ErrShiftAlreadyClosed when the authority reports the day's shift was
// already closed and forced is false.
func (c *Client) OpenShift(ctx context.Context, vendorID, day string, forced bool) (*model.ShiftSnapshot, error) {
	path := "/v1/shifts/" + url.PathEscape(vendorID) + "/open"
	status, body, err := c.request(ctx, http.MethodPost, path, openRequest{Day: day, Forced: forced}, c.baseTimeout)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, mapShiftError(status, body)
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode open response: %w", err)
	}
	return &model.ShiftSnapshot{
		VendorID: vendorID,
		Day:      env.Snapshot.Day,
		OpenedAt: env.Snapshot.OpenedAt,
		Status:   model.ShiftOpen,
	}, nil
}

type closeRequest struct {
	Day     string              `json:"day"`
	Summary *model.CloseSummary `json:"summary"`
}

type closeResponse struct {
	ResultSummary model.CloseSummary `json:"result_summary"`
}

// CloseShift closes the vendor's shift, handing the authority the device-side
// summary for reconciliation.
func (c *Client) CloseShift(ctx context.Context, vendorID, day string, summary *model.CloseSummary) (*model.CloseSummary, error) {
	path := "/v1/shifts/" + url.PathEscape(vendorID) + "/close"
	status, body, err := c.request(ctx, http.MethodPost, path, closeRequest{Day: day, Summary: summary}, c.baseTimeout)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, mapShiftError(status, body)
	}

	var resp closeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode close response: %w", err)
	}
	return &resp.ResultSummary, nil
}

// Ping probes the authority's health endpoint. Used by the connectivity
// monitor only.
func (c *Client) Ping(ctx context.Context) error {
	status, _, err := c.request(ctx, http.MethodGet, "/api/status", nil, c.baseTimeout)
	if err != nil {
		return err
	}
	if status >= 500 {
		return fmt.Errorf("authority unhealthy: http %d", status)
	}
	return nil
}

func mapShiftError(status int, body []byte) error {
	err := decodeError(status, body)
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Code == alreadyClosedCode {
		return fmt.Errorf("%w: %s", ErrShiftAlreadyClosed, reqErr.Message)
	}
	return err
}

func decodeError(status int, body []byte) error {
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Code != "" {
		return &RequestError{StatusCode: status, Code: env.Error.Code, Message: env.Error.Message}
	}
	return &RequestError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

// timeoutFor stretches the base submission timeout for large evidence
// payloads, capped at the configured maximum.
func (c *Client) timeoutFor(evidenceSize int) time.Duration {
	timeout := c.baseTimeout + time.Duration(evidenceSize/evidenceTimeoutStep)*time.Second
	if timeout > c.maxTimeout {
		timeout = c.maxTimeout
	}
	return timeout
}

// request performs one bounded HTTP call and returns the status code and raw
// body. A non-nil error means the authority was never definitively reached.
func (c *Client) request(ctx context.Context, method, path string, body any, timeout time.Duration) (int, []byte, error) {
	reqCtx := ctx
	if timeout > 0 {
		if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > timeout {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
	}

	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return 0, nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = buf
	}

	req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, payload, nil
}
