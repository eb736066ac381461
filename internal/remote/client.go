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

	"go.uber.org/zap"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/form"
)

const maxResponseBody = 1 << 20

// Client talks to the forms server over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

var _ Submitter = (*Client)(nil)
var _ FormSource = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Submit posts values for formID. 200 and 422 carry a structured response;
// 404 maps to apperr.KindNotFound, any other status to apperr.KindServer, and
// transport failures to KindNetwork or KindTimeout.
func (c *Client) Submit(ctx context.Context, formID string, values form.Values, idempotencyKey string) (*SubmitResponse, error) {
	body, err := json.Marshal(SubmitRequest{Values: values})
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}

	path := "/api/forms/" + url.PathEscape(formID) + "/submissions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyHeader, idempotencyKey)
	}

	status, respBody, header, err := c.do(req)
	if err != nil {
		return nil, err
	}

	if status == http.StatusOK || status == http.StatusUnprocessableEntity {
		var out SubmitResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, apperr.Server(status, "malformed submission response")
		}
		if header.Get(ReplayedHeader) == "true" {
			c.logger.Debug("submission replayed by server",
				zap.String("form_id", formID), zap.String("idempotency_key", idempotencyKey))
		}
		return &out, nil
	}
	return nil, statusError(status, respBody)
}

// ListFormSummaries fetches the form catalogue.
func (c *Client) ListFormSummaries(ctx context.Context) ([]form.Summary, error) {
	var env struct {
		Data []form.Summary `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/forms", &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		env.Data = []form.Summary{}
	}
	return env.Data, nil
}

// GetForm fetches one definition and rejects it when element ids collide.
func (c *Client) GetForm(ctx context.Context, formID string) (*form.Definition, error) {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.getJSON(ctx, "/api/forms/"+url.PathEscape(formID), &env); err != nil {
		return nil, err
	}
	def, err := form.Decode(env.Data)
	if err != nil {
		return nil, apperr.Server(http.StatusOK, fmt.Sprintf("invalid form definition: %v", err))
	}
	return def, nil
}

func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, _, err := c.do(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusError(status, body)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperr.Server(status, "malformed response")
	}
	return nil
}

func (c *Client) do(req *http.Request) (int, []byte, http.Header, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(req.Context().Err(), context.Canceled) {
			return 0, nil, nil, err
		}
		return 0, nil, nil, apperr.Classify(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, nil, apperr.Classify(err)
	}
	return resp.StatusCode, body, resp.Header, nil
}

func statusError(status int, body []byte) error {
	msg := serverMessage(body)
	if status == http.StatusNotFound {
		if msg == "" {
			msg = "not found"
		}
		return apperr.NotFound(msg)
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return apperr.Server(status, msg)
}

// serverMessage extracts {"error": {"message": ...}} or {"message": ...}.
func serverMessage(body []byte) string {
	var env struct {
		Message string `json:"message"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) != nil {
		return ""
	}
	if env.Error.Message != "" {
		return env.Error.Message
	}
	return env.Message
}
