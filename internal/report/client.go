package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/rs/zerolog/log"
)

// TokenSource returns the current bearer token, or "" when signed out.
type TokenSource func() string

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

// Client talks to the keystroke backend.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
}

// NewClient creates a keystroke API client.
func NewClient(baseURL string, token TokenSource) *Client {
	if token == nil {
		token = StaticToken("")
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

type keystrokeBody struct {
	Action   models.Action `json:"action"`
	Code     string        `json:"code"`
	Language string        `json:"language"`
}

// Send implements Sender. Typing and paste reports go to POST /keystroke with
// the bearer token; exit reports go to POST /keystroke/clear with the token in
// the body.
func (c *Client) Send(ctx context.Context, r Report) error {
	switch rep := r.(type) {
	case TypingReport:
		return c.postKeystroke(ctx, models.ActionTyping, rep.Code, rep.Language)
	case PasteReport:
		return c.postKeystroke(ctx, models.ActionPaste, rep.Code, rep.Language)
	case ExitReport:
		token := rep.Token
		if token == "" {
			token = c.token()
		}
		return c.post(ctx, "/keystroke/clear", models.ClearRequest{
			Action:   models.ActionExit,
			Code:     rep.Code,
			Language: rep.Language,
			Token:    token,
		}, false, nil)
	default:
		return fmt.Errorf("unsupported report type %T", r)
	}
}

func (c *Client) postKeystroke(ctx context.Context, action models.Action, code, language string) error {
	return c.post(ctx, "/keystroke", keystrokeBody{
		Action:   action,
		Code:     code,
		Language: language,
	}, true, nil)
}

// SessionReport fetches the recorded state of the current session, shown in
// the pre-submit confirmation dialog.
func (c *Client) SessionReport(ctx context.Context) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodGet, "/keystroke/report", nil, true, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// PasteLog fetches the caller's recorded pastes, newest first. A limit of 0
// uses the server default.
func (c *Client) PasteLog(ctx context.Context, limit int) (*models.PasteLogResponse, error) {
	path := "/keystroke/pastes"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp models.PasteLogResponse
	if err := c.do(ctx, http.MethodGet, path, nil, true, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Clear drops the server-side keystroke cache after a successful submission.
func (c *Client) Clear(ctx context.Context) (string, error) {
	var resp models.ClearResponse
	if err := c.post(ctx, "/keystroke/clear", models.ClearRequest{Token: c.token()}, false, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) post(ctx context.Context, path string, body any, auth bool, out any) error {
	return c.do(ctx, http.MethodPost, path, body, auth, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, auth bool, out any) error {
	url := c.baseURL + path

	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if token := c.token(); token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	log.Trace().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("keystroke api call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp models.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return &APIError{Status: resp.StatusCode, Code: errResp.Code, Message: errResp.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}

// APIError is a non-2xx response from the keystroke backend.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Message)
}
