package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/RishiKendai/keyguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

func newCapturingServer(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
		}
		if r.Body != nil && r.ContentLength != 0 {
			_ = json.NewDecoder(r.Body).Decode(&req.Body)
		}
		captured = append(captured, req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestClient_SendTypingAndPaste(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{"status":"ok"}`)
	client := NewClient(srv.URL+"/", StaticToken("abc"))

	require.NoError(t, client.Send(context.Background(), TypingReport{Code: "x = 1", Language: "python"}))
	require.NoError(t, client.Send(context.Background(), PasteReport{Code: "y = 2", Language: "python"}))

	require.Len(t, *captured, 2)
	first := (*captured)[0]
	assert.Equal(t, http.MethodPost, first.Method)
	assert.Equal(t, "/keystroke", first.Path)
	assert.Equal(t, "Bearer abc", first.Auth)
	assert.Equal(t, map[string]any{"action": "typing", "code": "x = 1", "language": "python"}, first.Body)

	second := (*captured)[1]
	assert.Equal(t, "paste", second.Body["action"])
	assert.Equal(t, "y = 2", second.Body["code"])
}

func TestClient_NoTokenNoAuthHeader(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{"status":"ok"}`)
	client := NewClient(srv.URL, nil)

	require.NoError(t, client.Send(context.Background(), TypingReport{Code: "a", Language: "c"}))
	assert.Empty(t, (*captured)[0].Auth)
}

func TestClient_SendExit(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{"message":"Cleared keystrokes for user u1"}`)
	client := NewClient(srv.URL, StaticToken("stored"))

	require.NoError(t, client.Send(context.Background(), ExitReport{Code: "final", Language: "javascript", Token: "tok"}))
	require.NoError(t, client.Send(context.Background(), ExitReport{Code: "final", Language: "javascript"}))

	first := (*captured)[0]
	assert.Equal(t, "/keystroke/clear", first.Path)
	assert.Empty(t, first.Auth)
	assert.Equal(t, map[string]any{
		"action":   "exit",
		"code":     "final",
		"language": "javascript",
		"token":    "tok",
	}, first.Body)

	// falls back to the token source
	assert.Equal(t, "stored", (*captured)[1].Body["token"])
}

func TestClient_SessionReport(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{"code":"print(1)","paste":true}`)
	client := NewClient(srv.URL, StaticToken("abc"))

	session, err := client.SessionReport(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &models.Session{Code: "print(1)", Paste: true}, session)
	assert.Equal(t, http.MethodGet, (*captured)[0].Method)
	assert.Equal(t, "/keystroke/report", (*captured)[0].Path)
	assert.Equal(t, "Bearer abc", (*captured)[0].Auth)
}

func TestClient_PasteLog(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK,
		`{"pastes":[{"eventId":"e1","userId":"u1","source":"client","code":"x","detectedAt":"2026-03-01T10:00:00Z"}],"total":3}`)
	client := NewClient(srv.URL, StaticToken("abc"))

	pastes, err := client.PasteLog(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pastes.Total)
	require.Len(t, pastes.Pastes, 1)
	assert.Equal(t, "e1", pastes.Pastes[0].ID)
	assert.Equal(t, models.PasteSourceClient, pastes.Pastes[0].Source)

	req := (*captured)[0]
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/keystroke/pastes", req.Path)
	assert.Equal(t, "limit=1", req.Query)
	assert.Equal(t, "Bearer abc", req.Auth)

	_, err = client.PasteLog(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, (*captured)[1].Query)
}

func TestClient_Clear(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{"message":"Cleared keystrokes for user u1"}`)
	client := NewClient(srv.URL, StaticToken("abc"))

	msg, err := client.Clear(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Cleared keystrokes for user u1", msg)
	assert.Equal(t, map[string]any{"token": "abc"}, (*captured)[0].Body)
}

func TestClient_APIError(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusUnauthorized, `{"error":"Invalid or expired token","code":"UNAUTHORIZED"}`)
	client := NewClient(srv.URL, StaticToken("bad"))

	err := client.Send(context.Background(), TypingReport{Code: "a", Language: "python"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}

func TestClient_PlainTextError(t *testing.T) {
	srv, _ := newCapturingServer(t, http.StatusBadGateway, `upstream down`)
	client := NewClient(srv.URL, nil)

	_, err := client.SessionReport(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "API error (status 502): upstream down", apiErr.Error())
}

func TestClient_WorksAsDispatcherSender(t *testing.T) {
	srv, captured := newCapturingServer(t, http.StatusOK, `{"status":"ok"}`)
	d := NewDispatcher(NewClient(srv.URL, StaticToken("abc")))

	d.Paste("pasted", "python")
	d.Close()

	require.Len(t, *captured, 1)
	assert.Equal(t, "paste", (*captured)[0].Body["action"])
}
