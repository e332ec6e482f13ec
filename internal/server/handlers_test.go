package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollstream/pollstream/internal/hub"
	"github.com/pollstream/pollstream/internal/platform/config"
	"github.com/pollstream/pollstream/internal/platform/correlation"
)

// fakeHub records publish calls and returns canned results.
type fakeHub struct {
	publishResult hub.PublishResult
	publishErr    error
	clientCount   int

	publishedPollID  string
	publishedPayload json.RawMessage
}

func (f *fakeHub) Register(*websocket.Conn, string, string) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (f *fakeHub) Unregister(uuid.UUID) {}

func (f *fakeHub) HandleFrame(uuid.UUID, []byte) {}

func (f *fakeHub) ClientCount() int { return f.clientCount }

func (f *fakeHub) Publish(pollID string, payload json.RawMessage) (hub.PublishResult, error) {
	f.publishedPollID = pollID
	f.publishedPayload = payload
	return f.publishResult, f.publishErr
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:     "development",
		Port:       "8080",
		AuthTokens: "token:alice",
	}
}

func testServer(t *testing.T, h pollHub) *Server {
	t.Helper()
	return NewServer(testConfig(), h, nil)
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestPublish_FansOutAndReturnsCounts(t *testing.T) {
	fake := &fakeHub{publishResult: hub.PublishResult{Delivered: 3, Failed: 1}}
	srv := testServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/internal/polls/p1/publish", `{"votes":{"yes":4}}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"delivered":3,"failed":1}`, rec.Body.String())
	assert.Equal(t, "p1", fake.publishedPollID)
	assert.JSONEq(t, `{"votes":{"yes":4}}`, string(fake.publishedPayload))
}

func TestPublish_RejectsEmptyBody(t *testing.T) {
	srv := testServer(t, &fakeHub{})

	rec := doRequest(srv, http.MethodPost, "/internal/polls/p1/publish", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "valid JSON")
}

func TestPublish_RejectsMalformedJSON(t *testing.T) {
	srv := testServer(t, &fakeHub{})

	rec := doRequest(srv, http.MethodPost, "/internal/polls/p1/publish", `{"votes":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPublish_RejectsOversizedPayload(t *testing.T) {
	srv := testServer(t, &fakeHub{})

	body := `{"pad":"` + strings.Repeat("x", maxPublishBodySize) + `"}`
	rec := doRequest(srv, http.MethodPost, "/internal/polls/p1/publish", body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "too large")
}

func TestPublish_HubErrorMapsTo500(t *testing.T) {
	fake := &fakeHub{publishErr: hub.ErrHubBusy}
	srv := testServer(t, fake)

	rec := doRequest(srv, http.MethodPost, "/internal/polls/p1/publish", `{"votes":1}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLiveness(t *testing.T) {
	srv := testServer(t, &fakeHub{})

	rec := doRequest(srv, http.MethodGet, "/health/live", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestReadiness_HealthyWithoutRedis(t *testing.T) {
	srv := testServer(t, &fakeHub{clientCount: 0})

	rec := doRequest(srv, http.MethodGet, "/health/ready", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
}

func TestReadiness_UnresponsiveHub(t *testing.T) {
	srv := testServer(t, &fakeHub{clientCount: -1})

	rec := doRequest(srv, http.MethodGet, "/health/ready", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"failed_check":"hub"`)
}

func TestVersionEndpoint(t *testing.T) {
	srv := testServer(t, &fakeHub{})

	rec := doRequest(srv, http.MethodGet, "/version", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"go_version"`)
}

func TestCorrelationHeaderEchoedBack(t *testing.T) {
	srv := testServer(t, &fakeHub{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set(correlation.HeaderName, "trace-123")
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, "trace-123", rec.Header().Get(correlation.HeaderName))
}

func TestWebSocket_RejectsPlainHTTP(t *testing.T) {
	srv := testServer(t, &fakeHub{})

	rec := doRequest(srv, http.MethodGet, "/ws", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
