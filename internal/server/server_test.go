package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lofari/DynamicForms-sub000/internal/form"
	"github.com/lofari/DynamicForms-sub000/internal/formdef"
	"github.com/lofari/DynamicForms-sub000/internal/idempotency"
	"github.com/lofari/DynamicForms-sub000/internal/remote"
	"github.com/lofari/DynamicForms-sub000/internal/store"
	"github.com/lofari/DynamicForms-sub000/internal/store/storetest"
)

const contactForm = `
id: contact
title: Contact
pages:
  - title: You
    elements:
      - type: text
        id: name
        label: Name
        required: true
      - type: email
        id: email
        label: Email
  - title: Message
    elements:
      - type: textarea
        id: message
        label: Message
        maxLength: 200
rules:
  - expression: values["name"] == "spam"
    message: Name is not allowed
`

type fixture struct {
	app  *fiber.App
	subs *SubmissionStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	def, err := form.DecodeYAML([]byte(contactForm))
	require.NoError(t, err)

	reg := formdef.NewRegistry()
	reg.Load([]*form.Definition{def})

	logger := zaptest.NewLogger(t)
	subs := NewSubmissionStore(storetest.Open(t, store.ServerSchema))
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(time.Hour, 100), logger)

	app := NewApp(logger, false)
	RegisterRoutes(app, NewHandler(reg, subs, guard, logger))
	return &fixture{app: app, subs: subs}
}

func (f *fixture) do(t *testing.T, method, path, body string, header map[string]string) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestListForms(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/forms", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Data []form.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, []form.Summary{{FormID: "contact", Title: "Contact", PageCount: 2, FieldCount: 3}}, env.Data)
}

func TestGetForm(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/forms/contact", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	def, err := form.Decode(env.Data)
	require.NoError(t, err)
	assert.Equal(t, "contact", def.ID)
	assert.Len(t, def.Pages, 2)
}

func TestGetForm_NotFound(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/forms/missing", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "NOT_FOUND", errResp.Error.Code)
	assert.Contains(t, errResp.Error.Message, "missing")
}

func TestSubmit_Accepted(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/forms/contact/submissions",
		`{"values":{"name":"<b>Ann</b> & co","message":"hi<script>alert(1)</script>"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out remote.SubmitResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.Success)
	assert.NotEmpty(t, out.SubmissionID)

	subs, err := f.subs.List(context.Background(), "contact")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, out.SubmissionID, subs[0].ID)
	assert.Equal(t, "Ann & co", subs[0].Values["name"])
	assert.Equal(t, "hi", subs[0].Values["message"])
}

func TestSubmit_ValidationFailure(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/forms/contact/submissions",
		`{"values":{"email":"ann@example.com"}}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out remote.SubmitResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.False(t, out.Success)
	assert.Equal(t, map[string]string{"name": "Name is required"}, out.FieldErrors)

	subs, err := f.subs.List(context.Background(), "contact")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestSubmit_ExpressionRule(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/forms/contact/submissions",
		`{"values":{"name":"spam"}}`, nil)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var out remote.SubmitResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "Name is not allowed", out.Message)
	assert.Empty(t, out.FieldErrors)
}

func TestSubmit_InvalidBody(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodPost, "/api/forms/contact/submissions", `{"values":`, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp))
	assert.Equal(t, "INVALID_PAYLOAD", errResp.Error.Code)
}

func TestSubmit_UnknownForm(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/forms/missing/submissions", `{"values":{}}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSubmit_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	header := map[string]string{remote.IdempotencyHeader: "key-1"}
	payload := `{"values":{"name":"Ann"}}`

	first, firstBody := f.do(t, http.MethodPost, "/api/forms/contact/submissions", payload, header)
	require.Equal(t, http.StatusOK, first.StatusCode)
	assert.Empty(t, first.Header.Get(remote.ReplayedHeader))

	second, secondBody := f.do(t, http.MethodPost, "/api/forms/contact/submissions", payload, header)
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, "true", second.Header.Get(remote.ReplayedHeader))
	assert.Equal(t, string(firstBody), string(secondBody))

	subs, err := f.subs.List(context.Background(), "contact")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "key-1", subs[0].IdempotencyKey)
}

func TestSubmit_RejectionIsReplayedToo(t *testing.T) {
	f := newFixture(t)
	header := map[string]string{remote.IdempotencyHeader: "key-2"}

	_, firstBody := f.do(t, http.MethodPost, "/api/forms/contact/submissions", `{"values":{}}`, header)
	// A different body under the same key still gets the first answer.
	second, secondBody := f.do(t, http.MethodPost, "/api/forms/contact/submissions", `{"values":{"name":"Ann"}}`, header)
	assert.Equal(t, http.StatusUnprocessableEntity, second.StatusCode)
	assert.Equal(t, string(firstBody), string(secondBody))
}

func TestSubmit_WithoutKeyStoresEachRequest(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 2; i++ {
		resp, _ := f.do(t, http.MethodPost, "/api/forms/contact/submissions", `{"values":{"name":"Ann"}}`, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body := f.do(t, http.MethodGet, "/api/forms/contact/submissions", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var env struct {
		Data []StoredSubmission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Len(t, env.Data, 2)
}

func TestRemoteClientAgainstServer(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = f.app.Listener(ln) }()
	t.Cleanup(func() { _ = f.app.Shutdown() })

	client := remote.NewClient("http://"+ln.Addr().String(), 5*time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	sums, err := client.ListFormSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)

	def, err := client.GetForm(ctx, "contact")
	require.NoError(t, err)
	assert.Equal(t, "Contact", def.Title)

	_, err = client.GetForm(ctx, "missing")
	require.Error(t, err)

	first, err := client.Submit(ctx, "contact", form.Values{"name": "Ann"}, "queue-id-1")
	require.NoError(t, err)
	require.True(t, first.Success)

	again, err := client.Submit(ctx, "contact", form.Values{"name": "Ann"}, "queue-id-1")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	rejected, err := client.Submit(ctx, "contact", form.Values{}, "queue-id-2")
	require.NoError(t, err)
	assert.False(t, rejected.Success)
	assert.Contains(t, rejected.FieldErrors, "name")

	subs, err := f.subs.List(ctx, "contact")
	require.NoError(t, err)
	assert.Len(t, subs, 1)
}
