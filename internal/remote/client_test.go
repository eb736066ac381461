package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofari/DynamicForms-sub000/internal/apperr"
	"github.com/lofari/DynamicForms-sub000/internal/form"
)

func TestSubmit_SendsKeyAndDecodesSuccess(t *testing.T) {
	var gotKey string
	var gotBody SubmitRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/forms/inspection/submissions", r.URL.Path)
		gotKey = r.Header.Get(IdempotencyHeader)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"submissionId":"srv-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, nil)
	resp, err := c.Submit(context.Background(), "inspection", form.Values{"a": "1"}, "key-1")
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "srv-1", resp.SubmissionID)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, form.Values{"a": "1"}, gotBody.Values)
}

func TestSubmit_StructuredRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"success":false,"message":"Validation failed","fieldErrors":{"name":"Name is required"}}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second, nil).Submit(context.Background(), "f", form.Values{}, "k")
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Name is required", resp.FieldErrors["name"])
}

func TestSubmit_StatusErrors(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   apperr.Kind
	}{
		{http.StatusNotFound, `{"error":{"code":"NOT_FOUND","message":"form not found"}}`, apperr.KindNotFound},
		{http.StatusServiceUnavailable, ``, apperr.KindServer},
		{http.StatusInternalServerError, `{"error":{"message":"db down"}}`, apperr.KindServer},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			w.Write([]byte(tc.body))
		}))
		_, err := NewClient(srv.URL, time.Second, nil).Submit(context.Background(), "f", form.Values{}, "k")
		srv.Close()

		require.Error(t, err)
		ae := apperr.Classify(err)
		assert.Equal(t, tc.kind, ae.Kind, "status %d", tc.status)
		if tc.kind == apperr.KindServer {
			assert.Equal(t, tc.status, ae.Status)
		}
	}
}

func TestSubmit_TransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr, time.Second, nil).Submit(context.Background(), "f", form.Values{}, "k")
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetwork, apperr.KindOf(err))

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer slow.Close()
	_, err = NewClient(slow.URL, 50*time.Millisecond, nil).Submit(context.Background(), "f", form.Values{}, "k")
	require.Error(t, err)
	assert.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

func TestGetFormAndSummaries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/forms", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"formId":"a","title":"A","pageCount":1,"fieldCount":2}]}`))
	})
	mux.HandleFunc("/api/forms/a", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"a","title":"A","pages":[{"title":"P","elements":[{"type":"text","id":"x"}]}]}}`))
	})
	mux.HandleFunc("/api/forms/dup", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":"dup","pages":[{"elements":[{"type":"text","id":"x"},{"type":"number","id":"x"}]}]}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, nil)
	ctx := context.Background()

	sums, err := c.ListFormSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "a", sums[0].FormID)

	def, err := c.GetForm(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "A", def.Title)
	require.Len(t, def.Pages[0].Elements, 1)

	_, err = c.GetForm(ctx, "dup")
	require.Error(t, err)

	_, err = c.GetForm(ctx, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
