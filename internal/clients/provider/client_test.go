package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/doccache-backend/internal/platform/ctxutil"
	"github.com/yungbote/doccache-backend/internal/platform/httpx"
)

func TestFetchDecodesEnvelopeAndSendsHeaders(t *testing.T) {
	var gotAuth, gotCorr string
	var gotReq FetchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotCorr = r.Header.Get("X-Correlation-Id")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"title":"useState","url":"https://react.dev/reference/react/useState","content":"body","metadata":{"library_id":"/facebook/react"}}]}`))
	}))
	defer srv.Close()

	c, err := New(Config{Name: "Context7", URL: srv.URL, APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := ctxutil.WithCorrelationID(context.Background(), "corr-9")
	res, err := c.Fetch(ctx, FetchRequest{Query: "react hooks", TechnologyHint: "react", Limit: 5})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res) != 1 || res[0].Title != "useState" || res[0].Fields["library_id"] != "/facebook/react" {
		t.Fatalf("results = %+v", res)
	}
	if gotAuth != "Bearer k" || gotCorr != "corr-9" {
		t.Fatalf("headers auth=%q corr=%q", gotAuth, gotCorr)
	}
	if gotReq.Query != "react hooks" || gotReq.Limit != 5 {
		t.Fatalf("request = %+v", gotReq)
	}
	if c.Name() != "context7" {
		t.Fatalf("name = %q", c.Name())
	}
}

func TestFetchRetriesRetryableStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"title":"a","content":"b"}]`))
	}))
	defer srv.Close()

	c, _ := New(Config{URL: srv.URL, MaxRetries: 2, RetryBase: time.Millisecond}, nil)
	res, err := c.Fetch(context.Background(), FetchRequest{Query: "q"})
	if err != nil || len(res) != 1 {
		t.Fatalf("Fetch: %v %v", res, err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad query", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := New(Config{URL: srv.URL, MaxRetries: 3, RetryBase: time.Millisecond}, nil)
	_, err := c.Fetch(context.Background(), FetchRequest{Query: "q"})
	var se *httpx.StatusError
	if err == nil || !asStatus(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("want 400 StatusError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func asStatus(err error, target **httpx.StatusError) bool {
	se, ok := err.(*httpx.StatusError)
	if ok {
		*target = se
	}
	return ok
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatalf("expected error for missing URL")
	}
}
