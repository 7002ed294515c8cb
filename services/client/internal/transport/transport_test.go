package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"bookfinder/internal/util"
)

func TestGetJSONDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("missing JSON accept header")
		}
		if r.URL.Path != "/api/books/search" || r.URL.Query().Get("q") != "dune" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"total":1}`))
	}))
	defer srv.Close()

	var out struct{ Total int }
	if err := New(srv.URL+"/").GetJSON(context.Background(), "/api/books/search", url.Values{"q": {"dune"}}, &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out.Total != 1 {
		t.Fatalf("total = %d", out.Total)
	}
}

func TestGetJSONNormalizesStatuses(t *testing.T) {
	cases := []struct {
		status  int
		kind    Kind
		message string
	}{
		{http.StatusBadGateway, KindUpstreamUnavailable, MessageUpstreamUnavailable},
		{http.StatusGatewayTimeout, KindUpstreamUnavailable, MessageUpstreamUnavailable},
		{http.StatusInternalServerError, KindRequestFailed, MessageRequestFailed},
		{http.StatusServiceUnavailable, KindRequestFailed, MessageRequestFailed},
		{http.StatusNotFound, KindRequestFailed, MessageRequestFailed},
		{http.StatusTooManyRequests, KindRequestFailed, MessageRequestFailed},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"detail":"upstream said no"}`))
		}))
		err := New(srv.URL).GetJSON(context.Background(), "/api/books/x", nil, &struct{}{})
		srv.Close()

		var terr *Error
		if !errors.As(err, &terr) {
			t.Fatalf("status %d: expected *Error, got %T", tc.status, err)
		}
		if terr.Kind != tc.kind || terr.UserMessage != tc.message || terr.Status != tc.status {
			t.Fatalf("status %d: got %+v", tc.status, terr)
		}
		if err.Error() != tc.message {
			t.Fatalf("status %d: Error() leaked %q", tc.status, err.Error())
		}
	}
}

func TestGetJSONNormalizesNetworkAndDecodeFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	var terr *Error
	err := New(srv.URL).GetJSON(context.Background(), "/x", nil, &struct{}{})
	if !errors.As(err, &terr) || terr.Kind != KindRequestFailed {
		t.Fatalf("decode failure: got %v", err)
	}

	closed := httptest.NewServer(http.NotFoundHandler())
	addr := closed.URL
	closed.Close()
	err = New(addr).GetJSON(context.Background(), "/x", nil, &struct{}{})
	if !errors.As(err, &terr) || terr.Kind != KindRequestFailed || terr.Status != 0 {
		t.Fatalf("network failure: got %v", err)
	}
}

func TestGetJSONTimeoutIsRequestFailed(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := New(srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	var terr *Error
	err := c.GetJSON(context.Background(), "/slow", nil, &struct{}{})
	if !errors.As(err, &terr) || terr.Kind != KindRequestFailed {
		t.Fatalf("timeout: got %v", err)
	}
}

func TestWithHTTPClientLeavesCallerClientAlone(t *testing.T) {
	shared := &http.Client{}
	c := New("http://catalog.test", WithHTTPClient(shared))
	if shared.Timeout != 0 {
		t.Fatalf("caller client timeout changed to %v", shared.Timeout)
	}
	if c.httpClient == shared || c.httpClient.Timeout != DefaultTimeout {
		t.Fatalf("client should own a copy with the default timeout, got %+v", c.httpClient)
	}
}

func TestNewDefaults(t *testing.T) {
	c := New("")
	if c.BaseURL() != DefaultBaseURL {
		t.Fatalf("base url = %q", c.BaseURL())
	}
	if c.httpClient.Timeout != DefaultTimeout {
		t.Fatalf("timeout = %v", c.httpClient.Timeout)
	}
}

func TestGetJSONForwardsRequestID(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get(util.RequestIDHeader)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx := util.ContextWithRequestID(context.Background(), "client-req-9")
	if err := New(srv.URL).GetJSON(ctx, "/api/books/x", nil, &struct{}{}); err != nil {
		t.Fatalf("get: %v", err)
	}
	if id := <-got; id != "client-req-9" {
		t.Fatalf("request id = %q", id)
	}
}
