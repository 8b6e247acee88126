package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("GET /runs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"runs":[{"id":"a1","model":"m1","embedding":"diagonal","dim":4,"status":"running"}]}`))
	})
	mux.HandleFunc("GET /runs/a1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			w.Write([]byte(`{"id":"a1","status":"running"}`))
			return
		}
		w.Write([]byte(`{"id":"a1","status":"stopped","accuracy":0.5}`))
	})
	mux.HandleFunc("POST /runs/a1/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"id":"a1","status":"stopping"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"run not found"}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestClient(t *testing.T) {
	c := New(fakeServer(t).URL)

	if err := c.Health(); err != nil {
		t.Fatalf("Health: %v", err)
	}

	runs, err := c.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "a1" || runs[0].Embedding != "diagonal" || runs[0].Done() {
		t.Errorf("runs = %+v", runs)
	}

	if err := c.Stop("a1"); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	run, err := c.Wait("a1", time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if run.Status != "stopped" || run.Accuracy == nil || *run.Accuracy != 0.5 {
		t.Errorf("run = %+v", run)
	}

	_, err = c.Run("missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "run not found" {
		t.Errorf("err = %v, want a 404 APIError", err)
	}
}

func TestNewNormalisesAddress(t *testing.T) {
	testCases := map[string]string{
		":9091":                  "http://localhost:9091",
		"10.0.0.1:9091":          "http://10.0.0.1:9091",
		"https://grl.example/":   "https://grl.example",
		"http://127.0.0.1:80/x/": "http://127.0.0.1:80/x",
	}
	for in, want := range testCases {
		if got := New(in).baseURL; got != want {
			t.Errorf("New(%q).baseURL = %q, want %q", in, got, want)
		}
	}
}
