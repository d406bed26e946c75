package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meheroob/stremlit-agentic-ai/internal/config"
	"github.com/meheroob/stremlit-agentic-ai/internal/source"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
	status   map[string]int
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{status: make(map[string]int)}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})
		key := r.Method + " " + r.URL.Path
		code, hasCode := ts.status[key]
		ts.mu.Unlock()

		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			if hasCode {
				w.WriteHeader(code)
			}
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

func (ts *testServer) recorded() []recordedRequest {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]recordedRequest(nil), ts.requests...)
}

var ctx = context.Background()

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	client.token = "my-secret-token"

	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reqs := ts.recorded()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Auth != "Bearer my-secret-token" {
		t.Errorf("auth = %q, want 'Bearer my-secret-token'", reqs[0].Auth)
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client().withToken("")
	if _, err := client.get(ctx, "/health"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth := ts.recorded()[0].Auth; auth != "" {
		t.Errorf("auth = %q, want empty", auth)
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	resp, err := ts.client().get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"invalid or missing bearer token","type":"authentication_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/admin/corpus")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *apiError", err)
	}
	if apiErr.Status != 401 || apiErr.Type != "authentication_error" {
		t.Errorf("apiErr = %+v", apiErr)
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestDecodeJSON_PlainErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(502)
		w.Write([]byte("bad gateway\n"))
	}))
	defer ts.Close()

	resp, err := (&apiClient{baseURL: ts.URL, httpClient: ts.Client()}).get(ctx, "/")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	err = decodeJSON(resp, nil)
	if err == nil || !strings.Contains(err.Error(), "bad gateway") {
		t.Errorf("error = %v, want body text", err)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestSearchCommand(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	ts := newTestServer(t, map[string]string{
		"GET /admin/corpus/search": `{"results":[{"chunk_id":"12","chunk_text":"The state pension age is 66.","score":0.912}]}`,
	})

	var out bytes.Buffer
	if err := runSearch(ctx, ts.client(), &out, "pension age & rules", 3); err != nil {
		t.Fatalf("runSearch: %v", err)
	}

	path := ts.recorded()[0].Path
	if path != "/admin/corpus/search?q=pension+age+%26+rules&top_k=3" {
		t.Errorf("path = %q", path)
	}
	if !strings.Contains(out.String(), "chunk 12, score: 0.912") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "The state pension age is 66.") {
		t.Errorf("output missing chunk text: %q", out.String())
	}
}

func TestSearchCommand_NoResults(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/corpus/search": `{"results":[]}`,
	})

	var out bytes.Buffer
	if err := runSearch(ctx, ts.client(), &out, "x", 5); err != nil {
		t.Fatalf("runSearch: %v", err)
	}
	if !strings.Contains(out.String(), "No results found.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCorpusRebuild(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /admin/corpus/rebuild": `{"job_id":"job-1","status":"queued"}`,
	})

	id, err := queueRebuild(ctx, ts.client(), "reference/")
	if err != nil {
		t.Fatalf("queueRebuild: %v", err)
	}
	if id != "job-1" {
		t.Errorf("id = %q, want job-1", id)
	}

	var body map[string]string
	json.Unmarshal([]byte(ts.recorded()[0].Body), &body)
	if body["prefix"] != "reference/" {
		t.Errorf("body = %v", body)
	}
}

func TestCorpusRebuild_NoPrefixSendsNoBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /admin/corpus/rebuild": `{"job_id":"job-1","status":"queued"}`,
	})

	if _, err := queueRebuild(ctx, ts.client(), ""); err != nil {
		t.Fatalf("queueRebuild: %v", err)
	}
	if body := ts.recorded()[0].Body; body != "" {
		t.Errorf("body = %q, want empty", body)
	}
}

func TestWaitForJob(t *testing.T) {
	var calls int
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		status := "running"
		if n >= 3 {
			status = "completed"
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"job-1","status":"` + status + `"}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	job, err := waitForJob(ctx, client, "job-1", time.Millisecond)
	if err != nil {
		t.Fatalf("waitForJob: %v", err)
	}
	if job.Status != "completed" {
		t.Errorf("status = %q, want completed", job.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != 3 {
		t.Errorf("polls = %d, want 3", calls)
	}
}

func TestWaitForJob_ContextCancelled(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/jobs/job-1": `{"id":"job-1","status":"pending"}`,
	})

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := waitForJob(cctx, ts.client(), "job-1", 5*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestCorpusStats(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	ts := newTestServer(t, map[string]string{
		"GET /admin/corpus": `{"rows":42,"last_build":{"id":"b1","prefix":"ref/","finished_at":"2026-01-01T00:00:00Z","documents":3,"chunks":42,"dimensions":768}}`,
	})

	var out bytes.Buffer
	if err := printCorpusStats(ctx, ts.client(), &out); err != nil {
		t.Fatalf("printCorpusStats: %v", err)
	}
	for _, want := range []string{"Chunks: 42", "b1", "dimensions=768"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q: %s", want, out.String())
		}
	}
}

func TestCorpusStats_NeverBuilt(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/corpus": `{"rows":0,"last_build":null}`,
	})

	var out bytes.Buffer
	if err := printCorpusStats(ctx, ts.client(), &out); err != nil {
		t.Fatalf("printCorpusStats: %v", err)
	}
	if !strings.Contains(out.String(), "No build recorded.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestInteractionsList(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	ts := newTestServer(t, map[string]string{
		"GET /admin/interactions": `[{"id":"ix-0012345","created_at":"2026-01-01T00:00:00Z","customer_id":"C001","domain":"Pensions","query":"what is my fund value?","fallback":true}]`,
	})

	var out bytes.Buffer
	if err := listInteractions(ctx, ts.client(), &out, 10); err != nil {
		t.Fatalf("listInteractions: %v", err)
	}

	if path := ts.recorded()[0].Path; path != "/admin/interactions?limit=10" {
		t.Errorf("path = %q", path)
	}
	got := out.String()
	if !strings.Contains(got, "ix-00123") || strings.Contains(got, "ix-0012345") {
		t.Errorf("id not shortened: %q", got)
	}
	if !strings.Contains(got, "Pensions*") {
		t.Errorf("fallback marker missing: %q", got)
	}
}

func TestInteractionsList_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /admin/interactions": `[]`,
	})

	var out bytes.Buffer
	if err := listInteractions(ctx, ts.client(), &out, 10); err != nil {
		t.Fatalf("listInteractions: %v", err)
	}
	if !strings.Contains(out.String(), "No interactions found.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestChatREPL(t *testing.T) {
	old := noColor
	noColor = true
	defer func() { noColor = old }()

	ts := newTestServer(t, map[string]string{
		"POST /v1/sessions":           `{"session_id":"s1","token":"jwt-1","greeting":"Hi Ada Lovelace, how can I help you with your pension queries?"}`,
		"POST /v1/chat":               `{"domain":"Pensions","answer":"Your fund value is 10,000.","fallback":false}`,
		"DELETE /v1/sessions/current": ``,
	})
	ts.status["POST /v1/sessions"] = http.StatusCreated
	ts.status["DELETE /v1/sessions/current"] = http.StatusNoContent

	client := ts.client().withToken("")
	in := strings.NewReader("what is my fund value?\n\nexit\n")
	var out bytes.Buffer
	if err := chatREPL(ctx, client, "C001", in, &out); err != nil {
		t.Fatalf("chatREPL: %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "Hi Ada Lovelace") {
		t.Errorf("greeting missing: %q", got)
	}
	if !strings.Contains(got, "advisor [Pensions]: Your fund value is 10,000.") {
		t.Errorf("answer missing: %q", got)
	}

	reqs := ts.recorded()
	if len(reqs) != 3 {
		t.Fatalf("requests = %d, want 3 (login, chat, logout)", len(reqs))
	}
	if reqs[0].Auth != "" {
		t.Errorf("login auth = %q, want none", reqs[0].Auth)
	}
	if reqs[1].Auth != "Bearer jwt-1" || reqs[2].Auth != "Bearer jwt-1" {
		t.Errorf("session auth = %q / %q, want Bearer jwt-1", reqs[1].Auth, reqs[2].Auth)
	}
	if reqs[2].Method != http.MethodDelete {
		t.Errorf("last request = %s, want DELETE", reqs[2].Method)
	}
}

func TestChatREPL_UnknownCustomerPromptsAgain(t *testing.T) {
	var mu sync.Mutex
	var logins []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sessions" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		logins = append(logins, req["customer_id"])
		mu.Unlock()
		if req["customer_id"] != "C002" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"message":"CustomerID not found. Please try again.","type":"not_found_error"}}`))
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"session_id":"s2","token":"jwt-2","greeting":"No active products found for your account."}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	var out bytes.Buffer
	if err := chatREPL(ctx, client, "X999", strings.NewReader("C002\nquit\n"), &out); err != nil {
		t.Fatalf("chatREPL: %v", err)
	}

	if !strings.Contains(out.String(), "CustomerID not found. Please try again.") {
		t.Errorf("output = %q", out.String())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(logins) != 2 || logins[1] != "C002" {
		t.Errorf("logins = %v, want [X999 C002]", logins)
	}
}

type fakeReader struct {
	docs []source.Document
}

func (f fakeReader) ReadAll(context.Context, string) ([]source.Document, error) {
	return f.docs, nil
}

func TestPreviewBuild(t *testing.T) {
	r := fakeReader{docs: []source.Document{
		{Name: "guide.pdf", Pages: []string{strings.Repeat("word ", 600), "b"}},
		{Name: "faq.html", Pages: []string{"c"}},
	}}

	var out bytes.Buffer
	err := previewBuild(ctx, r, config.IngestConfig{ChunkSize: 500, Overlap: 50}, "", &out)
	if err != nil {
		t.Fatalf("previewBuild: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "guide.pdf (2 pages)") {
		t.Errorf("output = %q", got)
	}
	if !strings.Contains(got, "2 documents, 2 chunks") {
		t.Errorf("output = %q", got)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Engine.ChatModel = "llama3.2"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{5, 100, "5"},
		{0, 100, "0"},
		{100, 100, "100+"},
		{150, 100, "150+"},
	}
	for _, tt := range tests {
		got := countLabel(tt.count, tt.limit)
		if got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}
