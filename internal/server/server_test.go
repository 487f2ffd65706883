package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackzampolin/ocrion/internal/config"
	"github.com/jackzampolin/ocrion/internal/home"
	"github.com/jackzampolin/ocrion/internal/ocr"
	"github.com/jackzampolin/ocrion/internal/providers"
	"github.com/jackzampolin/ocrion/internal/region"
	"github.com/jackzampolin/ocrion/internal/server/endpoints"
	"github.com/jackzampolin/ocrion/internal/testutil"
)

const invoiceSchema = `{"total": "Final amount", "date": "Invoice date"}`

func invoiceFragments() []region.TextFragment {
	box := func(x, y float64) region.Box { return region.Box{X: x, Y: y, Width: 40, Height: 10} }
	return []region.TextFragment{
		{Text: "Total", Box: box(0, 0), Confidence: 0.9},
		{Text: "$100", Box: box(50, 0), Confidence: 0.9},
		{Text: "Date", Box: box(0, 20), Confidence: 0.9},
		{Text: "2024-01-01", Box: box(50, 20), Confidence: 0.9},
	}
}

type testEnv struct {
	srv  *Server
	http *httptest.Server
	mock *providers.MockClient
}

func newTestEnv(t *testing.T, det ocr.Detector, initialize bool) *testEnv {
	t.Helper()
	cfg := testutil.NewServerConfig(t)

	mgr, err := config.NewManager(cfg.ConfigFile, cfg.HomeDir)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	h, err := home.New(cfg.HomeDir)
	if err != nil {
		t.Fatal(err)
	}

	mock := providers.NewMockClient()
	registry := providers.NewRegistry()
	registry.Register(mgr.Get().Extraction.Backend, mock)

	srv, err := New(Config{
		ConfigManager: mgr,
		Home:          h,
		Registry:      registry,
		Detector:      det,
		Logger:        cfg.Logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if initialize {
		if err := srv.Init(context.Background()); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
	}
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, http: ts, mock: mock}
}

func (e *testEnv) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) extract(t *testing.T, requestID, schema string, file []byte) (*http.Response, []byte) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if schema != "" {
		mw.WriteField("schema", schema)
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "invoice.png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(file)
	}
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, e.http.URL+"/extract", &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if requestID != "" {
		req.Header.Set(endpoints.RequestIDHeader, requestID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /extract: %v", err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestNew_RequiresConfigManager(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without config manager")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(), true)

	var resp endpoints.HealthResponse
	if code := env.get(t, "/health", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Status != "healthy" || resp.Service != "ocrion" {
		t.Errorf("unexpected health: %+v", resp)
	}
	if resp.Model != "mock-model" {
		t.Errorf("model = %q, want mock-model", resp.Model)
	}
	if resp.OCREngine != "static" {
		t.Errorf("ocr_engine = %q, want static", resp.OCREngine)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(), true)

	var resp endpoints.StatusResponse
	if code := env.get(t, "/status", &resp); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if resp.Server != "running" {
		t.Errorf("server = %q", resp.Server)
	}
	if !resp.History.Enabled || resp.History.Dialect != "sqlite" {
		t.Errorf("history = %+v", resp.History)
	}
	if resp.Providers.Active != "openrouter" {
		t.Errorf("active = %q", resp.Providers.Active)
	}
}

func TestExtract_Success(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(invoiceFragments()...), true)
	env.mock.ResponseText = `{"date": "2024-01-01", "total": "$100", "currency": "USD"}`

	resp, body := env.extract(t, "req-1", invoiceSchema, testutil.PNG(t, 64, 32))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get(endpoints.RequestIDHeader); got != "req-1" {
		t.Errorf("request id header = %q", got)
	}

	var out endpoints.ExtractionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success {
		t.Error("success = false")
	}
	if keys := out.Data.Keys(); strings.Join(keys, ",") != "total,date" {
		t.Errorf("keys = %v, want schema order", keys)
	}
	if v, _ := out.Data.Get("total"); v != "$100" {
		t.Errorf("total = %v", v)
	}
	if _, ok := out.Data.Get("currency"); ok {
		t.Error("extra key not dropped")
	}

	md := out.Metadata
	if md.RequestID != "req-1" || md.Attempts != 1 || md.LayoutFallback {
		t.Errorf("unexpected metadata: %+v", md)
	}
	if md.OCRRegionsDetected != 4 || md.LayoutLines != 2 || md.SchemaFields != 2 {
		t.Errorf("unexpected counts: %+v", md)
	}
	if md.ImageSize != "64x32" || md.Model != "mock-model" {
		t.Errorf("image_size = %q, model = %q", md.ImageSize, md.Model)
	}
	if len(md.NullFields) != 0 {
		t.Errorf("null_fields = %v", md.NullFields)
	}

	reqs := env.mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("backend calls = %d, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].Messages[1].Content, "Total $100\nDate 2024-01-01") {
		t.Error("prompt does not carry the ordered text")
	}

	var hist endpoints.HistoryResponse
	if code := env.get(t, "/history?request_id=req-1", &hist); code != http.StatusOK {
		t.Fatalf("history status = %d", code)
	}
	if hist.Total != 1 || len(hist.Calls) != 1 {
		t.Fatalf("history = %+v", hist)
	}
	call := hist.Calls[0]
	if call.Outcome != region.OutcomeParsed || call.Provider != "openrouter" || call.Model != "mock-model" {
		t.Errorf("unexpected call: %+v", call)
	}

	var one endpoints.HistoryCallResponse
	if code := env.get(t, "/history/"+call.ID, &one); code != http.StatusOK {
		t.Fatalf("history get status = %d", code)
	}
	if one.Call.ID != call.ID {
		t.Errorf("call id = %s, want %s", one.Call.ID, call.ID)
	}
}

func TestExtract_StrictRetry(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(invoiceFragments()...), true)
	env.mock.Responses = []string{"Sure! The total is $100.", `{"total": "$100"}`}

	resp, body := env.extract(t, "req-retry", invoiceSchema, testutil.PNG(t, 16, 16))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	var out endpoints.ExtractionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Metadata.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", out.Metadata.Attempts)
	}
	if len(out.Metadata.NullFields) != 1 || out.Metadata.NullFields[0] != "date" {
		t.Errorf("null_fields = %v", out.Metadata.NullFields)
	}

	var hist endpoints.HistoryResponse
	env.get(t, "/history?request_id=req-retry", &hist)
	if hist.Total != 2 {
		t.Errorf("recorded attempts = %d, want 2", hist.Total)
	}
}

func TestExtract_Errors(t *testing.T) {
	png := func(t *testing.T) []byte { return testutil.PNG(t, 16, 16) }

	tests := []struct {
		name      string
		detector  ocr.Detector
		setup     func(*providers.MockClient)
		schema    string
		file      func(*testing.T) []byte
		wantCode  int
		wantKind  string
		wantCalls int64
	}{
		{
			name:     "missing schema",
			detector: ocr.NewStatic(invoiceFragments()...),
			file:     png,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid schema",
			detector: ocr.NewStatic(invoiceFragments()...),
			schema:   `["total"]`,
			file:     png,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing file",
			detector: ocr.NewStatic(invoiceFragments()...),
			schema:   invoiceSchema,
			file:     func(*testing.T) []byte { return nil },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unsupported type",
			detector: ocr.NewStatic(invoiceFragments()...),
			schema:   invoiceSchema,
			file:     func(*testing.T) []byte { return []byte("plain text, not an image") },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "no text detected",
			detector: ocr.NewStatic(),
			schema:   invoiceSchema,
			file:     png,
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "transport failure",
			detector:  ocr.NewStatic(invoiceFragments()...),
			setup:     func(m *providers.MockClient) { m.ShouldFail = true },
			schema:    invoiceSchema,
			file:      png,
			wantCode:  http.StatusBadGateway,
			wantKind:  "transport",
			wantCalls: 1,
		},
		{
			name:      "unparseable after retry",
			detector:  ocr.NewStatic(invoiceFragments()...),
			setup:     func(m *providers.MockClient) { m.ResponseText = "I cannot help with that." },
			schema:    invoiceSchema,
			file:      png,
			wantCode:  http.StatusUnprocessableEntity,
			wantKind:  "unparseable_output",
			wantCalls: 2,
		},
		{
			name:      "not an object after retry",
			detector:  ocr.NewStatic(invoiceFragments()...),
			setup:     func(m *providers.MockClient) { m.ResponseText = `["$100"]` },
			schema:    invoiceSchema,
			file:      png,
			wantCode:  http.StatusUnprocessableEntity,
			wantKind:  "schema_shape",
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.detector, true)
			if tt.setup != nil {
				tt.setup(env.mock)
			}

			resp, body := env.extract(t, "", tt.schema, tt.file(t))
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d, body = %s", resp.StatusCode, tt.wantCode, body)
			}

			var errResp endpoints.ErrorResponse
			if err := json.Unmarshal(body, &errResp); err != nil {
				t.Fatalf("error body is not JSON: %s", body)
			}
			if errResp.Success || errResp.Error == "" || errResp.Timestamp.IsZero() {
				t.Errorf("unexpected error response: %+v", errResp)
			}
			if errResp.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", errResp.Kind, tt.wantKind)
			}
			if got := env.mock.RequestCount(); got != tt.wantCalls {
				t.Errorf("backend calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestExtract_TooLarge(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(invoiceFragments()...), true)

	big := make([]byte, env.srv.configMgr.Get().Upload.MaxSize+1024)
	resp, body := env.extract(t, "", invoiceSchema, big)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}
	if env.mock.RequestCount() != 0 {
		t.Error("backend called for oversized upload")
	}
}

func TestExtract_NotInitialized(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(invoiceFragments()...), false)

	resp, body := env.extract(t, "", invoiceSchema, testutil.PNG(t, 16, 16))
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	var health endpoints.HealthResponse
	if code := env.get(t, "/health", &health); code != http.StatusOK {
		t.Errorf("health status = %d before init", code)
	}
}

func TestHistory_Endpoints(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(), true)

	var hist endpoints.HistoryResponse
	if code := env.get(t, "/history", &hist); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if hist.Total != 0 || hist.Calls == nil || hist.Limit != 50 {
		t.Errorf("unexpected empty history: %+v", hist)
	}

	for _, q := range []string{"?limit=abc", "?offset=-1", "?after=yesterday"} {
		if code := env.get(t, "/history"+q, nil); code != http.StatusBadRequest {
			t.Errorf("GET /history%s = %d, want 400", q, code)
		}
	}

	if code := env.get(t, "/history/does-not-exist", nil); code != http.StatusNotFound {
		t.Errorf("missing call status = %d, want 404", code)
	}
}

func TestPrompts_Endpoints(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(), true)

	var list endpoints.PromptsListResponse
	if code := env.get(t, "/api/prompts", &list); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(list.Prompts) != 3 {
		t.Errorf("prompts = %d, want 3", len(list.Prompts))
	}

	var p struct {
		Key  string `json:"key"`
		Hash string `json:"hash"`
	}
	if code := env.get(t, "/api/prompts/extract.user.strict", &p); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if p.Key != "extract.user.strict" || p.Hash == "" {
		t.Errorf("unexpected prompt: %+v", p)
	}

	if code := env.get(t, "/api/prompts/nope", nil); code != http.StatusNotFound {
		t.Errorf("missing prompt status = %d, want 404", code)
	}
}

func TestSwagger(t *testing.T) {
	env := newTestEnv(t, ocr.NewStatic(), false)

	var spec struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		Paths map[string]any `json:"paths"`
	}
	if code := env.get(t, "/swagger.json", &spec); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if spec.Info.Title != "ocrion API" {
		t.Errorf("title = %q", spec.Info.Title)
	}
	if _, ok := spec.Paths["/extract"]; !ok {
		t.Error("spec is missing /extract")
	}

	resp, err := http.Get(env.http.URL + "/swagger")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/html" {
		t.Errorf("content type = %q", ct)
	}
}
