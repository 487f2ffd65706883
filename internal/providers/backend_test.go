package providers

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBackend_Send(t *testing.T) {
	mock := NewMockClient()
	mock.Responses = []string{`{"total":"100"}`}

	r := NewRegistry()
	r.Register(MockClientName, mock)

	b := &Backend{Registry: r, Provider: MockClientName, MaxTokens: 4096}
	out, err := b.Send(context.Background(), "the prompt", time.Second)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if out != `{"total":"100"}` {
		t.Errorf("Send() = %q", out)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	req := reqs[0]
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != RoleSystem || !strings.Contains(req.Messages[0].Content, "precise data extraction") {
		t.Errorf("system message = %+v", req.Messages[0])
	}
	if req.Messages[1].Role != RoleUser || req.Messages[1].Content != "the prompt" {
		t.Errorf("user message = %+v", req.Messages[1])
	}
	if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
		t.Errorf("response format = %+v", req.ResponseFormat)
	}
	if req.MaxTokens != 4096 || req.Timeout != time.Second {
		t.Errorf("max tokens = %d, timeout = %v", req.MaxTokens, req.Timeout)
	}
}

func TestBackend_Errors(t *testing.T) {
	t.Run("unknown provider", func(t *testing.T) {
		b := &Backend{Registry: NewRegistry(), Provider: "nope"}
		if _, err := b.Send(context.Background(), "p", time.Second); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("client failure", func(t *testing.T) {
		mock := NewMockClient()
		mock.ShouldFail = true
		r := NewRegistry()
		r.Register("m", mock)
		b := &Backend{Registry: r, Provider: "m"}
		if _, err := b.Send(context.Background(), "p", time.Second); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		mock := NewMockClient()
		mock.Latency = time.Second
		r := NewRegistry()
		r.Register("m", mock)
		b := &Backend{Registry: r, Provider: "m"}
		if _, err := b.Send(context.Background(), "p", 10*time.Millisecond); err == nil {
			t.Error("expected timeout")
		}
	})
}

func TestBackend_ModelName(t *testing.T) {
	r := NewRegistry()
	r.Register("m", NewMockClient())

	if got := (&Backend{Registry: r, Provider: "m"}).ModelName(); got != "mock-model" {
		t.Errorf("ModelName() = %q", got)
	}
	if got := (&Backend{Registry: r, Provider: "m", Model: "override"}).ModelName(); got != "override" {
		t.Errorf("ModelName() = %q", got)
	}
	if got := (&Backend{Registry: r, Provider: "missing"}).ModelName(); got != "" {
		t.Errorf("ModelName() = %q", got)
	}
}
