package providers

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMockClient(t *testing.T) {
	t.Run("scripted responses then default", func(t *testing.T) {
		client := NewMockClient()
		client.Responses = []string{"first", "second"}
		client.ResponseText = "rest"

		req := &ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hello"}}}
		for _, want := range []string{"first", "second", "rest"} {
			result, err := client.Chat(context.Background(), req)
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if result.Content != want {
				t.Errorf("Content = %q, want %q", result.Content, want)
			}
		}
		if client.RequestCount() != 3 {
			t.Errorf("RequestCount() = %d, want 3", client.RequestCount())
		}
		if len(client.Requests()) != 3 {
			t.Errorf("Requests() = %d, want 3", len(client.Requests()))
		}

		client.Reset()
		if client.RequestCount() != 0 || len(client.Requests()) != 0 {
			t.Error("Reset() did not clear state")
		}
	})

	t.Run("failure", func(t *testing.T) {
		client := NewMockClient()
		client.ShouldFail = true

		result, err := client.Chat(context.Background(), &ChatRequest{})
		if err == nil {
			t.Error("expected error")
		}
		if result.Success || result.ErrorType != "mock_failure" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("fail after N", func(t *testing.T) {
		client := NewMockClient()
		client.FailAfter = 2

		for i := 0; i < 2; i++ {
			if _, err := client.Chat(context.Background(), &ChatRequest{}); err != nil {
				t.Fatalf("request %d failed: %v", i+1, err)
			}
		}
		if _, err := client.Chat(context.Background(), &ChatRequest{}); err == nil {
			t.Error("expected third request to fail")
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		client := NewMockClient()
		client.Latency = time.Second

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := client.Chat(ctx, &ChatRequest{}); err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows initial burst", func(t *testing.T) {
		rl := NewRateLimiter(5)
		for i := 0; i < 5; i++ {
			if !rl.TryConsume() {
				t.Fatalf("request %d rejected", i+1)
			}
		}
		if rl.TryConsume() {
			t.Error("expected bucket to be empty")
		}
	})

	t.Run("wait refills", func(t *testing.T) {
		rl := NewRateLimiter(100)
		for rl.TryConsume() {
		}
		start := time.Now()
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if time.Since(start) > 500*time.Millisecond {
			t.Error("Wait() took too long")
		}
	})

	t.Run("status", func(t *testing.T) {
		rl := NewRateLimiter(2)
		rl.TryConsume()

		s := rl.Status()
		if s.RPS != 2 {
			t.Errorf("RPS = %v", s.RPS)
		}
		if s.TotalConsumed != 1 {
			t.Errorf("TotalConsumed = %d, want 1", s.TotalConsumed)
		}
	})

	t.Run("record 429 pauses", func(t *testing.T) {
		rl := NewRateLimiter(100)
		rl.Record429(time.Minute)

		if rl.TryConsume() {
			t.Error("expected limiter to be paused")
		}
		s := rl.Status()
		if s.Last429Time.IsZero() {
			t.Error("Last429Time not set")
		}
		if s.TimeUntilToken < 50*time.Second {
			t.Errorf("TimeUntilToken = %v", s.TimeUntilToken)
		}
	})

	t.Run("respects cancellation", func(t *testing.T) {
		rl := NewRateLimiter(1)
		rl.Record429(time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := rl.Wait(ctx); err != context.DeadlineExceeded {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
	})

	t.Run("concurrent requests", func(t *testing.T) {
		rl := NewRateLimiter(1000)
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rl.Wait(context.Background())
			}()
		}
		wg.Wait()
		if got := rl.Status().TotalConsumed; got != 100 {
			t.Errorf("TotalConsumed = %d, want 100", got)
		}
	})
}

func TestTestConfig(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "or-key")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := LoadTestConfig()
	if !cfg.HasOpenRouter() || cfg.HasOpenAI() {
		t.Fatalf("unexpected config %+v", cfg)
	}

	rc := cfg.ToRegistryConfig()
	if len(rc.LLMProviders) != 1 {
		t.Fatalf("providers = %v", rc.LLMProviders)
	}
	if p := rc.LLMProviders[OpenRouterName]; p.APIKey != "or-key" || !p.Enabled {
		t.Errorf("openrouter config = %+v", p)
	}
}
