package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type flakyProvider struct {
	failures int
	err      error
	calls    atomic.Int32
	reply    CompletionResponse
}

func (p *flakyProvider) Name() string { return "flaky" }

func (p *flakyProvider) Complete(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
	n := p.calls.Add(1)
	if int(n) <= p.failures {
		return CompletionResponse{}, p.err
	}
	return p.reply, nil
}

type recordingRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *recordingRecorder) RecordInference(_ context.Context, _ string, kind string, _ time.Duration, _ Usage, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
}

func TestClient_Counters(t *testing.T) {
	t.Parallel()

	provider := NewScriptedProvider(
		TextReply("hello", Usage{InputTokens: 10, OutputTokens: 2}),
		TextReply("1", Usage{InputTokens: 7, OutputTokens: 1}),
	)
	client := NewClient(provider, WithRetry(1, 0, 0))
	ctx := context.Background()

	if _, err := client.Generate(ctx, []Message{User("hi")}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	before := client.Usage()
	if _, err := client.Choose(ctx, []Message{User("pick")}); err != nil {
		t.Fatalf("Choose() error = %v", err)
	}

	got := client.Usage()
	want := Counters{Calls: 2, InputTokens: 17, OutputTokens: 3}
	if got != want {
		t.Errorf("Usage() = %+v, want %+v", got, want)
	}
	if delta := got.Sub(before); delta != (Counters{Calls: 1, InputTokens: 7, OutputTokens: 1}) {
		t.Errorf("Sub() = %+v", delta)
	}

	client.Reset()
	if client.Usage() != (Counters{}) {
		t.Errorf("Reset() left %+v", client.Usage())
	}
}

func TestClient_Tally(t *testing.T) {
	t.Parallel()

	provider := NewScriptedProvider(TextReply("a", Usage{InputTokens: 4, OutputTokens: 1})).Loop()
	client := NewClient(provider, WithRetry(1, 0, 0))

	if _, err := client.Generate(context.Background(), []Message{User("untracked")}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	ctx, tally := WithTally(context.Background())
	for range 2 {
		if _, err := client.Generate(ctx, []Message{User("tracked")}); err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
	}

	if got, want := tally.Counters(), (Counters{Calls: 2, InputTokens: 8, OutputTokens: 2}); got != want {
		t.Errorf("tally = %+v, want %+v", got, want)
	}
	if got := client.Usage().Calls; got != 3 {
		t.Errorf("client calls = %d, want 3", got)
	}
	var nilTally *Tally
	if nilTally.Counters() != (Counters{}) {
		t.Error("nil tally should report zero")
	}
}

func TestClient_Choose(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  int
	}{
		{name: "bare integer", reply: "2", want: 2},
		{name: "integer in prose", reply: "I pick option 3 because", want: 3},
		{name: "first of many", reply: "1 or 2", want: 1},
		{name: "no integer defaults to zero", reply: "the greeting state", want: 0},
		{name: "negative kept", reply: "-1", want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := NewClient(NewScriptedProvider(TextReply(tt.reply, Usage{})))
			got, err := client.Choose(context.Background(), []Message{User("pick")})
			if err != nil {
				t.Fatalf("Choose() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Choose() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestClient_SelectTools(t *testing.T) {
	t.Parallel()

	provider := NewScriptedProvider(ToolReply(Usage{}, ToolCall{Name: "send_message", Arguments: `{}`}))
	client := NewClient(provider)

	calls, err := client.SelectTools(context.Background(), []Message{User("hi")}, []ToolSpec{{Name: "send_message"}})
	if err != nil {
		t.Fatalf("SelectTools() error = %v", err)
	}
	if len(calls) != 1 || calls[0].Name != "send_message" {
		t.Errorf("SelectTools() = %+v", calls)
	}

	reqs := provider.Requests()
	if len(reqs) != 1 || reqs[0].ToolChoice != ToolChoiceRequired {
		t.Errorf("request ToolChoice = %+v, want required", reqs)
	}

	if _, err := client.SelectTools(context.Background(), nil, nil); err == nil {
		t.Error("SelectTools() without tools should fail")
	}
}

func TestClient_AppliesDefaults(t *testing.T) {
	t.Parallel()

	provider := NewScriptedProvider(TextReply("ok", Usage{}))
	client := NewClient(provider, WithModel("m"), WithTemperature(0.2), WithMaxTokens(64))

	if _, err := client.Generate(context.Background(), nil); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	req := provider.Requests()[0]
	if req.Model != "m" || req.Temperature != 0.2 || req.MaxTokens != 64 {
		t.Errorf("request = %+v", req)
	}
}

func TestClient_Retry(t *testing.T) {
	t.Parallel()

	t.Run("retries unavailable provider", func(t *testing.T) {
		t.Parallel()

		provider := &flakyProvider{failures: 2, err: ErrUnavailable, reply: TextReply("ok", Usage{InputTokens: 1})}
		client := NewClient(provider, WithRetry(3, time.Millisecond, 1))
		recorder := &recordingRecorder{}
		client.SetRecorder(recorder)

		got, err := client.Generate(context.Background(), nil)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if got != "ok" {
			t.Errorf("Generate() = %q", got)
		}
		if provider.calls.Load() != 3 {
			t.Errorf("provider calls = %d, want 3", provider.calls.Load())
		}
		if client.Usage().Calls != 1 {
			t.Errorf("logical calls = %d, want 1", client.Usage().Calls)
		}
		if len(recorder.kinds) != 1 || recorder.kinds[0] != "generate" {
			t.Errorf("recorded kinds = %v", recorder.kinds)
		}
	})

	t.Run("does not retry rejection", func(t *testing.T) {
		t.Parallel()

		provider := &flakyProvider{failures: 5, err: ErrRejected}
		client := NewClient(provider, WithRetry(3, time.Millisecond, 1))

		if _, err := client.Generate(context.Background(), nil); err == nil {
			t.Fatal("Generate() should fail on rejection")
		}
		if provider.calls.Load() != 1 {
			t.Errorf("provider calls = %d, want 1", provider.calls.Load())
		}
	})

	t.Run("propagates after exhausting attempts", func(t *testing.T) {
		t.Parallel()

		provider := &flakyProvider{failures: 5, err: ErrUnavailable}
		client := NewClient(provider, WithRetry(2, time.Millisecond, 1))

		if _, err := client.Generate(context.Background(), nil); err == nil {
			t.Fatal("Generate() should fail")
		}
		if provider.calls.Load() < 2 {
			t.Errorf("provider calls = %d, want retries", provider.calls.Load())
		}
	})
}

func TestCounters_Add(t *testing.T) {
	t.Parallel()

	got := Counters{Calls: 1, InputTokens: 2, OutputTokens: 3}.Add(Counters{Calls: 1, InputTokens: 1, OutputTokens: 1})
	if got != (Counters{Calls: 2, InputTokens: 3, OutputTokens: 4}) {
		t.Errorf("Add() = %+v", got)
	}
}
