package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// mockStep is a step whose behaviour is set per test.
type mockStep struct {
	name        string
	ExecuteFunc func(ctx context.Context, state *State) error
}

func (m *mockStep) Name() string { return m.name }

func (m *mockStep) Execute(ctx context.Context, state *State) error {
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, state)
	}
	return nil
}

func TestPipelineExecute(t *testing.T) {
	var order []string
	step := func(name string) *mockStep {
		return &mockStep{name: name, ExecuteFunc: func(ctx context.Context, state *State) error {
			order = append(order, name)
			return nil
		}}
	}

	p := New(step("a"), step("b"), step("c"))
	if err := p.Execute(context.Background(), &State{}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := strings.Join(order, ","); got != "a,b,c" {
		t.Errorf("steps ran as %q, want a,b,c", got)
	}
}

func TestPipelineExecute_StopsAtFailure(t *testing.T) {
	boom := errors.New("boom")
	ran := false

	p := New(
		&mockStep{name: "fetch"},
		&mockStep{name: "unlock", ExecuteFunc: func(ctx context.Context, state *State) error { return boom }},
		&mockStep{name: "upload", ExecuteFunc: func(ctx context.Context, state *State) error {
			ran = true
			return nil
		}},
	)

	err := p.Execute(context.Background(), &State{})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), "pipeline step 2 (unlock) failed") {
		t.Errorf("error %q does not name the failing step", err)
	}
	if ran {
		t.Error("step after the failure ran")
	}
}

func TestPipelineExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&mockStep{name: "fetch", ExecuteFunc: func(ctx context.Context, state *State) error {
		t.Error("step ran on a cancelled context")
		return nil
	}})
	if err := p.Execute(ctx, &State{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestJSONKey(t *testing.T) {
	tests := []struct {
		prefix string
		key    string
		want   string
	}{
		{"bank/json", "bank/pdf/2024/20240115-visa_unlocked.pdf", "bank/json/2024/20240115-visa_unlocked.json"},
		{"/bank/json/", "bank/pdf/2023-12-05 visa.PDF", "bank/json/2023/2023-12-05 visa.json"},
		{"bank/json", "bank/pdf/statement.pdf", "bank/json/unclassified/statement.json"},
		{"bank/json", "bank/pdf/202401/statement.pdf", "bank/json/unclassified/statement.json"},
	}
	for _, tt := range tests {
		if got := JSONKey(tt.prefix, tt.key); got != tt.want {
			t.Errorf("JSONKey(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}
