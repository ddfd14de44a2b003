package filter

import (
	"errors"
	"testing"
	"time"
)

var errRule = errors.New("rule backend unreachable")

// flakyRule fails while fail is true.
type flakyRule struct {
	fail  bool
	calls int
}

func (r *flakyRule) Evaluate(string, bool) (bool, error) {
	r.calls++
	if r.fail {
		return false, errRule
	}
	return true, nil
}

func TestNewBreakerRule_Defaults(t *testing.T) {
	b := NewBreakerRule(&flakyRule{}, BreakerConfig{Name: "test"})
	if b.maxFailures != 5 {
		t.Errorf("maxFailures = %d, want 5", b.maxFailures)
	}
	if b.retryAfter != 30*time.Second {
		t.Errorf("retryAfter = %v, want 30s", b.retryAfter)
	}
	if b.probeMax != 3 {
		t.Errorf("probeMax = %d, want 3", b.probeMax)
	}
	if b.State() != RuleActive {
		t.Errorf("initial state = %v, want active", b.State())
	}
}

func TestBreakerRule_ActiveForwardsEvaluations(t *testing.T) {
	inner := &flakyRule{}
	b := NewBreakerRule(inner, BreakerConfig{Name: "test"})

	allow, err := b.Evaluate("stop", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !allow {
		t.Error("wrapped rule's verdict should pass through")
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

func TestBreakerRule_SuspendsAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyRule{fail: true}
	b := NewBreakerRule(inner, BreakerConfig{
		Name:        "test",
		MaxFailures: 3,
		RetryAfter:  time.Hour,
	})

	for i := 0; i < 3; i++ {
		if _, err := b.Evaluate("stop", true); !errors.Is(err, errRule) {
			t.Fatalf("evaluation %d: err = %v, want rule error", i, err)
		}
	}
	if b.State() != RuleSuspended {
		t.Fatalf("state = %v, want suspended after 3 failures", b.State())
	}

	// Suspended: fail fast, inner not consulted.
	calls := inner.calls
	if _, err := b.Evaluate("stop", true); !errors.Is(err, ErrRuleSuspended) {
		t.Fatalf("err = %v, want ErrRuleSuspended", err)
	}
	if inner.calls != calls {
		t.Error("suspended rule must not call the wrapped rule")
	}
}

func TestBreakerRule_SuccessResetsFailureCount(t *testing.T) {
	inner := &flakyRule{fail: true}
	b := NewBreakerRule(inner, BreakerConfig{Name: "test", MaxFailures: 3})

	b.Evaluate("stop", true)
	b.Evaluate("stop", true)
	inner.fail = false
	b.Evaluate("stop", true)

	if b.State() != RuleActive {
		t.Fatalf("state = %v, want active (success resets the counter)", b.State())
	}

	inner.fail = true
	b.Evaluate("stop", true)
	b.Evaluate("stop", true)
	if b.State() != RuleActive {
		t.Fatal("should still be active after 2 failures post-reset")
	}
}

func TestBreakerRule_ProbesAndReactivates(t *testing.T) {
	inner := &flakyRule{fail: true}
	b := NewBreakerRule(inner, BreakerConfig{
		Name:        "test",
		MaxFailures: 2,
		RetryAfter:  10 * time.Millisecond,
		ProbeMax:    2,
	})

	b.Evaluate("stop", true)
	b.Evaluate("stop", true)
	if b.State() != RuleSuspended {
		t.Fatal("expected suspended")
	}

	time.Sleep(15 * time.Millisecond)
	if b.State() != RuleProbing {
		t.Fatalf("state = %v, want probing after retry timeout", b.State())
	}

	inner.fail = false
	for i := 0; i < 2; i++ {
		if _, err := b.Evaluate("stop", true); err != nil {
			t.Fatalf("probe %d: unexpected error: %v", i, err)
		}
	}
	if b.State() != RuleActive {
		t.Fatalf("state = %v, want active after successful probes", b.State())
	}
}

func TestBreakerRule_ProbeFailureResuspends(t *testing.T) {
	inner := &flakyRule{fail: true}
	b := NewBreakerRule(inner, BreakerConfig{
		Name:        "test",
		MaxFailures: 2,
		RetryAfter:  10 * time.Millisecond,
		ProbeMax:    3,
	})

	b.Evaluate("stop", true)
	b.Evaluate("stop", true)
	time.Sleep(15 * time.Millisecond)

	if _, err := b.Evaluate("stop", true); !errors.Is(err, errRule) {
		t.Fatalf("err = %v, want rule error from failing probe", err)
	}

	b.mu.Lock()
	s := b.state
	b.mu.Unlock()
	if s != RuleSuspended {
		t.Fatalf("state = %v, want suspended after probe failure", s)
	}
}

func TestBreakerRule_Reset(t *testing.T) {
	inner := &flakyRule{fail: true}
	b := NewBreakerRule(inner, BreakerConfig{
		Name:        "test",
		MaxFailures: 2,
		RetryAfter:  time.Hour,
	})

	b.Evaluate("stop", true)
	b.Evaluate("stop", true)
	if b.State() != RuleSuspended {
		t.Fatal("expected suspended")
	}

	b.Reset()
	if b.State() != RuleActive {
		t.Fatalf("state = %v, want active after reset", b.State())
	}
}

func TestBreakerRule_SuspendedRuleFailsOpenInEngine(t *testing.T) {
	inner := &flakyRule{fail: true}
	b := NewBreakerRule(inner, BreakerConfig{
		Name:        "test",
		MaxFailures: 1,
		RetryAfter:  time.Hour,
	})
	eng, err := NewEngine(Config{Enabled: true, CustomRule: b})
	if err != nil {
		t.Fatalf("NewEngine() error: %v", err)
	}

	// First decision trips the breaker; both it and every following one
	// must fail open rather than blocking real interruptions.
	for i := 0; i < 3; i++ {
		dec := eng.Decide("yeah", true)
		if dec.Action != ActionAllow || dec.Reason != ReasonCustomRuleError {
			t.Fatalf("decision %d = %v/%v, want allow/custom_rule_error", i, dec.Action, dec.Reason)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1 (suspended rule not consulted)", inner.calls)
	}
}

func TestRuleState_String(t *testing.T) {
	tests := []struct {
		state RuleState
		want  string
	}{
		{RuleActive, "active"},
		{RuleSuspended, "suspended"},
		{RuleProbing, "probing"},
		{RuleState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("RuleState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
