package filter

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRuleSuspended is returned by [BreakerRule.Evaluate] while the rule is
// suspended after repeated failures. The engine treats it like any other rule
// error: the interruption is allowed.
var ErrRuleSuspended = errors.New("custom rule suspended after repeated failures")

// RuleState is the operating mode of a [BreakerRule].
type RuleState int

const (
	// RuleActive forwards every evaluation to the wrapped rule.
	RuleActive RuleState = iota

	// RuleSuspended rejects evaluations immediately with [ErrRuleSuspended]
	// until the retry timeout elapses.
	RuleSuspended

	// RuleProbing lets a limited number of evaluations through to decide
	// whether the rule has recovered.
	RuleProbing
)

// String returns the human-readable name of the state.
func (s RuleState) String() string {
	switch s {
	case RuleActive:
		return "active"
	case RuleSuspended:
		return "suspended"
	case RuleProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [BreakerRule].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxFailures is the number of consecutive evaluation failures before
	// the rule is suspended. Default: 5.
	MaxFailures int

	// RetryAfter is how long the rule stays suspended before probing it
	// again. Default: 30s.
	RetryAfter time.Duration

	// ProbeMax is the number of probe evaluations allowed while probing
	// before the rule decides whether to reactivate. Default: 3.
	ProbeMax int
}

// BreakerRule wraps a [CustomRule] whose Evaluate may call out to something
// unreliable — a policy service, an LLM scorer — and suspends it after
// consecutive failures so a dead dependency cannot add its timeout to every
// single arbitration. While suspended, Evaluate fails fast and the engine
// falls through to its fail-open path.
//
// BreakerRule itself satisfies [CustomRule], so it drops into
// [Config.CustomRule] transparently. Safe for concurrent use.
type BreakerRule struct {
	inner       CustomRule
	name        string
	maxFailures int
	retryAfter  time.Duration
	probeMax    int

	mu          sync.Mutex
	state       RuleState
	failures    int
	lastFailure time.Time
	probeCalls  int
	probeFails  int
}

// NewBreakerRule wraps rule with failure suspension. Zero-value config fields
// are replaced with defaults.
func NewBreakerRule(rule CustomRule, cfg BreakerConfig) *BreakerRule {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 30 * time.Second
	}
	if cfg.ProbeMax <= 0 {
		cfg.ProbeMax = 3
	}
	return &BreakerRule{
		inner:       rule,
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		retryAfter:  cfg.RetryAfter,
		probeMax:    cfg.ProbeMax,
		state:       RuleActive,
	}
}

// Evaluate implements [CustomRule]. While suspended it returns
// [ErrRuleSuspended] without consulting the wrapped rule.
func (b *BreakerRule) Evaluate(text string, agentSpeaking bool) (bool, error) {
	b.mu.Lock()
	switch b.state {
	case RuleSuspended:
		if time.Since(b.lastFailure) < b.retryAfter {
			b.mu.Unlock()
			return false, ErrRuleSuspended
		}
		b.state = RuleProbing
		b.probeCalls = 0
		b.probeFails = 0
		slog.Info("suspended custom rule entering probe mode", "rule", b.name)

	case RuleProbing:
		if b.probeCalls >= b.probeMax {
			b.mu.Unlock()
			return false, ErrRuleSuspended
		}
	}
	probing := b.state == RuleProbing
	if probing {
		b.probeCalls++
	}
	b.mu.Unlock()

	allow, err := b.inner.Evaluate(text, agentSpeaking)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailure(probing)
	} else {
		b.recordSuccess(probing)
	}
	return allow, err
}

// recordFailure must be called with b.mu held.
func (b *BreakerRule) recordFailure(probing bool) {
	b.lastFailure = time.Now()

	if probing {
		b.probeFails++
		// Any probe failure re-suspends immediately.
		b.state = RuleSuspended
		b.failures = b.maxFailures
		slog.Warn("custom rule probe failed, re-suspending", "rule", b.name)
		return
	}

	b.failures++
	if b.failures >= b.maxFailures {
		b.state = RuleSuspended
		slog.Warn("custom rule suspended",
			"rule", b.name,
			"consecutive_failures", b.failures)
	}
}

// recordSuccess must be called with b.mu held.
func (b *BreakerRule) recordSuccess(probing bool) {
	if probing {
		if b.probeCalls-b.probeFails >= b.probeMax {
			b.state = RuleActive
			b.failures = 0
			b.probeCalls = 0
			b.probeFails = 0
			slog.Info("custom rule reactivated after successful probes", "rule", b.name)
		}
		return
	}
	b.failures = 0
}

// State returns the rule's current [RuleState]. A suspended rule whose retry
// timeout has elapsed reports [RuleProbing]; the actual transition happens on
// the next Evaluate.
func (b *BreakerRule) State() RuleState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == RuleSuspended && time.Since(b.lastFailure) >= b.retryAfter {
		return RuleProbing
	}
	return b.state
}

// Reset forces the rule back to [RuleActive], clearing all failure counters.
func (b *BreakerRule) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = RuleActive
	b.failures = 0
	b.probeCalls = 0
	b.probeFails = 0
	slog.Info("custom rule manually reactivated", "rule", b.name)
}
