// Package ratelimit tracks login attempts per source identifier and per
// access code, and decides when to demand a CAPTCHA or impose a lockout.
package ratelimit

import (
	"sort"
	"sync"
	"time"

	"github.com/minucst/portal/pkg/clock"
	"github.com/sirupsen/logrus"
)

// Defaults mirror the portal's fixed security constants.
const (
	DefaultMaxAttempts       = 3
	DefaultCaptchaThreshold  = 2
	DefaultSourceBlock       = 30 * time.Minute
	DefaultCodeBlock         = 24 * time.Hour
	DefaultWindow            = time.Hour
	DefaultHistorySize       = 10
	recentAttemptsStatsLimit = 50
)

// Config holds the limiter thresholds.
type Config struct {
	MaxAttempts      int
	CaptchaThreshold int
	SourceBlock      time.Duration
	CodeBlock        time.Duration
	Window           time.Duration
	HistorySize      int
}

// DefaultConfig returns the portal's standard thresholds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      DefaultMaxAttempts,
		CaptchaThreshold: DefaultCaptchaThreshold,
		SourceBlock:      DefaultSourceBlock,
		CodeBlock:        DefaultCodeBlock,
		Window:           DefaultWindow,
		HistorySize:      DefaultHistorySize,
	}
}

// Attempt is a single login attempt from a source.
type Attempt struct {
	SourceID  string    `json:"source_id"`
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// Block is an active lockout on a source or code.
type Block struct {
	Key   string    `json:"key"`
	Until time.Time `json:"until"`
}

// Snapshot is a read-only view of the limiter state.
type Snapshot struct {
	BlockedSources []Block   `json:"blocked_sources"`
	BlockedCodes   []Block   `json:"blocked_codes"`
	RecentAttempts []Attempt `json:"recent_attempts"`
}

// BlockResult describes the lockouts imposed by OnFailure.
type BlockResult struct {
	SourceBlocked bool
	CodeBlocked   bool
}

// Limiter is safe for concurrent use.
type Limiter struct {
	log   logrus.FieldLogger
	cfg   Config
	clock clock.Clock

	mu             sync.Mutex
	attempts       map[string][]Attempt
	sourceOrder    []string
	blockedSources map[string]time.Time
	blockedCodes   map[string]time.Time
}

// NewLimiter creates a Limiter. Zero config fields take their defaults.
func NewLimiter(log logrus.FieldLogger, cfg Config, clk clock.Clock) *Limiter {
	cfg.applyDefaults()

	return &Limiter{
		log:            log.WithField("component", "ratelimit"),
		cfg:            cfg,
		clock:          clk,
		attempts:       make(map[string][]Attempt, 64),
		blockedSources: make(map[string]time.Time, 16),
		blockedCodes:   make(map[string]time.Time, 16),
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}

	if c.CaptchaThreshold <= 0 {
		c.CaptchaThreshold = d.CaptchaThreshold
	}

	if c.SourceBlock <= 0 {
		c.SourceBlock = d.SourceBlock
	}

	if c.CodeBlock <= 0 {
		c.CodeBlock = d.CodeBlock
	}

	if c.Window <= 0 {
		c.Window = d.Window
	}

	if c.HistorySize <= 0 {
		c.HistorySize = d.HistorySize
	}
}

// RecordAttempt appends to the bounded attempt log for sourceID, evicting
// the oldest entry once the log is full.
func (l *Limiter) RecordAttempt(sourceID, code string, success bool) Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempt := Attempt{
		SourceID:  sourceID,
		Code:      code,
		Timestamp: l.clock.Now(),
		Success:   success,
	}

	history, ok := l.attempts[sourceID]
	if !ok {
		l.sourceOrder = append(l.sourceOrder, sourceID)
	}

	history = append(history, attempt)
	if len(history) > l.cfg.HistorySize {
		history = history[len(history)-l.cfg.HistorySize:]
	}

	l.attempts[sourceID] = history

	return attempt
}

// RecentFailures counts failed attempts from sourceID inside the trailing
// window.
func (l *Limiter) RecentFailures(sourceID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.recentFailuresLocked(sourceID)
}

func (l *Limiter) recentFailuresLocked(sourceID string) int {
	cutoff := l.clock.Now().Add(-l.cfg.Window)
	count := 0

	for _, a := range l.attempts[sourceID] {
		if !a.Success && a.Timestamp.After(cutoff) {
			count++
		}
	}

	return count
}

// NeedsCaptcha reports whether sourceID has reached the CAPTCHA threshold.
func (l *Limiter) NeedsCaptcha(sourceID string) bool {
	return l.RecentFailures(sourceID) >= l.cfg.CaptchaThreshold
}

// IsSourceBlocked reports whether sourceID is locked out.
func (l *Limiter) IsSourceBlocked(sourceID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.blockedLocked(l.blockedSources, sourceID)
}

// IsCodeBlocked reports whether code is locked out.
func (l *Limiter) IsCodeBlocked(code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.blockedLocked(l.blockedCodes, code)
}

// blockedLocked evicts an expired entry and reports whether key is still
// blocked.
func (l *Limiter) blockedLocked(blocks map[string]time.Time, key string) bool {
	until, ok := blocks[key]
	if !ok {
		return false
	}

	if l.clock.Now().After(until) {
		delete(blocks, key)

		return false
	}

	return true
}

// OnFailure blocks sourceID, and code when knownCode is set, once recent
// failures reach the maximum. Each call past the threshold re-blocks with a
// fresh duration.
func (l *Limiter) OnFailure(sourceID, code string, knownCode bool) BlockResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	var res BlockResult

	failures := l.recentFailuresLocked(sourceID)
	if failures < l.cfg.MaxAttempts {
		return res
	}

	now := l.clock.Now()

	l.blockedSources[sourceID] = now.Add(l.cfg.SourceBlock)
	res.SourceBlocked = true

	if knownCode && code != "" {
		l.blockedCodes[code] = now.Add(l.cfg.CodeBlock)
		res.CodeBlocked = true
	}

	l.log.WithField("source", sourceID).
		WithField("failures", failures).
		WithField("code_blocked", res.CodeBlocked).
		Warn("Lockout imposed after repeated failures")

	return res
}

// Snapshot returns the active blocks and the most recent attempts across
// all sources.
func (l *Limiter) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		BlockedSources: l.activeBlocksLocked(l.blockedSources),
		BlockedCodes:   l.activeBlocksLocked(l.blockedCodes),
	}

	all := make([]Attempt, 0, len(l.sourceOrder)*l.cfg.HistorySize)
	for _, source := range l.sourceOrder {
		all = append(all, l.attempts[source]...)
	}

	if len(all) > recentAttemptsStatsLimit {
		all = all[len(all)-recentAttemptsStatsLimit:]
	}

	snap.RecentAttempts = all

	return snap
}

func (l *Limiter) activeBlocksLocked(blocks map[string]time.Time) []Block {
	out := make([]Block, 0, len(blocks))

	for key := range blocks {
		if l.blockedLocked(blocks, key) {
			out = append(out, Block{Key: key, Until: blocks[key]})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })

	return out
}
