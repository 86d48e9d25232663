package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/minucst/portal/pkg/clock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Limiter, *clock.Manual) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	clk := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	return NewLimiter(log, Config{}, clk), clk
}

func TestLimiter_HistoryIsBounded(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < 15; i++ {
		l.RecordAttempt("1.2.3.4", fmt.Sprintf("code-%d", i), false)
	}

	snap := l.Snapshot()
	require.Len(t, snap.RecentAttempts, DefaultHistorySize)
	assert.Equal(t, "code-5", snap.RecentAttempts[0].Code)
	assert.Equal(t, "code-14", snap.RecentAttempts[9].Code)
	assert.Equal(t, DefaultHistorySize, l.RecentFailures("1.2.3.4"))
}

func TestLimiter_RecentFailuresWindow(t *testing.T) {
	l, clk := newTestLimiter(t)

	l.RecordAttempt("src", "a", false)
	clk.Advance(40 * time.Minute)
	l.RecordAttempt("src", "b", false)
	l.RecordAttempt("src", "c", true)

	assert.Equal(t, 2, l.RecentFailures("src"))

	clk.Advance(21 * time.Minute)
	assert.Equal(t, 1, l.RecentFailures("src"))

	clk.Advance(time.Hour)
	assert.Equal(t, 0, l.RecentFailures("src"))
	assert.Equal(t, 0, l.RecentFailures("unknown"))
}

func TestLimiter_NeedsCaptcha(t *testing.T) {
	l, clk := newTestLimiter(t)

	assert.False(t, l.NeedsCaptcha("src"))

	l.RecordAttempt("src", "", false)
	assert.False(t, l.NeedsCaptcha("src"))

	l.RecordAttempt("src", "", false)
	assert.True(t, l.NeedsCaptcha("src"))
	assert.False(t, l.NeedsCaptcha("other"))

	// Recomputed on every check, so it clears once failures age out.
	clk.Advance(DefaultWindow + time.Second)
	assert.False(t, l.NeedsCaptcha("src"))
}

func TestLimiter_OnFailureBlocksAtThreshold(t *testing.T) {
	l, clk := newTestLimiter(t)

	for i := 0; i < DefaultMaxAttempts-1; i++ {
		l.RecordAttempt("src", "MINUCST-STAFF-05", false)
		res := l.OnFailure("src", "MINUCST-STAFF-05", true)
		assert.False(t, res.SourceBlocked)
	}

	l.RecordAttempt("src", "MINUCST-STAFF-05", false)
	res := l.OnFailure("src", "MINUCST-STAFF-05", true)

	assert.True(t, res.SourceBlocked)
	assert.True(t, res.CodeBlocked)
	assert.True(t, l.IsSourceBlocked("src"))
	assert.True(t, l.IsCodeBlocked("MINUCST-STAFF-05"))
	assert.False(t, l.IsSourceBlocked("other"))

	clk.Advance(DefaultSourceBlock)
	assert.True(t, l.IsSourceBlocked("src"), "block holds until strictly after the deadline")

	clk.Advance(time.Second)
	assert.False(t, l.IsSourceBlocked("src"))
	assert.True(t, l.IsCodeBlocked("MINUCST-STAFF-05"))

	clk.Advance(DefaultCodeBlock)
	assert.False(t, l.IsCodeBlocked("MINUCST-STAFF-05"))

	snap := l.Snapshot()
	assert.Empty(t, snap.BlockedSources)
	assert.Empty(t, snap.BlockedCodes)
}

func TestLimiter_UnknownCodeIsNotBlocked(t *testing.T) {
	l, _ := newTestLimiter(t)

	for i := 0; i < DefaultMaxAttempts; i++ {
		l.RecordAttempt("src", "MINUCST-STAFF-31", false)
	}

	res := l.OnFailure("src", "MINUCST-STAFF-31", false)

	assert.True(t, res.SourceBlocked)
	assert.False(t, res.CodeBlocked)
	assert.False(t, l.IsCodeBlocked("MINUCST-STAFF-31"))
}

func TestLimiter_ReblockRefreshesDuration(t *testing.T) {
	l, clk := newTestLimiter(t)

	for i := 0; i < DefaultMaxAttempts; i++ {
		l.RecordAttempt("src", "", false)
	}

	l.OnFailure("src", "", false)

	clk.Advance(20 * time.Minute)
	l.RecordAttempt("src", "", false)
	l.OnFailure("src", "", false)

	clk.Advance(20 * time.Minute)
	assert.True(t, l.IsSourceBlocked("src"))

	snap := l.Snapshot()
	require.Len(t, snap.BlockedSources, 1)
	assert.Equal(t, clk.Now().Add(-20*time.Minute).Add(DefaultSourceBlock), snap.BlockedSources[0].Until)
}

func TestLimiter_SnapshotCapsRecentAttempts(t *testing.T) {
	l, _ := newTestLimiter(t)

	for s := 0; s < 8; s++ {
		for i := 0; i < DefaultHistorySize; i++ {
			l.RecordAttempt(fmt.Sprintf("src-%d", s), "", i%2 == 0)
		}
	}

	snap := l.Snapshot()
	assert.Len(t, snap.RecentAttempts, recentAttemptsStatsLimit)
	assert.Equal(t, "src-7", snap.RecentAttempts[len(snap.RecentAttempts)-1].SourceID)
}
