package clientsession

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/minucst/portal/pkg/clock"
	"github.com/sirupsen/logrus"
)

// Storage keys used by the inactivity-based session.
const (
	ProfileKey   = "minucst-user"
	TimestampKey = "session-timestamp"
)

const (
	// DefaultInactivityTimeout ends a legacy session after five idle
	// minutes.
	DefaultInactivityTimeout = 5 * time.Minute
	// WarningWindow is how long before the inactivity deadline a client
	// should warn the user.
	WarningWindow = time.Minute
	// totalCourses is the fixed course count used for TotalProgress.
	totalCourses = 6
)

// ErrNotAuthenticated is returned by operations that need a session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Event is a user-interaction event name.
type Event string

// Events that count as activity.
const (
	EventMouseDown  Event = "mousedown"
	EventMouseMove  Event = "mousemove"
	EventKeyPress   Event = "keypress"
	EventScroll     Event = "scroll"
	EventTouchStart Event = "touchstart"
	EventClick      Event = "click"
)

// Qualifies reports whether e refreshes the inactivity deadline.
func (e Event) Qualifies() bool {
	switch e {
	case EventMouseDown, EventMouseMove, EventKeyPress,
		EventScroll, EventTouchStart, EventClick:
		return true
	default:
		return false
	}
}

// CourseProgress is the viewing state of one course.
type CourseProgress struct {
	Completed   bool       `json:"completed"`
	WatchTime   float64    `json:"watchTime"`
	TotalTime   float64    `json:"totalTime"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Profile is the user profile persisted by the legacy session.
type Profile struct {
	ID            string                    `json:"id"`
	Name          string                    `json:"name"`
	Email         string                    `json:"email,omitempty"`
	Role          string                    `json:"role"`
	Progress      map[string]CourseProgress `json:"progress"`
	TotalProgress int                       `json:"totalProgress"`
}

// LegacyConfig configures a LegacyController.
type LegacyConfig struct {
	// Timeout defaults to DefaultInactivityTimeout.
	Timeout time.Duration
	// OnReset runs after the session has been torn down, whether by
	// logout, inactivity or a corrupt persisted state.
	OnReset func()
}

// LegacyController keeps a profile logged in for as long as qualifying
// activity keeps arriving. It is independent of the token-based
// Controller.
type LegacyController struct {
	log     logrus.FieldLogger
	storage Storage
	clock   clock.Clock
	cfg     LegacyConfig

	mu           sync.Mutex
	profile      *Profile
	lastActivity time.Time
	timer        clock.Timer
	gen          uint64
}

// NewLegacyController creates a LegacyController in the logged-out state.
func NewLegacyController(
	log logrus.FieldLogger, storage Storage, clk clock.Clock, cfg LegacyConfig,
) *LegacyController {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultInactivityTimeout
	}

	if clk == nil {
		clk = clock.Real{}
	}

	return &LegacyController{
		log:     log.WithField("component", "legacy-session"),
		storage: storage,
		clock:   clk,
		cfg:     cfg,
	}
}

// Login stores profile and starts the inactivity timer.
func (c *LegacyController) Login(profile Profile) error {
	if profile.Progress == nil {
		profile.Progress = make(map[string]CourseProgress)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.persistLocked(&profile); err != nil {
		return err
	}

	c.profile = &profile
	c.touchLocked()

	c.log.WithField("user", profile.ID).Debug("Legacy session started")

	return nil
}

// Restore resumes a persisted session. A session idle for longer than the
// timeout, or one that cannot be decoded, is torn down.
func (c *LegacyController) Restore() bool {
	rawProfile, okProfile, err := c.storage.Get(ProfileKey)
	if err != nil {
		c.log.WithError(err).Warn("Failed to read persisted profile")
		c.teardown()

		return false
	}

	rawTS, okTS, err := c.storage.Get(TimestampKey)
	if err != nil {
		c.log.WithError(err).Warn("Failed to read session timestamp")
		c.teardown()

		return false
	}

	if !okProfile || !okTS {
		return false
	}

	var profile Profile
	if err := json.Unmarshal([]byte(rawProfile), &profile); err != nil {
		c.log.WithError(err).Debug("Discarding corrupt profile")
		c.teardown()

		return false
	}

	ms, err := strconv.ParseInt(rawTS, 10, 64)
	if err != nil {
		c.log.WithError(err).Debug("Discarding corrupt session timestamp")
		c.teardown()

		return false
	}

	if c.clock.Now().Sub(time.UnixMilli(ms)) > c.cfg.Timeout {
		c.log.Info("Session expired due to inactivity")
		c.teardown()

		return false
	}

	if profile.Progress == nil {
		profile.Progress = make(map[string]CourseProgress)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.profile = &profile
	c.touchLocked()

	return true
}

// RecordActivity refreshes the inactivity deadline for a qualifying event.
// It reports whether the deadline moved.
func (c *LegacyController) RecordActivity(ev Event) bool {
	if !ev.Qualifies() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profile == nil {
		return false
	}

	c.touchLocked()

	return true
}

// UpdateProgress records the viewing state of a course, recomputes the
// total progress and counts as activity.
func (c *LegacyController) UpdateProgress(
	courseID string, watchTime, totalTime float64, completed bool,
) (*Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profile == nil {
		return nil, ErrNotAuthenticated
	}

	updated := *c.profile
	updated.Progress = make(map[string]CourseProgress, len(c.profile.Progress)+1)

	for k, v := range c.profile.Progress {
		updated.Progress[k] = v
	}

	entry := CourseProgress{
		Completed: completed,
		WatchTime: watchTime,
		TotalTime: totalTime,
	}

	if completed {
		now := c.clock.Now()
		entry.CompletedAt = &now
	}

	updated.Progress[courseID] = entry

	done := 0
	for _, p := range updated.Progress {
		if p.Completed {
			done++
		}
	}

	updated.TotalProgress = int(math.Round(float64(done) / totalCourses * 100))

	if err := c.persistLocked(&updated); err != nil {
		return nil, err
	}

	c.profile = &updated
	c.touchLocked()

	out := updated

	return &out, nil
}

// Profile returns a copy of the logged-in profile.
func (c *LegacyController) Profile() (Profile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profile == nil {
		return Profile{}, false
	}

	return *c.profile, true
}

// Remaining returns the time left before the inactivity deadline, or zero
// when logged out.
func (c *LegacyController) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.profile == nil {
		return 0
	}

	left := c.cfg.Timeout - c.clock.Now().Sub(c.lastActivity)
	if left < 0 {
		return 0
	}

	return left
}

// ShouldWarn reports whether the session is inside its final warning
// window.
func (c *LegacyController) ShouldWarn() bool {
	left := c.Remaining()

	return left > 0 && left <= WarningWindow
}

// Logout tears the session down.
func (c *LegacyController) Logout() {
	c.log.Debug("Legacy session closed by user")
	c.teardown()
}

func (c *LegacyController) persistLocked(profile *Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	if err := c.storage.Set(ProfileKey, string(data)); err != nil {
		return fmt.Errorf("persisting profile: %w", err)
	}

	return nil
}

// touchLocked stamps activity now and re-arms the inactivity timer.
func (c *LegacyController) touchLocked() {
	now := c.clock.Now()
	c.lastActivity = now

	if err := c.storage.Set(TimestampKey, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		c.log.WithError(err).Warn("Failed to persist session timestamp")
	}

	if c.timer != nil {
		c.timer.Stop()
	}

	c.gen++
	gen := c.gen

	c.timer = c.clock.AfterFunc(c.cfg.Timeout, func() {
		c.onTimeout(gen)
	})
}

func (c *LegacyController) onTimeout(gen uint64) {
	c.mu.Lock()
	stale := c.gen != gen || c.profile == nil
	c.mu.Unlock()

	if stale {
		return
	}

	c.log.Info("Session closed due to inactivity")
	c.teardown()
}

func (c *LegacyController) teardown() {
	c.mu.Lock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	c.gen++
	c.profile = nil
	c.lastActivity = time.Time{}

	c.mu.Unlock()

	for _, key := range []string{ProfileKey, TimestampKey} {
		if err := c.storage.Remove(key); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("Failed to clear client state")
		}
	}

	if c.cfg.OnReset != nil {
		c.cfg.OnReset()
	}
}
