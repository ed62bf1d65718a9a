// Package browser owns persistent Chromium profiles for the generation
// agents. A profile directory holds login cookies for the third-party web
// apps the agents drive, so it is reused across runs and guarded against
// concurrent opens, which corrupt Chromium's singleton lock state.
package browser

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dreamreel/dreamreel/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Chromium leaves these behind after an unclean shutdown. A stale singleton
// lock makes every subsequent launch fail with "profile already in use".
var staleLockArtifacts = []string{"SingletonLock", "SingletonCookie", "SingletonSocket"}

var (
	profileMu    sync.Mutex
	profileLocks = make(map[string]*sync.Mutex)
)

// lockForProfile returns the process-wide mutex for a profile directory.
// All Acquire/Release pairs for the same profile serialize on it, so two
// logical callers never open the same profile concurrently.
func lockForProfile(profileDir string) *sync.Mutex {
	profileMu.Lock()
	defer profileMu.Unlock()

	abs, err := filepath.Abs(profileDir)
	if err != nil {
		abs = profileDir
	}
	if _, ok := profileLocks[abs]; !ok {
		profileLocks[abs] = &sync.Mutex{}
	}
	return profileLocks[abs]
}

// Config holds session launch settings
type Config struct {
	ProfileDir      string        // persistent user-data directory
	Bin             string        // optional browser binary override
	Headless        bool          // headless launch (login sessions usually need headed)
	AcquireAttempts int           // launch attempts before giving up (default 3)
	AcquireDelay    time.Duration // fixed delay between attempts (default 5s)
	NavTimeout      time.Duration // per-navigation budget (default 30s)
}

func (c Config) withDefaults() Config {
	if c.AcquireAttempts == 0 {
		c.AcquireAttempts = 3
	}
	if c.AcquireDelay == 0 {
		c.AcquireDelay = 5 * time.Second
	}
	if c.NavTimeout == 0 {
		c.NavTimeout = 30 * time.Second
	}
	return c
}

// Session is one live browser process bound to a profile directory. At most
// one Session per profile exists at a time within the process.
type Session struct {
	cfg      Config
	lock     *sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page

	mu       sync.Mutex
	released bool
}

// Acquire launches a browser against the profile directory. It blocks until
// the profile's mutex is free, clears stale singleton lock artifacts from a
// previous unclean shutdown, then tries the launch a bounded number of times
// with a fixed delay before surfacing a fatal error.
func Acquire(cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if cfg.ProfileDir == "" {
		return nil, fmt.Errorf("browser: profile directory is required")
	}

	lock := lockForProfile(cfg.ProfileDir)
	lock.Lock()

	if err := os.MkdirAll(cfg.ProfileDir, 0755); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("browser: failed to create profile directory: %w", err)
	}

	ClearStaleLocks(cfg.ProfileDir)

	var lastErr error
	for attempt := 1; attempt <= cfg.AcquireAttempts; attempt++ {
		session, err := launchOnce(cfg, lock)
		if err == nil {
			utils.LogVerbose("Browser session acquired for profile %s (attempt %d)", cfg.ProfileDir, attempt)
			return session, nil
		}
		lastErr = err
		utils.LogWarning("Browser launch failed for profile %s (attempt %d/%d): %v", cfg.ProfileDir, attempt, cfg.AcquireAttempts, err)
		if attempt < cfg.AcquireAttempts {
			time.Sleep(cfg.AcquireDelay)
		}
	}

	lock.Unlock()
	return nil, fmt.Errorf("browser: failed to acquire session for profile %s after %d attempts: %w",
		cfg.ProfileDir, cfg.AcquireAttempts, lastErr)
}

func launchOnce(cfg Config, lock *sync.Mutex) (*Session, error) {
	l := launcher.New().
		UserDataDir(cfg.ProfileDir).
		Headless(cfg.Headless).
		Leakless(true)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("launch: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connect: %w", err)
	}

	return &Session{cfg: cfg, lock: lock, launcher: l, browser: b}, nil
}

// ClearStaleLocks removes Chromium singleton lock artifacts from a profile
// directory so a crash does not permanently wedge the profile.
func ClearStaleLocks(profileDir string) {
	for _, name := range staleLockArtifacts {
		path := filepath.Join(profileDir, name)
		if err := os.Remove(path); err == nil {
			utils.LogVerbose("Removed stale profile lock artifact %s", path)
		} else if !os.IsNotExist(err) {
			utils.LogWarning("Failed to remove stale lock artifact %s: %v", path, err)
		}
	}
}

// Page returns the session's page, creating it on first use.
func (s *Session) Page() (*rod.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return nil, fmt.Errorf("browser: session already released")
	}
	if s.page != nil {
		return s.page, nil
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("browser: failed to open page: %w", err)
	}
	// No deadline here: the page lives for the whole session, and callers
	// scope NavTimeout around individual navigations.
	s.page = page
	return s.page, nil
}

// Healthy reports whether the underlying browser process still answers.
func (s *Session) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released || s.browser == nil {
		return false
	}
	_, err := s.browser.Version()
	return err == nil
}

// ProfileDir returns the profile directory this session owns.
func (s *Session) ProfileDir() string {
	return s.cfg.ProfileDir
}

// NavTimeout returns the configured per-navigation budget.
func (s *Session) NavTimeout() time.Duration {
	return s.cfg.NavTimeout
}

// Release closes the page and browser and releases the profile mutex. It is
// idempotent: a second call is a no-op, and it never panics even when the
// browser already died. It must be run on every exit path.
func (s *Session) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	s.released = true

	defer func() {
		if r := recover(); r != nil {
			utils.LogWarning("Recovered during browser teardown: %v", r)
		}
		if s.lock != nil {
			s.lock.Unlock()
		}
	}()

	if s.page != nil {
		if err := s.page.Close(); err != nil {
			utils.LogDebug("Page close during release: %v", err)
		}
		s.page = nil
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			utils.LogDebug("Browser close during release: %v", err)
		}
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
		s.launcher = nil
	}
}
