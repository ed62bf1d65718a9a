// Package quota tracks per-provider usage in local JSON counter files and
// gates provider selection against configurable spend ceilings.
package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Usage is the on-disk counter record for a single provider.
type Usage struct {
	Provider  string    `json:"provider"`
	Calls     int       `json:"calls"`
	Spend     float64   `json:"spend"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker persists usage counters in a directory, one JSON file per provider.
type Tracker struct {
	dir      string
	ceilings map[string]float64

	mu sync.Mutex
}

// NewTracker creates a tracker rooted at dir. Ceilings map provider names to
// maximum spend; a provider without a ceiling is never gated.
func NewTracker(dir string, ceilings map[string]float64) (*Tracker, error) {
	if dir == "" {
		return nil, fmt.Errorf("quota directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create quota directory: %w", err)
	}
	if ceilings == nil {
		ceilings = make(map[string]float64)
	}
	return &Tracker{dir: dir, ceilings: ceilings}, nil
}

func (t *Tracker) path(provider string) string {
	return filepath.Join(t.dir, provider+"_usage.json")
}

// Load reads the current usage for a provider. A missing file yields a zero
// record rather than an error.
func (t *Tracker) Load(provider string) (Usage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(provider)
}

func (t *Tracker) loadLocked(provider string) (Usage, error) {
	data, err := os.ReadFile(t.path(provider))
	if err != nil {
		if os.IsNotExist(err) {
			return Usage{Provider: provider}, nil
		}
		return Usage{}, fmt.Errorf("failed to read usage file: %w", err)
	}

	var u Usage
	if err := json.Unmarshal(data, &u); err != nil {
		// A corrupt counter file should not wedge the pipeline; start over.
		return Usage{Provider: provider}, nil
	}
	return u, nil
}

// Record adds one call with the given cost to a provider's counters.
func (t *Tracker) Record(provider string, cost float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, err := t.loadLocked(provider)
	if err != nil {
		return err
	}

	u.Provider = provider
	u.Calls++
	u.Spend += cost
	u.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal usage: %w", err)
	}
	if err := os.WriteFile(t.path(provider), data, 0644); err != nil {
		return fmt.Errorf("failed to write usage file: %w", err)
	}
	return nil
}

// Allowed reports whether a provider is still under its spend ceiling.
func (t *Tracker) Allowed(provider string) (bool, error) {
	ceiling, ok := t.ceilings[provider]
	if !ok {
		return true, nil
	}

	u, err := t.Load(provider)
	if err != nil {
		return false, err
	}
	return u.Spend < ceiling, nil
}

// Reset clears the counters for a provider.
func (t *Tracker) Reset(provider string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	err := os.Remove(t.path(provider))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove usage file: %w", err)
	}
	return nil
}
