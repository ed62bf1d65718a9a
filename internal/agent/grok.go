package agent

import (
	"time"

	"github.com/dreamreel/dreamreel/internal/browser"
)

const grokURL = "https://grok.com/imagine"

// NewGrok creates an agent for the Grok imagine workspace, used to animate
// still images into short video clips. Rendering a clip takes far longer
// than an image, so the default poll budget is stretched unless the caller
// already set one.
func NewGrok(sessionCfg browser.Config, cfg Config) *Agent {
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 120 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}

	ui := uiProfile{
		name: "grok",
		url:  grokURL,
		loginIndicators: []string{
			`a[href*="/sign-in"]`,
			`button[data-testid="signin"]`,
			`input[name="identifier"]`,
		},
		promptInput: []browser.Strategy{
			browser.CSS("imagine prompt", `textarea[placeholder*="magine"], textarea[placeholder*="escribe"]`),
			browser.CSS("any textarea", "textarea"),
			browser.CSS("contenteditable", `div[contenteditable="true"]`),
		},
		submit: []browser.Strategy{
			browser.CSS("labeled submit", `button[aria-label*="ubmit"], button[type="submit"]`),
			browser.CSS("make video button", `button[aria-label*="ideo"]`),
			browser.LastCSS("last icon button", "button:has(svg)"),
		},
		// Grok renders finished clips as <video> elements; anything small is
		// a preview spinner or UI chrome.
		resultSelector: "video",
		download: []browser.Strategy{
			browser.CSS("download button", `button[aria-label*="ownload"]`),
			browser.CSS("download link", `a[download]`),
		},
		errorPhrases: []string{"something went wrong", "generation failed", "try again"},
	}
	return newAgent(ui, sessionCfg, cfg)
}
