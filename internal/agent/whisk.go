package agent

import (
	"fmt"

	"github.com/dreamreel/dreamreel/internal/browser"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const whiskURL = "https://labs.google/fx/tools/whisk"

// NewWhisk creates an agent for the Whisk image workspace. Whisk keeps
// character consistency across a batch through its named reference sections
// ("Subject", "Scene", "Style"), which is why it is the default image
// backend for multi-scene stories.
func NewWhisk(sessionCfg browser.Config, cfg Config) *Agent {
	ui := uiProfile{
		name: "whisk",
		url:  whiskURL,
		loginIndicators: []string{
			`a[href*="accounts.google.com"]`,
			`button[data-test-id="sign-in"]`,
		},
		promptInput: []browser.Strategy{
			browser.CSS("prompt textarea", `textarea[placeholder*="escribe"], textarea[placeholder*="rompt"]`),
			browser.CSS("any textarea", "textarea"),
			browser.CSS("contenteditable", `div[contenteditable="true"]`),
		},
		submit: []browser.Strategy{
			browser.CSS("labeled submit", `button[aria-label*="enerate"], button[aria-label*="ubmit"]`),
			browser.CSS("arrow icon button", `button i.material-icons, button svg[data-icon="arrow"]`),
			browser.LastCSS("last icon button", "button:has(svg), button:has(i)"),
		},
		aspectControl:  whiskAspectControl,
		resultSelector: `img[src^="http"], img[src^="blob:"], img[src^="data:"]`,
		download: []browser.Strategy{
			browser.CSS("download button", `button[aria-label*="ownload"]`),
			browser.CSS("download icon", `i[data-icon="download"], svg[data-icon="download"]`),
		},
		errorPhrases: []string{"something went wrong", "try again", "couldn't generate"},
	}
	return newAgent(ui, sessionCfg, cfg)
}

// whiskAspectControl opens the aspect ratio menu and picks the entry whose
// label carries the requested ratio.
func whiskAspectControl(page *rod.Page, ratio string) error {
	toggle, err := browser.Find(page, "aspect ratio toggle", []browser.Strategy{
		browser.CSS("labeled toggle", `button[aria-label*="spect"]`),
		browser.CSS("ratio text button", `button[aria-label*="atio"]`),
	})
	if err != nil {
		return err
	}
	if err := toggle.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("open aspect menu: %w", err)
	}

	option, err := browser.Find(page, "aspect ratio option", []browser.Strategy{
		browser.CSS("menu item", fmt.Sprintf(`[role="menuitem"][aria-label*="%s"], [role="option"][aria-label*="%s"]`, ratio, ratio)),
	})
	if err != nil {
		return err
	}
	return option.Click(proto.InputMouseButtonLeft, 1)
}
