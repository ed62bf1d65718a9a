package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dreamreel/dreamreel/internal/browser"
	"github.com/dreamreel/dreamreel/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// uiProfile describes the surface of one target web app: where it lives,
// how to recognize its login wall, and the selector chains for each control
// the agent needs. Selector chains are ordered best-guess first; the last
// entries are deliberately loose fallbacks.
type uiProfile struct {
	name            string
	url             string
	loginIndicators []string           // CSS selectors whose presence means "not logged in"
	promptInput     []browser.Strategy // the prompt text box
	submit          []browser.Strategy // the generate button
	aspectControl   func(page *rod.Page, ratio string) error
	resultSelector  string   // CSS matching result media elements
	download        []browser.Strategy // per-result download affordance (may be empty)
	errorPhrases    []string // lowercase fragments of the app's failure toast
}

// Agent drives one target app through a persistent browser profile.
type Agent struct {
	cfg        Config
	ui         uiProfile
	sessionCfg browser.Config

	session *browser.Session
	page    *rod.Page
}

func newAgent(ui uiProfile, sessionCfg browser.Config, cfg Config) *Agent {
	return &Agent{cfg: cfg.withDefaults(), ui: ui, sessionCfg: sessionCfg}
}

// Close releases the agent's browser session. Safe to call repeatedly.
func (a *Agent) Close() {
	if a.session != nil {
		a.session.Release()
	}
	a.page = nil
}

// ensureSession transparently reacquires a browser when the previous one
// died between requests, so staleness never propagates to the caller.
func (a *Agent) ensureSession() error {
	if a.session != nil && a.session.Healthy() {
		return nil
	}
	if a.session != nil {
		utils.LogWarning("%s: browser session died, reacquiring", a.ui.name)
		a.session.Release()
		a.session = nil
		a.page = nil
	}

	session, err := browser.Acquire(a.sessionCfg)
	if err != nil {
		return err
	}
	a.session = session
	return nil
}

// navigateAndVerify loads the app and fails fast with ErrAuthRequired when
// the login wall is showing instead of the workspace.
func (a *Agent) navigateAndVerify(ctx context.Context) (*rod.Page, error) {
	if err := a.ensureSession(); err != nil {
		return nil, err
	}

	page, err := a.session.Page()
	if err != nil {
		return nil, err
	}
	page = page.Context(ctx)

	// The navigation budget bounds only getting the app loaded; the page
	// kept for polling carries no deadline of its own.
	nav := page.Timeout(a.session.NavTimeout())
	if err := nav.Navigate(a.ui.url); err != nil {
		return nil, fmt.Errorf("%s: navigation to %s failed: %w", a.ui.name, a.ui.url, err)
	}
	if err := nav.WaitLoad(); err != nil {
		return nil, fmt.Errorf("%s: page never finished loading: %w", a.ui.name, err)
	}
	nav.WaitRequestIdle(3*time.Second, nil, nil, nil)()

	for _, sel := range a.ui.loginIndicators {
		els, err := page.Elements(sel)
		if err == nil && len(els) > 0 {
			return nil, fmt.Errorf("%s: %w", a.ui.name, ErrAuthRequired)
		}
	}

	a.page = page
	return page, nil
}

// configureInputs sets the aspect ratio control and uploads reference
// images into their named sections.
func (a *Agent) configureInputs(page *rod.Page, req GenerationRequest) error {
	if req.AspectRatio != "" && a.ui.aspectControl != nil {
		if err := a.ui.aspectControl(page, req.AspectRatio); err != nil {
			utils.LogWarning("%s: failed to set aspect ratio %s: %v", a.ui.name, req.AspectRatio, err)
		}
	}

	for section, paths := range req.RefImages {
		if err := a.uploadReferences(page, section, paths); err != nil {
			return err
		}
	}
	return nil
}

// findInputForSection walks up the DOM from each file input looking for the
// nearest preceding section header whose text contains the section name,
// case-insensitively. Returns the input index, or -1.
const findInputForSectionJS = `(section) => {
	const inputs = Array.from(document.querySelectorAll('input[type="file"]'));
	const target = section.toLowerCase();
	for (let i = 0; i < inputs.length; i++) {
		let node = inputs[i];
		while (node && node !== document.body) {
			let sib = node.previousElementSibling;
			while (sib) {
				const text = (sib.innerText || '').trim().toLowerCase();
				if (text && text.includes(target)) return i;
				sib = sib.previousElementSibling;
			}
			node = node.parentElement;
		}
	}
	return -1;
}`

func (a *Agent) uploadReferences(page *rod.Page, section string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:      findInputForSectionJS,
		JSArgs:  []interface{}{section},
		ByValue: true,
	})
	if err != nil {
		return a.closedOr(fmt.Errorf("%s: section lookup failed: %w", a.ui.name, err))
	}

	inputs, err := page.Elements(`input[type="file"]`)
	if err != nil || len(inputs) == 0 {
		return &SelectorError{Purpose: "reference file input", Err: err}
	}

	idx := res.Value.Int()
	if idx < 0 || idx >= len(inputs) {
		// Best effort: no header matched, use the first input.
		utils.LogVerbose("%s: no file input matched section %q, using the first one", a.ui.name, section)
		idx = 0
	}

	if err := inputs[idx].SetFiles(paths); err != nil {
		return fmt.Errorf("%s: failed to attach reference images: %w", a.ui.name, err)
	}
	utils.LogVerbose("%s: attached %d reference image(s) to section %q", a.ui.name, len(paths), section)
	return nil
}

// countLargeResults counts result elements whose rendered box clears the
// minimum pixel threshold; icons and avatars fall below it.
const countLargeJS = `(sel, minPx) => {
	return Array.from(document.querySelectorAll(sel)).filter(el => {
		const r = el.getBoundingClientRect();
		if (r.width < minPx || r.height < minPx) return false;
		const style = window.getComputedStyle(el);
		return style.visibility !== 'hidden' && style.display !== 'none';
	}).length;
}`

func (a *Agent) countLargeResults(page *rod.Page) (int, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:      countLargeJS,
		JSArgs:  []interface{}{a.ui.resultSelector, a.cfg.MinResultPx},
		ByValue: true,
	})
	if err != nil {
		return 0, a.closedOr(err)
	}
	return res.Value.Int(), nil
}

// scanErrorSurface returns the text of a failure toast if one is showing.
// Only small, short, visible matches count; the apps render giant decorative
// text that would otherwise false-positive.
const scanErrorJS = `(phrases, maxLen) => {
	const nodes = Array.from(document.querySelectorAll('div,span,p'));
	for (const el of nodes) {
		const text = (el.innerText || '').trim();
		if (!text || text.length > maxLen) continue;
		const lower = text.toLowerCase();
		if (!phrases.some(p => lower.includes(p))) continue;
		const r = el.getBoundingClientRect();
		if (r.width === 0 || r.height === 0) continue;
		if (r.width > window.innerWidth * 0.8) continue;
		return text;
	}
	return '';
}`

func (a *Agent) scanErrorSurface(page *rod.Page) (string, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:      scanErrorJS,
		JSArgs:  []interface{}{a.ui.errorPhrases, 120},
		ByValue: true,
	})
	if err != nil {
		return "", a.closedOr(err)
	}
	return res.Value.Str(), nil
}

// typePrompt fills the prompt input, replacing whatever is there.
func (a *Agent) typePrompt(page *rod.Page, prompt string) error {
	el, err := browser.Find(page, "prompt input", a.ui.promptInput)
	if err != nil {
		return &SelectorError{Purpose: "prompt input", Err: err}
	}
	if err := el.SelectAllText(); err != nil {
		utils.LogDebug("%s: select-all before typing failed: %v", a.ui.name, err)
	}
	if err := el.Input(prompt); err != nil {
		return fmt.Errorf("%s: failed to type prompt: %w", a.ui.name, err)
	}
	return nil
}

// submit clicks the generate control once it reports as enabled.
func (a *Agent) submit(page *rod.Page) error {
	deadline := time.Now().Add(10 * time.Second)
	for {
		el, err := browser.Find(page, "submit button", a.ui.submit)
		if err != nil {
			return &SelectorError{Purpose: "submit button", Err: err}
		}

		if enabled(el) {
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				return fmt.Errorf("%s: submit click failed: %w", a.ui.name, err)
			}
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%s: submit button never became enabled", a.ui.name)
		}
		time.Sleep(300 * time.Millisecond)
	}
}

func enabled(el *rod.Element) bool {
	if disabled, err := el.Property("disabled"); err == nil && disabled.Bool() {
		return false
	}
	if aria, err := el.Attribute("aria-disabled"); err == nil && aria != nil && *aria == "true" {
		return false
	}
	return true
}

// pollForCompletion waits for the large-result count to exceed baseline.
// An error surface inside the grace window triggers exactly one resubmit;
// a persistent error fails the request with the displayed message.
func (a *Agent) pollForCompletion(ctx context.Context, page *rod.Page, baseline int, resubmit func() error) error {
	state := newPollState(time.Now(), a.cfg.ErrorGrace)
	deadline := time.Now().Add(a.cfg.PollTimeout)
	lastErrMsg := ""

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			if lastErrMsg != "" {
				return &GenerationError{Message: lastErrMsg}
			}
			return ErrNoResult
		}

		time.Sleep(a.cfg.PollInterval)

		// A page that vanished mid-poll is a normal termination signal.
		if _, err := page.Info(); err != nil {
			return ErrSessionClosed
		}

		count, err := a.countLargeResults(page)
		if err != nil {
			return err
		}
		if count > baseline {
			return nil
		}

		msg, err := a.scanErrorSurface(page)
		if err != nil {
			return err
		}
		if msg == "" {
			continue
		}

		lastErrMsg = msg
		if state.onErrorSurface(time.Now()) {
			utils.LogWarning("%s: submission error %q within grace window, resubmitting once", a.ui.name, msg)
			if err := resubmit(); err != nil {
				return err
			}
		}
	}
}

// extract pulls the bytes of the newest qualifying result element, first via
// the app's own download affordance, then by fetching the media source from
// inside the page (which also resolves blob: URLs).
func (a *Agent) extract(page *rod.Page) ([]byte, error) {
	els, err := page.Elements(a.ui.resultSelector)
	if err != nil {
		return nil, a.closedOr(err)
	}

	var valid []*rod.Element
	for _, el := range els {
		if a.isLarge(el) {
			valid = append(valid, el)
		}
	}

	idx, ok := selectNewest(len(valid))
	if !ok {
		return nil, ErrNoResult
	}
	newest := valid[idx]

	if len(a.ui.download) > 0 {
		if data, err := a.extractViaDownload(page, newest); err == nil {
			return data, nil
		} else {
			utils.LogVerbose("%s: download affordance failed (%v), falling back to in-page fetch", a.ui.name, err)
		}
	}

	data, err := a.extractViaFetch(page, newest)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractFailed, err)
	}
	return data, nil
}

func (a *Agent) isLarge(el *rod.Element) bool {
	shape, err := el.Shape()
	if err != nil {
		return false
	}
	box := shape.Box()
	if box == nil || box.Width < float64(a.cfg.MinResultPx) || box.Height < float64(a.cfg.MinResultPx) {
		return false
	}
	visible, err := el.Visible()
	return err == nil && visible
}

// extractViaDownload hovers the result to reveal its download control,
// clicks it, and reads the file the browser writes.
func (a *Agent) extractViaDownload(page *rod.Page, el *rod.Element) ([]byte, error) {
	dir, err := os.MkdirTemp("", "dreamreel-dl-")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			utils.LogWarning("Failed to clean download dir: %v", err)
		}
	}()

	err = proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: dir,
	}.Call(page)
	if err != nil {
		return nil, fmt.Errorf("set download path: %w", err)
	}

	if err := el.Hover(); err != nil {
		return nil, fmt.Errorf("hover result: %w", err)
	}

	dl, err := browser.Find(page, "download affordance", a.ui.download)
	if err != nil {
		return nil, err
	}
	if visible, err := dl.Visible(); err != nil || !visible {
		return nil, fmt.Errorf("download affordance not visible")
	}
	if err := dl.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("click download: %w", err)
	}

	return waitForDownload(dir, 15*time.Second)
}

// waitForDownload polls a directory until a completed download appears.
func waitForDownload(dir string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), ".crdownload") {
				continue
			}
			return os.ReadFile(filepath.Join(dir, e.Name()))
		}
		time.Sleep(500 * time.Millisecond)
	}
	return nil, fmt.Errorf("no file downloaded within %s", timeout)
}

// fetchSourceJS reads the media element's source from inside the page's
// execution context, so blob: and data: URLs resolve the same way ordinary
// URLs do.
const fetchSourceJS = `async (src) => {
	const resp = await fetch(src);
	if (!resp.ok) throw new Error('fetch failed: ' + resp.status);
	const buf = await resp.arrayBuffer();
	const bytes = new Uint8Array(buf);
	let bin = '';
	const chunk = 0x8000;
	for (let i = 0; i < bytes.length; i += chunk) {
		bin += String.fromCharCode.apply(null, bytes.subarray(i, i + chunk));
	}
	return btoa(bin);
}`

func (a *Agent) extractViaFetch(page *rod.Page, el *rod.Element) ([]byte, error) {
	src, err := el.Attribute("src")
	if err != nil || src == nil || *src == "" {
		return nil, fmt.Errorf("result element has no src")
	}

	res, err := page.Evaluate(&rod.EvalOptions{
		JS:           fetchSourceJS,
		JSArgs:       []interface{}{*src},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, a.closedOr(err)
	}

	data, err := base64.StdEncoding.DecodeString(res.Value.Str())
	if err != nil {
		return nil, fmt.Errorf("decode fetched media: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetched media is empty")
	}
	return data, nil
}

// closedOr maps CDP transport failures onto ErrSessionClosed and passes
// everything else through.
func (a *Agent) closedOr(err error) error {
	if err == nil {
		return nil
	}
	if a.session != nil && !a.session.Healthy() {
		return ErrSessionClosed
	}
	if a.page != nil {
		if _, infoErr := a.page.Info(); infoErr != nil {
			return ErrSessionClosed
		}
	}
	return err
}

// Generate runs the full state machine for a single request.
func (a *Agent) Generate(ctx context.Context, req GenerationRequest) ([]byte, error) {
	page, err := a.navigateAndVerify(ctx)
	if err != nil {
		return nil, err
	}

	if err := a.configureInputs(page, req); err != nil {
		return nil, err
	}

	return a.generateOnPage(ctx, page, req)
}

// generateOnPage runs submit/poll/extract against an already configured page.
func (a *Agent) generateOnPage(ctx context.Context, page *rod.Page, req GenerationRequest) ([]byte, error) {
	baseline, err := a.countLargeResults(page)
	if err != nil {
		return nil, err
	}

	doSubmit := func() error {
		if err := a.typePrompt(page, req.FullPrompt()); err != nil {
			return err
		}
		return a.submit(page)
	}
	if err := doSubmit(); err != nil {
		return nil, err
	}

	if err := a.pollForCompletion(ctx, page, baseline, doSubmit); err != nil {
		return nil, err
	}

	return a.extract(page)
}

// GenerateBatch processes requests against one reused page. Reference
// images are uploaded only for the first item; per-item failures become nil
// placeholders, and the batch aborts after the configured run of
// consecutive failures. A page or browser that died between items is
// reacquired transparently.
func (a *Agent) GenerateBatch(ctx context.Context, reqs []GenerationRequest) []GenerationResult {
	driver := &batchDriver{
		pageAlive: func() bool { return a.page != nil && a.session.Healthy() },
		reacquire: func(ctx context.Context) error {
			_, err := a.navigateAndVerify(ctx)
			return err
		},
		configure: func(req GenerationRequest) error { return a.configureInputs(a.page, req) },
		generate: func(ctx context.Context, req GenerationRequest) ([]byte, error) {
			data, err := a.generateOnPage(ctx, a.page, req)
			if errors.Is(err, ErrSessionClosed) {
				// Drop the page so the next item reacquires; this item still fails.
				a.page = nil
			}
			return data, err
		},
	}

	return runBatch(ctx, reqs, a.cfg.BatchFailureLimit, driver.run)
}
