package browser

import (
	"fmt"

	"github.com/dreamreel/dreamreel/internal/utils"
	"github.com/go-rod/rod"
)

// Strategy is one way of locating an element on the current page. Lookup
// must not wait: it inspects the DOM as it is right now and reports whether
// it found anything.
type Strategy struct {
	Name   string
	Lookup func(page *rod.Page) (*rod.Element, bool)
}

// CSS builds a strategy that returns the first match of a CSS selector.
func CSS(name, selector string) Strategy {
	return Strategy{
		Name: name,
		Lookup: func(page *rod.Page) (*rod.Element, bool) {
			els, err := page.Elements(selector)
			if err != nil || len(els) == 0 {
				return nil, false
			}
			return els[0], true
		},
	}
}

// LastCSS builds a strategy that returns the last match of a CSS selector.
func LastCSS(name, selector string) Strategy {
	return Strategy{
		Name: name,
		Lookup: func(page *rod.Page) (*rod.Element, bool) {
			els, err := page.Elements(selector)
			if err != nil || len(els) == 0 {
				return nil, false
			}
			return els[len(els)-1], true
		},
	}
}

// Find evaluates strategies in order and returns the first hit, logging
// which strategy won so selector drift shows up in the logs before it
// becomes a hard failure. Remote pages mutate under us, so handles returned
// here must never be cached across navigations or poll cycles.
func Find(page *rod.Page, purpose string, strategies []Strategy) (*rod.Element, error) {
	for _, s := range strategies {
		el, ok := s.Lookup(page)
		if !ok {
			continue
		}
		utils.LogDebug("Located %s via strategy %q", purpose, s.Name)
		return el, nil
	}
	return nil, fmt.Errorf("no strategy matched for %s (tried %d)", purpose, len(strategies))
}
