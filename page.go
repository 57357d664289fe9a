package main

import (
	"context"
	"time"
)

// Selector locates an element on the store. Exactly one of CSS or XPath is set.
// Text narrows a CSS match to elements whose text matches the regex, and Frame
// names an iframe (CSS) whose document is searched instead of the page.
type Selector struct {
	Frame string `yaml:"frame,omitempty"`
	CSS   string `yaml:"css,omitempty"`
	XPath string `yaml:"xpath,omitempty"`
	Text  string `yaml:"text,omitempty"`
}

func (s Selector) String() string {
	out := s.CSS
	if s.XPath != "" {
		out = s.XPath
	}
	if s.Text != "" {
		out += " /" + s.Text + "/"
	}
	if s.Frame != "" {
		out = s.Frame + " >> " + out
	}
	return out
}

// Page is the slice of a browser tab the claim workflow needs. Waiting calls
// honour both ctx and the page timeout; a zero timeout waits without bound.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitURL blocks until the tab's URL starts with prefix.
	WaitURL(ctx context.Context, prefix string) error
	URL() (string, error)

	// Has is an instant existence check, it never waits.
	Has(sel Selector) (bool, error)
	Wait(ctx context.Context, sel Selector) error
	Text(ctx context.Context, sel Selector) (string, error)
	Click(ctx context.Context, sel Selector) error
	// Attributes reads attr from every element matching sel right now, in DOM order.
	Attributes(ctx context.Context, sel Selector, attr string) ([]string, error)

	Screenshot(fullPage bool) ([]byte, error)
	SetTimeout(d time.Duration)
}
