package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// fakePage is a scripted Page. Elements appear and disappear through hooks
// fired on navigation and clicks, and waits poll until an element is shown.
type fakePage struct {
	mu sync.Mutex

	url      string
	present  map[Selector]bool
	texts    map[Selector]string
	attrs    map[Selector][]string
	timeout  time.Duration
	onNav    map[string]func(f *fakePage)
	onClick  map[Selector]func(f *fakePage)
	clicks   []Selector
	visits   []string
	timeouts []time.Duration
	shots    []bool
}

func newFakePage() *fakePage {
	return &fakePage{
		present: make(map[Selector]bool),
		texts:   make(map[Selector]string),
		attrs:   make(map[Selector][]string),
		timeout: 200 * time.Millisecond,
		onNav:   make(map[string]func(f *fakePage)),
		onClick: make(map[Selector]func(f *fakePage)),
	}
}

// show and hide are called from hooks, which already hold the lock.
func (f *fakePage) show(sel Selector) {
	f.present[sel] = true
}

func (f *fakePage) hide(sel Selector) {
	delete(f.present, sel)
}

func (f *fakePage) showText(sel Selector, text string) {
	f.present[sel] = true
	f.texts[sel] = text
}

func (f *fakePage) setURL(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = u
}

func (f *fakePage) update(fn func(f *fakePage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakePage) clicked(sel Selector) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clicks {
		if c == sel {
			n++
		}
	}
	return n
}

func (f *fakePage) clickOrder() []Selector {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Selector(nil), f.clicks...)
}

func (f *fakePage) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	f.mu.Lock()
	d := f.timeout
	f.mu.Unlock()
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (f *fakePage) poll(ctx context.Context, what string, ready func() bool) error {
	ctx, cancel := f.bound(ctx)
	defer cancel()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		f.mu.Lock()
		ok := ready()
		f.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", what, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (f *fakePage) Navigate(ctx context.Context, u string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = u
	f.visits = append(f.visits, u)
	if hook := f.onNav[u]; hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakePage) WaitURL(ctx context.Context, prefix string) error {
	return f.poll(ctx, prefix, func() bool { return strings.HasPrefix(f.url, prefix) })
}

func (f *fakePage) URL() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakePage) Has(sel Selector) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[sel], nil
}

func (f *fakePage) Wait(ctx context.Context, sel Selector) error {
	return f.poll(ctx, sel.String(), func() bool { return f.present[sel] })
}

func (f *fakePage) Text(ctx context.Context, sel Selector) (string, error) {
	if err := f.Wait(ctx, sel); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[sel], nil
}

func (f *fakePage) Click(ctx context.Context, sel Selector) error {
	if err := f.Wait(ctx, sel); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, sel)
	if hook := f.onClick[sel]; hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakePage) Attributes(ctx context.Context, sel Selector, attr string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.present[sel] {
		return nil, nil
	}
	return append([]string(nil), f.attrs[sel]...), nil
}

func (f *fakePage) Screenshot(fullPage bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shots = append(f.shots, fullPage)
	return []byte("\x89PNG"), nil
}

func (f *fakePage) SetTimeout(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = d
	f.timeouts = append(f.timeouts, d)
}

// memReporter keeps screenshots in memory.
type memReporter struct {
	mu    sync.Mutex
	saved map[string][]byte
	order []string
}

func newMemReporter() *memReporter {
	return &memReporter{saved: make(map[string][]byte)}
}

func (r *memReporter) key(category, label string) string {
	return category + "/" + label
}

func (r *memReporter) Save(category, label string, png []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(category, label)
	r.saved[k] = png
	r.order = append(r.order, k)
	return k + ".png", nil
}

func (r *memReporter) Has(category, label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.saved[r.key(category, label)]
	return ok
}

func (r *memReporter) count(category string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, k := range r.order {
		if strings.HasPrefix(k, category+"/") {
			n++
		}
	}
	return n
}
