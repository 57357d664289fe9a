package main

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Automation struct {
	config   *Config
	logger   *zap.Logger
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	stopChan chan bool
}

func NewAutomation(config *Config, logger *zap.Logger) *Automation {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Automation{
		config:   config,
		logger:   logger.Named("browser"),
		stopChan: make(chan bool, 1),
	}
}

func (a *Automation) Close() {
	select {
	case a.stopChan <- true:
	default:
	}

	fmt.Println(T("cleaning_up"))

	if a.page != nil {
		a.page.Close()
	}

	if a.browser != nil {
		a.browser.Close()
	}

	if a.launcher != nil {
		a.launcher.Cleanup()
	}

	fmt.Println(T("browser_destroyed"))
}

func (a *Automation) isBrowserAlive() bool {
	if a.browser == nil {
		return false
	}

	_, err := a.browser.Version()
	if err != nil {
		a.logger.Debug("Browser version check failed", zap.Error(err))
		return false
	}

	if a.page != nil {
		_, err := a.page.Info()
		if err != nil {
			a.logger.Debug("Page info check failed", zap.Error(err))
			return false
		}
	}

	return true
}

// watchBrowser cancels the run when the user closes the browser window.
func (a *Automation) watchBrowser(cancel context.CancelFunc) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-a.stopChan:
			return
		case <-ticker.C:
			if !a.isBrowserAlive() {
				fmt.Println(T("browser_closed_by_user"))
				cancel()
				return
			}
		}
	}
}

func (a *Automation) setupBrowser() error {
	fmt.Println(T("browser_launching"))

	// Disable leakless mode on Windows to prevent deadlock
	// See: https://github.com/go-rod/rod/issues/853
	useLeakless := runtime.GOOS != "windows"

	chromePath, chromeExists := launcher.LookPath()

	a.launcher = launcher.New().
		Leakless(useLeakless).
		Headless(a.config.Headless).
		Set("hide-crash-restore-bubble").
		Delete("enable-automation")

	// The profile keeps the store session between runs, so a manual login
	// is only needed when it expires.
	if a.config.BrowserProfilePath != "" {
		a.launcher = a.launcher.UserDataDir(a.config.BrowserProfilePath)
		a.logger.Debug("Browser profile path set", zap.String("path", a.config.BrowserProfilePath))
	}

	if chromeExists {
		a.launcher = a.launcher.Bin(chromePath)
		fmt.Println(T("browser_using_system_chrome"))
		a.logger.Debug("Chrome binary set", zap.String("path", chromePath))
	} else {
		fmt.Println(T("browser_chrome_not_found"))
	}

	url, err := a.launcher.Launch()
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "Opening in existing browser session") ||
			strings.Contains(errMsg, "ProcessSingleton") ||
			strings.Contains(errMsg, "SingletonLock") {
			fmt.Println(T("error_chrome_already_running_header"))
			fmt.Println(T("error_chrome_close_all"))
			return fmt.Errorf("browser profile %s is locked by another Chrome: %w", a.config.BrowserProfilePath, err)
		}

		return fmt.Errorf("failed to launch browser: %w", err)
	}

	a.browser = rod.New().ControlURL(url)
	if err := a.browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	fmt.Println(T("browser_launched"))
	return nil
}

// openPage creates the stealth tab the whole run works in.
func (a *Automation) openPage() (*rodPage, error) {
	var err error
	a.page, err = stealth.Page(a.browser)
	if err != nil {
		return nil, fmt.Errorf("failed to create stealth page: %w", err)
	}

	err = a.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      a.config.UserAgent,
		AcceptLanguage: a.config.AcceptLanguage,
	})
	if err != nil {
		a.logger.Warn("Failed to set User-Agent", zap.Error(err))
	}

	err = a.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             a.config.ViewportWidth,
		Height:            a.config.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		a.logger.Warn("Failed to set viewport", zap.Error(err))
	}

	return newRodPage(a.page, a.config.Timeout()), nil
}

// rodPage implements Page on a rod tab.
type rodPage struct {
	page    *rod.Page
	timeout time.Duration
	poll    time.Duration
}

const (
	screenshotTimeout = 30 * time.Second
	attributeReaders  = 8
)

func newRodPage(page *rod.Page, timeout time.Duration) *rodPage {
	return &rodPage{page: page, timeout: timeout, poll: 500 * time.Millisecond}
}

func (p *rodPage) SetTimeout(d time.Duration) {
	p.timeout = d
}

func (p *rodPage) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout > 0 {
		return context.WithTimeout(ctx, p.timeout)
	}
	return context.WithCancel(ctx)
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	pg := p.page.Context(ctx)
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("waiting for %s to load: %w", url, err)
	}
	return nil
}

func (p *rodPage) WaitURL(ctx context.Context, prefix string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	ticker := time.NewTicker(p.poll)
	defer ticker.Stop()

	for {
		// The tab may be mid-navigation; a failed lookup just means try again.
		info, err := p.page.Context(ctx).Info()
		if err == nil && strings.HasPrefix(info.URL, prefix) {
			if err := p.page.Context(ctx).WaitLoad(); err != nil && ctx.Err() != nil {
				return fmt.Errorf("waiting for %s to load: %w", prefix, ctx.Err())
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", prefix, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *rodPage) URL() (string, error) {
	info, err := p.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Has(sel Selector) (bool, error) {
	root := p.page
	if sel.Frame != "" {
		has, frameEl, err := root.Has(sel.Frame)
		if err != nil || !has {
			return false, err
		}
		root, err = frameEl.Frame()
		if err != nil {
			return false, err
		}
	}

	var (
		has bool
		err error
	)
	switch {
	case sel.XPath != "":
		has, _, err = root.HasX(sel.XPath)
	case sel.Text != "":
		has, _, err = root.HasR(sel.CSS, sel.Text)
	default:
		has, _, err = root.Has(sel.CSS)
	}
	return has, err
}

// find waits for sel within the bounds of ctx.
func (p *rodPage) find(ctx context.Context, sel Selector) (*rod.Element, error) {
	root := p.page.Context(ctx)
	if sel.Frame != "" {
		frameEl, err := root.Element(sel.Frame)
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", sel.Frame, err)
		}
		fr, err := frameEl.Frame()
		if err != nil {
			return nil, fmt.Errorf("frame %s: %w", sel.Frame, err)
		}
		root = fr.Context(ctx)
	}

	var (
		el  *rod.Element
		err error
	)
	switch {
	case sel.XPath != "":
		el, err = root.ElementX(sel.XPath)
	case sel.Text != "":
		el, err = root.ElementR(sel.CSS, sel.Text)
	default:
		el, err = root.Element(sel.CSS)
	}
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", sel, err)
	}
	return el, nil
}

func (p *rodPage) Wait(ctx context.Context, sel Selector) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.find(ctx, sel)
	return err
}

func (p *rodPage) Text(ctx context.Context, sel Selector) (string, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	el, err := p.find(ctx, sel)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("reading text of %s: %w", sel, err)
	}
	return strings.TrimSpace(text), nil
}

func (p *rodPage) Click(ctx context.Context, sel Selector) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	el, err := p.find(ctx, sel)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("clicking %s: %w", sel, err)
	}
	return nil
}

func (p *rodPage) Attributes(ctx context.Context, sel Selector, attr string) ([]string, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	root := p.page.Context(ctx)
	var (
		els rod.Elements
		err error
	)
	if sel.XPath != "" {
		els, err = root.ElementsX(sel.XPath)
	} else {
		els, err = root.Elements(sel.CSS)
	}
	if err != nil {
		return nil, fmt.Errorf("elements %s: %w", sel, err)
	}

	if sel.XPath == "" && sel.Text != "" {
		re, err := regexp.Compile(sel.Text)
		if err != nil {
			return nil, fmt.Errorf("text pattern of %s: %w", sel, err)
		}
		matched := els[:0]
		for _, el := range els {
			if text, err := el.Text(); err == nil && re.MatchString(text) {
				matched = append(matched, el)
			}
		}
		els = matched
	}

	values := make([]string, len(els))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(attributeReaders)
	for i, el := range els {
		i, el := i, el
		g.Go(func() error {
			v, err := el.Context(gctx).Attribute(attr)
			if err != nil {
				return fmt.Errorf("attribute %s of %s: %w", attr, sel, err)
			}
			if v != nil {
				values[i] = *v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

func (p *rodPage) Screenshot(fullPage bool) ([]byte, error) {
	pg := p.page.Timeout(screenshotTimeout)
	defer pg.CancelTimeout()

	return pg.Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}
