package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxGateDismissals bounds how often an interstitial on the detail page is
// dismissed before the purchase button is trusted.
const maxGateDismissals = 3

// Claimer drives one item from its detail page to an outcome in the ledger.
type Claimer struct {
	config   *Config
	reporter ChallengeReporter
	logger   *zap.Logger
	now      func() time.Time
}

func NewClaimer(config *Config, reporter ChallengeReporter, logger *zap.Logger) *Claimer {
	return &Claimer{
		config:   config,
		reporter: reporter,
		logger:   logger.Named("claim"),
		now:      time.Now,
	}
}

// Claim visits itemURL and reconciles what the store shows with the item's
// record in items. A detail page that does not render and problems in the
// purchase phase end as a failed record and a nil error so the run moves on;
// an error is returned only when the run is being cancelled.
func (c *Claimer) Claim(ctx context.Context, page Page, account string, items AccountItems, itemURL string) error {
	log := c.logger.With(zap.String("account", account), zap.String("url", itemURL))

	buttonText, title, err := c.readDetailPage(ctx, page, itemURL, log)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("reading %s: %w", itemURL, err)
	}

	// An unreadable page may still show the previous item, so its URL is not trusted.
	current := itemURL
	if err == nil {
		if u, urlErr := page.URL(); urlErr == nil && u != "" {
			current = u
		}
	}
	id := itemID(current)

	rec, created := items.Observe(id, title, current, c.now())
	if !created && rec.URL != current {
		log.Warn("Item id already recorded under another url, keeping the first",
			zap.String("item", id),
			zap.String("recorded_url", rec.URL),
			zap.String("seen_url", current))
	}
	log = log.With(zap.String("item", id), zap.String("title", rec.Title))
	log.Debug("Observed item", zap.Bool("created", created), zap.String("status", string(rec.Status)))
	switch {
	case err != nil && c.config.DryRun:
		log.Warn("Dry run, detail page not readable", zap.String("branch", "dry_run"), zap.Error(err))
		return nil
	case err != nil:
		c.recordFailure(page, rec, "unreadable", err, log)
		return nil
	}
	fmt.Println(T("current_free_item", title))

	c.saveBaseline(page, id, log)

	if strings.EqualFold(buttonText, c.config.OwnedButtonText) {
		previous := rec.Status
		changed := rec.MarkOwned()
		fmt.Println(T("already_in_library"))
		log.Info("Already in library",
			zap.String("branch", "owned"),
			zap.String("previous", string(previous)),
			zap.String("status", string(rec.Status)),
			zap.Bool("changed", changed))
		return nil
	}

	fmt.Println(T("not_in_library"))
	err = c.purchase(ctx, page, log)
	switch {
	case errors.Is(err, errDryRun):
		fmt.Println(T("dry_run_stop"))
		log.Info("Dry run, order not placed", zap.String("branch", "dry_run"))
	case err != nil && ctx.Err() != nil:
		return fmt.Errorf("claiming %s: %w", id, err)
	case err != nil && c.config.DryRun:
		log.Warn("Dry run checkout did not open", zap.String("branch", "dry_run"), zap.Error(err))
	case err != nil:
		c.recordFailure(page, rec, "challenge", err, log)
	default:
		previous := rec.Status
		if !rec.MarkClaimed(c.now()) {
			log.Warn("Claimed, keeping recorded status", zap.String("status", string(previous)))
		}
		fmt.Println(T("claimed_successfully"))
		log.Info("Claimed", zap.String("branch", "claimed"), zap.String("previous", string(previous)))
	}
	return nil
}

// readDetailPage opens itemURL and returns its purchase button text and title.
func (c *Claimer) readDetailPage(ctx context.Context, page Page, itemURL string, log *zap.Logger) (string, string, error) {
	if err := page.Navigate(ctx, itemURL); err != nil {
		return "", "", err
	}
	buttonText, err := c.readPurchaseButton(ctx, page, log)
	if err != nil {
		return "", "", err
	}
	title, err := page.Text(ctx, c.config.Selectors.Title)
	if err != nil {
		return "", "", fmt.Errorf("reading title: %w", err)
	}
	return buttonText, title, nil
}

// readPurchaseButton returns the purchase button text once the page has
// finished loading it, dismissing an age gate in front of it.
func (c *Claimer) readPurchaseButton(ctx context.Context, page Page, log *zap.Logger) (string, error) {
	sel := c.config.Selectors

	text, err := page.Text(ctx, sel.PurchaseButton)
	if err != nil {
		return "", fmt.Errorf("waiting for purchase button: %w", err)
	}

	for i := 0; i < maxGateDismissals; i++ {
		gated, err := page.Has(sel.ContinueButton)
		if err != nil {
			return "", fmt.Errorf("checking age gate: %w", err)
		}
		if !gated {
			break
		}
		fmt.Println(T("age_gate"))
		log.Info("Dismissing age gate", zap.Int("attempt", i+1))
		if err := page.Click(ctx, sel.ContinueButton); err != nil {
			return "", fmt.Errorf("dismissing age gate: %w", err)
		}
		if text, err = page.Text(ctx, sel.PurchaseButton); err != nil {
			return "", fmt.Errorf("waiting for purchase button: %w", err)
		}
	}
	return text, nil
}

// purchase walks the checkout after GET. Both branch points race two
// mutually exclusive UI states and continue with whichever shows first.
func (c *Claimer) purchase(ctx context.Context, page Page, log *zap.Logger) error {
	sel := c.config.Selectors
	timeout := c.config.Timeout()

	if err := page.Click(ctx, sel.PurchaseButton); err != nil {
		return fmt.Errorf("clicking get: %w", err)
	}

	// "Device not supported" and similar notices come before the checkout iframe.
	first, err := AwaitFirst(ctx, timeout,
		waitFor(page, sel.ContinueButton),
		waitFor(page, sel.PurchaseFrame))
	if err != nil {
		return fmt.Errorf("waiting for checkout: %w", err)
	}
	log.Debug("Checkout opened", zap.Int("first", first))
	if first == 0 {
		log.Info("Dismissing notice before checkout", zap.String("branch", "continue"))
		if err := page.Click(ctx, sel.ContinueButton); err != nil {
			return fmt.Errorf("dismissing checkout notice: %w", err)
		}
	}

	if c.config.DryRun {
		return errDryRun
	}

	if err := page.Click(ctx, sel.PlaceOrder); err != nil {
		return fmt.Errorf("placing order: %w", err)
	}

	// Only some regions are asked to agree to terms before confirmation.
	first, err = AwaitFirst(ctx, timeout,
		waitFor(page, sel.AgreeButton),
		waitFor(page, sel.Confirmation))
	if err != nil {
		return fmt.Errorf("waiting for order confirmation: %w", err)
	}
	if first == 0 {
		log.Info("Accepting regional terms", zap.String("branch", "agree"))
		if err := page.Click(ctx, sel.AgreeButton); err != nil {
			return fmt.Errorf("accepting terms: %w", err)
		}
		if err := page.Wait(ctx, sel.Confirmation); err != nil {
			return fmt.Errorf("waiting for order confirmation: %w", err)
		}
	}
	return nil
}

func (c *Claimer) recordFailure(page Page, rec *ItemRecord, branch string, cause error, log *zap.Logger) {
	log.Error("Item failed",
		zap.String("branch", branch),
		zap.String("reason", failureClass(cause)),
		zap.Error(cause))

	if png, err := page.Screenshot(true); err != nil {
		log.Warn("Failed to capture challenge screenshot", zap.Error(err))
	} else if path, err := c.reporter.Save(captchaCategory, formatDatetime(c.now()), png); err != nil {
		log.Warn("Failed to save challenge screenshot", zap.Error(err))
	} else {
		fmt.Println(T("captcha_screenshot_saved", path))
	}

	if !rec.MarkFailed() {
		log.Warn("Item failed, keeping recorded status", zap.String("status", string(rec.Status)))
	}
	if branch == "challenge" {
		fmt.Println(T("captcha_hint", c.config.CaptchaHelpURL))
	}
}

// saveBaseline keeps one screenshot per item of how it first looked.
func (c *Claimer) saveBaseline(page Page, id string, log *zap.Logger) {
	if c.reporter.Has("", id) {
		return
	}
	png, err := page.Screenshot(false)
	if err != nil {
		log.Debug("Skipping baseline screenshot", zap.Error(err))
		return
	}
	if _, err := c.reporter.Save("", id, png); err != nil {
		log.Debug("Failed to save baseline screenshot", zap.Error(err))
	}
}
