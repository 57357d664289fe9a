package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Runner claims every currently free item for the signed-in account.
type Runner struct {
	config    *Config
	ledger    *Ledger
	guard     *SessionGuard
	discovery *ItemDiscovery
	claimer   *Claimer
	logger    *zap.Logger

	cookieWait time.Duration
}

const cookieBannerWait = 2 * time.Second

func NewRunner(config *Config, ledger *Ledger, reporter ChallengeReporter, logger *zap.Logger) *Runner {
	return &Runner{
		config:    config,
		ledger:    ledger,
		guard:     NewSessionGuard(config, logger),
		discovery: NewItemDiscovery(config, logger),
		claimer:   NewClaimer(config, reporter, logger),
		logger:    logger,

		cookieWait: cookieBannerWait,
	}
}

// Run processes one pass over the promotions page. The ledger is flushed on
// every exit path, so items finished before an error stay recorded.
func (r *Runner) Run(ctx context.Context, page Page) (err error) {
	start := time.Now().Truncate(time.Millisecond)
	account := ""

	defer func() {
		if flushErr := r.ledger.Flush(); flushErr != nil {
			r.logger.Error("Failed to write ledger", zap.String("path", r.ledger.Path()), zap.Error(flushErr))
			if err == nil {
				err = flushErr
			}
			return
		}
		r.logger.Info("Ledger written", zap.String("path", r.ledger.Path()))
		if account != "" {
			r.summarize(account, start)
		}
	}()

	if err := page.Navigate(ctx, r.config.ClaimURL); err != nil {
		return fmt.Errorf("opening claim page: %w", err)
	}
	r.dismissCookieBanner(ctx, page)

	account, err = r.guard.EnsureSignedIn(ctx, page)
	if err != nil {
		return err
	}
	items := r.ledger.Account(account)

	urls, err := r.discovery.ListFreeItems(ctx, page)
	if err != nil {
		return err
	}
	fmt.Println(T("free_items_found", len(urls)))

	for _, itemURL := range urls {
		err := r.claimer.Claim(ctx, page, account, items, itemURL)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return fmt.Errorf("processing %s: %w", itemURL, err)
		}
		r.logger.Error("Item not processed, moving on",
			zap.String("url", itemURL),
			zap.String("reason", failureClass(err)),
			zap.Error(err))
	}
	return nil
}

// dismissCookieBanner clicks the cookie consent button a fresh profile shows
// shortly after the claim page loads. A profile that already consented never
// shows it, so the wait is short and its timeout is not an error.
func (r *Runner) dismissCookieBanner(ctx context.Context, page Page) {
	sel := r.config.Selectors.CookieAccept
	if _, err := AwaitFirst(ctx, r.cookieWait, waitFor(page, sel)); err != nil {
		r.logger.Debug("No cookie banner", zap.Error(err))
		return
	}
	if err := page.Click(ctx, sel); err != nil {
		r.logger.Debug("Cookie banner not dismissed", zap.Error(err))
	}
}

func (r *Runner) summarize(account string, start time.Time) {
	counts := make(map[Status]int)
	claimedNow := 0
	for _, rec := range r.ledger.Account(account) {
		counts[rec.Status]++
		if rec.Status != StatusClaimed {
			continue
		}
		if at, err := parseDatetime(rec.Time); err == nil && !at.Before(start) {
			claimedNow++
		}
	}
	r.logger.Info("Run summary",
		zap.String("account", account),
		zap.Int("claimed_this_run", claimedNow),
		zap.Int("claimed", counts[StatusClaimed]),
		zap.Int("existed", counts[StatusExisted]),
		zap.Int("failed", counts[StatusFailed]),
		zap.Int("manual", counts[StatusManual]),
		zap.Int("pending", counts[StatusNone]))
}
