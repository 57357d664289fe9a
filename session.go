package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

// SessionGuard makes sure the tab is signed in to the store before anything
// is claimed.
type SessionGuard struct {
	config *Config
	logger *zap.Logger
	alert  io.Writer
}

func NewSessionGuard(config *Config, logger *zap.Logger) *SessionGuard {
	return &SessionGuard{config: config, logger: logger.Named("session"), alert: os.Stderr}
}

// EnsureSignedIn returns the signed-in account name. While the store shows a
// sign-in affordance it hands the tab to the operator: timeouts are lifted,
// the login page is opened and the guard blocks until the store redirects
// back to the claim page. The login page reloads itself on a failed attempt,
// so only the absence of the affordance counts as signed in.
func (g *SessionGuard) EnsureSignedIn(ctx context.Context, page Page) (string, error) {
	sel := g.config.Selectors

	for attempt := 1; ; attempt++ {
		signedOut, err := page.Has(sel.SignIn)
		if err != nil {
			return "", fmt.Errorf("checking sign-in state: %w", err)
		}
		if !signedOut {
			break
		}

		g.logger.Warn("Not signed in, waiting for manual login",
			zap.Int("attempt", attempt),
			zap.String("login_url", g.config.LoginURL))
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Fprintln(g.alert, red(T("login_required_header")))
		fmt.Fprintln(g.alert, red(T("login_instructions")))

		page.SetTimeout(0)
		err = g.awaitLogin(ctx, page)
		page.SetTimeout(g.config.Timeout())
		if err != nil {
			return "", err
		}
	}

	account, err := page.Text(ctx, sel.UserName)
	if err != nil {
		return "", fmt.Errorf("reading account name: %w", err)
	}
	if account == "" {
		return "", fmt.Errorf("signed in but account name is empty")
	}

	fmt.Println(T("signed_in_as", account))
	g.logger.Info("Signed in", zap.String("account", account))
	return account, nil
}

func (g *SessionGuard) awaitLogin(ctx context.Context, page Page) error {
	if err := page.Navigate(ctx, g.config.LoginURL); err != nil {
		return fmt.Errorf("opening login page: %w", err)
	}
	if err := page.WaitURL(ctx, g.config.ClaimURL); err != nil {
		return fmt.Errorf("waiting for login: %w", err)
	}
	g.logger.Info("Returned to claim page after login")
	return nil
}
