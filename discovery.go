package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// ItemDiscovery finds the items the store currently gives away.
type ItemDiscovery struct {
	config *Config
	logger *zap.Logger
}

func NewItemDiscovery(config *Config, logger *zap.Logger) *ItemDiscovery {
	return &ItemDiscovery{config: config, logger: logger.Named("discovery")}
}

// ListFreeItems waits for the first free marker on the promotions page and
// returns a snapshot of every free item's absolute URL in page order. Items
// that render after the snapshot are left for the next run.
func (d *ItemDiscovery) ListFreeItems(ctx context.Context, page Page) ([]string, error) {
	sel := d.config.Selectors.FreeItemLink

	if err := page.Wait(ctx, sel); err != nil {
		return nil, fmt.Errorf("waiting for free items: %w", err)
	}

	hrefs, err := page.Attributes(ctx, sel, "href")
	if err != nil {
		return nil, fmt.Errorf("reading free item links: %w", err)
	}

	base, err := url.Parse(d.config.StoreOrigin)
	if err != nil {
		return nil, fmt.Errorf("invalid store origin %q: %w", d.config.StoreOrigin, err)
	}

	seen := make(map[string]bool, len(hrefs))
	urls := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			d.logger.Warn("Skipping unparsable item link", zap.String("href", href), zap.Error(err))
			continue
		}
		abs := base.ResolveReference(ref).String()
		if seen[abs] {
			continue
		}
		seen[abs] = true
		urls = append(urls, abs)
	}

	d.logger.Info("Free items found", zap.Int("count", len(urls)), zap.Strings("urls", urls))
	return urls, nil
}
