package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Status is the claim outcome stored for an item. StatusNone means no outcome
// has been recorded yet.
type Status string

const (
	StatusNone    Status = ""
	StatusExisted Status = "existed"
	StatusClaimed Status = "claimed"
	StatusFailed  Status = "failed"
	StatusManual  Status = "manual"
)

// ItemRecord is one ledger entry. Title, URL and the creation Time are written
// once; Time is refreshed only when the item becomes claimed.
type ItemRecord struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Time   string `json:"time"`
	Status Status `json:"status,omitempty"`
}

// MarkOwned records that the store shows the item as already in the library.
func (r *ItemRecord) MarkOwned() bool {
	switch r.Status {
	case StatusNone:
		r.Status = StatusExisted
	case StatusFailed:
		r.Status = StatusManual
	default:
		return false
	}
	return true
}

// MarkClaimed records a successful purchase at now.
func (r *ItemRecord) MarkClaimed(now time.Time) bool {
	if r.Status != StatusNone && r.Status != StatusFailed {
		return false
	}
	r.Status = StatusClaimed
	r.Time = formatDatetime(now)
	return true
}

// MarkFailed records a purchase attempt that could not be completed.
func (r *ItemRecord) MarkFailed() bool {
	if r.Status != StatusNone && r.Status != StatusFailed {
		return false
	}
	r.Status = StatusFailed
	return true
}

// AccountItems maps item id to record for one account.
type AccountItems map[string]*ItemRecord

// Observe returns the record for id, creating it on first sight. An existing
// record keeps its first-seen title, url and time; an empty title only means
// the detail page never rendered, so the first title actually read fills it.
func (a AccountItems) Observe(id, title, itemURL string, now time.Time) (*ItemRecord, bool) {
	if rec, ok := a[id]; ok {
		if rec.Title == "" {
			rec.Title = title
		}
		return rec, false
	}
	rec := &ItemRecord{Title: title, URL: itemURL, Time: formatDatetime(now)}
	a[id] = rec
	return rec, true
}

// legacyLedger is the flat document written before records were split per account.
type legacyLedger struct {
	Claimed []ItemRecord      `json:"claimed"`
	Runs    []json.RawMessage `json:"runs"`
}

const (
	legacyClaimedKey = "claimed"
	legacyRunsKey    = "runs"
)

// Ledger is the per-account claim record backed by one JSON file.
type Ledger struct {
	path     string
	accounts map[string]AccountItems
	legacy   *legacyLedger
	logger   *zap.Logger
}

// LoadLedger reads the ledger at path. A missing file yields an empty ledger.
func LoadLedger(path string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Ledger{
		path:     path,
		accounts: make(map[string]AccountItems),
		logger:   logger,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return l, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse ledger %s: %w", path, err)
	}

	legacy, err := splitLegacy(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse legacy ledger %s: %w", path, err)
	}
	l.legacy = legacy

	for account, raw := range doc {
		var items AccountItems
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to parse ledger entries for %q: %w", account, err)
		}
		if items == nil {
			items = make(AccountItems)
		}
		l.accounts[account] = items
	}
	return l, nil
}

// splitLegacy removes the flat-format keys from doc and returns them, or nil
// when doc is already per account.
func splitLegacy(doc map[string]json.RawMessage) (*legacyLedger, error) {
	rawClaimed, hasClaimed := doc[legacyClaimedKey]
	if !hasClaimed {
		return nil, nil
	}
	// A per-account document has objects at the top level, the flat one an array.
	if trimmed := strings.TrimSpace(string(rawClaimed)); !strings.HasPrefix(trimmed, "[") {
		return nil, nil
	}

	legacy := &legacyLedger{}
	if err := json.Unmarshal(rawClaimed, &legacy.Claimed); err != nil {
		return nil, err
	}
	if rawRuns, ok := doc[legacyRunsKey]; ok {
		if err := json.Unmarshal(rawRuns, &legacy.Runs); err != nil {
			return nil, err
		}
		delete(doc, legacyRunsKey)
	}
	delete(doc, legacyClaimedKey)
	return legacy, nil
}

// migrateLegacy converts flat claimed entries into per-account items keyed by
// the last segment of their URL.
func migrateLegacy(legacy *legacyLedger) AccountItems {
	items := make(AccountItems, len(legacy.Claimed))
	for i := range legacy.Claimed {
		rec := legacy.Claimed[i]
		id := itemID(rec.URL)
		if id == "" {
			continue
		}
		if _, dup := items[id]; dup {
			continue
		}
		items[id] = &rec
	}
	return items
}

// Account returns the records of account, migrating a pending legacy
// document into it on first use.
func (l *Ledger) Account(account string) AccountItems {
	items, ok := l.accounts[account]
	if !ok {
		items = make(AccountItems)
		l.accounts[account] = items
	}

	if l.legacy != nil {
		migrated := migrateLegacy(l.legacy)
		merged := 0
		for id, rec := range migrated {
			if _, exists := items[id]; exists {
				continue
			}
			items[id] = rec
			merged++
		}
		l.logger.Info("Migrated legacy ledger",
			zap.String("account", account),
			zap.Int("entries", len(l.legacy.Claimed)),
			zap.Int("merged", merged))
		l.legacy = nil
	}
	return items
}

// Accounts lists account names in sorted order.
func (l *Ledger) Accounts() []string {
	names := make([]string, 0, len(l.accounts))
	for name := range l.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the file the ledger flushes to.
func (l *Ledger) Path() string {
	return l.path
}

// Flush writes the whole ledger, replacing the file atomically.
func (l *Ledger) Flush() error {
	doc := make(map[string]any, len(l.accounts)+2)
	for account, items := range l.accounts {
		doc[account] = items
	}
	// An unclaimed legacy document is kept as it was until an account picks it up.
	if l.legacy != nil {
		doc[legacyClaimedKey] = l.legacy.Claimed
		if l.legacy.Runs != nil {
			doc[legacyRunsKey] = l.legacy.Runs
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(l.path), filepath.Base(l.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}

// itemID derives the stable item id from a detail-page URL: its final path segment.
func itemID(itemURL string) string {
	p := itemURL
	if u, err := url.Parse(itemURL); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}
