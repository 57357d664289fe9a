package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultClaimURL = "https://store.epicgames.com/en-US/free-games"
	defaultLoginURL = "https://www.epicgames.com/id/login?lang=en-US&noHostRedirect=true&redirectUrl=" + defaultClaimURL
)

type Config struct {
	ClaimURL        string `yaml:"claim_url"`
	LoginURL        string `yaml:"login_url"`
	StoreOrigin     string `yaml:"store_origin"`
	OwnedButtonText string `yaml:"owned_button_text"`
	CaptchaHelpURL  string `yaml:"captcha_help_url"`

	BrowserProfilePath string `yaml:"browser_profile_path"`
	LedgerPath         string `yaml:"ledger_path"`
	ScreenshotDir      string `yaml:"screenshot_dir"`

	TimeoutSeconds int `yaml:"timeout_seconds"`

	ViewportWidth  int    `yaml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height"`
	UserAgent      string `yaml:"user_agent"`
	AcceptLanguage string `yaml:"accept_language"`

	Headless  bool `yaml:"headless"`
	DryRun    bool `yaml:"dry_run"`
	DebugMode bool `yaml:"debug_mode"`

	Selectors SelectorConfig `yaml:"selectors"`
}

type SelectorConfig struct {
	CookieAccept   Selector `yaml:"cookie_accept"`
	SignIn         Selector `yaml:"sign_in"`
	UserName       Selector `yaml:"user_name"`
	FreeItemLink   Selector `yaml:"free_item_link"`
	PurchaseButton Selector `yaml:"purchase_button"`
	Title          Selector `yaml:"title"`
	ContinueButton Selector `yaml:"continue_button"`
	PurchaseFrame  Selector `yaml:"purchase_frame"`
	PlaceOrder     Selector `yaml:"place_order"`
	AgreeButton    Selector `yaml:"agree_button"`
	Confirmation   Selector `yaml:"confirmation"`
}

const (
	purchaseFrameCSS      = "#webPurchaseContainer iframe"
	defaultTimeoutSeconds = 20
)

func DefaultConfig() *Config {
	userDataDir := getUserDataDir()

	return &Config{
		ClaimURL:           defaultClaimURL,
		LoginURL:           defaultLoginURL,
		StoreOrigin:        "https://store.epicgames.com",
		OwnedButtonText:    "in library",
		CaptchaHelpURL:     "https://www.hcaptcha.com/accessibility",
		BrowserProfilePath: filepath.Join(userDataDir, "browser"),
		LedgerPath:         filepath.Join(userDataDir, "epic-games.json"),
		ScreenshotDir:      filepath.Join(userDataDir, "screenshots", "epic-games"),
		TimeoutSeconds:     defaultTimeoutSeconds,
		ViewportWidth:      1280,
		ViewportHeight:     1280,
		UserAgent:          "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
		AcceptLanguage:     "en-US",
		Headless:           false,
		DryRun:             false,
		DebugMode:          false,
		Selectors: SelectorConfig{
			CookieAccept:   Selector{CSS: "button", Text: "Accept All Cookies"},
			SignIn:         Selector{CSS: `a[role="button"]`, Text: "Sign In"},
			UserName:       Selector{CSS: "#user span"},
			FreeItemLink:   Selector{XPath: `//a[.//span[normalize-space(text())="Free Now"]]`},
			PurchaseButton: Selector{XPath: `//button[@data-testid="purchase-cta-button"][not(contains(.,"Loading"))]`},
			Title:          Selector{CSS: "h1 div"},
			ContinueButton: Selector{CSS: "button", Text: "Continue"},
			PurchaseFrame:  Selector{CSS: purchaseFrameCSS},
			PlaceOrder:     Selector{Frame: purchaseFrameCSS, CSS: "button", Text: "Place Order"},
			AgreeButton:    Selector{Frame: purchaseFrameCSS, CSS: "button", Text: "I Agree"},
			Confirmation:   Selector{XPath: `//*[contains(text(),"Thank you for buying")]`},
		},
	}
}

// Timeout is the bound applied to every browser wait.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := config.Save(path); err != nil {
			return nil, err
		}
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
	}

	if config.BrowserProfilePath != "" {
		if err := os.MkdirAll(config.BrowserProfilePath, 0755); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnv loads .env files (without overriding the real environment) and
// applies the operating parameters that are sourced from the environment.
func (c *Config) ApplyEnv(envFiles ...string) {
	if os.Getenv("NO_DOTENV") != "1" {
		if len(envFiles) == 0 {
			envFiles = []string{".env"}
		}
		for _, f := range envFiles {
			_ = godotenv.Load(f)
		}
	}

	// Zero would lift every bound; only the manual login wait runs without one.
	if v, ok := envInt("TIMEOUT"); ok && v > 0 {
		c.TimeoutSeconds = v
	}
	if os.Getenv("DRYRUN") != "" {
		c.DryRun = true
	}
	// Leave room for the window frame around the page.
	if v, ok := envInt("SCREEN_WIDTH"); ok && v > 80 {
		c.ViewportWidth = v - 80
	}
	if v, ok := envInt("SCREEN_HEIGHT"); ok && v > 0 {
		c.ViewportHeight = v
	}
	if os.Getenv("PWDEBUG") == "1" {
		c.DebugMode = true
		c.Headless = false
	}
}

func envInt(key string) (int, bool) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
