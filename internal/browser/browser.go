// Package browser hosts the probe page: it launches Chromium through rod and
// exposes the page as a script evaluator and user-agent source.
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"telemetry-client/internal/config"
)

const navigateTimeout = 30 * time.Second

type Browser struct {
	browser *rod.Browser
	config  *config.BrowserConfig
	logger  zerolog.Logger
}

func NewBrowser(cfg *config.BrowserConfig, logger zerolog.Logger) (*Browser, error) {
	logger = logger.With().Str("component", "browser").Logger()
	logger.Info().Msg("Initializing browser")

	l := launcher.New()

	// A persistent profile keeps the page's storage scope across runs
	if cfg.UserDataDir != "" {
		if err := os.MkdirAll(cfg.UserDataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create user data directory: %w", err)
		}
		absPath, err := filepath.Abs(cfg.UserDataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for user data dir: %w", err)
		}
		l = l.UserDataDir(absPath)
	}

	l = l.Headless(cfg.Headless)
	if cfg.Headless {
		logger.Info().Msg("Running in headless mode")
	} else {
		logger.Info().Msg("Running in headed mode (visible browser)")
	}

	l = l.Set("no-first-run")
	l = l.Set("no-default-browser-check")
	l = l.Set("disable-dev-shm-usage")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	logger.Info().Msg("Browser initialized successfully")

	return &Browser{
		browser: browser,
		config:  cfg,
		logger:  logger,
	}, nil
}

// NewPage creates a blank page, through the stealth layer when configured
func (b *Browser) NewPage() (*rod.Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if b.config.Stealth {
		b.logger.Debug().Msg("Creating new page with stealth")
		page, err = stealth.Page(b.browser)
	} else {
		page, err = b.browser.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  b.config.ViewportWidth,
		Height: b.config.ViewportHeight,
	})
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to set viewport")
	}

	return page, nil
}

// Navigate loads url and waits for the load event
func (b *Browser) Navigate(ctx context.Context, page *rod.Page, url string) error {
	b.logger.Debug().Str("url", url).Msg("Navigating to URL")

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate: %w", err)
	}

	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn().Err(err).Msg("WaitLoad failed, continuing anyway")
	}

	return nil
}

// Open creates a page, navigates it to url and returns it as a probe runtime
func (b *Browser) Open(ctx context.Context, url string) (*Runtime, error) {
	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}
	if err := b.Navigate(ctx, page, url); err != nil {
		page.Close()
		return nil, err
	}
	return NewRuntime(page, b.logger), nil
}

// Close closes the browser
func (b *Browser) Close() error {
	b.logger.Info().Msg("Closing browser")
	return b.browser.Close()
}
