package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

const videoPollInterval = 250 * time.Millisecond

// ChromeSession drives one headless Chrome instance.
// Each ListItems/Resolve call runs in its own tab.
type ChromeSession struct {
	config        *domain.BrowserConfig
	quality       string
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewChromeSessionFactory returns a SessionFactory that launches Chrome per session
func NewChromeSessionFactory(config *domain.BrowserConfig, quality, userAgent string, logger *zap.Logger) domain.SessionFactory {
	return func(ctx context.Context) (domain.Session, error) {
		return NewChromeSession(ctx, config, quality, userAgent, logger)
	}
}

// NewChromeSession launches the browser and waits until it accepts commands
func NewChromeSession(ctx context.Context, config *domain.BrowserConfig, quality, userAgent string, logger *zap.Logger) (*ChromeSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.WindowSize(1920, 1080),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(config.ExecPath))
	}

	// the browser outlives the caller's startup context; Close ends it
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Debugf),
	)

	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	logger.Info("Launching browser",
		zap.String("command", ShellEscapeCommand(browserBinary(config), browserArgs(config, userAgent)...)))

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", domain.ErrSessionUnavailable, err)
	}

	return &ChromeSession{
		config:        config,
		quality:       quality,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// newTab opens a tab that is closed when ctx is done or the returned cancel runs
func (s *ChromeSession) newTab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, cancel := chromedp.NewContext(s.browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	return tabCtx, func() {
		stop()
		cancel()
	}
}

type listedItem struct {
	Locator string `json:"locator"`
	Title   string `json:"title"`
}

// ListItems loads the source page and collects every list entry carrying a data-file locator
func (s *ChromeSession) ListItems(ctx context.Context, pageURL string) ([]domain.Item, error) {
	tabCtx, cancel := s.newTab(ctx)
	defer cancel()

	if err := chromedp.Run(tabCtx, chromedp.Navigate(pageURL)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: navigate %s: %w", domain.ErrPageLoad, pageURL, err)
	}

	// the list is rendered client-side; a page without it simply has no items
	waitCtx, cancelWait := context.WithTimeout(tabCtx, s.config.PageWait)
	err := chromedp.Run(waitCtx, chromedp.WaitReady(s.config.ListSelector, chromedp.ByQuery))
	cancelWait()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("Item list did not appear",
			zap.String("page_url", pageURL),
			zap.String("selector", s.config.ListSelector),
			zap.Duration("waited", s.config.PageWait))
	}

	var listed []listedItem
	if err := chromedp.Run(tabCtx, chromedp.Evaluate(listItemsScript(s.config.ListSelector), &listed)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: read item list: %w", domain.ErrPageLoad, err)
	}

	items := make([]domain.Item, 0, len(listed))
	for i, li := range listed {
		items = append(items, domain.Item{
			Locator: strings.TrimSpace(li.Locator),
			Title:   strings.TrimSpace(li.Title),
			Ordinal: i + 1,
			Page:    pageURL,
		})
	}

	s.logger.Info("Listed items", zap.String("page_url", pageURL), zap.Int("count", len(items)))
	return items, nil
}

// Resolve opens the player page, applies the quality preference and reads the video source
func (s *ChromeSession) Resolve(ctx context.Context, item domain.Item) (domain.ResolvedStream, error) {
	if _, err := domain.ValidateLocator(item.Locator); err != nil {
		return domain.ResolvedStream{}, err
	}

	tabCtx, cancel := s.newTab(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(tabCtx, s.config.ResolveTimeout)
	defer cancelTimeout()

	var src, title string
	err := chromedp.Run(timeoutCtx, append(playerHeaders(item),
		chromedp.Navigate(item.Locator),
		chromedp.Evaluate(qualityScript(s.config.QualityStorageKey, s.quality), nil),
		chromedp.Reload(),
		chromedp.Poll(videoSourceScript, &src, chromedp.WithPollingInterval(videoPollInterval)),
		chromedp.Title(&title),
	)...)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return domain.ResolvedStream{}, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded) || timeoutCtx.Err() != nil:
			return domain.ResolvedStream{}, fmt.Errorf("%w: %s after %s", domain.ErrResolutionTimeout, item.Locator, s.config.ResolveTimeout)
		default:
			return domain.ResolvedStream{}, fmt.Errorf("resolve %s: %w", item.Locator, err)
		}
	}

	stream, err := domain.NewResolvedStream(item, src, item.Locator, title)
	if err != nil {
		return domain.ResolvedStream{}, err
	}

	s.logger.Info("Resolved stream",
		zap.Int("ordinal", item.Ordinal),
		zap.String("stream_url", stream.StreamURL),
		zap.String("referer", stream.RefererURL),
		zap.String("title", stream.Title))

	return stream, nil
}

// Close shuts the browser down
func (s *ChromeSession) Close() error {
	err := chromedp.Cancel(s.browserCtx)
	s.browserCancel()
	s.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

// playerHeaders makes the player page see the listing page as its referer,
// the way it does when embedded there
func playerHeaders(item domain.Item) []chromedp.Action {
	if item.Page == "" {
		return nil
	}
	return []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Referer": item.Page}),
	}
}

const videoSourceScript = `(() => {
	const v = document.querySelector('video');
	return v && v.src ? v.src : null;
})()`

// listItemsScript returns the locators of every child carrying data-file under the selector
func listItemsScript(selector string) string {
	return fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).flatMap(list =>
	Array.from(list.children)
		.filter(el => el.getAttribute('data-file'))
		.map(el => ({locator: el.getAttribute('data-file'), title: el.getAttribute('data-title') || ''})))`,
		jsString(selector))
}

func qualityScript(key, quality string) string {
	return fmt.Sprintf(`localStorage.setItem(%s, %s)`, jsString(key), jsString(quality))
}

// jsString quotes s as a JavaScript string literal
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func browserBinary(config *domain.BrowserConfig) string {
	if config.ExecPath != "" {
		return config.ExecPath
	}
	return "chrome"
}

func browserArgs(config *domain.BrowserConfig, userAgent string) []string {
	args := []string{"--disable-gpu", "--mute-audio", "--window-size=1920,1080"}
	if config.Headless {
		args = append(args, "--headless")
	}
	if userAgent != "" {
		args = append(args, "--user-agent="+userAgent)
	}
	return args
}
