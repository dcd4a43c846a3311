package host

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Options configures how Chrome reaches the host page.
type Options struct {
	// DebugURL attaches to an already running browser (the operator's own
	// session, logged in). Empty launches a headless browser.
	DebugURL string
	// HostURL is the page to attach to or open.
	HostURL string
	// ProfileDir keeps the headless browser's login between runs.
	ProfileDir string
	// Timeout bounds each probe.
	Timeout time.Duration
}

// Chrome implements Page over the Chrome DevTools protocol.
type Chrome struct {
	tabCtx  context.Context
	cancels []context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger

	// probes share one tab, so they run one at a time
	mu sync.Mutex
}

// NewChrome attaches to (or launches) a browser and selects the host tab.
func NewChrome(ctx context.Context, opts Options, logger *zap.Logger) (*Chrome, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if strings.TrimSpace(opts.DebugURL) != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.DebugURL)
	} else {
		if _, err := exec.LookPath("chromium-browser"); err != nil {
			if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
				if _, chromeErr := exec.LookPath("google-chrome"); chromeErr != nil {
					return nil, fmt.Errorf("%w: no chrome or chromium binary found", ErrUnavailable)
				}
			}
		}
		execOpts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if opts.ProfileDir != "" {
			execOpts = append(execOpts, chromedp.UserDataDir(opts.ProfileDir))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, execOpts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	c := &Chrome{
		timeout: opts.Timeout,
		logger:  logger.Named("host"),
		cancels: []context.CancelFunc{browserCancel, allocCancel},
	}
	if err := chromedp.Run(browserCtx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: start browser: %v", ErrUnavailable, err)
	}

	tabCtx := browserCtx
	if opts.HostURL != "" {
		targets, err := chromedp.Targets(browserCtx)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("%w: list targets: %v", ErrUnavailable, err)
		}
		attached := false
		for _, target := range targets {
			if target.Type == "page" && strings.HasPrefix(target.URL, opts.HostURL) {
				var cancel context.CancelFunc
				tabCtx, cancel = chromedp.NewContext(browserCtx, chromedp.WithTargetID(target.TargetID))
				c.cancels = append([]context.CancelFunc{cancel}, c.cancels...)
				attached = true
				c.logger.Info("attached to host tab", zap.String("url", target.URL))
				break
			}
		}
		if !attached {
			if err := chromedp.Run(browserCtx, chromedp.Navigate(opts.HostURL)); err != nil {
				c.Close()
				return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, opts.HostURL, err)
			}
			c.logger.Info("opened host page", zap.String("url", opts.HostURL))
		}
	}
	c.tabCtx = tabCtx
	return c, nil
}

// Close detaches from the tab and, for launched browsers, shuts Chrome down.
func (c *Chrome) Close() {
	for _, cancel := range c.cancels {
		cancel()
	}
}

func (c *Chrome) StructuredLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	if err := c.eval(ctx, structuredLabelsJS, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func (c *Chrome) ObjectGraphLabels(ctx context.Context) ([]Label, error) {
	var labels []Label
	if err := c.eval(ctx, objectGraphLabelsJS, &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

func (c *Chrome) ModuleSample(ctx context.Context, perSide int) ([]any, error) {
	var sample []any
	if err := c.eval(ctx, moduleSampleJS(perSide), &sample); err != nil {
		return nil, err
	}
	return sample, nil
}

func (c *Chrome) Markup(ctx context.Context) (string, error) {
	var html string
	err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("read markup: %w", err)
	}
	return html, nil
}

func (c *Chrome) ComputedColor(ctx context.Context, token string) (string, error) {
	var value string
	if err := c.eval(ctx, computedColorJS(token), &value); err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("%w: %q", ErrUnresolvedColor, token)
	}
	return value, nil
}

func (c *Chrome) ClickLabel(ctx context.Context, name string) error {
	var clicked bool
	if err := c.eval(ctx, clickLabelJS(name), &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("%w: %q", ErrLabelNotFound, name)
	}
	return nil
}

func (c *Chrome) MutationCount(ctx context.Context) (int64, error) {
	var count int64
	if err := c.eval(ctx, mutationCountJS, &count); err != nil {
		return 0, err
	}
	return count, nil
}

func (c *Chrome) eval(ctx context.Context, script string, out any) error {
	err := c.run(ctx, chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("evaluate probe: %w", err)
	}
	return nil
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	if c.tabCtx == nil {
		return ErrUnavailable
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	runCtx, cancel := context.WithTimeout(c.tabCtx, c.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if c.tabCtx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	return nil
}
