package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
)

// HeadlessRenderer renders script-heavy pages with a shared headless Chrome.
// The browser starts on first use and stays up until Close.
type HeadlessRenderer struct {
	Timeout time.Duration

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewHeadlessRenderer(timeout time.Duration) *HeadlessRenderer {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &HeadlessRenderer{Timeout: timeout}
}

func (r *HeadlessRenderer) start() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browserCtx != nil {
		select {
		case <-r.browserCtx.Done():
			r.cleanup()
		default:
			return r.browserCtx, nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	r.allocCtx, r.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	r.browserCtx, r.browserCancel = chromedp.NewContext(r.allocCtx)

	if err := chromedp.Run(r.browserCtx); err != nil {
		r.cleanup()
		return nil, err
	}
	return r.browserCtx, nil
}

func (r *HeadlessRenderer) cleanup() {
	if r.browserCancel != nil {
		r.browserCancel()
	}
	if r.allocCancel != nil {
		r.allocCancel()
	}
	r.browserCtx = nil
	r.allocCtx = nil
}

// Render implements Renderer. Each call uses its own tab.
func (r *HeadlessRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	browserCtx, err := r.start()
	if err != nil {
		return "", fmt.Errorf("start browser: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancel := context.WithTimeout(tabCtx, r.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			node, err := dom.GetDocument().Do(ctx)
			if err != nil {
				return err
			}
			html, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

func (r *HeadlessRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanup()
}
