package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const (
	chromiumRenderTimeout = 30 * time.Second
	defaultMaxTabs        = 3
)

var ErrEmptyDocument = errors.New("empty_html_document")

// ChromiumRenderer prints HTML through one headless browser shared by the
// process. The browser is launched on first use and tabs are bounded.
type ChromiumRenderer struct {
	log     *zap.Logger
	bin     string
	tabSem  chan struct{}
	mu      sync.Mutex
	browser *rod.Browser

	newProcess func(bin string) browserProcess
	dial       func(controlURL string) (*rod.Browser, error)
}

// browserProcess is the launched Chromium process.
type browserProcess interface {
	Launch() (string, error)
	Kill()
}

func launchHeadless(bin string) browserProcess {
	l := launcher.New().
		Headless(true).
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-dev-shm-usage")
	if bin != "" {
		l = l.Bin(bin)
	}
	return l
}

func dialBrowser(controlURL string) (*rod.Browser, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, err
	}
	return browser, nil
}

func NewChromiumRenderer(bin string, maxTabs int, log *zap.Logger) *ChromiumRenderer {
	if maxTabs <= 0 {
		maxTabs = defaultMaxTabs
	}
	return &ChromiumRenderer{
		log:    log.Named("pdf.chromium"),
		bin:    strings.TrimSpace(bin),
		tabSem: make(chan struct{}, maxTabs),

		newProcess: launchHeadless,
		dial:       dialBrowser,
	}
}

func (r *ChromiumRenderer) Name() string { return "chromium" }

func (r *ChromiumRenderer) Render(ctx context.Context, doc Document) ([]byte, error) {
	if strings.TrimSpace(doc.HTML) == "" {
		return nil, ErrEmptyDocument
	}

	select {
	case r.tabSem <- struct{}{}:
		defer func() { <-r.tabSem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	browser, err := r.connect()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		r.reset()
		return nil, fmt.Errorf("create tab: %w", err)
	}
	defer page.Close()

	renderCtx, cancel := context.WithTimeout(ctx, chromiumRenderTimeout)
	defer cancel()
	page = page.Context(renderCtx)

	if err := page.SetDocumentContent(doc.HTML); err != nil {
		return nil, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
	})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return io.ReadAll(stream)
}

func (r *ChromiumRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	process := r.newProcess(r.bin)
	u, err := process.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch headless browser: %w", err)
	}

	browser, err := r.dial(u)
	if err != nil {
		process.Kill()
		return nil, fmt.Errorf("connect to headless browser: %w", err)
	}
	r.log.Info("headless browser started", zap.Int("max_tabs", cap(r.tabSem)))
	r.browser = browser
	return browser, nil
}

// reset drops a browser that can no longer open tabs so the next render
// relaunches it.
func (r *ChromiumRenderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		_ = r.browser.Close()
		r.browser = nil
	}
}

func (r *ChromiumRenderer) Close() error {
	r.reset()
	return nil
}
