package services

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"PosPrint/app/escpos"
	"PosPrint/app/models"
)

// RenderTarget is a printable HTML document used when no device is reachable
type RenderTarget struct {
	Title string
	HTML  string
}

// BrowserPrinter prints a rendered document through the system print path
type BrowserPrinter interface {
	PrintHTML(ctx context.Context, target RenderTarget, paper models.PaperFormat) error
}

// ChromePrinter renders documents in headless Chrome. PDFs sized to the
// roll width are written to the spool directory, where the OS print
// spooler (CUPS hot folder, Windows print monitor) picks them up.
type ChromePrinter struct {
	execPath string
	spoolDir string
	timeout  time.Duration
	logger   *LoggerService
}

// NewChromePrinter creates a printer. An empty execPath lets chromedp find Chrome.
func NewChromePrinter(execPath, spoolDir string, logger *LoggerService) *ChromePrinter {
	return &ChromePrinter{
		execPath: execPath,
		spoolDir: spoolDir,
		timeout:  20 * time.Second,
		logger:   logger,
	}
}

func (c *ChromePrinter) browserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
	)
	if c.execPath != "" {
		opts = append(opts, chromedp.ExecPath(c.execPath))
	}

	timeoutCtx, cancelTimeout := context.WithTimeout(ctx, c.timeout)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(timeoutCtx, opts...)
	cdpCtx, cancelCtx := chromedp.NewContext(allocCtx)
	return cdpCtx, func() {
		cancelCtx()
		cancelAlloc()
		cancelTimeout()
	}
}

// dataURL loads HTML without touching the filesystem
func dataURL(html string) string {
	return "data:text/html," + strings.ReplaceAll(url.QueryEscape(html), "+", "%20")
}

// RenderPDF renders HTML to a PDF whose page width is the paper width
func (c *ChromePrinter) RenderPDF(ctx context.Context, html string, paper models.PaperFormat) ([]byte, error) {
	cdpCtx, cancel := c.browserContext(ctx)
	defer cancel()

	widthInches := paper.WidthMM() / 25.4
	var pdf []byte
	err := chromedp.Run(cdpCtx,
		chromedp.Navigate(dataURL(html)),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, _, err := page.PrintToPDF().
				WithPaperWidth(widthInches).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed rendering pdf: %w", err)
	}
	return pdf, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// PrintHTML renders the target and spools the PDF
func (c *ChromePrinter) PrintHTML(ctx context.Context, target RenderTarget, paper models.PaperFormat) error {
	pdf, err := c.RenderPDF(ctx, target.HTML, paper)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.spoolDir, 0755); err != nil {
		return fmt.Errorf("failed to create spool directory: %w", err)
	}
	name := unsafeFileChars.ReplaceAllString(target.Title, "_")
	path := filepath.Join(c.spoolDir, fmt.Sprintf("%s_%s.pdf", time.Now().Format("20060102-150405.000"), name))
	if err := os.WriteFile(path, pdf, 0644); err != nil {
		return fmt.Errorf("failed to spool pdf: %w", err)
	}
	c.logger.LogInfo("Spooled browser print", path)
	return nil
}

// RenderRaster screenshots HTML at the paper's dot width and converts it
// into a complete raster print job
func (c *ChromePrinter) RenderRaster(ctx context.Context, html string, paper models.PaperFormat) ([]byte, error) {
	cdpCtx, cancel := c.browserContext(ctx)
	defer cancel()

	var shot []byte
	err := chromedp.Run(cdpCtx,
		chromedp.EmulateViewport(int64(paper.Dots()), 200),
		chromedp.Navigate(dataURL(html)),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			buf, err := page.CaptureScreenshot().
				WithCaptureBeyondViewport(true).
				Do(ctx)
			if err != nil {
				return err
			}
			shot = buf
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed generating image: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(shot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode PNG: %w", err)
	}
	return escpos.RasterJob(escpos.ScaleToWidth(img, paper.Dots()))
}
