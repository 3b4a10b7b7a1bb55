package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
)

const (
	minWebContentLength = 100
	maxWebBodyBytes     = 10 << 20
	maxRedirects        = 5
	userAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

const strippedElements = "script, style, nav, header, footer, aside, iframe, noscript"

// main content candidates, first match wins, body is the fallback
var contentSelectors = []string{
	"article",
	"main",
	"[class*='article'], [class*='content'], [class*='post'], [class*='entry']",
	"[id*='article'], [id*='content'], [id*='post'], [id*='entry'], [id*='main']",
}

type Web struct {
	client *http.Client
	retry  retry.Config
	logger *logger_i.Logger
	// tests serve pages from httptest on loopback
	allowLoopback bool
}

// NewWeb copies client so every redirect hop is validated and, when the transport is an
// *http.Transport, every dialed address is checked after name resolution.
func NewWeb(client *http.Client, r retry.Config) *Web {
	w := &Web{retry: r, logger: logger_i.NewLogger("extract_web")}
	guarded := *client
	if t, ok := client.Transport.(*http.Transport); ok {
		t = t.Clone()
		t.DialContext = (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   w.checkDial,
		}).DialContext
		guarded.Transport = t
	}
	guarded.CheckRedirect = w.checkRedirect
	w.client = &guarded
	return w
}

func unsafeIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast()
}

// ValidateURL only allows http(s) URLs that do not point at this host or a private network.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ragErrors.Terminal(ragErrors.KindValidation, err, "invalid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ragErrors.New(ragErrors.KindValidation, "only http and https urls are supported")
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return ragErrors.New(ragErrors.KindValidation, "unsafe url host")
	}
	if ip := net.ParseIP(host); ip != nil && unsafeIP(ip) {
		return ragErrors.New(ragErrors.KindValidation, "unsafe url host")
	}
	return nil
}

func (w *Web) checkURL(u *url.URL) error {
	if w.allowLoopback {
		if ip := net.ParseIP(u.Hostname()); ip != nil && ip.IsLoopback() {
			return nil
		}
	}
	return ValidateURL(u.String())
}

func (w *Web) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return ragErrors.New(ragErrors.KindExtraction, fmt.Sprintf("stopped after %d redirects", maxRedirects))
	}
	return w.checkURL(req.URL)
}

// checkDial sees the resolved address, so host names pointing at private networks are caught.
func (w *Web) checkDial(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return ragErrors.Terminal(ragErrors.KindValidation, err, "unsafe url host")
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ragErrors.New(ragErrors.KindValidation, "unsafe url host")
	}
	if w.allowLoopback && ip.IsLoopback() {
		return nil
	}
	if unsafeIP(ip) {
		return ragErrors.New(ragErrors.KindValidation, "url resolves to a private address")
	}
	return nil
}

func (w *Web) Extract(ctx context.Context, src Source) (Result, error) {
	u, err := url.Parse(src.Location)
	if err != nil {
		return Result{}, ragErrors.Terminal(ragErrors.KindValidation, err, "invalid url")
	}
	if err := w.checkURL(u); err != nil {
		return Result{}, err
	}
	log := w.logger.WithContext(ctx).With("url", src.Location)
	log.Info("Scraping URL")

	doc, err := retry.DoWithResult(ctx, w.retry, func(ctx context.Context) (*goquery.Document, error) {
		return w.fetch(ctx, src.Location)
	})
	if err != nil {
		return Result{}, err
	}

	res := Result{Title: pageTitle(doc), Author: metaContent(doc, "meta[name='author']")}
	doc.Find(strippedElements).Remove()

	var main *goquery.Selection
	for _, sel := range contentSelectors {
		if found := doc.Find(sel).First(); found.Length() > 0 {
			main = found
			break
		}
	}
	if main == nil {
		main = doc.Find("body")
	}

	var b strings.Builder
	renderBlocks(main, &b)
	res.Text = Normalize(collapseSpaces(b.String()))
	if utf8.RuneCountInString(res.Text) < minWebContentLength {
		return Result{}, ragErrors.New(ragErrors.KindExtraction, "insufficient content extracted from url")
	}
	if res.Title == "" {
		res.Title = "Untitled Article"
	}
	log.Info("Scraped", "runes", utf8.RuneCountInString(res.Text))
	return res, nil
}

func (w *Web) fetch(ctx context.Context, target string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, ragErrors.Terminal(ragErrors.KindValidation, err, "invalid url")
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := w.client.Do(req)
	if err != nil {
		var refused *ragErrors.Error
		if errors.As(err, &refused) {
			return nil, refused
		}
		if retry.TransientNetwork(err) {
			return nil, ragErrors.Transient(ragErrors.KindExtraction, err, "failed to fetch url")
		}
		return nil, ragErrors.Terminal(ragErrors.KindExtraction, err, "failed to fetch url")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if retry.TransientHTTPStatus(resp.StatusCode) {
			return nil, ragErrors.Transient(ragErrors.KindExtraction, err, "failed to fetch url")
		}
		return nil, ragErrors.Terminal(ragErrors.KindExtraction, err, "failed to fetch url")
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxWebBodyBytes))
	if err != nil {
		return nil, ragErrors.Terminal(ragErrors.KindExtraction, err, "failed to parse html")
	}
	return doc, nil
}

// pageTitle prefers og:title over <title> over the first h1.
func pageTitle(doc *goquery.Document) string {
	if t := metaContent(doc, "meta[property='og:title']"); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

// renderBlocks writes the text of sel, putting block elements on their own lines and
// headings as markdown headings so the chunker can pick up sections.
func renderBlocks(sel *goquery.Selection, b *strings.Builder) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch name {
		case "#text":
			b.WriteString(s.Text())
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(name[1] - '0')
			b.WriteString("\n\n" + strings.Repeat("#", level) + " " + strings.Join(strings.Fields(s.Text()), " ") + "\n\n")
		case "br":
			b.WriteString("\n")
		case "p", "div", "section", "article", "main", "blockquote", "pre", "ul", "ol", "table", "figure":
			b.WriteString("\n\n")
			renderBlocks(s, b)
			b.WriteString("\n\n")
		case "li", "tr", "dt", "dd":
			b.WriteString("\n")
			renderBlocks(s, b)
			b.WriteString("\n")
		default:
			renderBlocks(s, b)
		}
	})
}

// collapseSpaces squeezes horizontal whitespace inside each line, line breaks are kept.
func collapseSpaces(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.Join(lines, "\n")
}
