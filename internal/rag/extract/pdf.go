package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/dslipak/pdf"
)

// PDF extracts page by page. A page that fails or hangs is skipped, the document only
// fails when no page yields text.
type PDF struct {
	PageTimeout time.Duration
	logger      *logger_i.Logger
}

func NewPDF() *PDF {
	return &PDF{PageTimeout: config.PdfPageTimeout, logger: logger_i.NewLogger("extract_pdf")}
}

func (p *PDF) Extract(ctx context.Context, src Source) (Result, error) {
	log := p.logger.WithContext(ctx)
	log.Debug("extractPDF", "attempting extraction", src.Location)
	f, err := pdf.Open(src.Location)
	if err != nil {
		log.Error("failed opening of pdf file", "error", err)
		return Result{}, ragErrors.Terminal(ragErrors.KindExtraction, err, "failed to open pdf")
	}

	var s segments
	s.sep = "\n\n"
	numPages := f.NumPage()
	log.Debug("extractPDF", "number of pages", numPages)
	failed := 0
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		page := f.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := p.protectExtract(ctx, page)
		if err != nil {
			log.Warn("Error parsing page content", "page", i, "error", err)
			failed++
			continue
		}
		s.add(fmt.Sprintf("Page %d", i), content)
	}

	text := s.text()
	if strings.TrimSpace(text) == "" {
		return Result{}, ragErrors.New(ragErrors.KindExtraction,
			fmt.Sprintf("no extractable text in %d pages (%d failed)", numPages, failed))
	}

	res := Result{Text: text, Locators: s.locators}
	if info := f.Trailer().Key("Info"); !info.IsNull() {
		res.Title = strings.TrimSpace(info.Key("Title").Text())
		res.Author = strings.TrimSpace(info.Key("Author").Text())
	}
	return res, nil
}

// protectExtract bounds a single page, the parser can spin on malformed content streams.
func (p *PDF) protectExtract(ctx context.Context, page pdf.Page) (string, error) {
	type result struct {
		content string
		err     error
	}
	resChan := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resChan <- result{"", fmt.Errorf("page parser panic: %v", r)}
			}
		}()
		content, err := page.GetPlainText(nil)
		resChan <- result{content, err}
	}()

	timer := time.NewTimer(p.PageTimeout)
	defer timer.Stop()
	select {
	case r := <-resChan:
		return r.content, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", errors.New("page extraction timeout")
	}
}
