// Package extract turns a document source into normalized plain text plus the locators
// (pages, timestamps) that chunk citations point at.
package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
)

const maxTitleLength = 100

// Source is what a document record points at. Location is a URL or a file path,
// Content holds inline text.
type Source struct {
	Type     commonModels.SourceType
	Location string
	Content  string
	Title    string
	Author   string
}

func SourceOf(doc commonModels.Document, inline string) Source {
	return Source{Type: doc.SourceType, Location: doc.ContentRef, Content: inline, Title: doc.Title, Author: doc.Author}
}

// Result offsets in Locators are rune offsets into Text.
type Result struct {
	Text     string
	Title    string
	Author   string
	Locators []commonModels.Locator
}

type Extractor interface {
	Extract(ctx context.Context, src Source) (Result, error)
}

type Registry struct {
	extractors map[commonModels.SourceType]Extractor
	logger     *logger_i.Logger
}

func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[commonModels.SourceType]Extractor),
		logger:     logger_i.NewLogger("extract"),
	}
}

func (r *Registry) Register(t commonModels.SourceType, e Extractor) *Registry {
	r.extractors[t] = e
	return r
}

// Extract dispatches on the source type. Text the caller supplied for title and author wins
// over whatever the extractor found.
func (r *Registry) Extract(ctx context.Context, src Source) (Result, error) {
	log := r.logger.WithContext(ctx).With("sourceType", src.Type)
	e, ok := r.extractors[src.Type]
	if !ok {
		return Result{}, ragErrors.New(ragErrors.KindExtraction, fmt.Sprintf("no extractor for source type %q", src.Type))
	}

	res, err := e.Extract(ctx, src)
	if err != nil {
		log.Warn("Extraction failed", "error", err)
		if ragErrors.KindOf(err) == ragErrors.KindUnknown {
			return Result{}, ragErrors.Wrap(ragErrors.KindExtraction, err, "extract")
		}
		return Result{}, err
	}
	if strings.TrimSpace(res.Text) == "" {
		return Result{}, ragErrors.New(ragErrors.KindExtraction, "source produced no text")
	}

	if src.Title != "" {
		res.Title = src.Title
	}
	if res.Title == "" {
		res.Title = TitleFromText(res.Text)
	}
	if src.Author != "" {
		res.Author = src.Author
	}
	log.Debug("Extracted", "runes", utf8.RuneCountInString(res.Text), "locators", len(res.Locators))
	return res, nil
}

// Normalize strips every line and collapses runs of blank lines into one paragraph break.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	prevEmpty := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
			prevEmpty = false
		} else if !prevEmpty {
			out = append(out, "")
			prevEmpty = true
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// TitleFromText uses the first line, truncated like conversation titles.
func TitleFromText(text string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	first = strings.TrimLeft(first, "# ")
	r := []rune(first)
	if len(r) <= maxTitleLength {
		return first
	}
	return string(r[:maxTitleLength-3]) + "..."
}

// segments joins labelled parts (pages, transcript lines) and records where each one starts.
type segments struct {
	b        strings.Builder
	runes    int
	sep      string
	locators []commonModels.Locator
}

func (s *segments) add(label string, text string) {
	text = Normalize(text)
	if text == "" {
		return
	}
	if s.runes > 0 {
		s.b.WriteString(s.sep)
		s.runes += utf8.RuneCountInString(s.sep)
	}
	if label != "" {
		s.locators = append(s.locators, commonModels.Locator{Offset: s.runes, Label: label})
	}
	s.b.WriteString(text)
	s.runes += utf8.RuneCountInString(text)
}

func (s *segments) text() string {
	return s.b.String()
}
