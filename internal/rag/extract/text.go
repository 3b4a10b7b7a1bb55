package extract

import (
	"context"
	"strings"

	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/lu4p/cat"
)

const minTextLength = 10

// Text handles pasted text and uploaded .txt, .md, .docx, .odt and .rtf files.
type Text struct{}

func (Text) Extract(ctx context.Context, src Source) (Result, error) {
	raw := src.Content
	if raw == "" && src.Location != "" {
		content, err := cat.File(src.Location)
		if err != nil {
			return Result{}, ragErrors.Terminal(ragErrors.KindExtraction, err, "failed to read document file")
		}
		raw = content
	}
	if len(strings.TrimSpace(raw)) < minTextLength {
		return Result{}, ragErrors.New(ragErrors.KindValidation, "text is too short or empty")
	}
	return Result{Text: Normalize(raw)}, nil
}
