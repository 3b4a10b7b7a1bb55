package answer

import (
	"strconv"
	"strings"

	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/metrics"
	"github.com/akolanti/ResearchAssistant/internal/rag/assembler"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
)

// Reconciler rewrites citation markers as text streams through it. Markers are [n] or
// [n, m, ...]. Numbers found in the citation map are kept, others are removed and counted.
// Text after an unclosed '[' is held for as long as it can still become a marker, so no
// unresolved marker is ever emitted and streaming agrees with Reconcile.
type Reconciler struct {
	citations assembler.CitationMap
	pending   string
	emitted   int
	resolved  []chatModel.Citation
	seen      map[int]bool
	dropped   int
	logger    *logger_i.Logger
}

func NewReconciler(citations assembler.CitationMap, logger *logger_i.Logger) *Reconciler {
	if logger == nil {
		logger = logger_i.NewLogger("Citation Reconciler")
	}
	return &Reconciler{citations: citations, seen: make(map[int]bool), logger: logger}
}

// Feed returns the part of the text so far that is safe to show.
func (r *Reconciler) Feed(fragment string) string {
	r.pending += fragment
	return r.drain(false)
}

// Flush releases whatever is still held back at the end of the stream.
func (r *Reconciler) Flush() string {
	return r.drain(true)
}

// Citations are in order of first appearance. Position is the byte offset of the marker in
// the reconciled text.
func (r *Reconciler) Citations() []chatModel.Citation {
	return r.resolved
}

func (r *Reconciler) Dropped() int {
	return r.dropped
}

func (r *Reconciler) drain(final bool) string {
	var out strings.Builder
	for {
		i := strings.IndexByte(r.pending, '[')
		if i < 0 {
			out.WriteString(r.pending)
			r.pending = ""
			break
		}
		out.WriteString(r.pending[:i])
		r.pending = r.pending[i:]

		n, numbers, state := scanMarker(r.pending)
		if state == markerOpen {
			if final {
				// a marker cut off by the end of the stream
				r.logger.Debug("dropping truncated marker", "text", r.pending)
				r.pending = ""
				break
			}
			break
		}
		if state == markerInvalid {
			out.WriteByte('[')
			r.pending = r.pending[1:]
			continue
		}
		out.WriteString(r.resolve(numbers, r.emitted+out.Len()))
		r.pending = r.pending[n:]
	}
	r.emitted += out.Len()
	return out.String()
}

// resolve renders the known numbers of one marker and records their citations.
func (r *Reconciler) resolve(numbers []int, position int) string {
	known := make([]string, 0, len(numbers))
	used := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		if used[n] {
			continue
		}
		used[n] = true
		entry, ok := r.citations[n]
		if !ok {
			r.dropped++
			metrics.IncrementDroppedCitations()
			r.logger.Warn("citation inconsistency, dropping unknown marker", "marker", n, "known", len(r.citations))
			continue
		}
		known = append(known, strconv.Itoa(n))
		if !r.seen[n] {
			r.seen[n] = true
			r.resolved = append(r.resolved, chatModel.Citation{
				Marker:     n,
				ChunkId:    entry.Chunk.Id,
				DocumentId: entry.Chunk.DocumentId,
				Score:      entry.Score,
				Title:      entry.Chunk.Title,
				Author:     entry.Chunk.Author,
				Location:   entry.Chunk.Location,
				Position:   position,
			})
		}
	}
	if len(known) == 0 {
		return ""
	}
	return "[" + strings.Join(known, ", ") + "]"
}

type markerState int

const (
	markerComplete markerState = iota
	markerOpen
	markerInvalid
)

// scanMarker reads a marker at the start of s, which begins with '['. It returns the marker
// length and its numbers when complete, or markerOpen when s ends before the marker could close.
func scanMarker(s string) (int, []int, markerState) {
	var numbers []int
	i := 1
	for {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == len(s) {
			return 0, nil, markerOpen
		}
		if i == start || i-start > 4 {
			return 0, nil, markerInvalid
		}
		n, _ := strconv.Atoi(s[start:i])
		numbers = append(numbers, n)

		switch s[i] {
		case ']':
			return i + 1, numbers, markerComplete
		case ',':
			i++
			for i < len(s) && s[i] == ' ' {
				i++
			}
			if i == len(s) {
				return 0, nil, markerOpen
			}
		default:
			return 0, nil, markerInvalid
		}
	}
}

// Reconcile is the one-shot form of Reconciler.
func Reconcile(text string, citations assembler.CitationMap, logger *logger_i.Logger) (string, []chatModel.Citation, int) {
	r := NewReconciler(citations, logger)
	out := r.Feed(text) + r.Flush()
	return out, r.Citations(), r.Dropped()
}
