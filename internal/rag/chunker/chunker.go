package chunker

import (
	"sort"
	"strings"
	"unicode"

	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
)

// Chunker splits normalized text into overlapping chunks of at most size runes.
// Split points are tried in order: blank lines, sentence ends, fixed slices.
// Every chunk's Text is exactly text[StartOffset:EndOffset].
type Chunker struct {
	size      int
	overlap   int
	sentences SentenceSplitter
}

type Option func(*Chunker)

func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func WithSentenceSplitter(s SentenceSplitter) Option {
	return func(c *Chunker) {
		if s != nil {
			c.sentences = s
		}
	}
}

func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:      config.ChunkSize,
		overlap:   config.ChunkOverlap,
		sentences: ProseSplitter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size / 4
	}
	return c
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// Chunk is ChunkDocument without page or timestamp locators.
func (c *Chunker) Chunk(text string) []commonModels.Chunk {
	return c.ChunkDocument(text, nil)
}

// ChunkDocument returns chunks with ordinals, offsets, section headings and locator labels.
// Ids and document ids are left for the caller.
func (c *Chunker) ChunkDocument(text string, locators []commonModels.Locator) []commonModels.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var pieces []span
	for _, para := range paragraphs(runes) {
		pieces = append(pieces, c.fit(runes, para)...)
	}

	headings := findHeadings(runes)
	sortedLocators := append([]commonModels.Locator(nil), locators...)
	sort.SliceStable(sortedLocators, func(i, j int) bool { return sortedLocators[i].Offset < sortedLocators[j].Offset })

	var chunks []commonModels.Chunk
	emit := func(s span) {
		content := string(runes[s.start:s.end])
		if strings.TrimSpace(content) == "" {
			return
		}
		chunks = append(chunks, commonModels.Chunk{
			Ordinal:     len(chunks),
			Text:        content,
			StartOffset: s.start,
			EndOffset:   s.end,
			Section:     sectionFor(headings, s),
			Location:    locationFor(sortedLocators, s.start),
		})
	}

	current := pieces[0]
	for _, p := range pieces[1:] {
		if p.end-current.start <= c.size {
			current.end = p.end
			continue
		}
		emit(current)
		current = span{start: c.overlapStart(runes, current, p), end: p.end}
	}
	emit(current)

	return chunks
}

// fit breaks a paragraph that is too long into sentence pieces, and sentences that
// are still too long into fixed slices. Slices leave room for the overlap.
func (c *Chunker) fit(runes []rune, para span) []span {
	if para.len() <= c.size {
		return []span{para}
	}
	var out []span
	start := para.start
	bounds := c.sentences.Split(runes[para.start:para.end])
	bounds = append(bounds, para.len())
	for _, b := range bounds {
		end := para.start + b
		if end <= start || end > para.end {
			continue
		}
		sentence := span{start, end}
		if sentence.len() <= c.size {
			out = append(out, sentence)
		} else {
			out = append(out, c.slice(runes, sentence)...)
		}
		start = end
	}
	return out
}

func (c *Chunker) slice(runes []rune, s span) []span {
	step := c.size - c.overlap
	if step < 1 {
		step = 1
	}
	var out []span
	for start := s.start; start < s.end; {
		end := start + step
		if end >= s.end {
			out = append(out, span{start, s.end})
			break
		}
		// prefer cutting after whitespace in the back half of the window
		for cut := end; cut > start+step/2; cut-- {
			if unicode.IsSpace(runes[cut-1]) && !unicode.IsSpace(runes[cut]) {
				end = cut
				break
			}
		}
		out = append(out, span{start, end})
		start = end
	}
	return out
}

// overlapStart picks where the chunk after prev begins so it shares up to overlap runes
// with prev while still fitting next. The start is moved forward to a word start.
func (c *Chunker) overlapStart(runes []rune, prev span, next span) int {
	start := prev.end - c.overlap
	if minStart := next.end - c.size; start < minStart {
		start = minStart
	}
	if start <= prev.start {
		start = prev.start + 1
	}
	if start >= prev.end {
		return prev.end
	}
	if start > 0 && !unicode.IsSpace(runes[start-1]) {
		i := start
		for i < prev.end && !unicode.IsSpace(runes[i]) {
			i++
		}
		if i < prev.end {
			start = i
		}
	}
	for start < prev.end && unicode.IsSpace(runes[start]) {
		start++
	}
	return start
}

// paragraphs splits at whitespace runs holding two or more newlines. The run stays with
// the paragraph before it so the spans tile the text.
func paragraphs(runes []rune) []span {
	var out []span
	start := 0
	for i := 0; i < len(runes); {
		if !unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		j := i
		newlines := 0
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			if runes[j] == '\n' {
				newlines++
			}
			j++
		}
		if newlines >= 2 && j < len(runes) && j > start {
			out = append(out, span{start, j})
			start = j
		}
		i = j
	}
	return append(out, span{start, len(runes)})
}

type heading struct {
	offset int
	title  string
}

func findHeadings(runes []rune) []heading {
	var out []heading
	lineStart := 0
	for i := 0; i <= len(runes); i++ {
		if i < len(runes) && runes[i] != '\n' {
			continue
		}
		line := strings.TrimSpace(string(runes[lineStart:i]))
		if strings.HasPrefix(line, "#") {
			if title := strings.TrimSpace(strings.TrimLeft(line, "#")); title != "" {
				out = append(out, heading{offset: lineStart, title: title})
			}
		}
		lineStart = i + 1
	}
	return out
}

func sectionFor(headings []heading, s span) string {
	section := ""
	for _, h := range headings {
		if h.offset <= s.start {
			section = h.title
			continue
		}
		if section == "" && h.offset < s.end {
			section = h.title
		}
		break
	}
	return section
}

func locationFor(locators []commonModels.Locator, offset int) string {
	label := ""
	for _, l := range locators {
		if l.Offset > offset {
			break
		}
		label = l.Label
	}
	return label
}
