package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jdkato/prose/v2"
)

// SentenceSplitter returns the rune offsets at which a new sentence starts, excluding 0.
// Whitespace between sentences belongs to the sentence before it.
type SentenceSplitter interface {
	Split(text []rune) []int
}

// RuleSplitter breaks after ., ! or ? (and any closing quote or bracket) followed by
// whitespace, unless the next word starts lowercase.
type RuleSplitter struct{}

func (RuleSplitter) Split(text []rune) []int {
	var bounds []int
	for i := 0; i < len(text); i++ {
		if !isTerminal(text[i]) {
			continue
		}
		j := i + 1
		for j < len(text) && isCloser(text[j]) {
			j++
		}
		if j >= len(text) || !unicode.IsSpace(text[j]) {
			continue
		}
		for j < len(text) && unicode.IsSpace(text[j]) {
			j++
		}
		if j < len(text) && !unicode.IsLower(text[j]) {
			bounds = append(bounds, j)
		}
		i = j - 1
	}
	return bounds
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

// ProseSplitter uses prose's punkt segmenter and maps its sentences back onto offsets.
// If a sentence cannot be located verbatim it falls back to RuleSplitter.
type ProseSplitter struct{}

func (ProseSplitter) Split(text []rune) []int {
	s := string(text)
	doc, err := prose.NewDocument(s,
		prose.WithTokenization(false),
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return RuleSplitter{}.Split(text)
	}

	var bounds []int
	byteCursor, runeCursor := 0, 0
	for i, sentence := range doc.Sentences() {
		sentenceText := strings.TrimSpace(sentence.Text)
		if sentenceText == "" {
			continue
		}
		idx := strings.Index(s[byteCursor:], sentenceText)
		if idx < 0 {
			return RuleSplitter{}.Split(text)
		}
		startByte := byteCursor + idx
		runeStart := runeCursor + utf8.RuneCountInString(s[byteCursor:startByte])
		if i > 0 && runeStart > 0 {
			bounds = append(bounds, runeStart)
		}
		byteCursor = startByte + len(sentenceText)
		runeCursor = runeStart + utf8.RuneCountInString(sentenceText)
	}
	return bounds
}
