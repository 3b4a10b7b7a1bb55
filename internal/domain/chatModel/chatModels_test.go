package chatModel

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTitleFromQuestion(t *testing.T) {
	short := "What is retrieval augmented generation?"
	if got := TitleFromQuestion(short); got != short {
		t.Errorf("short question changed: %q", got)
	}

	long := strings.Repeat("é", 150)
	got := TitleFromQuestion(long)
	if utf8.RuneCountInString(got) != maxTitleLength {
		t.Errorf("title has %d runes, want %d", utf8.RuneCountInString(got), maxTitleLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated title should end with an ellipsis: %q", got)
	}
}

func TestCitationDisplay(t *testing.T) {
	tests := []struct {
		c    Citation
		want string
	}{
		{Citation{Title: "Paper", Author: "Ada", Location: "Page 5"}, "Paper (by Ada), Page 5"},
		{Citation{Title: "Talk", Location: "03:45"}, "Talk, 03:45"},
		{Citation{Title: "Notes"}, "Notes"},
	}
	for _, tt := range tests {
		if got := tt.c.Display(); got != tt.want {
			t.Errorf("Display() = %q, want %q", got, tt.want)
		}
	}
}
