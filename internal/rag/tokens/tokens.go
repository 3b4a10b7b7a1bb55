package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

type Counter interface {
	Count(text string) int
}

// Estimate is the rough len/4 count used when no encoding is available.
type Estimate struct{}

func (Estimate) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

type Tiktoken struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoding.Encode(text, nil, nil))
}

var (
	defaultCounter Counter
	once           sync.Once
)

// Default returns a shared cl100k_base counter, or Estimate if the encoding fails to load.
func Default() Counter {
	once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			logger_i.NewLogger("tokens").Warn("tiktoken unavailable, using estimate", "error", err)
			defaultCounter = Estimate{}
			return
		}
		defaultCounter = &Tiktoken{encoding: enc}
	})
	return defaultCounter
}
