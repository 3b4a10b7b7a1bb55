package chatModel

import (
	"context"
	"strings"
	"time"
)

const maxTitleLength = 100

type Conversation struct {
	Id        string    `json:"id"`
	Title     string    `json:"title"`
	Turns     []Turn    `json:"turns"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Turn struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	Grounded  bool       `json:"grounded"`
	CreatedAt time.Time  `json:"created_at"`
}

// Citation ties a marker in an answer to the chunk it was grounded in.
// Position is the byte offset of the marker in Turn.Answer.
type Citation struct {
	Marker     int     `json:"marker"`
	ChunkId    string  `json:"chunk_id"`
	DocumentId string  `json:"document_id"`
	Score      float32 `json:"score"`
	Title      string  `json:"title,omitempty"`
	Author     string  `json:"author,omitempty"`
	Location   string  `json:"location,omitempty"`
	Position   int     `json:"position"`
}

// TitleFromQuestion truncates the first question of a conversation into its title.
func TitleFromQuestion(question string) string {
	r := []rune(question)
	if len(r) <= maxTitleLength {
		return question
	}
	return string(r[:maxTitleLength-3]) + "..."
}

// Display renders a citation the way answers list their sources, e.g. "Paper (by Ada), Page 5".
func (c Citation) Display() string {
	var b strings.Builder
	b.WriteString(c.Title)
	if c.Author != "" {
		b.WriteString(" (by " + c.Author + ")")
	}
	if c.Location != "" {
		b.WriteString(", " + c.Location)
	}
	return b.String()
}

type ConversationStore interface {
	Create(ctx context.Context, id string, title string) (Conversation, error)
	Exists(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (Conversation, error)
	RecentTurns(ctx context.Context, id string, n int) ([]Turn, error)
	AppendTurn(ctx context.Context, id string, turn Turn) error
	Delete(ctx context.Context, id string) error
}
