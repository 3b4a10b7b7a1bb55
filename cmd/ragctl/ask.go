package main

import (
	"fmt"
	"strings"

	"github.com/akolanti/ResearchAssistant/internal/adapter"
	"github.com/akolanti/ResearchAssistant/internal/api"
	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/rag"
	"github.com/spf13/cobra"
)

var (
	askChatId string
	askStream bool
	topK      int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the indexed documents",
	Long: `Answers a question with numbered citations to the indexed documents.
Pass --chat with the conversation id printed by an earlier answer to ask a follow up.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Show the passages most relevant to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	askCmd.Flags().StringVar(&askChatId, "chat", "", "conversation id to continue")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print the answer as it is generated")
	searchCmd.Flags().IntVarP(&topK, "limit", "n", 0, "number of passages, defaults to top_k_context")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(searchCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	req := rag.AskRequest{ConversationId: askChatId, Question: strings.Join(args, " ")}
	if askStream && !outputJSON {
		return streamAnswer(cmd, req)
	}

	res, err := app.Rag.Ask(appContext, req)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, api.StreamDone{ChatId: res.ConversationId, RAGResponse: api.RAGResponse{
			Question:  req.Question,
			Answer:    res.Answer,
			Citations: adapter.ToCitations(res.Citations),
			Grounded:  res.Grounded,
		}})
	}
	cmd.Println(res.Answer)
	printSources(cmd, res.ConversationId, res.Citations)
	return nil
}

func streamAnswer(cmd *cobra.Command, req rag.AskRequest) error {
	session, err := app.Rag.AskStream(appContext, req)
	if err != nil {
		return err
	}
	for ev := range session.Events {
		switch {
		case ev.Err != nil:
			cmd.Println()
			return ev.Err
		case ev.Done:
			cmd.Println()
			printSources(cmd, session.ConversationId, ev.Result.Citations)
		default:
			cmd.Print(ev.Delta)
		}
	}
	return nil
}

func printSources(cmd *cobra.Command, chatId string, citations []chatModel.Citation) {
	if len(citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, c := range citations {
			cmd.Printf("  [%d] %s\n", c.Marker, c.Display())
		}
	}
	cmd.Printf("\nconversation: %s\n", chatId)
}

func runSearch(cmd *cobra.Command, args []string) error {
	chunks, err := app.Rag.Search(appContext, strings.Join(args, " "), topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, chunks)
	}
	if len(chunks) == 0 {
		cmd.Println("No results found.")
		return nil
	}
	for i, c := range chunks {
		title := c.Chunk.Title
		if title == "" {
			title = c.Chunk.DocumentId
		}
		cmd.Printf("%d. %s %s (%.2f)\n", i+1, title, c.Chunk.Location, c.Score)
		cmd.Printf("   %s\n", snippet(c.Chunk.Text, 200))
	}
	return nil
}

func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
