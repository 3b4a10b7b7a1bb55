package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akolanti/ResearchAssistant/internal/adapter"
	"github.com/akolanti/ResearchAssistant/internal/config"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/rag/extract"
	"github.com/akolanti/ResearchAssistant/internal/rag/ingest"
	"github.com/spf13/cobra"
)

var (
	ingestTitle   string
	ingestAuthor  string
	ingestText    bool
	ingestNoWait  bool
	ingestTimeout time.Duration
	pollInterval  = 500 * time.Millisecond
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file | url]",
	Short: "Add a document and index it",
	Long: `Adds a file (pdf, txt, md, docx), a web page or a YouTube video and waits
until it is indexed. Use --text to ingest the argument itself as pasted text.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "document title")
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "document author")
	ingestCmd.Flags().BoolVar(&ingestText, "text", false, "treat the argument as the document text")
	ingestCmd.Flags().BoolVar(&ingestNoWait, "no-wait", false, "return once the document is queued")
	ingestCmd.Flags().DurationVar(&ingestTimeout, "timeout", config.IngestJobTimeout, "how long to wait for indexing")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := appContext
	app.StartWorkers()
	defer app.StopWorkers()

	doc, err := addDocument(ctx, args[0])
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	if !ingestNoWait {
		if doc, err = awaitDocument(ctx, doc.Id, ingestTimeout); err != nil {
			return err
		}
	}

	if outputJSON {
		return printJSON(cmd, adapter.ToDocumentResponse(doc))
	}
	printDocument(cmd, doc)
	if doc.Status == commonModels.DocFailed {
		return fmt.Errorf("document %s failed", doc.Id)
	}
	return nil
}

func addDocument(ctx context.Context, arg string) (commonModels.Document, error) {
	req := ingest.CreateRequest{Title: ingestTitle, Author: ingestAuthor}
	switch {
	case ingestText:
		req.SourceType = commonModels.SourceText
		req.Content = arg
	case isYoutube(arg):
		req.SourceType = commonModels.SourceYoutube
		req.URL = arg
	case strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://"):
		req.SourceType = commonModels.SourceURL
		req.URL = arg
	default:
		f, err := os.Open(arg)
		if err != nil {
			return commonModels.Document{}, err
		}
		defer f.Close()
		return app.Documents.Upload(ctx, ingest.UploadRequest{
			FileName: filepath.Base(arg),
			Body:     f,
			Title:    ingestTitle,
			Author:   ingestAuthor,
		})
	}
	return app.Documents.Create(ctx, req)
}

func isYoutube(arg string) bool {
	_, ok := extract.VideoId(arg)
	return ok
}

// awaitDocument polls until the document reaches completed or failed.
func awaitDocument(ctx context.Context, id string, timeout time.Duration) (commonModels.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		doc, err := app.Documents.Get(ctx, id)
		if err != nil {
			return doc, err
		}
		if doc.Status.Terminal() {
			return doc, nil
		}
		select {
		case <-ctx.Done():
			return doc, fmt.Errorf("document %s still %s: %w", id, doc.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func printDocument(cmd *cobra.Command, doc commonModels.Document) {
	cmd.Printf("%s  %s  %s\n", doc.Id, doc.Status, doc.Title)
	if doc.Status == commonModels.DocCompleted {
		cmd.Printf("  %d chunks in %s\n", doc.ChunkCount, doc.EmbeddingSpace)
	}
	if doc.Error != nil {
		cmd.Printf("  %s: %s (retryable: %t)\n", doc.Error.Kind, doc.Error.Message, doc.Error.Retryable)
	}
}
