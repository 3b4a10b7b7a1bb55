package main

import (
	"fmt"

	"github.com/akolanti/ResearchAssistant/internal/adapter"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [document-id]",
	Short: "Show a document's ingestion status, or list all documents",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [document-id]",
	Short: "Delete a document and its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := appContext
	if len(args) == 1 {
		doc, err := app.Documents.Get(ctx, args[0])
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(cmd, adapter.ToDocumentResponse(doc))
		}
		printDocument(cmd, doc)
		return nil
	}

	docs, err := app.Documents.List(ctx)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, adapter.ToDocumentList(docs))
	}
	if len(docs) == 0 {
		cmd.Println("No documents.")
		return nil
	}
	for _, doc := range docs {
		printDocument(cmd, doc)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := app.Documents.Delete(appContext, args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("Deleted %s\n", args[0])
	return nil
}
