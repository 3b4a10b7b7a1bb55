package adapter

import (
	"github.com/akolanti/ResearchAssistant/internal/api"
	"github.com/akolanti/ResearchAssistant/internal/domain/chatModel"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
)

func ToDocumentResponse(doc commonModels.Document) api.DocumentResponse {
	res := api.DocumentResponse{
		Id:             doc.Id,
		SourceType:     string(doc.SourceType),
		Title:          doc.Title,
		Author:         doc.Author,
		Status:         string(doc.Status),
		ChunkCount:     doc.ChunkCount,
		EmbeddingSpace: doc.EmbeddingSpace,
		RetryOf:        doc.RetryOf,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
		CompletedAt:    doc.CompletedAt,
	}
	if doc.Error != nil {
		res.Error = &api.DocumentErrorResponse{
			Kind:      doc.Error.Kind,
			Message:   doc.Error.Message,
			Retryable: doc.Error.Retryable,
		}
	}
	return res
}

func ToDocumentList(docs []commonModels.Document) api.DocumentListResponse {
	out := api.DocumentListResponse{Documents: make([]api.DocumentResponse, 0, len(docs))}
	for _, d := range docs {
		out.Documents = append(out.Documents, ToDocumentResponse(d))
	}
	return out
}

func ToConversationResponse(conv chatModel.Conversation) api.ConversationResponse {
	turns := make([]api.TurnResponse, 0, len(conv.Turns))
	for _, t := range conv.Turns {
		turns = append(turns, api.TurnResponse{
			Question:  t.Question,
			Answer:    t.Answer,
			Citations: ToCitations(t.Citations),
			Grounded:  t.Grounded,
			CreatedAt: t.CreatedAt,
		})
	}
	return api.ConversationResponse{
		Id:        conv.Id,
		Title:     conv.Title,
		Turns:     turns,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
}

// ToErrorResponse hides the wrapped cause of unclassified errors.
func ToErrorResponse(err error) api.ErrorResponse {
	kind := ragErrors.KindOf(err)
	message := err.Error()
	if kind == ragErrors.KindUnknown {
		message = "internal server error"
	}
	return api.ErrorResponse{Error: api.ErrorBody{
		Kind:      string(kind),
		Message:   message,
		Retryable: ragErrors.IsRetryable(err),
	}}
}
