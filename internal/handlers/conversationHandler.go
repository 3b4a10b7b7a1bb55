package handlers

import (
	"net/http"

	"github.com/akolanti/ResearchAssistant/internal/adapter"
	"github.com/akolanti/ResearchAssistant/internal/adapter/utils"
)

// GetConversationHandler godoc
// @Summary      Get a conversation
// @Tags         Conversations
// @Produce      json
// @Param        id   path      string  true  "Chat ID"
// @Success      200  {object}  api.ConversationResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /conversations/{id} [get]
func GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	conv, err := handlerInstance.rag.Conversation(r.Context(), utils.GetChiURLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToConversationResponse(conv))
}

// DeleteConversationHandler godoc
// @Summary      Delete a conversation
// @Tags         Conversations
// @Param        id   path      string  true  "Chat ID"
// @Success      204
// @Failure      404  {object}  api.ErrorResponse
// @Router       /conversations/{id} [delete]
func DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	if err := handlerInstance.rag.DeleteConversation(r.Context(), utils.GetChiURLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
