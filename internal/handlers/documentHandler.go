package handlers

import (
	"errors"
	"net/http"

	"github.com/akolanti/ResearchAssistant/internal/adapter"
	"github.com/akolanti/ResearchAssistant/internal/adapter/utils"
	"github.com/akolanti/ResearchAssistant/internal/api"
	"github.com/akolanti/ResearchAssistant/internal/domain/commonModels"
	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/internal/rag/ingest"
)

// multipart parts beyond this spill to disk
const multipartMemory = 32 << 20

// CreateDocumentHandler godoc
// @Summary      Add a document
// @Description  Registers pasted text, a web page or a YouTube video and queues its ingestion. Poll the document for its status.
// @Tags         Documents
// @Accept       json
// @Produce      json
// @Param        request  body      api.CreateDocumentRequest  true  "source_type is one of text, url, youtube"
// @Success      202      {object}  api.DocumentResponse
// @Failure      400      {object}  api.ErrorResponse
// @Router       /documents [post]
func CreateDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	var req api.CreateDocumentRequest
	if err := decodeJson(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := handlerInstance.documents.Create(r.Context(), ingest.CreateRequest{
		SourceType: commonModels.SourceType(req.SourceType),
		Content:    req.Content,
		URL:        req.URL,
		Title:      req.Title,
		Author:     req.Author,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusAccepted, adapter.ToDocumentResponse(doc))
}

// UploadDocumentHandler godoc
// @Summary      Upload a document for ingestion
// @Description  Receives a pdf, txt, md or docx file via multipart/form-data and queues its ingestion.
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Param        document       formData  file    true   "The file to upload"
// @Param        title          formData  string  false  "Display title, defaults to the file metadata"
// @Param        author         formData  string  false  "Author"
// @Success      202  {object}  api.DocumentResponse
// @Failure      400  {object}  api.ErrorResponse "Missing file, unsupported type or file too large"
// @Router       /documents/upload [post]
func UploadDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, handlerInstance.maxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, ragErrors.New(ragErrors.KindValidation, "file too large"))
			return
		}
		writeError(w, r, ragErrors.Wrap(ragErrors.KindValidation, err, "bad multipart request"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	fileReader, fileMetadata, err := r.FormFile("document")
	if err != nil {
		writeError(w, r, ragErrors.New(ragErrors.KindValidation, "could not retrieve file"))
		return
	}
	defer fileReader.Close()

	title := r.FormValue("title")
	if title == "" {
		title = r.FormValue("document_name")
	}
	doc, err := handlerInstance.documents.Upload(r.Context(), ingest.UploadRequest{
		FileName: fileMetadata.Filename,
		Body:     fileReader,
		Title:    title,
		Author:   r.FormValue("author"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusAccepted, adapter.ToDocumentResponse(doc))
}

// ListDocumentsHandler godoc
// @Summary      List documents
// @Tags         Documents
// @Produce      json
// @Success      200  {object}  api.DocumentListResponse
// @Router       /documents [get]
func ListDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	docs, err := handlerInstance.documents.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToDocumentList(docs))
}

// GetDocumentHandler godoc
// @Summary      Get document status
// @Description  Status is one of pending, processing, completed, failed. Failed documents carry error kind, message and whether a retry can help.
// @Tags         Documents
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  api.DocumentResponse
// @Failure      404  {object}  api.ErrorResponse
// @Router       /documents/{id} [get]
func GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	doc, err := handlerInstance.documents.Get(r.Context(), utils.GetChiURLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusOK, adapter.ToDocumentResponse(doc))
}

// DeleteDocumentHandler godoc
// @Summary      Delete a document
// @Description  Removes the document and its chunks. Ingestion still running for it is cancelled.
// @Tags         Documents
// @Param        id   path      string  true  "Document ID"
// @Success      204
// @Failure      404  {object}  api.ErrorResponse
// @Router       /documents/{id} [delete]
func DeleteDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	if err := handlerInstance.documents.Delete(r.Context(), utils.GetChiURLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RetryDocumentHandler godoc
// @Summary      Retry a failed document
// @Description  Queues a new document from the same source. The failed record stays for reference.
// @Tags         Documents
// @Produce      json
// @Param        id   path      string  true  "Document ID"
// @Success      202  {object}  api.DocumentResponse
// @Failure      404  {object}  api.ErrorResponse
// @Failure      409  {object}  api.ErrorResponse "Document has not failed"
// @Router       /documents/{id}/retry [post]
func RetryDocumentHandler(w http.ResponseWriter, r *http.Request) {
	if !validateContext(r.Context()) {
		return
	}
	doc, err := handlerInstance.documents.Retry(r.Context(), utils.GetChiURLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJsonResponse(w, http.StatusAccepted, adapter.ToDocumentResponse(doc))
}
