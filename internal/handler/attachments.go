package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/deal-conversations/internal/middleware"
	"github.com/capitalize-ai/deal-conversations/internal/service"
	"github.com/capitalize-ai/deal-conversations/pkg/logger"
)

const multipartMemory = 8 << 20

// AttachmentHandler handles document upload and download.
type AttachmentHandler struct {
	service  *service.DealService
	logger   *logger.Logger
	maxBytes int64
}

// NewAttachmentHandler creates a new attachment handler. Files larger than
// maxBytes are rejected before they reach the store.
func NewAttachmentHandler(svc *service.DealService, log *logger.Logger, maxBytes int64) *AttachmentHandler {
	return &AttachmentHandler{
		service:  svc,
		logger:   log,
		maxBytes: maxBytes,
	}
}

// Upload handles POST /api/v1/conversations/:id/attachments as a multipart
// form with a "file" part and an optional "caption" field.
func (h *AttachmentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor, conversationID, ok := conversationRequest(w, r)
	if !ok {
		return
	}

	// Leave room for the multipart framing and caption.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds maximum size")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if int64(len(data)) > h.maxBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds maximum size")
		return
	}

	resp, err := h.service.UploadAttachment(r.Context(), actor.UserID, conversationID, header.Filename, r.FormValue("caption"), data)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// Download handles GET /api/v1/attachments/:attachmentID
func (h *AttachmentHandler) Download(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	attachmentID := chi.URLParam(r, "attachmentID")
	if err := middleware.ValidateAttachmentID(attachmentID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	obj, err := h.service.Attachment(r.Context(), actor.UserID, attachmentID)
	if err != nil {
		writeAppError(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", obj.Attachment.FileType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": obj.Attachment.FileName}))
	w.Header().Set("ETag", `"`+obj.Sha256+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Data)
}
