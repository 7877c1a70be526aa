package http

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"deepfake-detector/internal/apperr"
	"deepfake-detector/internal/domain"
	"deepfake-detector/internal/upload"
)

// room for multipart boundaries and headers on top of the file itself
const multipartOverhead = 1 << 20

func (h *Handler) analyze(c *gin.Context) {
	kind, ok := domain.ParseKind(c.Param("type"))
	if !ok {
		drain(c.Request.Body, multipartOverhead)
		h.writeError(c, apperr.New(apperr.KindInvalidInput, "Invalid file type. Must be image or video"))
		return
	}

	limit := h.maxUpload + multipartOverhead
	if c.Request.ContentLength > limit {
		h.writeError(c, &apperr.Error{
			Kind:    apperr.KindPayloadTooLarge,
			Message: "File too large",
			Detail:  fmt.Sprintf("limit is %d bytes", h.maxUpload),
		})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	part, err := filePart(c.Request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer part.Close()

	token, _ := c.Get(ctxToken)
	tokenStr, _ := token.(string)
	detection, err := h.detections.Handle(c.Request.Context(), tokenStr, kind, upload.FileUpload{
		Name:        part.FileName(),
		ContentType: part.Header.Get("Content-Type"),
		Size:        -1,
		Reader:      part,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, AnalysisResponse{
		Message:   "Analysis complete",
		Detection: detectionToResponse(*detection),
	})
}

// filePart streams the request body up to the part named "file".
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "No file uploaded", err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, apperr.New(apperr.KindInvalidInput, "No file uploaded")
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, apperr.New(apperr.KindPayloadTooLarge, "File too large")
			}
			return nil, apperr.Wrap(apperr.KindInvalidInput, "Malformed multipart body", err)
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func (h *Handler) detectionFile(c *gin.Context) {
	file, err := h.detections.OpenFile(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	disposition := mime.FormatMediaType("inline", map[string]string{"filename": file.Name})
	if file.Body != nil {
		defer file.Body.Close()
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		c.DataFromReader(http.StatusOK, file.Size, contentType, file.Body, map[string]string{
			"Content-Disposition": disposition,
		})
		return
	}

	if file.ContentType != "" {
		c.Header("Content-Type", file.ContentType)
	}
	c.Header("Content-Disposition", disposition)
	c.File(file.Path)
}
