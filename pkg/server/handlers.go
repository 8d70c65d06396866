package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/logging"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/pipeline"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
	"github.com/gin-gonic/gin"
)

const audioFormField = "audio"

// ReportRunner is satisfied by *pipeline.Pipeline.
type ReportRunner interface {
	Run(ctx context.Context, audio model.AudioPayload) (pipeline.Result, error)
}

type reportResponse struct {
	Report          string                   `json:"report,omitempty"`
	Delivery        *model.DeliveryOutcome   `json:"delivery,omitempty"`
	MissingSections []string                 `json:"missing_sections,omitempty"`
	Metadata        model.GenerationMetadata `json:"metadata,omitempty"`
	Error           string                   `json:"error,omitempty"`
	Kind            model.ErrorKind          `json:"kind,omitempty"`
	AvailableModels []string                 `json:"available_models,omitempty"`
	RequestID       string                   `json:"request_id,omitempty"`
}

type handlers struct {
	runner         ReportRunner
	lister         model.ModelLister
	maxUploadBytes int64
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createReport accepts one multipart upload and runs it through the pipeline.
// The report text is returned whenever generation succeeded, including when
// delivery failed, so the user can post it by hand.
func (h *handlers) createReport(c *gin.Context) {
	log := logging.NewLogger(c.Request.Context())
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	audio, status, err := h.readAudio(c)
	if err != nil {
		log.Warnf("upload_rejected status=%d error: %v", status, err)
		c.JSON(status, reportResponse{
			Error:     err.Error(),
			Kind:      model.KindInvalidInput,
			RequestID: c.GetString(requestIDCtxKey),
		})
		return
	}

	result, err := h.runner.Run(c.Request.Context(), audio)
	response := reportResponse{
		Delivery:        result.Delivery,
		MissingSections: result.MissingSections,
		Metadata:        result.Metadata,
		RequestID:       c.GetString(requestIDCtxKey),
	}
	if result.Report != nil {
		response.Report = result.Report.Text
	}
	if err != nil {
		response.Error = userMessage(err)
		response.Kind = model.KindOf(err)
		response.AvailableModels = model.AvailableModelsOf(err)
		c.JSON(statusForError(err), response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *handlers) readAudio(c *gin.Context) (model.AudioPayload, int, error) {
	fileHeader, err := c.FormFile(audioFormField)
	if err != nil {
		if isBodyTooLarge(err) {
			return model.AudioPayload{}, http.StatusRequestEntityTooLarge, model.NewError(model.KindInvalidInput, "upload exceeds the size limit", err)
		}
		return model.AudioPayload{}, http.StatusBadRequest, model.NewError(model.KindInvalidInput, `multipart field "audio" is required`, err)
	}

	file, err := fileHeader.Open()
	if err != nil {
		return model.AudioPayload{}, http.StatusBadRequest, utils.WrapIfNotNil(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return model.AudioPayload{}, http.StatusBadRequest, utils.WrapIfNotNil(err)
	}

	audio, err := model.NewAudioPayload(data, fileHeader.Header.Get("Content-Type"), fileHeader.Filename)
	if err != nil {
		return model.AudioPayload{}, http.StatusBadRequest, err
	}
	return audio, http.StatusOK, nil
}

func (h *handlers) listModels(c *gin.Context) {
	models, err := h.lister.ListGenerationModels(c.Request.Context())
	if err != nil {
		logging.NewLogger(c.Request.Context()).Errorf("error: %v", err)
		c.JSON(statusForError(err), reportResponse{
			Error:     userMessage(err),
			Kind:      model.KindOf(err),
			RequestID: c.GetString(requestIDCtxKey),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": models})
}

func statusForError(err error) int {
	switch model.KindOf(err) {
	case model.KindInvalidInput:
		return http.StatusBadRequest
	case model.KindModelUnavailable:
		return http.StatusServiceUnavailable
	case model.KindProviderError, model.KindEmptyResponse, model.KindDeliveryFailure:
		return http.StatusBadGateway
	case model.KindTransportError:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// userMessage drops the caller-name wrap prefixes and keeps the typed error text.
func userMessage(err error) string {
	var typed *model.Error
	if errors.As(err, &typed) {
		return typed.Error()
	}
	return "internal error"
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return utils.ContainsErrorSubstring(err, "request body too large")
}
