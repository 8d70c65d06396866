package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
	"google.golang.org/genai"
)

// Provider messages seen when a model name is unknown or retired.
var modelNotFoundMarkers = []string{
	"is not found for api version",
	"is not supported for generatecontent",
	"model not found",
	"unknown model",
}

func classifyGenerateError(err error, modelName string) *model.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return model.NewError(model.KindTransportError, "inference call aborted before the provider answered", err)
	}

	if apiErr, ok := asAPIError(err); ok {
		classified := &model.Error{
			Kind:       model.KindProviderError,
			Message:    providerMessage(apiErr),
			StatusCode: apiErr.Code,
			Err:        err,
		}
		if isModelNotFound(apiErr) {
			classified.Kind = model.KindModelUnavailable
			classified.Message = fmt.Sprintf("model %q is not available: %s", modelName, providerMessage(apiErr))
		}
		return classified
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return model.NewError(model.KindTransportError, "could not reach the inference provider", err)
	}

	if utils.ContainsAnyErrorSubstring(err, modelNotFoundMarkers...) {
		return model.NewError(model.KindModelUnavailable, fmt.Sprintf("model %q is not available", modelName), err)
	}

	return model.NewError(model.KindProviderError, err.Error(), err)
}

func asAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func isModelNotFound(apiErr genai.APIError) bool {
	if apiErr.Code == http.StatusNotFound || strings.EqualFold(apiErr.Status, "NOT_FOUND") {
		return true
	}
	message := strings.ToLower(apiErr.Message)
	for _, marker := range modelNotFoundMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func providerMessage(apiErr genai.APIError) string {
	message := strings.TrimSpace(apiErr.Message)
	if message == "" {
		message = strings.TrimSpace(apiErr.Status)
	}
	if message == "" {
		message = "unknown gemini error"
	}
	return message
}
