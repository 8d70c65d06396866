// Package relay delivers generated reports to a Slack-style incoming webhook.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/logging"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxErrorBodyBytes  = 2048
	webhookContentType = "application/json"
)

type webhookPayload struct {
	Text string `json:"text"`
}

// WebhookDispatcher posts {"text": report} to one fixed destination.
// Every Deliver call makes exactly one request and never retries.
type WebhookDispatcher struct {
	httpClient *http.Client
	endpoint   string
}

type Option func(*WebhookDispatcher)

func WithTimeout(timeout time.Duration) Option {
	return func(d *WebhookDispatcher) {
		if timeout > 0 {
			d.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func NewWebhookDispatcher(endpoint string, opts ...Option) (*WebhookDispatcher, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, model.NewError(model.KindConfigurationMissing, "webhook URL is required", nil)
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, model.NewError(model.KindConfigurationMissing, "webhook URL must be absolute", err)
	}

	d := &WebhookDispatcher{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		endpoint:   endpoint,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

func (d *WebhookDispatcher) Deliver(ctx context.Context, report model.GeneratedReport) (model.DeliveryOutcome, error) {
	log := logging.NewLogger(ctx)
	if strings.TrimSpace(report.Text) == "" {
		err := model.NewError(model.KindInvalidInput, "refusing to deliver an empty report", nil)
		log.Errorf("error: %v", err)
		return model.DeliveryOutcome{}, utils.WrapIfNotNil(err)
	}

	body, err := json.Marshal(webhookPayload{Text: report.Text})
	if err != nil {
		return model.DeliveryOutcome{}, utils.WrapIfNotNil(err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.DeliveryOutcome{}, utils.WrapIfNotNil(err)
	}
	request.Header.Set("Content-Type", webhookContentType)

	log.Infof("webhook_delivery host=%q bytes=%d", request.URL.Host, len(body))
	response, err := d.httpClient.Do(request)
	if err != nil {
		outcome := model.DeliveryOutcome{
			Status:  model.DeliveryStatusTransportError,
			Message: transportMessage(err),
		}
		deliveryErr := model.NewError(model.KindDeliveryFailure, outcome.Message, err)
		log.Errorf("error: %v", deliveryErr)
		return outcome, utils.WrapIfNotNil(deliveryErr)
	}
	defer response.Body.Close()

	excerpt, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
	if response.StatusCode != http.StatusOK {
		message := strings.TrimSpace(string(excerpt))
		if message == "" {
			message = response.Status
		}
		outcome := model.DeliveryOutcome{
			Status:     model.DeliveryStatusProviderError,
			StatusCode: response.StatusCode,
			Message:    message,
		}
		deliveryErr := &model.Error{
			Kind:       model.KindDeliveryFailure,
			Message:    fmt.Sprintf("webhook rejected the report: %s", message),
			StatusCode: response.StatusCode,
		}
		log.Errorf("error: %v", deliveryErr)
		return outcome, utils.WrapIfNotNil(deliveryErr)
	}

	log.Infof("webhook_delivered status=%d", response.StatusCode)
	return model.DeliveryOutcome{
		Status:     model.DeliveryStatusSuccess,
		StatusCode: response.StatusCode,
	}, nil
}

func transportMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "webhook call timed out"
	case errors.Is(err, context.Canceled):
		return "webhook call was canceled"
	default:
		return "could not reach the webhook"
	}
}
