// Package pipeline runs one voice memo through compose, generate and deliver.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/logging"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/prompt"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
)

const (
	DefaultInferenceTimeout = 60 * time.Second
	DefaultDeliveryTimeout  = 15 * time.Second
)

type PromptComposer interface {
	Compose() string
}

// Result is everything a run produced. Report is set whenever generation
// succeeded, even if delivery later failed.
type Result struct {
	Report          *model.GeneratedReport
	Delivery        *model.DeliveryOutcome
	MissingSections []string
	Metadata        model.GenerationMetadata
}

// Pipeline holds only read-only collaborators; Run keeps all per-run values
// on its own stack so concurrent runs are isolated.
type Pipeline struct {
	composer         PromptComposer
	generator        model.ReportGenerator
	dispatcher       model.Dispatcher
	modelName        string
	inferenceTimeout time.Duration
	deliveryTimeout  time.Duration
	strictSections   bool
}

type Option func(*Pipeline)

// WithModel sets the model identifier placed on every ReportRequest.
func WithModel(name string) Option {
	return func(p *Pipeline) {
		p.modelName = strings.TrimSpace(name)
	}
}

func WithInferenceTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.inferenceTimeout = timeout
		}
	}
}

func WithDeliveryTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) {
		if timeout > 0 {
			p.deliveryTimeout = timeout
		}
	}
}

// WithStrictSections rejects reports missing a required section instead of
// only flagging them. Rejected reports are not delivered.
func WithStrictSections(strict bool) Option {
	return func(p *Pipeline) {
		p.strictSections = strict
	}
}

func New(
	composer PromptComposer,
	generator model.ReportGenerator,
	dispatcher model.Dispatcher,
	opts ...Option,
) (*Pipeline, error) {
	if composer == nil || generator == nil || dispatcher == nil {
		return nil, utils.WrapIfNotNil(errors.New("composer, generator and dispatcher are required"))
	}

	p := &Pipeline{
		composer:         composer,
		generator:        generator,
		dispatcher:       dispatcher,
		inferenceTimeout: DefaultInferenceTimeout,
		deliveryTimeout:  DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Run validates audio, then composes, generates and delivers in that order.
// The dispatcher is never called when generation fails. A delivery failure is
// returned together with a Result that still carries the report.
func (p *Pipeline) Run(ctx context.Context, audio model.AudioPayload) (Result, error) {
	log := logging.NewLogger(ctx)
	result := Result{}

	if err := audio.Validate(); err != nil {
		log.Warnf("run_rejected reason=%q", err.Error())
		return result, utils.WrapIfNotNil(err)
	}

	request, err := model.NewReportRequest(p.composer.Compose(), audio, p.modelName)
	if err != nil {
		log.Errorf("error: %v", err)
		return result, utils.WrapIfNotNil(err)
	}

	log.Infof(
		"run_started model=%q audio_bytes=%d mime=%q file=%q",
		request.Model,
		len(audio.Data),
		audio.MIMEType,
		audio.FileName,
	)

	report, meta, err := p.generate(ctx, request)
	result.Metadata = meta
	if err != nil {
		log.Errorf("run_failed stage=generate kind=%s error: %v", model.KindOf(err), err)
		return result, utils.WrapIfNotNil(err)
	}
	result.Report = &report

	result.MissingSections = prompt.MissingSections(report.Text)
	if len(result.MissingSections) > 0 {
		log.Warnf("report_missing_sections sections=%q", strings.Join(result.MissingSections, ","))
		if p.strictSections {
			err = &model.Error{
				Kind:    model.KindProviderError,
				Message: "report is missing required sections: " + strings.Join(result.MissingSections, ", "),
			}
			log.Errorf("run_failed stage=validate error: %v", err)
			return result, utils.WrapIfNotNil(err)
		}
	}

	outcome, err := p.deliver(ctx, report)
	result.Delivery = &outcome
	if err != nil {
		log.Errorf("run_failed stage=deliver status=%s code=%d error: %v", outcome.Status, outcome.StatusCode, err)
		return result, utils.WrapIfNotNil(err)
	}

	log.Infof("run_completed delivery=%s", outcome.Status)
	return result, nil
}

func (p *Pipeline) generate(ctx context.Context, request model.ReportRequest) (model.GeneratedReport, model.GenerationMetadata, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.inferenceTimeout)
	defer cancel()
	return p.generator.Generate(callCtx, request)
}

func (p *Pipeline) deliver(ctx context.Context, report model.GeneratedReport) (model.DeliveryOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.deliveryTimeout)
	defer cancel()

	outcome, err := p.dispatcher.Deliver(callCtx, report)
	if err != nil && outcome.Status == "" {
		outcome = model.DeliveryOutcome{Status: model.DeliveryStatusTransportError, Message: err.Error()}
	}
	return outcome, err
}
