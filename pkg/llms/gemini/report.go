package gemini

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/logging"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
	"google.golang.org/genai"
)

// ReportGenerator submits prompt and audio as one multimodal Gemini request.
// It holds no per-run state and may be shared by concurrent runs.
type ReportGenerator struct {
	service modelService
	cfg     model.GeneratorConfig
}

func NewReportGenerator(ctx context.Context, opts ...model.GeneratorOption) (*ReportGenerator, error) {
	cfg := model.ResolveGeneratorOpts(opts...)
	client, err := newAPIClient(ctx, cfg)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return newReportGenerator(&genaiModelService{models: client.Models}, cfg), nil
}

func newReportGenerator(service modelService, cfg model.GeneratorConfig) *ReportGenerator {
	return &ReportGenerator{service: service, cfg: cfg}
}

// ModelName is the model used when a request does not name one.
func (g *ReportGenerator) ModelName() string {
	return resolveGenerationModelName("", g.cfg)
}

func (g *ReportGenerator) Generate(ctx context.Context, request model.ReportRequest) (model.GeneratedReport, model.GenerationMetadata, error) {
	start := time.Now()
	modelName := resolveGenerationModelName(request.Model, g.cfg)
	meta := initMetadata(modelName)
	defer setLatencyMetadata(meta, start)

	log := logging.NewLogger(ctx)
	if err := request.Validate(); err != nil {
		log.Errorf("error: %v", err)
		return model.GeneratedReport{}, meta, utils.WrapIfNotNil(err)
	}

	contents := buildReportContents(request)
	config := buildGenerateContentConfig(g.cfg)

	log.Infof(
		"report_request model=%q mime=%q audio_bytes=%d prompt_chars=%d temperature=%v max_tokens=%v",
		modelName,
		request.Audio.CanonicalMIMEType(),
		len(request.Audio.Data),
		len([]rune(request.Prompt)),
		g.cfg.Temperature,
		g.cfg.MaxTokens,
	)

	response, err := g.service.GenerateContent(ctx, modelName, contents, config)
	meta[model.MetadataKeyAPICalls] = "1"
	if err != nil {
		classified := classifyGenerateError(err, modelName)
		if classified.Kind == model.KindModelUnavailable {
			g.attachAvailableModels(ctx, classified)
			meta[model.MetadataKeyAPICalls] = "2"
		}
		log.Errorf("error: %v", classified)
		return model.GeneratedReport{}, meta, utils.WrapIfNotNil(classified)
	}
	if response == nil {
		err = model.NewError(model.KindEmptyResponse, "provider returned a nil response", nil)
		log.Errorf("error: %v", err)
		return model.GeneratedReport{}, meta, utils.WrapIfNotNil(err)
	}

	applyGenerateMetadata(meta, response)
	report, err := model.NewGeneratedReport(response.Text())
	if err != nil {
		var typed *model.Error
		if errors.As(err, &typed) {
			typed.Message = emptyResponseMessage(typed.Message, response)
		}
		log.Errorf("error: %v", err)
		return model.GeneratedReport{}, meta, utils.WrapIfNotNil(err)
	}

	log.Infof(
		"report_generated model=%q chars=%d finish_reason=%q",
		modelName,
		len([]rune(report.Text)),
		meta[model.MetadataKeyResponseStatus],
	)
	return report, meta, nil
}

// attachAvailableModels performs the single read-only listing call allowed
// after a model-unavailable failure. Listing errors are logged, not returned.
func (g *ReportGenerator) attachAvailableModels(ctx context.Context, classified *model.Error) {
	log := logging.NewLogger(ctx)
	available, err := g.ListGenerationModels(ctx)
	if err != nil {
		log.Warnf("model listing after unavailable model failed: %v", err)
		return
	}
	classified.AvailableModels = available
	log.Warnf("model_unavailable available_models=%q", strings.Join(available, ","))
}

// ListGenerationModels returns Gemini models that accept generateContent,
// sorted and without the "models/" prefix so they can be pasted into config.
func (g *ReportGenerator) ListGenerationModels(ctx context.Context) ([]string, error) {
	models, err := g.service.ListModels(ctx)
	if err != nil {
		classified := classifyGenerateError(err, "")
		return nil, utils.WrapIfNotNil(classified)
	}
	return filterGenerationModels(models), nil
}

func filterGenerationModels(models []*genai.Model) []string {
	seen := make(map[string]struct{}, len(models))
	names := make([]string, 0, len(models))
	for _, m := range models {
		if m == nil || !supportsAction(m.SupportedActions, generateContentAction) {
			continue
		}
		name := strings.TrimPrefix(strings.TrimSpace(m.Name), "models/")
		// Only the Gemini family accepts audio parts.
		if name == "" || !strings.HasPrefix(name, "gemini") {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func supportsAction(actions []string, action string) bool {
	for _, candidate := range actions {
		if strings.EqualFold(strings.TrimSpace(candidate), action) {
			return true
		}
	}
	return false
}

func buildReportContents(request model.ReportRequest) []*genai.Content {
	return []*genai.Content{
		genai.NewContentFromParts(
			[]*genai.Part{
				genai.NewPartFromText(request.Prompt),
				genai.NewPartFromBytes(request.Audio.Data, request.Audio.CanonicalMIMEType()),
			},
			genai.RoleUser,
		),
	}
}

func emptyResponseMessage(base string, response *genai.GenerateContentResponse) string {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0] == nil {
		return base + " (no candidates)"
	}
	reason := string(response.Candidates[0].FinishReason)
	if reason == "" {
		return base
	}
	return fmt.Sprintf("%s (finish_reason=%s)", base, reason)
}
