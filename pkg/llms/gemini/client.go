package gemini

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
	"google.golang.org/genai"
)

const (
	providerName               = "gemini"
	defaultGenerationModelName = "gemini-2.5-flash"
	envGeminiKey               = "GEMINI_KEY"
	generateContentAction      = "generateContent"
	listModelsPageSize         = 1000
)

// modelService is the slice of genai.Models the report generator calls.
type modelService interface {
	GenerateContent(
		ctx context.Context,
		modelName string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
	ListModels(ctx context.Context) ([]*genai.Model, error)
}

type genaiModelService struct {
	models *genai.Models
}

func (s *genaiModelService) GenerateContent(
	ctx context.Context,
	modelName string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	return s.models.GenerateContent(ctx, modelName, contents, config)
}

// ListModels reads a single page sized to hold the whole catalogue so the
// diagnostic costs exactly one request. Later pages are never fetched.
func (s *genaiModelService) ListModels(ctx context.Context) ([]*genai.Model, error) {
	page, err := s.models.List(ctx, &genai.ListModelsConfig{PageSize: listModelsPageSize})
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return page.Items, nil
}

func newAPIClient(ctx context.Context, cfg model.GeneratorConfig) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	}

	token := strings.TrimSpace(cfg.AuthToken)
	if token == "" {
		token = strings.TrimSpace(os.Getenv(envGeminiKey))
	}
	if token == "" {
		return nil, model.NewError(model.KindConfigurationMissing, "gemini API key is required (set WithAuthToken or GEMINI_KEY)", nil)
	}
	clientCfg.APIKey = token

	baseURL := strings.TrimSpace(cfg.URL)
	if baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{
			BaseURL: baseURL,
		}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, utils.WrapIfNotNil(err)
	}
	return client, nil
}

func initMetadata(modelName string) model.GenerationMetadata {
	if strings.TrimSpace(modelName) == "" {
		modelName = "unknown"
	}

	return model.GenerationMetadata{
		model.MetadataKeyProvider: providerName,
		model.MetadataKeyModel:    modelName,
	}
}

func setLatencyMetadata(meta model.GenerationMetadata, start time.Time) {
	if meta == nil {
		return
	}
	meta[model.MetadataKeyLatencyMs] = strconv.FormatInt(time.Since(start).Milliseconds(), 10)
}

// resolveGenerationModelName prefers the per-request model, then the configured one.
func resolveGenerationModelName(requested string, cfg model.GeneratorConfig) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	if cfg.Model != nil {
		name := strings.TrimSpace(*cfg.Model)
		if name != "" {
			return name
		}
	}
	return defaultGenerationModelName
}

func buildGenerateContentConfig(cfg model.GeneratorConfig) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if cfg.Temperature != nil {
		temp := float32(*cfg.Temperature)
		config.Temperature = &temp
	}
	if cfg.MaxTokens != nil {
		config.MaxOutputTokens = int32(*cfg.MaxTokens)
	}
	return config
}

func applyGenerateMetadata(meta model.GenerationMetadata, response *genai.GenerateContentResponse) {
	if meta == nil || response == nil {
		return
	}

	if usage := response.UsageMetadata; usage != nil {
		meta[model.MetadataKeyInputTokens] = strconv.Itoa(int(usage.PromptTokenCount))
		meta[model.MetadataKeyOutputTokens] = strconv.Itoa(int(usage.CandidatesTokenCount))
		meta[model.MetadataKeyTotalTokens] = strconv.Itoa(int(usage.TotalTokenCount))
		meta[model.MetadataKeyCachedInputTokens] = strconv.Itoa(int(usage.CachedContentTokenCount))
		meta[model.MetadataKeyReasoningTokens] = strconv.Itoa(int(usage.ThoughtsTokenCount))
	}
	if strings.TrimSpace(response.ResponseID) != "" {
		meta[model.MetadataKeyResponseID] = response.ResponseID
	}
	if len(response.Candidates) > 0 && response.Candidates[0] != nil {
		meta[model.MetadataKeyResponseStatus] = string(response.Candidates[0].FinishReason)
	}
}
