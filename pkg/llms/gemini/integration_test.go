package gemini

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/prompt"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// GeminiIntegrationSuite calls the live API. It loads $SETTINGS_FILE (or
// ~/.env) and skips unless GEMINI_KEY is set.
type GeminiIntegrationSuite struct {
	suite.Suite
	apiKey      string
	baseURL     string
	modelName   string
	fixturePath string
}

func (s *GeminiIntegrationSuite) SetupSuite() {
	settingsFromEnv := strings.TrimSpace(os.Getenv("SETTINGS_FILE"))
	settingsFile := settingsFromEnv
	if settingsFile == "" {
		homeDir, err := os.UserHomeDir()
		require.NoError(s.T(), err)
		settingsFile = filepath.Join(homeDir, ".env")
	}

	if _, err := os.Stat(settingsFile); err == nil {
		require.NoError(s.T(), godotenv.Overload(settingsFile))
	} else if !errors.Is(err, os.ErrNotExist) || settingsFromEnv != "" {
		require.NoError(s.T(), err)
	}

	s.apiKey = strings.TrimSpace(os.Getenv("GEMINI_KEY"))
	s.baseURL = strings.TrimSpace(os.Getenv("GEMINI_BASE_URL"))
	s.modelName = strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	s.fixturePath = strings.TrimSpace(os.Getenv("GEMINI_AUDIO_FIXTURE"))
	if s.apiKey == "" {
		s.T().Skip("GEMINI_KEY is not set; skipping external dependency integration test")
	}
	if s.modelName == "" {
		s.modelName = defaultGenerationModelName
	}
}

func (s *GeminiIntegrationSuite) generator(ctx context.Context) *ReportGenerator {
	opts := []model.GeneratorOption{
		model.WithAuthToken(s.apiKey),
		model.WithModel(s.modelName),
	}
	if s.baseURL != "" {
		opts = append(opts, model.WithURL(s.baseURL))
	}
	generator, err := NewReportGenerator(ctx, opts...)
	require.NoError(s.T(), err)
	return generator
}

func (s *GeminiIntegrationSuite) TestListGenerationModels() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	names, err := s.generator(ctx).ListGenerationModels(ctx)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), names)
}

func (s *GeminiIntegrationSuite) TestUnknownModelSurfacesAlternatives() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	request, err := model.NewReportRequest(
		"Say hello.",
		model.AudioPayload{Data: []byte("RIFF0000WAVEfmt "), MIMEType: "audio/wav"},
		"gemini-does-not-exist-0",
	)
	require.NoError(s.T(), err)

	_, _, err = s.generator(ctx).Generate(ctx, request)
	require.Error(s.T(), err)
	assert.ErrorIs(s.T(), err, model.ErrModelUnavailable)
	assert.NotEmpty(s.T(), model.AvailableModelsOf(err))
}

func (s *GeminiIntegrationSuite) TestGenerateReportFromFixture() {
	if s.fixturePath == "" {
		s.T().Skip("GEMINI_AUDIO_FIXTURE is not set; skipping audio report test")
	}
	data, err := os.ReadFile(s.fixturePath)
	require.NoError(s.T(), err)

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	audio, err := model.NewAudioPayload(data, "", s.fixturePath)
	require.NoError(s.T(), err)
	request, err := model.NewReportRequest(prompt.NewComposer().Compose(), audio, "")
	require.NoError(s.T(), err)

	report, metadata, err := s.generator(ctx).Generate(ctx, request)
	require.NoError(s.T(), err)
	assert.NotEmpty(s.T(), strings.TrimSpace(report.Text))
	assert.Equal(s.T(), "gemini", metadata[model.MetadataKeyProvider])
	assert.NotEmpty(s.T(), metadata[model.MetadataKeyLatencyMs])
}

func TestGeminiIntegrationSuite(t *testing.T) {
	suite.Run(t, new(GeminiIntegrationSuite))
}
