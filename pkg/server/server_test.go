package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/logging"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/pipeline"
	"github.com/Nephrolytics-ai/vibe-relayer/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/suite"
)

type stubRunner struct {
	result    pipeline.Result
	err       error
	panicWith any
	calls     int
	lastAudio model.AudioPayload
	lastRID   string
}

func (r *stubRunner) Run(ctx context.Context, audio model.AudioPayload) (pipeline.Result, error) {
	r.calls++
	r.lastAudio = audio
	r.lastRID = logging.RequestIDFromContext(ctx)
	if r.panicWith != nil {
		panic(r.panicWith)
	}
	return r.result, r.err
}

type stubLister struct {
	models []string
	err    error
}

func (l *stubLister) ListGenerationModels(context.Context) ([]string, error) {
	return l.models, l.err
}

type ServerSuite struct {
	suite.Suite
	runner *stubRunner
	lister *stubLister
	router *gin.Engine
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (s *ServerSuite) SetupTest() {
	s.runner = &stubRunner{}
	s.lister = &stubLister{}
	s.router = NewRouter(s.runner, s.lister, WithMaxUploadBytes(64*1024))
}

func (s *ServerSuite) uploadRequest(fileName string, contentType string, data []byte) *http.Request {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="`+fileName+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	s.Require().NoError(err)
	_, err = part.Write(data)
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func (s *ServerSuite) serve(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	var payload map[string]any
	if rec.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func (s *ServerSuite) TestHealth() {
	rec, payload := s.serve(httptest.NewRequest(http.MethodGet, "/health", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", payload["status"])
	s.NotEmpty(rec.Header().Get(HeaderRequestID))
}

func (s *ServerSuite) TestRequestIDIsEchoedAndPropagated() {
	s.runner.result = pipeline.Result{
		Report:   &model.GeneratedReport{Text: "日付 2/16 ( Mon )"},
		Delivery: &model.DeliveryOutcome{Status: model.DeliveryStatusSuccess, StatusCode: 200},
	}
	req := s.uploadRequest("memo.m4a", "audio/x-m4a", []byte("audio"))
	req.Header.Set(HeaderRequestID, "rid-42")

	rec, payload := s.serve(req)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("rid-42", rec.Header().Get(HeaderRequestID))
	s.Equal("rid-42", payload["request_id"])
	s.Equal("rid-42", s.runner.lastRID)
}

func (s *ServerSuite) TestCreateReportSuccess() {
	s.runner.result = pipeline.Result{
		Report:          &model.GeneratedReport{Text: "日付 2/16 ( Mon )\n【メニュー】\nUT60"},
		Delivery:        &model.DeliveryOutcome{Status: model.DeliveryStatusSuccess, StatusCode: 200},
		MissingSections: []string{"【目標】"},
		Metadata:        model.GenerationMetadata{model.MetadataKeyModel: "gemini-2.5-flash"},
	}

	rec, payload := s.serve(s.uploadRequest("memo.m4a", "audio/x-m4a", []byte("audio-bytes")))
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("日付 2/16 ( Mon )\n【メニュー】\nUT60", payload["report"])
	s.Equal("success", payload["delivery"].(map[string]any)["status"])
	s.Equal([]any{"【目標】"}, payload["missing_sections"])
	s.Equal("gemini-2.5-flash", payload["metadata"].(map[string]any)["model"])

	s.Equal(1, s.runner.calls)
	s.Equal([]byte("audio-bytes"), s.runner.lastAudio.Data)
	s.Equal("audio/mp4", s.runner.lastAudio.MIMEType)
	s.Equal("memo.m4a", s.runner.lastAudio.FileName)
}

func (s *ServerSuite) TestCreateReportResolvesTypeFromExtension() {
	s.runner.result = pipeline.Result{Report: &model.GeneratedReport{Text: "ok"}}

	rec, _ := s.serve(s.uploadRequest("memo.wav", "application/octet-stream", []byte("RIFF")))
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("audio/wav", s.runner.lastAudio.MIMEType)
}

func (s *ServerSuite) TestCreateReportMissingFieldIsBadRequest() {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", nil)

	rec, payload := s.serve(req)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Equal(string(model.KindInvalidInput), payload["kind"])
	s.Zero(s.runner.calls)
}

func (s *ServerSuite) TestCreateReportRejectsEmptyAndNonAudio() {
	rec, _ := s.serve(s.uploadRequest("memo.m4a", "audio/mp4", nil))
	s.Equal(http.StatusBadRequest, rec.Code)

	rec, _ = s.serve(s.uploadRequest("notes.txt", "text/plain", []byte("hello")))
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Zero(s.runner.calls)
}

func (s *ServerSuite) TestCreateReportTooLarge() {
	rec, payload := s.serve(s.uploadRequest("memo.m4a", "audio/mp4", make([]byte, 128*1024)))
	s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
	s.Equal(string(model.KindInvalidInput), payload["kind"])
	s.Zero(s.runner.calls)
}

func (s *ServerSuite) TestCreateReportModelUnavailable() {
	s.runner.err = utils.WrapIfNotNil(&model.Error{
		Kind:            model.KindModelUnavailable,
		Message:         `model "gemini-1.5-flash" is not available`,
		StatusCode:      404,
		AvailableModels: []string{"gemini-2.5-flash", "gemini-2.5-pro"},
	})

	rec, payload := s.serve(s.uploadRequest("memo.m4a", "audio/mp4", []byte("a")))
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Equal(string(model.KindModelUnavailable), payload["kind"])
	s.Equal([]any{"gemini-2.5-flash", "gemini-2.5-pro"}, payload["available_models"])
	s.Contains(payload["error"], "gemini-1.5-flash")
	s.NotContains(payload["error"], "pkg/server")
	s.Nil(payload["report"])
}

func (s *ServerSuite) TestCreateReportDeliveryFailureKeepsReport() {
	s.runner.result = pipeline.Result{
		Report:   &model.GeneratedReport{Text: "report body"},
		Delivery: &model.DeliveryOutcome{Status: model.DeliveryStatusProviderError, StatusCode: 500, Message: "internal_error"},
	}
	s.runner.err = &model.Error{Kind: model.KindDeliveryFailure, StatusCode: 500, Message: "webhook rejected the report: internal_error"}

	rec, payload := s.serve(s.uploadRequest("memo.m4a", "audio/mp4", []byte("a")))
	s.Equal(http.StatusBadGateway, rec.Code)
	s.Equal("report body", payload["report"])
	delivery := payload["delivery"].(map[string]any)
	s.Equal("provider_error", delivery["status"])
	s.Equal(float64(500), delivery["status_code"])
}

func (s *ServerSuite) TestStatusForError() {
	cases := map[model.ErrorKind]int{
		model.KindInvalidInput:         http.StatusBadRequest,
		model.KindModelUnavailable:     http.StatusServiceUnavailable,
		model.KindProviderError:        http.StatusBadGateway,
		model.KindEmptyResponse:        http.StatusBadGateway,
		model.KindDeliveryFailure:      http.StatusBadGateway,
		model.KindTransportError:       http.StatusGatewayTimeout,
		model.KindConfigurationMissing: http.StatusInternalServerError,
	}
	for kind, status := range cases {
		s.Equal(status, statusForError(model.NewError(kind, "x", nil)), string(kind))
	}
	s.Equal(http.StatusInternalServerError, statusForError(errors.New("plain")))
}

func (s *ServerSuite) TestPanicIsRecovered() {
	s.runner.panicWith = "boom"

	rec, payload := s.serve(s.uploadRequest("memo.m4a", "audio/mp4", []byte("a")))
	s.Equal(http.StatusInternalServerError, rec.Code)
	s.Equal("internal server error", payload["error"])
	s.NotEmpty(payload["request_id"])
}

func (s *ServerSuite) TestListModels() {
	s.lister.models = []string{"gemini-2.5-flash", "gemini-2.5-pro"}

	rec, payload := s.serve(httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	s.Equal(http.StatusOK, rec.Code)
	s.Equal([]any{"gemini-2.5-flash", "gemini-2.5-pro"}, payload["models"])
}

func (s *ServerSuite) TestListModelsTransportFailure() {
	s.lister.err = model.NewError(model.KindTransportError, "could not reach provider", nil)

	rec, payload := s.serve(httptest.NewRequest(http.MethodGet, "/api/v1/models", nil))
	s.Equal(http.StatusGatewayTimeout, rec.Code)
	s.Equal(string(model.KindTransportError), payload["kind"])
}

func (s *ServerSuite) TestHTTPServerWriteTimeoutOutlastsRunBudget() {
	budget := 5*time.Minute + 15*time.Second
	srv := NewHTTPServer(":0", s.router, budget)
	s.Greater(srv.WriteTimeout, budget)

	fallback := NewHTTPServer(":0", s.router, 0)
	s.Greater(fallback.WriteTimeout, 60*time.Second+15*time.Second)
}
