package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ReportModelSuite struct {
	suite.Suite
}

func TestReportModelSuite(t *testing.T) {
	suite.Run(t, new(ReportModelSuite))
}

func (s *ReportModelSuite) TestResolveAudioMIMETypeNormalizesAliases() {
	mimeType, err := ResolveAudioMIMEType("audio/m4a", "memo.m4a")
	s.Require().NoError(err)
	s.Equal("audio/mp4", mimeType)

	mimeType, err = ResolveAudioMIMEType("audio/x-wav; codecs=1", "")
	s.Require().NoError(err)
	s.Equal("audio/wav", mimeType)
}

func (s *ReportModelSuite) TestResolveAudioMIMETypeFallsBackToExtension() {
	mimeType, err := ResolveAudioMIMEType("application/octet-stream", "Practice.M4A")
	s.Require().NoError(err)
	s.Equal("audio/mp4", mimeType)

	mimeType, err = ResolveAudioMIMEType("", "memo.flac")
	s.Require().NoError(err)
	s.Equal("audio/flac", mimeType)
}

func (s *ReportModelSuite) TestResolveAudioMIMETypeRejectsNonAudio() {
	_, err := ResolveAudioMIMEType("text/plain", "notes.txt")
	s.Require().Error(err)
	s.ErrorIs(err, ErrInvalidInput)

	_, err = ResolveAudioMIMEType("", "notes.txt")
	s.Require().Error(err)
	s.Contains(err.Error(), "unsupported audio file extension")

	_, err = ResolveAudioMIMEType("", "")
	s.Require().Error(err)
}

func (s *ReportModelSuite) TestNewAudioPayloadRejectsEmptyData() {
	_, err := NewAudioPayload(nil, "audio/mp4", "memo.m4a")
	s.Require().Error(err)
	s.Equal(KindInvalidInput, KindOf(err))
}

func (s *ReportModelSuite) TestCanonicalMIMEType() {
	payload := AudioPayload{Data: []byte{1}, MIMEType: "audio/m4a"}
	s.NoError(payload.Validate())
	s.Equal("audio/mp4", payload.CanonicalMIMEType())
}

func (s *ReportModelSuite) TestNewReportRequestRequiresPrompt() {
	audio := AudioPayload{Data: []byte{1, 2}, MIMEType: "audio/mp4"}

	_, err := NewReportRequest("   ", audio, "gemini-2.5-flash")
	s.ErrorIs(err, ErrInvalidInput)

	request, err := NewReportRequest("prompt", audio, " gemini-2.5-flash ")
	s.Require().NoError(err)
	s.Equal("gemini-2.5-flash", request.Model)
	s.NoError(request.Validate())
}

func (s *ReportModelSuite) TestNewGeneratedReportKeepsTextUnmodified() {
	report, err := NewGeneratedReport("  日付 2/16 ( Mon )\n")
	s.Require().NoError(err)
	s.Equal("  日付 2/16 ( Mon )\n", report.Text)
}

func (s *ReportModelSuite) TestNewGeneratedReportRejectsEmptyAndInvalid() {
	_, err := NewGeneratedReport(" \n ")
	s.ErrorIs(err, ErrEmptyResponse)
	s.ErrorIs(err, ErrProviderError)

	_, err = NewGeneratedReport(string([]byte{0xff, 0xfe}))
	s.ErrorIs(err, ErrEmptyResponse)
}

func (s *ReportModelSuite) TestErrorKindMatchingThroughWraps() {
	base := &Error{
		Kind:            KindModelUnavailable,
		Message:         "models/gemini-1.5-flash is not found",
		StatusCode:      404,
		AvailableModels: []string{"gemini-2.5-flash"},
	}
	wrapped := fmt.Errorf("generate: %w", base)

	s.ErrorIs(wrapped, ErrModelUnavailable)
	s.False(errors.Is(wrapped, ErrProviderError))
	s.Equal(KindModelUnavailable, KindOf(wrapped))
	s.Equal([]string{"gemini-2.5-flash"}, AvailableModelsOf(wrapped))
	s.Equal("model_unavailable (404): models/gemini-1.5-flash is not found", base.Error())
}

func (s *ReportModelSuite) TestKindOfPlainError() {
	s.Equal(ErrorKind(""), KindOf(errors.New("plain")))
	s.Nil(AvailableModelsOf(errors.New("plain")))
}

func (s *ReportModelSuite) TestErrorMessageIncludesCause() {
	err := NewError(KindTransportError, "calling provider", errors.New("dial tcp: refused"))
	s.Equal("transport_error: calling provider: dial tcp: refused", err.Error())
	s.ErrorContains(errors.Unwrap(err), "refused")
}

func (s *ReportModelSuite) TestDeliveryOutcomeSucceeded() {
	s.True(DeliveryOutcome{Status: DeliveryStatusSuccess}.Succeeded())
	s.False(DeliveryOutcome{Status: DeliveryStatusProviderError, StatusCode: 500}.Succeeded())
}
