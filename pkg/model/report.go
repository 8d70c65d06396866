package model

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// AudioPayload is one uploaded recording. It belongs to a single pipeline run.
type AudioPayload struct {
	Data     []byte
	MIMEType string
	FileName string
}

// ReportRequest is consumed by a ReportGenerator. Build it with NewReportRequest.
type ReportRequest struct {
	Prompt string
	Audio  AudioPayload
	Model  string
}

// GeneratedReport is the provider's text, passed through unmodified.
type GeneratedReport struct {
	Text string
}

type DeliveryStatus string

const (
	DeliveryStatusSuccess        DeliveryStatus = "success"
	DeliveryStatusProviderError  DeliveryStatus = "provider_error"
	DeliveryStatusTransportError DeliveryStatus = "transport_error"
)

type DeliveryOutcome struct {
	Status     DeliveryStatus `json:"status"`
	StatusCode int            `json:"status_code,omitempty"`
	Message    string         `json:"message,omitempty"`
}

func (o DeliveryOutcome) Succeeded() bool {
	return o.Status == DeliveryStatusSuccess
}

// GlossaryTerm is domain jargon the provider should write in canonical form.
type GlossaryTerm struct {
	Word           string   `json:"word,omitempty" yaml:"word"`
	CommonMistypes []string `json:"common_mistypes,omitempty" yaml:"common_mistypes"`
	Definition     string   `json:"definition,omitempty" yaml:"definition"`
}

const defaultAudioMIMEType = "application/octet-stream"

var audioMIMEAliases = map[string]string{
	"audio/wav":    "audio/wav",
	"audio/x-wav":  "audio/wav",
	"audio/wave":   "audio/wav",
	"audio/mpeg":   "audio/mpeg",
	"audio/mp3":    "audio/mpeg",
	"audio/aiff":   "audio/aiff",
	"audio/x-aiff": "audio/aiff",
	"audio/aac":    "audio/aac",
	"audio/ogg":    "audio/ogg",
	"audio/flac":   "audio/flac",
	"audio/x-flac": "audio/flac",
	"audio/mp4":    "audio/mp4",
	"audio/m4a":    "audio/mp4",
	"audio/x-m4a":  "audio/mp4",
	"audio/webm":   "audio/webm",
}

var audioExtensionTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".aiff": "audio/aiff",
	".aif":  "audio/aiff",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/mp4",
	".mp4":  "audio/mp4",
	".webm": "audio/webm",
}

// NewAudioPayload resolves the declared content type, falling back to the
// file extension when the type is missing or generic.
func NewAudioPayload(data []byte, declaredType string, fileName string) (AudioPayload, error) {
	mimeType, err := ResolveAudioMIMEType(declaredType, fileName)
	if err != nil {
		return AudioPayload{}, err
	}
	payload := AudioPayload{Data: data, MIMEType: mimeType, FileName: fileName}
	if err := payload.Validate(); err != nil {
		return AudioPayload{}, err
	}
	return payload, nil
}

func (a AudioPayload) Validate() error {
	if len(a.Data) == 0 {
		return NewError(KindInvalidInput, "audio payload is empty", nil)
	}
	if _, ok := audioMIMEAliases[a.MIMEType]; !ok {
		return NewError(KindInvalidInput, fmt.Sprintf("unsupported audio mime type %q", a.MIMEType), nil)
	}
	return nil
}

// CanonicalMIMEType maps aliases such as audio/m4a to the type sent upstream.
func (a AudioPayload) CanonicalMIMEType() string {
	if canonical, ok := audioMIMEAliases[a.MIMEType]; ok {
		return canonical
	}
	return a.MIMEType
}

func ResolveAudioMIMEType(declaredType string, fileName string) (string, error) {
	declared := strings.ToLower(strings.TrimSpace(declaredType))
	if declared != "" {
		if parsed, _, err := mime.ParseMediaType(declared); err == nil {
			declared = parsed
		}
	}

	if declared != "" && declared != defaultAudioMIMEType {
		canonical, ok := audioMIMEAliases[declared]
		if !ok {
			return "", NewError(KindInvalidInput, fmt.Sprintf("unsupported audio mime type %q", declared), nil)
		}
		return canonical, nil
	}

	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))
	if ext == "" {
		return "", NewError(KindInvalidInput, "audio file extension is required to determine mime type", nil)
	}
	canonical, ok := audioExtensionTypes[ext]
	if !ok {
		return "", NewError(KindInvalidInput, "unsupported audio file extension: "+ext, nil)
	}
	return canonical, nil
}

func NewReportRequest(prompt string, audio AudioPayload, modelName string) (ReportRequest, error) {
	if strings.TrimSpace(prompt) == "" {
		return ReportRequest{}, NewError(KindInvalidInput, "prompt is required", nil)
	}
	if err := audio.Validate(); err != nil {
		return ReportRequest{}, err
	}
	return ReportRequest{
		Prompt: prompt,
		Audio:  audio,
		Model:  strings.TrimSpace(modelName),
	}, nil
}

func (r ReportRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return NewError(KindInvalidInput, "prompt is required", nil)
	}
	return r.Audio.Validate()
}

// NewGeneratedReport enforces the non-empty UTF-8 invariant without altering text.
func NewGeneratedReport(text string) (GeneratedReport, error) {
	if strings.TrimSpace(text) == "" {
		return GeneratedReport{}, NewError(KindEmptyResponse, "provider returned no text", nil)
	}
	if !utf8.ValidString(text) {
		return GeneratedReport{}, NewError(KindEmptyResponse, "provider returned invalid UTF-8 text", nil)
	}
	return GeneratedReport{Text: text}, nil
}
