// Package prompt builds the instruction text sent with each voice memo.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Nephrolytics-ai/vibe-relayer/pkg/model"
)

// Section headers the report layout is built from.
const (
	HeaderDate          = "日付"
	SectionMenu         = "【メニュー】"
	SectionGoal         = "【目標】"
	SectionResult       = "【結果】"
	SectionReflection   = "【振り返り】"
	SectionFreeNotes    = "（さらに何かあれば）"
	LabelKeep           = "K:"
	LabelProblem        = "P:"
	LabelTry            = "T:"
	DefaultLocationName = "Asia/Tokyo"
)

var defaultJargon = []string{"UT", "B1", "B2", "RPE", "エルゴ", "艇庫"}

// Clock is injected so the date header can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type Composer struct {
	clock    Clock
	location *time.Location
	signOff  string
	glossary []model.GlossaryTerm
}

type Option func(*Composer)

func WithClock(clock Clock) Option {
	return func(c *Composer) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithLocation(location *time.Location) Option {
	return func(c *Composer) {
		if location != nil {
			c.location = location
		}
	}
}

// WithSignOff sets a line the provider must append verbatim to every report.
func WithSignOff(line string) Option {
	return func(c *Composer) {
		c.signOff = strings.TrimSpace(line)
	}
}

func WithGlossary(terms []model.GlossaryTerm) Option {
	return func(c *Composer) {
		c.glossary = normalizeGlossary(terms)
	}
}

func NewComposer(opts ...Option) *Composer {
	c := &Composer{
		clock:    systemClock{},
		location: defaultLocation(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func defaultLocation() *time.Location {
	location, err := time.LoadLocation(DefaultLocationName)
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return location
}

type templateData struct {
	Date       string
	Jargon     string
	Glossary   string
	SignOff    string
	Header     string
	Menu       string
	Goal       string
	Result     string
	Reflection string
	FreeNotes  string
	Keep       string
	Problem    string
	Try        string
}

var reportTemplate = template.Must(template.New("report").Parse(`あなたはボート部のマネージャーです。
選手が練習後に録音した音声を聞き取り、下記のフォーマットに正確に整理してください。

【ルール】
1. 日付は「{{.Date}}」と記載してください。
2. 音声から『メニュー』『目標』『結果』を抽出してください。
3. 『振り返り』はKPT形式（Keep: 良かった点、Problem: 課題、Try: 次にやること）で整理してください。
4. ボート用語（{{.Jargon}}など）は文脈から判断し、正しい漢字・英語表記に直してください。
{{- if .Glossary}}
   用語の参考: {{.Glossary}}
{{- end}}
5. 最後に{{.FreeNotes}}として、雑談やエピソードを記載してください。
{{- if .SignOff}}
6. 報告の最終行に次の一行をそのまま付けてください: {{.SignOff}}
{{- else}}
6. フォーマット以外の前置き・署名・メタデータは付けないでください。
{{- end}}

【出力フォーマット】
{{.Header}} {{.Date}}
{{.Menu}}
[内容]

{{.Goal}}
[内容]

{{.Result}}
[内容]

{{.Reflection}}
{{.Keep}}
{{.Problem}}
{{.Try}}

{{.FreeNotes}}
[内容]
{{- if .SignOff}}

{{.SignOff}}
{{- end}}
`))

// Compose reads the clock on every call.
func (c *Composer) Compose() string {
	data := templateData{
		Date:       FormatDate(c.clock.Now().In(c.location)),
		Jargon:     strings.Join(defaultJargon, ", "),
		Glossary:   glossaryJSON(c.glossary),
		SignOff:    c.signOff,
		Header:     HeaderDate,
		Menu:       SectionMenu,
		Goal:       SectionGoal,
		Result:     SectionResult,
		Reflection: SectionReflection,
		FreeNotes:  SectionFreeNotes,
		Keep:       LabelKeep,
		Problem:    LabelProblem,
		Try:        LabelTry,
	}

	var b strings.Builder
	// Only strings are rendered, so Execute cannot fail on a builder.
	_ = reportTemplate.Execute(&b, data)
	return b.String()
}

// FormatDate renders t as "M/D ( Ddd )", e.g. "2/16 ( Mon )".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%d/%d ( %s )", int(t.Month()), t.Day(), t.Format("Mon"))
}

func glossaryJSON(terms []model.GlossaryTerm) string {
	if len(terms) == 0 {
		return ""
	}
	encoded, err := json.Marshal(terms)
	if err != nil {
		return ""
	}
	return string(encoded)
}

func normalizeGlossary(terms []model.GlossaryTerm) []model.GlossaryTerm {
	if len(terms) == 0 {
		return nil
	}

	normalized := make([]model.GlossaryTerm, 0, len(terms))
	for _, term := range terms {
		word := strings.TrimSpace(term.Word)
		definition := strings.TrimSpace(term.Definition)
		mistypes := make([]string, 0, len(term.CommonMistypes))
		for _, candidate := range term.CommonMistypes {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				continue
			}
			mistypes = append(mistypes, candidate)
		}

		if word == "" {
			continue
		}

		normalized = append(normalized, model.GlossaryTerm{
			Word:           word,
			CommonMistypes: mistypes,
			Definition:     definition,
		})
	}

	if len(normalized) == 0 {
		return nil
	}
	return normalized
}
