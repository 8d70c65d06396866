package prompt

import "strings"

// RequiredSections lists the markers every report is expected to carry, in layout order.
var RequiredSections = []string{
	HeaderDate,
	SectionMenu,
	SectionGoal,
	SectionResult,
	SectionReflection,
	LabelKeep,
	LabelProblem,
	LabelTry,
}

// MissingSections returns the required markers absent from text. A nil result
// means the report matches the requested layout.
func MissingSections(text string) []string {
	var missing []string
	for _, section := range RequiredSections {
		if !strings.Contains(text, section) {
			missing = append(missing, section)
		}
	}
	return missing
}
