package constants

import (
	"strings"
)

// JobKind names a queue endpoint on the document service.
type JobKind string

const (
	JobKindProcessPDF       JobKind = "processar"
	JobKindGenerateSentence JobKind = "gerar-sentenca"
)

var allKinds = []JobKind{
	JobKindProcessPDF,
	JobKindGenerateSentence,
}

// ResultField is the payload field that carries the main text produced by a job kind.
func (k JobKind) ResultField() string {
	switch k {
	case JobKindProcessPDF:
		return "relatorio"
	case JobKindGenerateSentence:
		return "sentenca"
	default:
		return ""
	}
}

func KindsAsStringSlice() []string {
	result := make([]string, len(allKinds))
	for i, k := range allKinds {
		result[i] = string(k)
	}
	return result
}

// CanonicalizeKind maps user input (CLI flags, directory names) onto a JobKind.
func CanonicalizeKind(input string) (JobKind, bool) {
	if input == "" {
		return JobKindProcessPDF, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]JobKind{
		"pdf":            JobKindProcessPDF,
		"report":         JobKindProcessPDF,
		"relatorio":      JobKindProcessPDF,
		"sentence":       JobKindGenerateSentence,
		"sentenca":       JobKindGenerateSentence,
		"gerar_sentenca": JobKindGenerateSentence,
	}

	if k, ok := synonyms[normalized]; ok {
		return k, true
	}

	for _, k := range allKinds {
		if normalized == string(k) {
			return k, true
		}
	}

	return JobKindProcessPDF, false
}
