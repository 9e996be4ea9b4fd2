package core

import (
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
	"github.com/joseph-ayodele/jobwatch/internal/validate"
)

// DefaultMinResultLength is how many characters a result text must exceed.
const DefaultMinResultLength = 50

// Multipart field names expected by the document service.
const (
	FieldPDF            = "pdf"
	FieldReport         = "relatorio"
	FieldInstructions   = "instrucoes_usuario"
	FieldCaseNumber     = "numero_processo"
	FieldTopK           = "top_k"
	FieldRerankTopK     = "rerank_top_k"
	FieldSearchBase     = "buscar_na_base"
	FieldReferenceFiles = "arquivos_referencia"
)

// DefaultValidators requires each kind's result text to be longer than minLen.
func DefaultValidators(minLen int) map[constants.JobKind]validate.ResultValidator {
	out := make(map[constants.JobKind]validate.ResultValidator)
	for _, k := range constants.KindsAsStringSlice() {
		kind := constants.JobKind(k)
		out[kind] = validate.FieldLongerThan(kind.ResultField(), minLen)
	}
	return out
}

// PDFJob builds a "processar" job for the PDF at path.
func PDFJob(path string) entity.JobInput {
	return entity.JobInput{
		Kind:  constants.JobKindProcessPDF,
		Files: []entity.FilePart{{Field: FieldPDF, Path: path}},
	}
}

// SentenceRequest holds the inputs of a "gerar-sentenca" job.
type SentenceRequest struct {
	Report       string
	Instructions string
	CaseNumber   string
	TopK         int
	RerankTopK   int
	SearchBase   bool
	// References are DOCX files used as style and precedent examples.
	References []string
}

// NewSentenceRequest returns a request with the service's defaults.
func NewSentenceRequest(report string) SentenceRequest {
	return SentenceRequest{Report: report, TopK: 10, RerankTopK: 5, SearchBase: true}
}

// SentenceJob builds a "gerar-sentenca" job from req.
func SentenceJob(req SentenceRequest) entity.JobInput {
	fields := map[string]string{
		FieldReport:       req.Report,
		FieldInstructions: req.Instructions,
		FieldTopK:         strconv.Itoa(req.TopK),
		FieldRerankTopK:   strconv.Itoa(req.RerankTopK),
		FieldSearchBase:   strconv.FormatBool(req.SearchBase),
	}
	if req.CaseNumber != "" {
		fields[FieldCaseNumber] = req.CaseNumber
	}
	in := entity.JobInput{Kind: constants.JobKindGenerateSentence, Fields: fields}
	for _, p := range req.References {
		in.Files = append(in.Files, entity.FilePart{Field: FieldReferenceFiles, Path: p})
	}
	return in
}

// ResultText returns the main text field of a validated payload for kind.
func ResultText(kind constants.JobKind, payload any) string {
	obj, _ := payload.(map[string]any)
	s, _ := obj[kind.ResultField()].(string)
	return s
}

// Artifacts returns the downloadable references in a payload: every string
// field whose name ends in "_url", sorted by field name.
func Artifacts(payload any) []Artifact {
	obj, _ := payload.(map[string]any)
	var out []Artifact
	for k, v := range obj {
		if s, ok := v.(string); ok && s != "" && strings.HasSuffix(k, "_url") {
			out = append(out, Artifact{Field: k, Ref: s})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Artifact is a file the service produced alongside the result.
type Artifact struct {
	Field string
	Ref   string
}
