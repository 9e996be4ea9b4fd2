package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joseph-ayodele/jobwatch/constants"
	"github.com/joseph-ayodele/jobwatch/internal/app"
	"github.com/joseph-ayodele/jobwatch/internal/common"
	"github.com/joseph-ayodele/jobwatch/internal/core"
	"github.com/joseph-ayodele/jobwatch/internal/entity"
	"github.com/joseph-ayodele/jobwatch/internal/poll"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		kindStr      = flag.String("kind", string(constants.JobKindProcessPDF), "job kind: processar | gerar-sentenca")
		file         = flag.String("file", "", "PDF to process (kind processar); may also be given as the first argument")
		reportText   = flag.String("relatorio", "", "report text for gerar-sentenca")
		reportFile   = flag.String("relatorio-file", "", "file holding the report text for gerar-sentenca")
		instructions = flag.String("instructions", "", "extra instructions for gerar-sentenca")
		refs         = flag.String("refs", "", "comma-separated DOCX reference files for gerar-sentenca")
		caseNumber   = flag.String("case", "", "case number (numero_processo)")
		topK         = flag.Int("top-k", 10, "documents retrieved from the knowledge base")
		rerankTopK   = flag.Int("rerank-top-k", 5, "documents kept after reranking")
		noBase       = flag.Bool("no-base", false, "do not search the knowledge base")
		baseURL      = flag.String("url", "", "service base URL (overrides JOBWATCH_BASE_URL)")
		transport    = flag.String("transport", "", "http | grpc (overrides JOBWATCH_TRANSPORT)")
		interval     = flag.Duration("interval", 0, "poll interval (overrides POLL_INTERVAL)")
		timeout      = flag.Duration("timeout", 0, "session timeout (overrides POLL_TIMEOUT)")
		out          = flag.String("out", "", "write the validated result JSON to this file")
		download     = flag.String("download", "", "download *_url artifacts into this directory (http only)")
		report       = flag.String("report", "", "write an XLSX journal of the run to this file")
	)
	flag.Parse()

	kind, ok := constants.CanonicalizeKind(*kindStr)
	if !ok {
		printError("Error: unknown --kind %q (want one of %s)\n", *kindStr, strings.Join(constants.KindsAsStringSlice(), ", "))
		os.Exit(1)
	}

	cfg := common.LoadConfig()
	if *baseURL != "" {
		cfg.Service.BaseURL = strings.TrimRight(*baseURL, "/")
	}
	if *transport != "" {
		cfg.Service.Transport = strings.ToLower(*transport)
	}
	if *interval > 0 {
		cfg.Poll.Interval = *interval
	}
	if *timeout > 0 {
		cfg.Poll.Timeout = *timeout
	}
	if err := cfg.Validate(); err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	var in entity.JobInput
	switch kind {
	case constants.JobKindProcessPDF:
		path := *file
		if path == "" {
			path = flag.Arg(0)
		}
		if path == "" {
			printError("Error: a PDF is required (--file or first argument)\n")
			os.Exit(1)
		}
		in = core.PDFJob(path)
		if *caseNumber != "" {
			in.Fields = map[string]string{core.FieldCaseNumber: *caseNumber}
		}
	case constants.JobKindGenerateSentence:
		text := *reportText
		if *reportFile != "" {
			b, err := os.ReadFile(*reportFile)
			if err != nil {
				printError("Error: read --relatorio-file: %v\n", err)
				os.Exit(1)
			}
			text = string(b)
		}
		req := core.NewSentenceRequest(text)
		req.Instructions = *instructions
		req.CaseNumber = *caseNumber
		req.TopK = *topK
		req.RerankTopK = *rerankTopK
		req.SearchBase = !*noBase
		for _, r := range strings.Split(*refs, ",") {
			if r = strings.TrimSpace(r); r != "" {
				req.References = append(req.References, r)
			}
		}
		in = core.SentenceJob(req)
	}

	logger := common.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer stack.Cleanup()

	outcome := stack.Processor.Run(ctx, in, poll.Callbacks{
		OnUpdate: func(u poll.Update) {
			fmt.Printf("[%s] %-10s %s (%s left)\n", u.Handle, u.State, u.Text, u.Remaining.Truncate(time.Second))
		},
		OnComplete: func(payload any) {
			fmt.Printf("done: %d characters of %s\n", len([]rune(core.ResultText(kind, payload))), kind.ResultField())
		},
		OnError: func(err error) {
			printError("Error: %s\n", common.UserMessage(err))
		},
	})

	if *report != "" {
		if err := stack.Exporter.WriteSessionsXLSX(context.WithoutCancel(ctx), *report); err != nil {
			logger.Error("failed to write report", "path", *report, "error", err)
		}
	}

	if outcome.State != constants.SessionDone {
		if outcome.State == constants.SessionCancelled {
			printError("cancelled\n")
		}
		stack.Cleanup()
		os.Exit(2)
	}

	if *out != "" {
		b, err := json.MarshalIndent(outcome.Payload, "", "  ")
		if err == nil {
			err = os.WriteFile(*out, b, 0o644)
		}
		if err != nil {
			logger.Error("failed to write result", "path", *out, "error", err)
			stack.Cleanup()
			os.Exit(1)
		}
		fmt.Printf("result written to %s\n", *out)
	}

	if *download != "" {
		if stack.HTTP == nil {
			printError("Error: --download needs the http transport\n")
			stack.Cleanup()
			os.Exit(1)
		}
		if err := os.MkdirAll(*download, 0o755); err != nil {
			logger.Error("failed to create download dir", "dir", *download, "error", err)
			stack.Cleanup()
			os.Exit(1)
		}
		for _, a := range core.Artifacts(outcome.Payload) {
			dest, err := stack.HTTP.Download(ctx, a.Ref, *download)
			if err != nil {
				logger.Error("failed to download artifact", "field", a.Field, "ref", a.Ref, "error", err)
				continue
			}
			fmt.Printf("%s -> %s\n", a.Field, filepath.Clean(dest))
		}
	}
}
