package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"simpleml/internal/api"
	"simpleml/internal/cfg"
	"simpleml/internal/client"
	"simpleml/internal/common"
	"simpleml/internal/ml"
	"simpleml/internal/roster"
	"simpleml/internal/screening"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		inputPath  = flag.String("input", "", "Student roster CSV to screen")
		outputPath = flag.String("output", common.ResultFilename, "Where to write the labelled CSV")
		modelPath  = flag.String("model", "", "Model artifact (overrides MODEL_PATH)")
		serverURL  = flag.String("server", "", "Screen on a running SimpleML server instead of locally")
		top        = flag.Int("top", common.DefaultMaxDisplay, "Number of features to list by importance")
		threshold  = flag.Float64("threshold", 0, "At-risk probability threshold (0 uses PROB_THRESHOLD, then the model's own)")
		timeout    = flag.Duration("timeout", 30*time.Second, "Overall timeout")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: predict -input roster.csv [-output results.csv] [-server http://host:8501]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	if err := checkFlags(*serverURL, *modelPath, *threshold); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	config, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *modelPath != "" {
		config.ModelPath = *modelPath
	}
	if *threshold > 0 {
		config.ProbThreshold = *threshold
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	in, err := os.Open(*inputPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open input")
	}
	defer in.Close()

	var summary *api.PredictResponse
	var csv []byte
	if *serverURL != "" {
		summary, csv, err = screenRemote(ctx, *serverURL, *inputPath, in)
	} else {
		summary, csv, err = screenLocal(ctx, config, in)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Screening failed")
	}

	if err := os.WriteFile(*outputPath, csv, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write results")
	}

	printSummary(os.Stdout, summary, *top)
	fmt.Printf("Results written to %s\n", *outputPath)
}

// checkFlags rejects local-only flags in server mode, where the server's own
// model and threshold apply.
func checkFlags(server, model string, threshold float64) error {
	if server == "" {
		return nil
	}
	if model != "" {
		return errors.New("-model cannot be combined with -server")
	}
	if threshold != 0 {
		return errors.New("-threshold cannot be combined with -server")
	}
	return nil
}

func screenRemote(ctx context.Context, server, path string, in io.Reader) (*api.PredictResponse, []byte, error) {
	c := client.New(server, 0)

	health, err := c.Health(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("server not reachable: %w", err)
	}
	if health.Status != "ok" {
		return nil, nil, fmt.Errorf("server unhealthy: %s", health.Status)
	}
	log.Info().
		Str("server", server).
		Str("model_version", health.ModelVersion).
		Msg("Screening on server")

	resp, err := c.Predict(ctx, filepath.Base(path), in)
	if err != nil {
		return nil, nil, err
	}
	csv, err := c.Download(ctx, resp.SessionID)
	if err != nil {
		return nil, nil, err
	}
	return resp, csv, nil
}

func screenLocal(ctx context.Context, config cfg.Settings, in io.Reader) (*api.PredictResponse, []byte, error) {
	predictor, err := ml.NewWithMetrics(config.ModelPath, nil, config.ProbThreshold)
	if err != nil {
		return nil, nil, err
	}

	s := screening.NewScreener(predictor, screening.Options{
		Encode: roster.EncodeOptions{
			GenderColumn: config.GenderColumn,
			GradeColumn:  config.GradeColumn,
		},
		DropColumns: config.DropColumns,
		NameColumn:  config.NameColumn,
	}, nil)

	report, err := s.Run(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	csv, err := report.CSV()
	if err != nil {
		return nil, nil, err
	}

	return &api.PredictResponse{
		ModelVersion: report.ModelVersion,
		Threshold:    report.Threshold,
		Rows:         report.Roster.Len(),
		AtRisk:       report.AtRisk,
		Features:     report.Features,
		Dropped:      report.Dropped,
		Expected:     report.Explanation.Expected,
		Importance:   report.Importance,
		Predictions:  report.Students(config.NameColumn),
	}, csv, nil
}

func printSummary(w io.Writer, r *api.PredictResponse, top int) {
	fmt.Fprintln(w, "=== Prediction Results ===")
	for _, p := range r.Predictions {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("row %d", p.Row)
		}
		fmt.Fprintf(w, "%-24s %-8s %.3f\n", name, p.RiskLevel, p.Probability)
	}
	fmt.Fprintf(w, "%d of %d students flagged as at risk (model %s, threshold %.2f)\n", r.AtRisk, r.Rows, r.ModelVersion, r.Threshold)
	if len(r.Dropped) > 0 {
		fmt.Fprintf(w, "Ignored non-numeric columns: %v\n", r.Dropped)
	}

	fmt.Fprintln(w, "=== Model Explainability (SHAP) ===")
	for _, f := range ml.Top(r.Importance, top) {
		fmt.Fprintf(w, "%-24s %.4f\n", f.Name, f.MeanAbsSHAP)
	}
	fmt.Fprintln(w, "==================================")
}
