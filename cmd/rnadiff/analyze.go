package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"rnadiff/adapters/blast"
	"rnadiff/adapters/counts"
	"rnadiff/adapters/fasta"
	"rnadiff/adapters/report"
	"rnadiff/adapters/store"
	"rnadiff/app"
	"rnadiff/domain/expression"
	"rnadiff/domain/run"
	"rnadiff/internal"
	"rnadiff/internal/config"
	"rnadiff/internal/deseq"
	"rnadiff/internal/errors"
	"rnadiff/internal/profiling"
)

var analyzeBindings = []binding{
	{"workers", "analysis.workers"},
	{"test", "analysis.test"},
	{"min-base-mean", "analysis.min_base_mean"},
	{"alpha", "analysis.alpha"},
	{"independent-filter", "analysis.independent_filter"},
	{"fdr", "analysis.fdr_method"},
	{"size-factors", "analysis.size_factors"},
	{"sequences", "search.sequences"},
	{"out", "output.dir"},
	{"xlsx", "output.xlsx"},
	{"plot", "output.plot"},
}

type analyzeFlags struct {
	counts     string
	design     string
	groups     string
	contrast   string
	geneColumn string
	sheet      string
	covariates []string
}

func newAnalyzeCmd(c *cli) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run differential expression and search the top down-regulated gene",
		Long: `Load a count matrix, build or read the sample design, fit the negative
binomial models, test the contrast and write the result table and report.
The result table is written and stored before the similarity search, so a
failed search (exit code 3) or a top gene missing from --sequences (exit
code 4) still leaves the results in place.

Example:
  rnadiff analyze --counts counts.csv --groups control=3,treated=3 \
    --contrast treated:control --sequences genes.fa --out results`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noSearch, _ := cmd.Flags().GetBool("no-search"); noSearch {
				c.v.Set("search.enabled", false)
			}
			if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
				c.v.Set("store.enabled", false)
			}
			if plot, _ := cmd.Flags().GetString("plot"); plot == "none" {
				c.v.Set("output.plot", "")
			}
			cfg, logger, err := c.load(cmd.Flags(), analyzeBindings...)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runAnalyze(ctx, cfg, f, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.counts, "counts", "", "count matrix (.csv, .tsv, .txt, optionally .gz, or .xlsx)")
	flags.StringVar(&f.design, "design", "", "design table with sample,group[,time][,replicate] columns")
	flags.StringVar(&f.groups, "groups", "", "design in column order, e.g. control=3,treated=3")
	flags.StringVar(&f.contrast, "contrast", "", "[factor:]numerator:denominator, e.g. treated:control")
	flags.StringVar(&f.geneColumn, "gene-column", "", "gene id column name (default first column)")
	flags.StringVar(&f.sheet, "sheet", "", "worksheet for .xlsx input (default first sheet)")
	flags.StringSliceVar(&f.covariates, "covariate", nil, "extra design factor to adjust for, e.g. time")
	cmd.MarkFlagRequired("counts")
	cmd.MarkFlagRequired("contrast")
	cmd.MarkFlagsMutuallyExclusive("design", "groups")

	flags.Int("workers", 0, "gene fitting goroutines")
	flags.String("test", "", "wald or lrt")
	flags.Float64("min-base-mean", 0, "genes below this mean are not tested")
	flags.Float64("alpha", 0, "significance level")
	flags.Bool("independent-filter", false, "choose a mean threshold that maximises rejections")
	flags.String("fdr", "", "bh or bonferroni")
	flags.String("size-factors", "", "library normalisation: ratio, total or none")
	flags.Bool("no-search", false, "skip the similarity search")
	flags.String("sequences", "", "FASTA file with query sequences by gene id")
	flags.String("out", "", "output directory")
	flags.Bool("xlsx", false, "also write results.xlsx")
	flags.String("plot", "", "volcano plot format: png, svg, pdf or none")
	flags.Bool("no-store", false, "do not record the run in the database")

	return cmd
}

func runAnalyze(ctx context.Context, cfg *config.Config, f analyzeFlags, logger *internal.Logger) error {
	contrast, err := expression.ParseContrast(f.contrast)
	if err != nil {
		return err
	}

	// 1. Load inputs
	opts := []counts.Option{counts.WithLogger(logger)}
	if f.geneColumn != "" {
		opts = append(opts, counts.WithGeneColumn(f.geneColumn))
	}
	if f.sheet != "" {
		opts = append(opts, counts.WithSheet(f.sheet))
	}
	matrix, loadReport, err := counts.NewReader(f.counts, opts...).ReadMatrix()
	if err != nil {
		return err
	}
	logger.Info("[CLI] loaded %d genes x %d samples from %s (%d rows dropped)",
		matrix.NumGenes(), matrix.NumSamples(), f.counts, loadReport.Dropped)

	design, err := loadDesign(f, matrix)
	if err != nil {
		return err
	}

	// 2. Wire the pipeline
	sfMode, err := deseq.ParseSizeFactorMode(cfg.Analysis.SizeFactors)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	estOpts := deseq.Options{
		Test:           expression.TestKind(cfg.Analysis.Test),
		Covariates:     f.covariates,
		Workers:        cfg.Analysis.Workers,
		MinBaseMean:    cfg.Analysis.MinBaseMean,
		CooksCutoff:    cfg.Analysis.CooksCutoff,
		SizeFactorMode: sfMode,
		MaxIterations:  cfg.Analysis.MaxIter,
		Tolerance:      cfg.Analysis.Tolerance,
	}
	deps := app.AnalysisDeps{
		Estimator: deseq.NewEstimator(estOpts, logger),
		Profiler:  profiling.NewProfiler(profiling.DefaultFlagThreshold),
		Output: report.NewFileWriter(report.WriterConfig{
			Dir:      cfg.Output.Dir,
			XLSX:     cfg.Output.XLSX,
			HTML:     cfg.Output.HTML,
			Plot:     cfg.Output.Plot,
			Alpha:    cfg.Analysis.Alpha,
			TopGenes: cfg.Analysis.TopGenes,
		}, logger),
	}

	searchEnabled := cfg.Search.Enabled
	if searchEnabled && cfg.Search.Sequences == "" {
		logger.Warn("[CLI] no --sequences file; skipping the similarity search")
		searchEnabled = false
	}
	if searchEnabled {
		deps.Sequences = fasta.NewSource(cfg.Search.Sequences, true)
		deps.Searcher = newBlastClient(cfg, logger)
	}

	if cfg.Store.Enabled {
		st, err := openStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		deps.Repo = st
	}

	svc := app.NewAnalysisService(deps, app.AnalysisOptions{
		Params: run.Params{
			Test:        estOpts.Test,
			MinBaseMean: cfg.Analysis.MinBaseMean,
			CooksCutoff: cfg.Analysis.CooksCutoff,
			SizeFactors: string(sfMode),
			FDRMethod:   cfg.Analysis.FDRMethod,
			Alpha:       cfg.Analysis.Alpha,
			Search:      cfg.SearchParams(),
		},
		IndependentFilter: cfg.Analysis.IndependentFilter,
		SearchEnabled:     searchEnabled,
	}, logger)

	// 3. Run
	result, err := svc.Analyze(ctx, app.AnalysisRequest{Matrix: matrix, Design: design, Contrast: contrast})
	if result != nil && result.Run != nil {
		printSummary(result)
	}
	return err
}

func loadDesign(f analyzeFlags, matrix *expression.CountMatrix) (*expression.SampleDesign, error) {
	switch {
	case f.design != "":
		return counts.ReadDesign(f.design)
	case f.groups != "":
		spec, err := expression.ParseDesignSpec(f.groups)
		if err != nil {
			return nil, err
		}
		return expression.BuildDesign(spec, matrix.Samples)
	}
	return nil, errors.New(errors.CodeInputValidation, "one of --design or --groups is required")
}

func newBlastClient(cfg *config.Config, logger *internal.Logger) *blast.Client {
	return blast.NewClient(blast.Config{
		BaseURL:      cfg.Search.BaseURL,
		Timeout:      cfg.Search.Timeout,
		RequestLimit: cfg.Search.RequestTimeout,
		PollInterval: cfg.Search.PollInterval,
		Tool:         "rnadiff",
		Email:        cfg.Search.Email,
	}, logger)
}

func openStore(ctx context.Context, cfg *config.Config, logger *internal.Logger) (*store.Store, error) {
	st, err := store.Open(cfg.Store.Driver, cfg.Store.DSN, logger)
	if err != nil {
		return nil, errors.DatabaseError("failed to open store", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, errors.DatabaseError("failed to migrate store", err)
	}
	return st, nil
}

func printSummary(result *app.AnalysisResult) {
	s := result.Summary
	fmt.Printf("Run:          %s\n", result.Run.ID)
	fmt.Printf("Contrast:     %s\n", result.Run.Contrast)
	fmt.Printf("Tested genes: %d of %d\n", s.Tested, result.Run.Genes)
	fmt.Printf("Significant:  %d at padj < %g (%d down, %d up)\n", s.Significant, s.Alpha, s.Down, s.Up)
	if result.QueryGene != "" {
		fmt.Printf("Query gene:   %s\n", result.QueryGene)
	}
	switch {
	case result.SearchErr != nil:
		fmt.Printf("Search:       failed (%v)\n", result.SearchErr)
	case len(result.Hits) > 0:
		best := result.Hits[0]
		fmt.Printf("Best hit:     %s %s (e-value %.3g)\n", best.Accession, best.Description, best.EValue)
	}
	fmt.Printf("Status:       %s\n", result.Run.Status)
}
