package main

import (
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rnadiff/adapters/fasta"
	"rnadiff/domain/search"
	"rnadiff/internal/errors"
)

func newSearchCmd(c *cli) *cobra.Command {
	var sequences, gene string
	var limit int

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search one sequence against the remote database",
		Long: `Submit a FASTA record to the remote similarity search and print the
ranked hits. Without --gene the first record is used.

Example:
  rnadiff search --sequences genes.fa --gene ENSG00000141510 --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd.Flags(),
				binding{"database", "search.database"},
				binding{"program", "search.program"},
				binding{"expect", "search.expect"},
			)
			if err != nil {
				return err
			}
			if sequences == "" {
				return errors.New(errors.CodeInputValidation, "--sequences is required")
			}

			var q search.Query
			if gene == "" {
				q, err = fasta.ReadFirst(sequences)
			} else {
				q, err = fasta.Lookup(sequences, gene)
			}
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			if limit <= 0 {
				limit = cfg.Search.HitListSize
			}
			hits, err := newBlastClient(cfg, logger).SearchHits(ctx, q, cfg.SearchParams(), limit)
			if err != nil {
				return errors.Wrap(err, "search failed")
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "rank\taccession\tbit_score\te_value\tidentity\tdescription\n")
			for _, h := range hits {
				fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.3g\t%d/%d\t%s\n",
					h.Rank, h.Accession, h.BitScore, h.EValue, h.Identity, h.AlignLength, h.Description)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&sequences, "sequences", "", "FASTA file")
	cmd.Flags().StringVar(&gene, "gene", "", "record ID to search")
	cmd.Flags().IntVar(&limit, "limit", 0, "hits to print (default search.hitlist_size)")
	cmd.Flags().String("database", "", "database to search, e.g. nt")
	cmd.Flags().String("program", "", "blastn, megablast, blastp, blastx, tblastn or tblastx")
	cmd.Flags().Float64("expect", 0, "e-value threshold")
	return cmd
}
