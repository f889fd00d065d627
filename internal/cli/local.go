package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/genome"
	"github.com/Adithya-Monish-Kumar-K/genome-search/internal/sequence"
)

func newParseCommand() *cobra.Command {
	var (
		asJSON bool
		width  int
	)
	cmd := &cobra.Command{
		Use:     "parse <file>",
		Short:   "List the regions of a FASTA file",
		Example: "  genomectl parse ecoli.fa\n  genomectl parse ecoli.fa --width 60",
		Long: `Parse a FASTA file the same way the service does on upload.
Prints each region with its length, the whole document as JSON with --json,
or the normalised FASTA with --width.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				return printJSON(out, doc)
			case cmd.Flags().Changed("width"):
				_, err := fmt.Fprint(out, doc.Format(width))
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REGION\tLENGTH\tDESCRIPTION")
			for _, rec := range doc.Records() {
				fmt.Fprintf(tw, "%s\t%d bp\t%s\n", rec.Name, len(rec.Sequence), rec.Description)
			}
			fmt.Fprintf(tw, "total\t%d bp\t%d regions\n", doc.TotalBases(), doc.Len())
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the document as a JSON object of region to sequence")
	cmd.Flags().IntVar(&width, "width", 60, "re-wrap sequences to this many bases per line (0 for one line)")
	return cmd
}

func newSearchCommand() *cobra.Command {
	var query, region string
	cmd := &cobra.Command{
		Use:     "search <file>",
		Short:   "Find forward and reverse-complement matches in a FASTA file",
		Example: "  genomectl search ecoli.fa --seq GATTACA\n  genomectl search ecoli.fa --seq GATTACA --region chr1",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			results := genome.NewOrderedMap[sequence.MatchResult]()
			for _, rec := range doc.Records() {
				if region != "" && rec.Name != region {
					continue
				}
				res, err := sequence.FindMatches(query, rec.Sequence)
				if err != nil {
					return err
				}
				results.Set(rec.Name, res)
			}
			if region != "" && results.Len() == 0 {
				return fmt.Errorf("region %q not found in %s", region, args[0])
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
	cmd.Flags().StringVarP(&query, "seq", "s", "", "query sequence")
	cmd.Flags().StringVarP(&region, "region", "r", "", "only search this region")
	cmd.MarkFlagRequired("seq")
	return cmd
}

func newSliceCommand() *cobra.Command {
	var (
		region     string
		start, end int
	)
	cmd := &cobra.Command{
		Use:     "slice <file>",
		Short:   "Print part of a region (0-based, inclusive bounds)",
		Example: "  genomectl slice ecoli.fa --region chr1 --start 0 --end 99",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			sub, err := doc.Slice(region, start, end)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sub)
			return err
		},
	}
	cmd.Flags().StringVarP(&region, "region", "r", "", "region name")
	cmd.Flags().IntVar(&start, "start", 0, "first base")
	cmd.Flags().IntVar(&end, "end", 0, "last base")
	cmd.MarkFlagRequired("region")
	cmd.MarkFlagRequired("end")
	return cmd
}
