package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ict-visualizer/backend/internal/models"
	"github.com/ict-visualizer/backend/internal/parser"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>...",
	Short: "Parse board logs and print the results",
	Long: `Parse one or more board test logs and print a per-board summary table.

With --json the full board models are printed instead, including every
test step with its measured value and limits.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().Bool("json", false, "print full board models as JSON")
}

func runParse(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	registry := parser.GetGlobalRegistry()

	type result struct {
		file  string
		board *models.BoardLog
		errs  []*models.ParseError
	}

	results := make([]result, 0, len(args))
	for _, file := range args {
		p, err := registry.FindParser(file)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		board, parseErrs, err := p.Parse(file)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		results = append(results, result{file: file, board: board, errs: parseErrs})
	}

	if asJSON {
		boards := make([]*models.BoardLog, 0, len(results))
		for _, r := range results {
			boards = append(boards, r.board)
		}
		data, err := json.MarshalIndent(boards, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode boards: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tPRODUCT\tDMC\tSTATUS\tTESTS\tFAILED\tSTART\tDIAGNOSTICS")
	for _, r := range results {
		b := r.board
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%d\n",
			r.file, b.ProductID, b.DMC, b.StatusText,
			len(b.Tests), b.FailedTestCount(), b.TimeStart, len(r.errs))
	}
	return w.Flush()
}
