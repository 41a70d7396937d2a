package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradejournal/journal"
)

var annotateCmd = &cobra.Command{
	Use:   "annotate <position-id>",
	Short: "Set confidence, greed, tags or notes on a position",
	Long: `Annotate a journaled position. Only the flags you pass are changed, and
annotations survive later syncs.

Examples:
  tradejournal annotate BTCUSDT_LONG_8389765 --confidence 7 --greed 3
  tradejournal annotate BTCUSDT_LONG_8389765 --tags breakout,news
  tradejournal annotate BTCUSDT_LONG_8389765 --notes "Chased the move"`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotate,
}

var (
	annConfidence int
	annGreed      int
	annTags       []string
	annNotes      string
)

func init() {
	rootCmd.AddCommand(annotateCmd)
	annotateCmd.Flags().IntVar(&annConfidence, "confidence", 0, "confidence 1..10")
	annotateCmd.Flags().IntVar(&annGreed, "greed", 0, "greed 1..10")
	annotateCmd.Flags().StringSliceVar(&annTags, "tags", nil, "comma separated tags (replaces existing; empty clears)")
	annotateCmd.Flags().StringVar(&annNotes, "notes", "", "free-form notes (replaces existing)")
}

func annotationFromFlags(cmd *cobra.Command) (journal.Annotation, error) {
	var a journal.Annotation
	flags := cmd.Flags()
	if flags.Changed("confidence") {
		if annConfidence < 1 || annConfidence > 10 {
			return a, fmt.Errorf("confidence must be 1..10, got %d", annConfidence)
		}
		v := annConfidence
		a.Confidence = &v
	}
	if flags.Changed("greed") {
		if annGreed < 1 || annGreed > 10 {
			return a, fmt.Errorf("greed must be 1..10, got %d", annGreed)
		}
		v := annGreed
		a.Greed = &v
	}
	if flags.Changed("tags") {
		a.Tags = []string{}
		for _, t := range annTags {
			if t = strings.TrimSpace(t); t != "" {
				a.Tags = append(a.Tags, t)
			}
		}
	}
	if flags.Changed("notes") {
		v := annNotes
		a.Notes = &v
	}
	if a.Confidence == nil && a.Greed == nil && a.Tags == nil && a.Notes == nil {
		return a, fmt.Errorf("nothing to annotate: pass --confidence, --greed, --tags or --notes")
	}
	return a, nil
}

func runAnnotate(cmd *cobra.Command, args []string) error {
	a, err := annotationFromFlags(cmd)
	if err != nil {
		return err
	}

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	if err := j.Annotate(cmd.Context(), args[0], a); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Annotated %s\n", args[0])
	return nil
}
