package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate <path>...",
	Short: "Build pages now and persist them",
	Long: `Build the pages at the given paths (/@alice, /post/<id>) as a first
request would, and persist them for the next serve. Already built paths are
reported unchanged.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, newLogger(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSTATE\tSTATUS\tGENERATION")
	var failed int
	pages, errs := a.pages.GenerateAll(cmd.Context(), args...)
	for i, path := range args {
		if errs[i] != nil {
			fmt.Fprintf(w, "%s\terror\t-\t%v\n", path, errs[i])
			failed++
			continue
		}
		page := pages[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", page.Path, a.pages.State(page.Path), page.Status, page.GenerationID)
	}
	w.Flush()
	if failed > 0 {
		return fmt.Errorf("%d of %d pages failed", failed, len(args))
	}
	return nil
}
