// Command chirp serves generated profile and post pages.
//
//	chirp serve -c chirp.yaml
//	chirp seed -f seed.yaml
//	chirp generate /@alice /post/0192...
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "chirp",
	Short: "Generate-once page server for profiles and posts",
	Long: `chirp serves user profiles (/@<username>) and posts (/post/<id>).

Each page is generated the first time it is requested and served as built
afterwards. The query results the page was generated from are embedded in it
so a client can hydrate its cache without refetching.

Configuration is read from the YAML file given with --config, then overridden
by CHIRP_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, seedCmd, generateCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
