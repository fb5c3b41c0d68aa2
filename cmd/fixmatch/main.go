// Command fixmatch is an operator tool for the dispatch engines. It runs the
// classifier, pricer and ranker locally and mints API tokens.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newRootCmd wires the command tree to v. Flags bound to v can also be set
// through FIXMATCH_* environment variables.
func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "fixmatch",
		Short:         "fixmatch dispatch tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `fixmatch runs the dispatch engines outside the server.
- classify: assess a repair description
- quote: price a job against the rate card
- rank: score a YAML list of providers for a job
- token: mint a bearer token for the JSON API`,
	}

	cobra.OnInitialize(func() { initConfig(v) })
	addPersistentFlags(root, v)

	root.AddCommand(classifyCmd(v))
	root.AddCommand(quoteCmd(v))
	root.AddCommand(rankCmd(v))
	root.AddCommand(tokenCmd(v))
	return root
}

func initConfig(v *viper.Viper) {
	v.SetEnvPrefix("FIXMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

func addPersistentFlags(root *cobra.Command, v *viper.Viper) {
	root.PersistentFlags().Bool("json", false, "output JSON")
	root.PersistentFlags().String("rate-card", "", "YAML rate card (defaults to the built-in card)")
	root.PersistentFlags().String("rules", "", "YAML classification rules (defaults to the built-in rules)")
	_ = v.BindPFlag("json", root.PersistentFlags().Lookup("json"))
	_ = v.BindPFlag("rate-card", root.PersistentFlags().Lookup("rate-card"))
	_ = v.BindPFlag("rules", root.PersistentFlags().Lookup("rules"))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
