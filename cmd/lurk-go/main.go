// lurk-go is a small CLI over the evaluator and prover: evaluate
// s-expressions, prove their traces, and run the functional-commitment
// commit/open/verify flow over on-disk artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	lurk "github.com/hnfgns/lurk-go"
	"github.com/hnfgns/lurk-go/logger"
)

var rootCmd = &cobra.Command{
	Use:     "lurk-go",
	Short:   "content-addressed symbolic evaluator with provable traces",
	Version: lurk.Version.String(),
}

var fVerbose bool

func init() {
	rootCmd.PersistentFlags().BoolVarP(&fVerbose, "verbose", "v", false, "enable debug logging")
	cobra.OnInitialize(func() {
		if !fVerbose {
			logger.Disable()
		}
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// readSource treats the argument as a file path when one exists, otherwise
// as a literal expression.
func readSource(arg string) (string, error) {
	if st, err := os.Stat(arg); err == nil && !st.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return arg, nil
}
