package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/store"
)

var evalCmd = &cobra.Command{
	Use:   "eval [expr|file]",
	Short: "evaluates an expression and prints its value",
	Args:  cobra.ExactArgs(1),
	RunE:  cmdEval,
}

var fMaxSteps int

func init() {
	rootCmd.AddCommand(evalCmd)
	rootCmd.PersistentFlags().IntVar(&fMaxSteps, "max-steps", 10000, "maximum evaluation steps")
}

func cmdEval(cmd *cobra.Command, args []string) error {
	src, err := readSource(args[0])
	if err != nil {
		return err
	}
	s := store.New()
	expr, err := s.ReadString(src)
	if err != nil {
		return err
	}
	ev, err := eval.New(s)
	if err != nil {
		return err
	}
	tr, err := ev.Evaluate(cmd.Context(), expr, fMaxSteps)
	if err != nil {
		return err
	}
	for _, f := range tr.Frames {
		if f.Emitted != nil {
			fmt.Println("emit:", s.Fmt(*f.Emitted))
		}
	}
	fmt.Printf("[%d steps, %s] %s\n", len(tr.Frames), tr.Reason, s.Fmt(tr.Result()))
	return nil
}
