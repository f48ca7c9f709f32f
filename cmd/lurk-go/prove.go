package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/hnfgns/lurk-go/circuit"
	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/fold"
	"github.com/hnfgns/lurk-go/store"
)

var proveCmd = &cobra.Command{
	Use:   "prove [expr|file]",
	Short: "evaluates an expression and proves every step of its trace",
	Args:  cobra.ExactArgs(1),
	RunE:  cmdProve,
}

var (
	fProofPath string
	fVkPath    string
)

func init() {
	rootCmd.AddCommand(proveCmd)
	proveCmd.Flags().StringVar(&fProofPath, "proof", "", "write the trace proof to this path")
	proveCmd.Flags().StringVar(&fVkPath, "vk", "", "write the verifying key to this path")
}

func cmdProve(cmd *cobra.Command, args []string) error {
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
	if tr.Reason != eval.Completed {
		return fmt.Errorf("trace did not complete: %s", tr.Reason)
	}

	params := circuit.NewParams(s, ev.MaxEnvHops())
	insts, boundary, err := fold.Synthesize(cmd.Context(), params, tr)
	if err != nil {
		return err
	}
	prover, err := fold.NewSequentialProver(params)
	if err != nil {
		return err
	}
	for _, inst := range insts {
		if err := prover.Fold(cmd.Context(), inst); err != nil {
			return err
		}
	}
	proof, err := prover.Finalize(cmd.Context())
	if err != nil {
		return err
	}
	ok, err := prover.Verifier().Verify(proof, boundary)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("proof did not verify")
	}

	if fProofPath != "" {
		if err := writeProof(proof, fProofPath); err != nil {
			return err
		}
	}
	if fVkPath != "" {
		if err := writeTo(fVkPath, prover.VerifyingKey()); err != nil {
			return err
		}
	}
	fmt.Printf("[%d steps proved] %s\n", boundary.Steps, s.Fmt(tr.Result()))
	return nil
}

func writeProof(p fold.Proof, path string) error {
	tp, ok := p.(*fold.TraceProof)
	if !ok {
		return fmt.Errorf("unexpected proof type %T", p)
	}
	return writeTo(path, tp)
}

func writeTo(path string, src io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := src.WriteTo(f); err != nil {
		return err
	}
	return f.Close()
}
