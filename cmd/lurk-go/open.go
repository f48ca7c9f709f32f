package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hnfgns/lurk-go/circuit"
	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/fcomm"
	"github.com/hnfgns/lurk-go/fold"
	"github.com/hnfgns/lurk-go/store"
)

var openCmd = &cobra.Command{
	Use:   "open [input-expr|file]",
	Short: "applies a committed function to an input and proves the run",
	Args:  cobra.ExactArgs(1),
	RunE:  cmdOpen,
}

var (
	fOpenCommPath  string
	fClaimPath     string
	fOpenProofPath string
	fOpenVkPath    string
)

func init() {
	rootCmd.AddCommand(openCmd)
	openCmd.Flags().StringVar(&fOpenCommPath, "comm", "commitment.cbor", "commitment artifact path")
	openCmd.Flags().StringVar(&fClaimPath, "claim", "claim.cbor", "claim artifact output path")
	openCmd.Flags().StringVar(&fOpenProofPath, "proof", "claim.proof", "trace proof output path")
	openCmd.Flags().StringVar(&fOpenVkPath, "vk", "claim.vk", "verifying key output path")
}

func cmdOpen(cmd *cobra.Command, args []string) error {
	cf, c, secret, err := loadCommitment(fOpenCommPath)
	if err != nil {
		return err
	}

	s := store.New()
	fun, err := evalFun(cmd, s, cf.Source)
	if err != nil {
		return err
	}
	if !c.Verify(fun, secret) {
		return fmt.Errorf("commitment does not open to the stored function")
	}

	inSrc, err := readSource(args[0])
	if err != nil {
		return err
	}
	input, err := s.ReadString(inSrc)
	if err != nil {
		return err
	}

	params := circuit.NewParams(s, eval.DefaultMaxEnvHops)
	prover, err := fold.NewSequentialProver(params)
	if err != nil {
		return err
	}
	opening, err := fcomm.Open(cmd.Context(), s, c, fun, input, fMaxSteps, prover)
	if err != nil {
		return err
	}
	ok, err := opening.VerifyProof(prover.Verifier())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("opening proof did not verify")
	}

	if err := opening.WriteFile(fClaimPath); err != nil {
		return err
	}
	if err := writeProof(opening.Proof, fOpenProofPath); err != nil {
		return err
	}
	if err := writeTo(fOpenVkPath, prover.VerifyingKey()); err != nil {
		return err
	}
	fmt.Printf("opened: %s -> %s [%d steps]\n",
		s.Fmt(opening.Input), s.Fmt(opening.Output), opening.Boundary.Steps)
	return nil
}
