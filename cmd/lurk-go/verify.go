package main

import (
	"fmt"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/spf13/cobra"

	"github.com/hnfgns/lurk-go/fcomm"
	"github.com/hnfgns/lurk-go/fold"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "checks a claim artifact against its trace proof",
	Args:  cobra.NoArgs,
	RunE:  cmdVerify,
}

var (
	fVerifyClaimPath string
	fVerifyProofPath string
	fVerifyVkPath    string
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&fVerifyClaimPath, "claim", "claim.cbor", "claim artifact path")
	verifyCmd.Flags().StringVar(&fVerifyProofPath, "proof", "claim.proof", "trace proof path")
	verifyCmd.Flags().StringVar(&fVerifyVkPath, "vk", "claim.vk", "verifying key path")
}

func cmdVerify(cmd *cobra.Command, args []string) error {
	opening, err := fcomm.ReadFile(fVerifyClaimPath)
	if err != nil {
		return err
	}

	pf, err := os.Open(fVerifyProofPath)
	if err != nil {
		return err
	}
	defer pf.Close()
	var tp fold.TraceProof
	if _, err := tp.ReadFrom(pf); err != nil {
		return err
	}

	kf, err := os.Open(fVerifyVkPath)
	if err != nil {
		return err
	}
	defer kf.Close()
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(kf); err != nil {
		return err
	}

	ok, err := fold.NewVerifier(vk).Verify(&tp, opening.Boundary)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("proof did not verify against the claim")
	}
	fmt.Printf("verified: commitment 0x%s, %d steps\n",
		opening.Commitment.Digest.Text(16), opening.Boundary.Steps)
	return nil
}
