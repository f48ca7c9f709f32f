package main

import (
	"fmt"
	"os"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/cobra"

	"github.com/hnfgns/lurk-go/eval"
	"github.com/hnfgns/lurk-go/fcomm"
	"github.com/hnfgns/lurk-go/store"
	"github.com/hnfgns/lurk-go/tag"
)

var commitCmd = &cobra.Command{
	Use:   "commit [function-expr|file]",
	Short: "commits to a function under a fresh blinding secret",
	Args:  cobra.ExactArgs(1),
	RunE:  cmdCommit,
}

var fCommitPath string

func init() {
	rootCmd.AddCommand(commitCmd)
	commitCmd.Flags().StringVar(&fCommitPath, "out", "commitment.cbor", "commitment artifact path")
}

// commitFile is the secret-bearing artifact the committer keeps. The source
// re-interns to the same digests in any process, which is what lets open
// rebuild the committed function.
type commitFile struct {
	Digest []byte `cbor:"1,keyasint"`
	Secret []byte `cbor:"2,keyasint"`
	Source string `cbor:"3,keyasint"`
}

// evalFun evaluates src and requires a function value.
func evalFun(cmd *cobra.Command, s *store.Store, src string) (store.Ptr, error) {
	expr, err := s.ReadString(src)
	if err != nil {
		return store.Ptr{}, err
	}
	ev, err := eval.New(s)
	if err != nil {
		return store.Ptr{}, err
	}
	tr, err := ev.Evaluate(cmd.Context(), expr, fMaxSteps)
	if err != nil {
		return store.Ptr{}, err
	}
	fun := tr.Result()
	if tr.Reason != eval.Completed || fun.Tag != tag.Fun {
		return store.Ptr{}, fmt.Errorf("expression is not a function: %s", s.Fmt(fun))
	}
	return fun, nil
}

func cmdCommit(cmd *cobra.Command, args []string) error {
	src, err := readSource(args[0])
	if err != nil {
		return err
	}
	s := store.New()
	fun, err := evalFun(cmd, s, src)
	if err != nil {
		return err
	}

	var secret fr.Element
	if _, err := secret.SetRandom(); err != nil {
		return err
	}
	c := fcomm.Commit(fun, secret)

	digest := c.Digest.Bytes()
	secretB := secret.Bytes()
	data, err := cbor.Marshal(commitFile{
		Digest: digest[:],
		Secret: secretB[:],
		Source: src,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(fCommitPath, data, 0o600); err != nil {
		return err
	}
	fmt.Printf("committed %s\n0x%s\n", s.Fmt(fun), c.Digest.Text(16))
	return nil
}

func loadCommitment(path string) (commitFile, fcomm.Commitment, fr.Element, error) {
	var cf commitFile
	data, err := os.ReadFile(path)
	if err != nil {
		return cf, fcomm.Commitment{}, fr.Element{}, err
	}
	if err := cbor.Unmarshal(data, &cf); err != nil {
		return cf, fcomm.Commitment{}, fr.Element{}, err
	}
	var digest, secret fr.Element
	if err := digest.SetBytesCanonical(cf.Digest); err != nil {
		return cf, fcomm.Commitment{}, fr.Element{}, err
	}
	if err := secret.SetBytesCanonical(cf.Secret); err != nil {
		return cf, fcomm.Commitment{}, fr.Element{}, err
	}
	return cf, fcomm.Commitment{Digest: digest}, secret, nil
}
