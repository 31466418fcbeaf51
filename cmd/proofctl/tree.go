package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmerrifield20/blockguardian/internal/merkle"
	"github.com/spf13/cobra"
)

// ── tree ─────────────────────────────────────────────────────────────────────

var (
	treeTypes []string
	treeIn    string
	treeOut   string
	treeFile  string
	treeValue []string
	treeRoot  string
	treeProof []string

	verifyTree string
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Build Merkle trees and inclusion proofs",
}

var treeBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a tree from values and write its dump",
	Long: `Build reads leaf values from --in (or stdin) and writes the tree dump.

The input is either a JSON array of arrays, one inner array per leaf, or
plain text with one single-column leaf per line.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if treeIn != "" && treeIn != "-" {
			f, err := os.Open(treeIn)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		values, err := readValues(r)
		if err != nil {
			return err
		}
		tree, err := merkle.New(values, treeTypes)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(tree.Dump(), "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(treeOut, data, 0o644); err != nil {
			return err
		}
		fmt.Printf("✓ Tree with %d leaves written to %s\n\n", tree.Len(), treeOut)
		fmt.Printf("  Root: %s\n\n", tree.Root())
		fmt.Printf("Anchor it with: proofctl store %s\n", tree.Root())
		return nil
	},
}

var treeProofCmd = &cobra.Command{
	Use:   "proof",
	Short: "Print the inclusion proof for a value in a dumped tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := loadTree(treeFile)
		if err != nil {
			return err
		}
		idx := tree.Find(treeValue)
		if idx < 0 {
			return fmt.Errorf("value %v is not in the tree", treeValue)
		}
		proof, err := tree.Proof(idx)
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"root":  tree.Root(),
			"types": tree.Types(),
			"value": treeValue,
			"proof": proof,
		})
	},
}

func init() {
	treeBuildCmd.Flags().StringSliceVar(&treeTypes, "types", []string{"string"}, "leaf encoding (string, bytes, bytes32, address, uint256, bool)")
	treeBuildCmd.Flags().StringVar(&treeIn, "in", "-", "leaf values file")
	treeBuildCmd.Flags().StringVarP(&treeOut, "out", "o", "tree.json", "output dump file")

	treeProofCmd.Flags().StringVar(&treeFile, "tree", "tree.json", "tree dump file")
	treeProofCmd.Flags().StringSliceVar(&treeValue, "value", nil, "leaf value columns")
	_ = treeProofCmd.MarkFlagRequired("value")

	treeCmd.AddCommand(treeBuildCmd, treeProofCmd)
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a value's inclusion under a root and whether the root is anchored",
	Long: `Verify takes either --tree (a dump from 'proofctl tree build') or an
explicit --root and --proof, checks the inclusion proof on the node, and
reports which ledger records hold the root as their commitment.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, types, proof := treeRoot, treeTypes, treeProof
		if verifyTree != "" {
			tree, err := loadTree(verifyTree)
			if err != nil {
				return err
			}
			idx := tree.Find(treeValue)
			if idx < 0 {
				return fmt.Errorf("value %v is not in the tree", treeValue)
			}
			hashes, err := tree.Proof(idx)
			if err != nil {
				return err
			}
			root, types = tree.Root().String(), tree.Types()
			proof = make([]string, len(hashes))
			for i, h := range hashes {
				proof[i] = h.String()
			}
		}
		if root == "" {
			return fmt.Errorf("either --tree or --root is required")
		}

		c, err := newClient(false)
		if err != nil {
			return err
		}
		res, err := c.VerifyInclusion(cmd.Context(), root, types, treeValue, proof)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(res)
		}
		if res.Valid {
			fmt.Println("Inclusion: ✓ valid")
		} else {
			fmt.Println("Inclusion: ✗ invalid")
		}
		if res.Anchored {
			fmt.Printf("Anchored:  ✓ in %d record(s)\n\n", len(res.Records))
			return printProofs(res.Records)
		}
		fmt.Println("Anchored:  ✗ root not found on ledger")
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyTree, "tree", "", "tree dump file")
	verifyCmd.Flags().StringVar(&treeRoot, "root", "", "tree root (hex)")
	verifyCmd.Flags().StringSliceVar(&treeTypes, "types", []string{"string"}, "leaf encoding")
	verifyCmd.Flags().StringSliceVar(&treeValue, "value", nil, "leaf value columns")
	verifyCmd.Flags().StringSliceVar(&treeProof, "proof", nil, "sibling hashes (hex)")
	_ = verifyCmd.MarkFlagRequired("value")
}

func loadTree(path string) (*merkle.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d merkle.Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return merkle.Load(d)
}

// readValues accepts a JSON array of arrays or one value per line.
func readValues(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var values [][]string
		if err := json.Unmarshal([]byte(trimmed), &values); err != nil {
			return nil, fmt.Errorf("decode values: %w", err)
		}
		return values, nil
	}

	var values [][]string
	sc := bufio.NewScanner(strings.NewReader(trimmed))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		values = append(values, []string{line})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no values")
	}
	return values, nil
}
