package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/jmerrifield20/blockguardian/internal/identity"
	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
	"github.com/jmerrifield20/blockguardian/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	nodeURL    string
	cfgFile    string
	keyPath    string
	adminPath  string
	outFormat  string
	recordFlag string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "proofctl",
	Short: "BlockGuardian proof ledger CLI",
	Long: `proofctl stores and looks up 32-byte commitments on a BlockGuardian
ledger node, posts short messages, and builds Merkle trees whose roots can
be anchored as commitments.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".proofctl"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("proofctl")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if nodeURL == "" {
			nodeURL = viper.GetString("node_url")
		}
		if nodeURL == "" {
			nodeURL = "http://localhost:8080"
		}
		if keyPath == "" {
			keyPath = viper.GetString("key_path")
		}
		if adminPath == "" {
			adminPath = viper.GetString("admin_key_path")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.proofctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "", "ledger node URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", "", "signer key file")
	rootCmd.PersistentFlags().StringVar(&adminPath, "admin-key", "", "admin co-signer key file (gated ledgers)")
	rootCmd.PersistentFlags().StringVar(&outFormat, "format", "text", "output format: text or json")

	rootCmd.AddCommand(versionCmd, keygenCmd, storeCmd, findCmd, queryCmd, sendCmd, messagesCmd, verifyCmd, ledgerCmd, treeCmd)
}

// newClient builds an SDK client from the global flags. Signing keys are
// loaded only when the command writes.
func newClient(signed bool) (*client.Client, error) {
	var opts []client.Option
	if signed {
		if keyPath == "" {
			return nil, errors.New("a signer key is required (--key or key_path in config)")
		}
		opts = append(opts, client.WithKeyfile(keyPath))
		if adminPath != "" {
			admin, err := client.LoadKey(adminPath)
			if err != nil {
				return nil, fmt.Errorf("load admin key: %w", err)
			}
			opts = append(opts, client.WithAdmin(admin))
		}
	}
	return client.New(nodeURL, opts...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func recordID() (string, error) {
	if recordFlag != "" {
		if _, err := identity.ParsePublicKey(recordFlag); err != nil {
			return "", fmt.Errorf("invalid --id: %w", err)
		}
		return recordFlag, nil
	}
	return client.NewRecordID()
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the proofctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

// ── keygen ───────────────────────────────────────────────────────────────────

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new Ed25519 signer key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(keygenOut); err == nil {
			return fmt.Errorf("%s already exists; refusing to overwrite", keygenOut)
		}
		kp, err := identity.GenerateKeypair()
		if err != nil {
			return err
		}
		if err := kp.Save(keygenOut); err != nil {
			return err
		}
		fmt.Printf("✓ Key written to %s\n\n", keygenOut)
		fmt.Printf("  Identity: %s\n", kp.PublicKey())
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "id.json", "output key file")
}

// ── store ────────────────────────────────────────────────────────────────────

var storeCmd = &cobra.Command{
	Use:   "store <commitment-hex>",
	Short: "Store a commitment in a new proof record",
	Long: `Store writes a commitment to a fresh record. Inputs longer than 32 bytes
are truncated to their first 32 bytes; the receipt says so.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commitment, err := model.DecodeHex(args[0])
		if err != nil {
			return fmt.Errorf("decode commitment: %w", err)
		}
		return storeCommitment(cmd.Context(), commitment)
	},
}

func init() {
	storeCmd.Flags().StringVar(&recordFlag, "id", "", "record identity (default: random)")
}

func storeCommitment(ctx context.Context, commitment []byte) error {
	c, err := newClient(true)
	if err != nil {
		return err
	}
	id, err := recordID()
	if err != nil {
		return err
	}
	receipt, err := c.StoreProof(ctx, id, commitment)
	if err != nil {
		return fmt.Errorf("store proof: %w", err)
	}
	if outFormat == "json" {
		return printJSON(receipt)
	}
	fmt.Printf("✓ Proof stored\n\n")
	fmt.Printf("  Record:     %s\n", receipt.RecordID)
	fmt.Printf("  Commitment: %s\n", receipt.Commitment)
	fmt.Printf("  Tx:         %s\n", receipt.TxID)
	fmt.Printf("  Seq:        %d\n", receipt.Seq)
	if receipt.Truncated {
		fmt.Println("\n  note: input was longer than 32 bytes and was truncated")
	}
	if receipt.Padded {
		fmt.Println("\n  note: input was shorter than 32 bytes and was zero-padded")
	}
	return nil
}

// ── find ─────────────────────────────────────────────────────────────────────

var findCmd = &cobra.Command{
	Use:   "find <commitment-hex>",
	Short: "Find proof records holding a commitment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		value, err := model.DecodeHex(args[0])
		if err != nil {
			return fmt.Errorf("decode commitment: %w", err)
		}
		c, err := newClient(false)
		if err != nil {
			return err
		}
		proofs, err := c.FindByCommitment(cmd.Context(), value)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(proofs)
		}
		if len(proofs) == 0 {
			fmt.Println("no records found")
			return nil
		}
		return printProofs(proofs)
	},
}

func printProofs(proofs []client.Proof) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD\tSUBMITTER\tTIMESTAMP\tSEQ")
	for _, p := range proofs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", p.ID, p.Submitter, p.Timestamp.Format("2006-01-02T15:04:05Z07:00"), p.Seq)
	}
	return w.Flush()
}

// ── query ────────────────────────────────────────────────────────────────────

var (
	querySize   int
	queryOffset int
	queryValue  string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run a raw size plus byte-range query over ledger accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var value []byte
		if queryValue != "" {
			v, err := model.DecodeHex(queryValue)
			if err != nil {
				return fmt.Errorf("decode --value: %w", err)
			}
			value = v
		}
		c, err := newClient(false)
		if err != nil {
			return err
		}
		accts, err := c.QueryAccounts(cmd.Context(), querySize, queryOffset, value)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(accts)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATOR\tSIZE\tSEQ")
		for _, a := range accts {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", a.ID, a.Creator, len(a.Data), a.Seq)
		}
		return w.Flush()
	},
}

func init() {
	queryCmd.Flags().IntVar(&querySize, "size", 0, "exact account data size (0 to skip)")
	queryCmd.Flags().IntVar(&queryOffset, "offset", 8, "byte offset for --value")
	queryCmd.Flags().StringVar(&queryValue, "value", "", "hex bytes to compare at --offset")
}

// ── send / messages ──────────────────────────────────────────────────────────

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Post a short message (280 characters maximum)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		id, err := recordID()
		if err != nil {
			return err
		}
		receipt, err := c.SendMessage(cmd.Context(), id, args[0])
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
		if outFormat == "json" {
			return printJSON(receipt)
		}
		fmt.Printf("✓ Message stored as %s (seq %d)\n", receipt.RecordID, receipt.Seq)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&recordFlag, "id", "", "record identity (default: random)")
}

var messagesAuthor string

var messagesCmd = &cobra.Command{
	Use:   "messages",
	Short: "List stored messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		msgs, err := c.ListMessages(cmd.Context(), messagesAuthor)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(msgs)
		}
		for _, m := range msgs {
			fmt.Printf("%s  %s\n  %s\n\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Author, m.Content)
		}
		return nil
	},
}

func init() {
	messagesCmd.Flags().StringVar(&messagesAuthor, "author", "", "only messages by this identity")
}

// ── ledger ───────────────────────────────────────────────────────────────────

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Show the ledger size and chain root, and verify the chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		overview, err := c.Ledger(ctx)
		if err != nil {
			return err
		}
		valid, reason, err := c.VerifyLedger(ctx)
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(map[string]any{
				"accounts": overview.Accounts,
				"root":     overview.Root,
				"valid":    valid,
				"reason":   reason,
			})
		}
		fmt.Printf("Accounts: %d\n", overview.Accounts)
		fmt.Printf("Root:     %s\n", overview.Root)
		if valid {
			fmt.Println("Chain:    ✓ valid")
		} else {
			fmt.Printf("Chain:    ✗ %s\n", reason)
		}
		return nil
	},
}
