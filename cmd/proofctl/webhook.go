package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jmerrifield20/blockguardian/pkg/client"
	"github.com/spf13/cobra"
)

// ── webhook ──────────────────────────────────────────────────────────────────

var webhookEvents []string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Manage commit notifications for your identity",
}

var webhookAddCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Subscribe a URL to ledger events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		sub, secret, err := c.Subscribe(cmd.Context(), args[0], webhookEvents...)
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		if outFormat == "json" {
			return printJSON(map[string]any{"subscription": sub, "secret": secret})
		}
		fmt.Printf("✓ Subscribed %s\n\n", sub.URL)
		fmt.Printf("  ID:     %s\n", sub.ID)
		fmt.Printf("  Events: %s\n", strings.Join(sub.Events, ", "))
		fmt.Printf("  Secret: %s\n\n", secret)
		fmt.Printf("Store the secret now; deliveries carry %s: sha256=<hmac>.\n", client.WebhookSignatureHeader)
		return nil
	},
}

var webhookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your subscriptions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		subs, err := c.ListSubscriptions(cmd.Context())
		if err != nil {
			return err
		}
		if outFormat == "json" {
			return printJSON(subs)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tEVENTS")
		for _, s := range subs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, s.URL, strings.Join(s.Events, ","))
		}
		return w.Flush()
	},
}

var webhookRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(true)
		if err != nil {
			return err
		}
		if err := c.Unsubscribe(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Subscription %s deleted\n", args[0])
		return nil
	},
}

func init() {
	webhookAddCmd.Flags().StringSliceVar(&webhookEvents, "events",
		[]string{client.EventProofStored, client.EventMessageSent}, "event types to receive")
	webhookCmd.AddCommand(webhookAddCmd, webhookListCmd, webhookRmCmd)
	rootCmd.AddCommand(webhookCmd)
}
