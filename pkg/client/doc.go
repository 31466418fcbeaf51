// Package client is the BlockGuardian Go SDK.
//
// It wraps the HTTP API of a ledgerd node: storing commitments, looking them
// up by exact value, verifying Merkle inclusion against anchored roots, and
// posting short messages. Writes are authenticated with a short-lived token
// signed by the caller's Ed25519 key; the SDK mints a fresh one per request.
//
// # Storing a Merkle root
//
//	c, err := client.NewFromKeyfile("http://localhost:8080", os.ExpandEnv("$HOME/.config/blockguardian/id.json"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	id, _ := client.NewRecordID()
//	receipt, err := c.StoreProof(ctx, id, root)
//
// Commitments longer than 32 bytes are truncated by the node; receipt.Truncated
// reports when that happened.
//
// # Gated deployments
//
// When the node runs the gated variant, the trusted admin must co-sign every
// write:
//
//	c, _ := client.New(base,
//	    client.WithSigner(submitterKey),
//	    client.WithAdmin(adminKey),
//	)
//
// # Reading
//
// Lookups are public and need no key:
//
//	c, _ := client.New("http://localhost:8080")
//	proofs, err := c.FindByCommitment(ctx, root)
//
// Errors returned by the node match the package sentinels under errors.Is:
//
//	if errors.Is(err, client.ErrAlreadyExists) {
//	    // pick a fresh record ID and retry
//	}
package client
