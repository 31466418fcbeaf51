// Package identity implements the BlockGuardian caller identity layer.
//
// It provides:
//   - PublicKey       - a 32-byte Ed25519 public key rendered as base58
//   - Keypair         - an Ed25519 signing key, loadable from a JSON key file
//   - SignerToken     - short-lived self-signed EdDSA JWTs proving key possession
//   - RequireSigner   - Gin middleware enforcing a valid signer token
package identity
