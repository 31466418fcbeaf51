package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

// Sentinel errors matched by *APIError under errors.Is.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalidLength   = errors.New("invalid commitment length")
	ErrContentTooLong  = errors.New("content too long")
	ErrNotFound        = errors.New("not found")
	ErrUnavailable     = errors.New("backend unavailable")
	ErrRateLimited     = errors.New("rate limited")
)

// APIError is a non-2xx response from the node.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("blockguardian: HTTP %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("blockguardian: HTTP %d: %s", e.Status, e.Message)
}

// Is maps the response onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == "unauthorized"
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	case ErrAlreadyExists:
		return e.Code == "already_exists"
	case ErrInvalidLength:
		return e.Code == "invalid_length"
	case ErrContentTooLong:
		return e.Code == "content_too_long"
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnavailable:
		return e.Status == http.StatusServiceUnavailable
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// Receipt acknowledges a committed write. Commitment, Truncated and Padded
// are set for proofs only.
type Receipt struct {
	TxID       string    `json:"tx_id"`
	RecordID   string    `json:"record_id"`
	Size       int       `json:"size"`
	Seq        int64     `json:"seq"`
	Hash       string    `json:"hash"`
	CreatedAt  time.Time `json:"created_at"`
	Commitment string    `json:"commitment,omitempty"`
	Truncated  bool      `json:"truncated,omitempty"`
	Padded     bool      `json:"padded,omitempty"`
}

// Proof is a stored commitment.
type Proof struct {
	ID         string    `json:"id"`
	Commitment string    `json:"commitment"`
	Submitter  string    `json:"submitter"`
	Admin      string    `json:"admin,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Size       int       `json:"size"`
	Seq        int64     `json:"seq"`
	Hash       string    `json:"hash"`
}

// Message is a stored short post.
type Message struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
	Hash      string    `json:"hash"`
}

// Account is a raw ledger account.
type Account struct {
	ID        string    `json:"id"`
	Creator   string    `json:"creator"`
	Data      []byte    `json:"data"`
	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
	PrevHash  string    `json:"prev_hash"`
	Hash      string    `json:"hash"`
}

// VerifyResult reports a Merkle inclusion check.
type VerifyResult struct {
	Valid    bool    `json:"valid"`
	Anchored bool    `json:"anchored"`
	Records  []Proof `json:"records"`
}

// LedgerOverview is the account count and chain root.
type LedgerOverview struct {
	Accounts int    `json:"accounts"`
	Root     string `json:"root"`
}

// Client is the BlockGuardian SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
	signer     *identity.Keypair
	admin      *identity.Keypair
	tokenTTL   time.Duration
	proofs     *recordCache[Proof]
	messages   *recordCache[Message]
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithSigner sets the key that authenticates writes.
func WithSigner(key ed25519.PrivateKey) Option {
	return func(c *Client) error {
		kp, err := identity.KeypairFromPrivateKey(key)
		if err != nil {
			return fmt.Errorf("signer key: %w", err)
		}
		c.signer = kp
		return nil
	}
}

// WithAdmin sets the key that co-signs writes on gated nodes.
func WithAdmin(key ed25519.PrivateKey) Option {
	return func(c *Client) error {
		kp, err := identity.KeypairFromPrivateKey(key)
		if err != nil {
			return fmt.Errorf("admin key: %w", err)
		}
		c.admin = kp
		return nil
	}
}

// WithTokenTTL sets the lifetime of per-request tokens (max 10 minutes).
func WithTokenTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl <= 0 || ttl > identity.MaxTokenTTL {
			return fmt.Errorf("token ttl must be in (0, %s]", identity.MaxTokenTTL)
		}
		c.tokenTTL = ttl
		return nil
	}
}

// defaultCacheEntries caps each record cache enabled by WithCacheTTL.
const defaultCacheEntries = 4096

// WithCacheTTL enables in-memory caching of GetProof and GetMessage results
// for ttl.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive")
		}
		c.proofs = newRecordCache[Proof](ttl, defaultCacheEntries)
		c.messages = newRecordCache[Message](ttl, defaultCacheEntries)
		return nil
	}
}

// New creates a new Client for the node at base.
//
//	c, err := client.New("http://localhost:8080", client.WithSigner(key))
func New(base string, opts ...Option) (*Client, error) {
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		tokenTTL:   time.Minute,
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// StoreProof stores commitment under recordID. Requires a signer.
func (c *Client) StoreProof(ctx context.Context, recordID string, commitment []byte) (*Receipt, error) {
	body := map[string]string{
		"record_id":  recordID,
		"commitment": "0x" + hex.EncodeToString(commitment),
	}
	var out Receipt
	if err := c.call(ctx, http.MethodPost, "/api/v1/proofs", body, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// FindByCommitment returns every proof whose commitment equals value.
func (c *Client) FindByCommitment(ctx context.Context, value []byte) ([]Proof, error) {
	var out struct {
		Proofs []Proof `json:"proofs"`
	}
	path := "/api/v1/proofs?commitment=0x" + hex.EncodeToString(value)
	if err := c.call(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return out.Proofs, nil
}

// GetProof fetches the proof stored at id.
func (c *Client) GetProof(ctx context.Context, id string) (*Proof, error) {
	if c.proofs != nil {
		if p, ok := c.proofs.get(id); ok {
			return &p, nil
		}
	}
	var out Proof
	if err := c.call(ctx, http.MethodGet, "/api/v1/proofs/"+url.PathEscape(id), nil, &out, false); err != nil {
		return nil, err
	}
	if c.proofs != nil {
		c.proofs.set(id, out)
	}
	return &out, nil
}

// QueryAccounts runs a raw size plus byte-range lookup. A zero size or nil
// value omits that filter.
func (c *Client) QueryAccounts(ctx context.Context, size, offset int, value []byte) ([]Account, error) {
	body := map[string]any{"size": size, "offset": offset}
	if len(value) > 0 {
		body["value"] = "0x" + hex.EncodeToString(value)
	}
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/v1/accounts/query", body, &out, false); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

// VerifyInclusion checks that value is a leaf of the tree with root and
// reports whether root is anchored on the ledger. Nil types means ["string"].
func (c *Client) VerifyInclusion(ctx context.Context, root string, types, value, proof []string) (*VerifyResult, error) {
	if proof == nil {
		proof = []string{}
	}
	body := map[string]any{"root": root, "types": types, "value": value, "proof": proof}
	var out VerifyResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/proofs/verify", body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage posts content under recordID. Requires a signer.
func (c *Client) SendMessage(ctx context.Context, recordID, content string) (*Receipt, error) {
	var out Receipt
	body := map[string]string{"record_id": recordID, "content": content}
	if err := c.call(ctx, http.MethodPost, "/api/v1/messages", body, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessage fetches the message stored at id.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	if c.messages != nil {
		if m, ok := c.messages.get(id); ok {
			return &m, nil
		}
	}
	var out Message
	if err := c.call(ctx, http.MethodGet, "/api/v1/messages/"+url.PathEscape(id), nil, &out, false); err != nil {
		return nil, err
	}
	if c.messages != nil {
		c.messages.set(id, out)
	}
	return &out, nil
}

// ListMessages returns messages, filtered by author when non-empty.
func (c *Client) ListMessages(ctx context.Context, author string) ([]Message, error) {
	path := "/api/v1/messages"
	if author != "" {
		path += "?author=" + url.QueryEscape(author)
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Ledger returns the account count and current chain root.
func (c *Client) Ledger(ctx context.Context) (*LedgerOverview, error) {
	var out LedgerOverview
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyLedger walks the node's hash chain. A broken chain is reported as
// valid=false with the node's reason, not as an error.
func (c *Client) VerifyLedger(ctx context.Context) (bool, string, error) {
	var out struct {
		Valid bool   `json:"valid"`
		Error string `json:"error"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/ledger/verify", nil, &out, false); err != nil {
		return false, "", err
	}
	return out.Valid, out.Error, nil
}

func (c *Client) call(ctx context.Context, method, path string, reqBody, respBody any, signed bool) error {
	var bodyReader io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if signed {
		if err := c.sign(req); err != nil {
			return err
		}
	}

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if respBody == nil {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) sign(req *http.Request) error {
	if c.signer == nil {
		return fmt.Errorf("%w: no signer configured", ErrUnauthenticated)
	}
	tok, err := identity.IssueSignerToken(c.signer, req.URL.Path, c.tokenTTL)
	if err != nil {
		return fmt.Errorf("sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	if c.admin != nil {
		adminTok, err := identity.IssueSignerToken(c.admin, req.URL.Path, c.tokenTTL)
		if err != nil {
			return fmt.Errorf("admin sign request: %w", err)
		}
		req.Header.Set(identity.AdminTokenHeader, adminTok)
	}
	return nil
}

// do executes an HTTP request and converts non-2xx responses to *APIError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var e struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			apiErr.Code = e.Code
			apiErr.Message = e.Error
		}
		return nil, apiErr
	}
	return body, nil
}
