package service

import (
	"context"
	"strconv"

	"github.com/jmerrifield20/blockguardian/internal/proofs/model"
)

// Event types published after a write commits.
const (
	EventProofStored = "proof.stored"
	EventMessageSent = "message.sent"
)

// Events lists every event type a Notifier may receive.
var Events = []string{EventProofStored, EventMessageSent}

// Notifier receives committed-write events. Dispatch must not block the
// write path; delivery happens asynchronously.
type Notifier interface {
	Dispatch(ctx context.Context, eventType string, payload map[string]string)
}

func receiptPayload(r model.Receipt) map[string]string {
	return map[string]string{
		"tx_id":     r.TxID,
		"record_id": r.RecordID.String(),
		"seq":       strconv.FormatInt(r.Seq, 10),
		"hash":      r.Hash,
	}
}
