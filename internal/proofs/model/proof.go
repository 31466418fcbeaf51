package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

// ProofRecord byte layout. The type tag is first and the commitment sits at a
// constant offset so the ledger can filter on raw bytes.
//
//	offset  size  field
//	0       8     discriminator
//	8       32    commitment
//	40      32    submitter
//	72      8     timestamp (unix seconds, int64 LE)
//	80      1     admin flag (gated layout only, always 1)
//	81      32    admin      (gated layout only)
const (
	CommitmentOffset = DiscriminatorSize
	SubmitterOffset  = CommitmentOffset + CommitmentSize
	TimestampOffset  = SubmitterOffset + identity.PublicKeySize
	AdminFlagOffset  = TimestampOffset + 8
	AdminOffset      = AdminFlagOffset + 1

	// ProofRecordSize is the size of an open (ungated) ProofRecord.
	ProofRecordSize = AdminFlagOffset
	// GatedProofRecordSize is the size of a ProofRecord carrying an admin.
	GatedProofRecordSize = AdminOffset + identity.PublicKeySize
)

var (
	// ErrRecordSize is returned when a buffer is not a valid record size.
	ErrRecordSize = errors.New("unexpected record size")

	// ErrDiscriminator is returned when a buffer carries another record type.
	ErrDiscriminator = errors.New("discriminator mismatch")

	// ErrAdminFlag is returned when the gated layout's flag byte is not 1.
	ErrAdminFlag = errors.New("invalid admin flag")
)

// ProofRecord is a stored commitment. Admin is non-nil only in the gated layout.
type ProofRecord struct {
	Commitment Commitment
	Submitter  identity.PublicKey
	Timestamp  int64
	Admin      *identity.PublicKey
}

// Size returns the encoded size of r.
func (r *ProofRecord) Size() int {
	if r.Admin != nil {
		return GatedProofRecordSize
	}
	return ProofRecordSize
}

// Time returns the timestamp as a UTC time.
func (r *ProofRecord) Time() time.Time { return time.Unix(r.Timestamp, 0).UTC() }

// MarshalBinary encodes r into its fixed layout.
func (r *ProofRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, r.Size())
	copy(buf[:DiscriminatorSize], ProofDiscriminator[:])
	copy(buf[CommitmentOffset:], r.Commitment[:])
	copy(buf[SubmitterOffset:], r.Submitter[:])
	binary.LittleEndian.PutUint64(buf[TimestampOffset:], uint64(r.Timestamp))
	if r.Admin != nil {
		buf[AdminFlagOffset] = 1
		copy(buf[AdminOffset:], r.Admin[:])
	}
	return buf, nil
}

// UnmarshalBinary decodes a ProofRecord. The buffer must be exactly
// ProofRecordSize or GatedProofRecordSize bytes.
func (r *ProofRecord) UnmarshalBinary(b []byte) error {
	if len(b) != ProofRecordSize && len(b) != GatedProofRecordSize {
		return fmt.Errorf("%w: got %d bytes, want %d or %d",
			ErrRecordSize, len(b), ProofRecordSize, GatedProofRecordSize)
	}
	if Discriminator(b[:DiscriminatorSize]) != ProofDiscriminator {
		return ErrDiscriminator
	}

	var out ProofRecord
	copy(out.Commitment[:], b[CommitmentOffset:SubmitterOffset])
	copy(out.Submitter[:], b[SubmitterOffset:TimestampOffset])
	out.Timestamp = int64(binary.LittleEndian.Uint64(b[TimestampOffset:AdminFlagOffset]))

	if len(b) == GatedProofRecordSize {
		if b[AdminFlagOffset] != 1 {
			return fmt.Errorf("%w: %d", ErrAdminFlag, b[AdminFlagOffset])
		}
		var admin identity.PublicKey
		copy(admin[:], b[AdminOffset:])
		out.Admin = &admin
	}
	*r = out
	return nil
}

// DecodeProofRecord decodes b expecting exactly size bytes.
func DecodeProofRecord(b []byte, size int) (*ProofRecord, error) {
	if len(b) != size {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(b), size)
	}
	var r ProofRecord
	if err := r.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return &r, nil
}
