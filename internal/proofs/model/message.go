package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jmerrifield20/blockguardian/internal/identity"
)

// MessageRecord byte layout. Content is stored in a fixed-size slot, so every
// MessageRecord has the same encoded size.
//
//	offset  size  field
//	0       8     discriminator
//	8       32    author
//	40      8     timestamp (unix seconds, int64 LE)
//	48      4     content length in bytes (uint32 LE)
//	52      1120  content, UTF-8, zero padded
const (
	// MaxContentChars caps message content, counted in characters.
	MaxContentChars = 280
	// MaxContentBytes is the storage reserved for content: four bytes per character.
	MaxContentBytes = MaxContentChars * utf8.UTFMax

	AuthorOffset           = DiscriminatorSize
	MessageTimestampOffset = AuthorOffset + identity.PublicKeySize
	ContentLenOffset       = MessageTimestampOffset + 8
	ContentOffset          = ContentLenOffset + 4

	// MessageRecordSize is the fixed encoded size of a MessageRecord.
	MessageRecordSize = ContentOffset + MaxContentBytes
)

var (
	// ErrContentTooLong is returned when content exceeds MaxContentChars.
	ErrContentTooLong = errors.New("the provided content should be 280 characters long maximum")

	// ErrInvalidContent is returned for content that is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")
)

// MessageRecord is a short text post.
type MessageRecord struct {
	Author    identity.PublicKey
	Timestamp int64
	Content   string
}

// ValidateContent enforces the character cap and UTF-8 validity.
func ValidateContent(content string) error {
	if !utf8.ValidString(content) {
		return ErrInvalidContent
	}
	if utf8.RuneCountInString(content) > MaxContentChars {
		return ErrContentTooLong
	}
	return nil
}

// Time returns the timestamp as a UTC time.
func (m *MessageRecord) Time() time.Time { return time.Unix(m.Timestamp, 0).UTC() }

// MarshalBinary encodes m into its fixed layout.
func (m *MessageRecord) MarshalBinary() ([]byte, error) {
	if err := ValidateContent(m.Content); err != nil {
		return nil, err
	}
	buf := make([]byte, MessageRecordSize)
	copy(buf[:DiscriminatorSize], MessageDiscriminator[:])
	copy(buf[AuthorOffset:], m.Author[:])
	binary.LittleEndian.PutUint64(buf[MessageTimestampOffset:], uint64(m.Timestamp))
	binary.LittleEndian.PutUint32(buf[ContentLenOffset:], uint32(len(m.Content)))
	copy(buf[ContentOffset:], m.Content)
	return buf, nil
}

// UnmarshalBinary decodes a MessageRecord of exactly MessageRecordSize bytes.
func (m *MessageRecord) UnmarshalBinary(b []byte) error {
	if len(b) != MessageRecordSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(b), MessageRecordSize)
	}
	if Discriminator(b[:DiscriminatorSize]) != MessageDiscriminator {
		return ErrDiscriminator
	}
	n := binary.LittleEndian.Uint32(b[ContentLenOffset:ContentOffset])
	if n > MaxContentBytes {
		return fmt.Errorf("content length %d exceeds %d", n, MaxContentBytes)
	}

	var out MessageRecord
	copy(out.Author[:], b[AuthorOffset:MessageTimestampOffset])
	out.Timestamp = int64(binary.LittleEndian.Uint64(b[MessageTimestampOffset:ContentLenOffset]))
	out.Content = string(b[ContentOffset : ContentOffset+int(n)])
	if err := ValidateContent(out.Content); err != nil {
		return err
	}
	*m = out
	return nil
}
