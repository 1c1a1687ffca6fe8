package padstore

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/hackpad-cli"
)

var (
	// MagicBytes is the 4-byte prefix for content frames.
	MagicBytes = []byte("HPC1")

	// ErrInvalidMagic is returned when a frame doesn't start with the expected magic bytes.
	ErrInvalidMagic = errors.New("invalid magic bytes: expected HPC1")

	// ErrHeaderTooLarge is returned when the header exceeds MaxHeaderSize.
	ErrHeaderTooLarge = errors.New("header exceeds maximum size")

	// ErrCorrupted is returned when a content body does not match its digest.
	ErrCorrupted = errors.New("content digest mismatch")
)

// MaxHeaderSize is the maximum allowed size for the JSON header (64 KiB).
const MaxHeaderSize = 64 * 1024

// FrameHeader describes one cached content body.
type FrameHeader struct {
	Format    hackpad.Format `json:"format"`
	Encoding  Encoding       `json:"encoding"`
	Size      int            `json:"size"`
	Digest    hackpad.Digest `json:"digest"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// encodeFrame builds a frame for body.
// Format: MAGIC (4 bytes) | HDRLEN (uint32 big-endian) | HDRBYTES (JSON) | BODYBYTES
func encodeFrame(codec *Codec, format hackpad.Format, body string, fetchedAt time.Time) (*FrameHeader, []byte, error) {
	payload, encoding := codec.Encode([]byte(body))
	header := &FrameHeader{
		Format:    format,
		Encoding:  encoding,
		Size:      len(body),
		Digest:    hackpad.DigestString(body),
		FetchedAt: fetchedAt.UTC(),
	}

	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling header: %w", err)
	}
	if len(headerBytes) > MaxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}

	var buf bytes.Buffer
	buf.Grow(len(MagicBytes) + 4 + len(headerBytes) + len(payload))
	buf.Write(MagicBytes)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(headerBytes))) //nolint:gosec // bounds-checked above
	buf.Write(headerBytes)
	buf.Write(payload)

	return header, buf.Bytes(), nil
}

// decodeFrame parses a frame, decompresses its body and verifies the digest.
func decodeFrame(codec *Codec, data []byte) (*FrameHeader, string, error) {
	if len(data) < len(MagicBytes)+4 {
		return nil, "", fmt.Errorf("frame too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:len(MagicBytes)], MagicBytes) {
		return nil, "", ErrInvalidMagic
	}

	rest := data[len(MagicBytes):]
	headerLen := binary.BigEndian.Uint32(rest[:4])
	if headerLen > MaxHeaderSize {
		return nil, "", ErrHeaderTooLarge
	}
	rest = rest[4:]
	if uint32(len(rest)) < headerLen { //nolint:gosec // len is non-negative
		return nil, "", fmt.Errorf("truncated header: want %d bytes, have %d", headerLen, len(rest))
	}

	var header FrameHeader
	if err := json.Unmarshal(rest[:headerLen], &header); err != nil {
		return nil, "", fmt.Errorf("parsing header: %w", err)
	}
	if header.Digest.IsZero() {
		return nil, "", fmt.Errorf("header has no digest: %w", ErrCorrupted)
	}

	body, err := codec.Decode(rest[headerLen:], header.Encoding)
	if err != nil {
		return nil, "", err
	}
	if len(body) != header.Size || hackpad.DigestString(string(body)) != header.Digest {
		return nil, "", ErrCorrupted
	}

	return &header, string(body), nil
}
