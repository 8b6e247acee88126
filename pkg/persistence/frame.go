// Package persistence implements the binary framing shared by graph files,
// parameter snapshots and the mirrored-array wire protocol, plus an
// append-only writer for newline-delimited result records.
package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

const (
	// MagicByte marks the start of a frame.
	MagicByte = 0xA5

	// HeaderSize is 1 byte (Magic) + 1 byte (OpCode) + 4 bytes (Length) + 4 bytes (CRC32).
	HeaderSize = 10

	// MaxPayload bounds the length field so a corrupted header cannot force a
	// huge allocation.
	MaxPayload = 1 << 31
)

// OpCode tags the payload type of a frame.
type OpCode byte

const (
	OpGraph    OpCode = 0x01
	OpSnapshot OpCode = 0x02
	OpMirror   OpCode = 0x03
)

var (
	// ErrInvalidMagic indicates the stream lost synchronization or is not framed.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates data corruption within the frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the stream ended inside a frame.
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrUnexpectedOpCode is returned by ReadFrameOf when the tag differs.
	ErrUnexpectedOpCode = errors.New("unexpected frame opcode")
)

// FrameWriter writes frames to an underlying io.Writer.
type FrameWriter struct {
	w io.Writer
}

// NewFrameWriter creates a writer that wraps w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes the payload into a binary frame and writes it.
// Frame Format: [Magic(1)][OpCode(1)][Length(4)][CRC(4)][Payload(N)]
func (fw *FrameWriter) WriteFrame(op OpCode, payload []byte) error {
	header := make([]byte, HeaderSize)
	header[0] = MagicByte
	header[1] = byte(op)
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))

	// Header and payload go out in one write so a frame is never split
	// between two writers sharing a connection.
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, header...)
	buf = append(buf, payload...)
	_, err := fw.w.Write(buf)
	return err
}

// ReadFrame reads the next frame from r, validating the magic byte and the
// CRC32 checksum. It returns io.EOF only on a clean frame boundary.
func ReadFrame(r io.Reader) (OpCode, []byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, ErrIncompleteFrame
	}

	if header[0] != MagicByte {
		return 0, nil, ErrInvalidMagic
	}

	op := OpCode(header[1])
	length := binary.LittleEndian.Uint32(header[2:6])
	expectedCRC := binary.LittleEndian.Uint32(header[6:10])
	if uint64(length) > MaxPayload {
		return op, nil, ErrIncompleteFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return op, nil, ErrIncompleteFrame
	}

	if crc32.ChecksumIEEE(payload) != expectedCRC {
		return op, nil, ErrChecksumMismatch
	}
	return op, payload, nil
}

// ReadFrameOf reads one frame and checks that it carries the expected opcode.
func ReadFrameOf(r io.Reader, want OpCode) ([]byte, error) {
	op, payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	if op != want {
		return nil, ErrUnexpectedOpCode
	}
	return payload, nil
}
