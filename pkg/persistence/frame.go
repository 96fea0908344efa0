package persistence

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Constants for the snapshot frame format.
const (
	// MagicByte marks the start of a valid frame.
	MagicByte = 0xA5

	// HeaderSize is the fixed size of the frame metadata:
	// 1 byte (Magic) + 1 byte (OpCode) + 4 bytes (Length) + 4 bytes (CRC32) = 10 bytes.
	HeaderSize = 10

	// OpCodeGraphSnapshot tags a frame holding a serialized HNSW graph.
	OpCodeGraphSnapshot = 0x02
)

var (
	// ErrInvalidMagic indicates the stream is not a snapshot or lost synchronization.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrUnknownOpCode indicates a frame this version does not know how to read.
	ErrUnknownOpCode = errors.New("unknown frame opcode")
	// ErrChecksumMismatch indicates data corruption within the frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the file ended abruptly (e.g. power loss during write).
	ErrIncompleteFrame = errors.New("incomplete frame")
)

// FrameWriter writes checksummed binary frames to an io.Writer.
type FrameWriter struct {
	w      io.Writer
	opcode byte
}

// NewFrameWriter creates a writer that tags every frame with opcode.
func NewFrameWriter(w io.Writer, opcode byte) *FrameWriter {
	return &FrameWriter{w: w, opcode: opcode}
}

// WriteFrame encodes the payload into a binary frame and writes it.
// Frame Format: [Magic(1)][OpCode(1)][Length(4)][CRC(4)][Payload(N)]
func (fw *FrameWriter) WriteFrame(payload []byte) error {
	header := make([]byte, HeaderSize)
	header[0] = MagicByte
	header[1] = fw.opcode
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))

	if _, err := fw.w.Write(header); err != nil {
		return err
	}
	if _, err := fw.w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads the next frame from r and validates the magic byte and the
// CRC32 checksum. It returns the opcode, the payload and an error. A clean
// io.EOF is returned only when r is exhausted exactly at a frame boundary.
func ReadFrame(r io.Reader) (byte, []byte, error) {
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
	opcode := header[1]
	length := binary.LittleEndian.Uint32(header[2:6])
	expectedCRC := binary.LittleEndian.Uint32(header[6:10])

	// Read through a LimitReader so a corrupt length cannot force a huge allocation.
	payload, err := io.ReadAll(io.LimitReader(r, int64(length)))
	if err != nil || uint32(len(payload)) != length {
		return opcode, nil, ErrIncompleteFrame
	}

	if crc32.ChecksumIEEE(payload) != expectedCRC {
		return opcode, nil, ErrChecksumMismatch
	}
	return opcode, payload, nil
}
