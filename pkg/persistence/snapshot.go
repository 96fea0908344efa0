package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// SnapshotFile stores a single framed graph snapshot on disk.
//
// Save never modifies Path in place: the frame is written to Path+".tmp",
// synced, and renamed over Path, so a crash leaves either the old or the new
// snapshot.
type SnapshotFile struct {
	Path string
}

// NewSnapshotFile returns a SnapshotFile for path.
func NewSnapshotFile(path string) *SnapshotFile {
	return &SnapshotFile{Path: path}
}

// Save atomically replaces the snapshot with payload. It returns the number
// of bytes written.
func (s *SnapshotFile) Save(payload []byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmpPath := s.Path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp snapshot: %w", err)
	}

	// On any failure below the temp file is removed and Path is untouched.
	fail := func(err error) (int64, error) {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}

	buf := bufio.NewWriter(f)
	if err := NewFrameWriter(buf, OpCodeGraphSnapshot).WriteFrame(payload); err != nil {
		return fail(fmt.Errorf("failed to write snapshot frame: %w", err))
	}
	if err := buf.Flush(); err != nil {
		return fail(fmt.Errorf("failed to flush snapshot: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync snapshot: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	size := int64(HeaderSize + len(payload))
	slog.Debug("snapshot written", "path", s.Path, "bytes", size)
	return size, nil
}

// Load returns the payload of the snapshot. A missing file yields an error
// wrapping os.ErrNotExist.
func (s *SnapshotFile) Load() ([]byte, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	opcode, payload, err := ReadFrame(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("snapshot %s is empty: %w", s.Path, ErrIncompleteFrame)
		}
		return nil, fmt.Errorf("snapshot %s: %w", s.Path, err)
	}
	if opcode != OpCodeGraphSnapshot {
		return nil, fmt.Errorf("snapshot %s: %w 0x%02x", s.Path, ErrUnknownOpCode, opcode)
	}
	if _, err := r.Peek(1); err != io.EOF {
		return nil, fmt.Errorf("snapshot %s: trailing data after frame: %w", s.Path, ErrInvalidMagic)
	}
	return payload, nil
}

// Remove deletes the snapshot and any stale temp file.
func (s *SnapshotFile) Remove() error {
	_ = os.Remove(s.Path + ".tmp")
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
