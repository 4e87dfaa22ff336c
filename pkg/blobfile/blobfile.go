// Copyright 2025 centipede-fuzz authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package blobfile implements the append-only record files shards share.
//
// A blob file is a concatenation of framed records. Writers only ever
// append; concurrent readers in other shard processes may observe a
// half-written trailing record and must treat it as absent. The framing
// is therefore self-delimiting: a per-record magic plus a length prefix,
// and any unparseable suffix reads as end-of-file.
package blobfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/centipede-fuzz/centipede/pkg/osutil"
)

const (
	recordMagic = uint32(0xcb1f0b10)
	// maxBlobSize guards against reading garbage lengths from a
	// corrupted or misaligned tail.
	maxBlobSize = 1 << 30
)

// Writer appends blobs to a file.
type Writer struct {
	f *os.File
}

// NewWriter opens the file for appending, creating it if needed.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, osutil.DefaultFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob file for appending: %w", err)
	}
	return &Writer{f: f}, nil
}

// Write appends one framed blob. The frame is written with a single
// write call so readers never observe an interleaved record.
func (w *Writer) Write(blob []byte) error {
	frame := make([]byte, 8+len(blob))
	binary.LittleEndian.PutUint32(frame[0:], recordMagic)
	binary.LittleEndian.PutUint32(frame[4:], uint32(len(blob)))
	copy(frame[8:], blob)
	if _, err := w.f.Write(frame); err != nil {
		return fmt.Errorf("failed to append blob: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.f.Close()
}

// Reader returns blobs one at a time. A truncated or corrupt tail is
// reported as io.EOF: the record is simply not there yet.
type Reader struct {
	f *os.File
	r *bufio.Reader
}

func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{f: f, r: bufio.NewReader(f)}, nil
}

// Read returns the next blob, or io.EOF when no further complete record
// exists.
func (r *Reader) Read() ([]byte, error) {
	var header [8]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		return nil, io.EOF
	}
	if binary.LittleEndian.Uint32(header[0:]) != recordMagic {
		return nil, io.EOF
	}
	size := binary.LittleEndian.Uint32(header[4:])
	if size > maxBlobSize {
		return nil, io.EOF
	}
	blob := make([]byte, size)
	if _, err := io.ReadFull(r.r, blob); err != nil {
		return nil, io.EOF
	}
	return blob, nil
}

func (r *Reader) Close() error {
	return r.f.Close()
}

// ReadAll returns every complete blob currently in the file.
// A missing file reads as empty, matching the append-only protocol
// where a peer's file may not exist yet.
func ReadAll(path string) ([][]byte, error) {
	r, err := NewReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer r.Close()
	var blobs [][]byte
	for {
		blob, err := r.Read()
		if err != nil {
			return blobs, nil
		}
		blobs = append(blobs, blob)
	}
}
