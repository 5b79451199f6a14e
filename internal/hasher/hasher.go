// Package hasher computes a content digest and a stat tuple for one file.
//
// Failures never escape as errors: they become ERROR records whose message
// starts with one of the class prefixes below, so a single bad file cannot
// abort a batch.
package hasher

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/flarebyte/aegis/internal/record"
)

// ChunkSize is the read size used to stream file content into the digest.
const ChunkSize = 1 << 20

// Error classes, used as message prefixes on ERROR records.
const (
	ClassVanished    = "file vanished since discovery"
	ClassPermission  = "permission denied"
	ClassUnsupported = "unsupported hash algorithm"
	ClassNotRegular  = "not a regular file"
	ClassIO          = "I/O error"
)

var classes = []string{ClassVanished, ClassPermission, ClassUnsupported, ClassNotRegular, ClassIO}

// ClassOf returns the error class of an ERROR record message, or ClassIO when
// the message carries no known prefix.
func ClassOf(msg string) string {
	for _, c := range classes {
		if strings.HasPrefix(msg, c) {
			return c
		}
	}
	return ClassIO
}

// Hash digests the file at path with the named algorithm.
func Hash(path, algorithm string) record.Record {
	h, err := New(algorithm)
	if err != nil {
		return record.Failed(path, fmt.Sprintf("%s: %q", ClassUnsupported, algorithm), record.Meta{})
	}
	meta, kind, err := stat(path, true)
	if err != nil {
		return record.Failed(path, classify(err), record.Meta{})
	}
	// Opening a FIFO or device would block or read forever.
	if kind != record.KindFile {
		return record.Failed(path, ClassNotRegular, meta)
	}
	f, err := os.Open(path)
	if err != nil {
		return record.Failed(path, classify(err), meta)
	}
	defer f.Close()

	if _, err := io.CopyBuffer(h, f, make([]byte, bufferSize(meta.Size))); err != nil {
		return record.Failed(path, classify(err), meta)
	}
	return record.File(path, hex.EncodeToString(h.Sum(nil)), meta)
}

// Describe records what path itself is without following a final symlink.
// It never reads file contents: ok is false for a regular file, which only
// enters a snapshot through discovery and Hash.
func Describe(path string) (rec record.Record, ok bool) {
	meta, kind, err := stat(path, false)
	if err != nil {
		return record.Failed(path, classify(err), record.Meta{}), true
	}
	if kind == record.KindFile {
		return record.Record{}, false
	}
	return record.Entry(path, kind, meta), true
}

func bufferSize(size *int64) int {
	if size == nil || *size >= ChunkSize {
		return ChunkSize
	}
	if *size < 512 {
		return 512
	}
	return int(*size)
}

func classify(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ClassVanished + ": " + msg
	case errors.Is(err, fs.ErrPermission):
		return ClassPermission + ": " + msg
	default:
		return ClassIO + ": " + msg
	}
}
