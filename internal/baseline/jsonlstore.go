package baseline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/function61/gokit/atomicfilewrite"

	"github.com/flarebyte/aegis/internal/snapshot"
)

// jsonlStore keeps one record per line, sorted by path. Lines carry no
// algorithm, so a loaded snapshot reports an empty one.
type jsonlStore struct {
	path string
}

func (s *jsonlStore) Path() string   { return s.path }
func (s *jsonlStore) Format() string { return FormatJSONL }

func (s *jsonlStore) Load(ctx context.Context) (snapshot.Snapshot, bool, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snapshot.Empty(""), false, nil
	}
	if err != nil {
		return snapshot.Snapshot{}, false, err
	}
	defer f.Close()

	b := snapshot.NewBuilder("")
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		if lineNo%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return snapshot.Snapshot{}, false, err
			}
		}
		line, err := r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var w wireRecord
			if derr := json.Unmarshal(line, &w); derr != nil {
				return snapshot.Snapshot{}, false, corrupt(s.path, fmt.Errorf("line %d: %v", lineNo, derr))
			}
			rec, derr := w.toRecord("")
			if derr != nil {
				return snapshot.Snapshot{}, false, corrupt(s.path, fmt.Errorf("line %d: %v", lineNo, derr))
			}
			if derr := b.Add(rec); derr != nil {
				return snapshot.Snapshot{}, false, corrupt(s.path, fmt.Errorf("line %d: %v", lineNo, derr))
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return snapshot.Snapshot{}, false, err
		}
	}
	return b.Build(), true, nil
}

func (s *jsonlStore) Save(ctx context.Context, snap snapshot.Snapshot) error {
	if err := prepareSave(ctx, s.path); err != nil {
		return err
	}
	return atomicfilewrite.Write(s.path, func(w io.Writer) error {
		return WriteLines(w, snap)
	})
}

// WriteLines streams the snapshot as one compact JSON record per line,
// sorted by path.
func WriteLines(w io.Writer, snap snapshot.Snapshot) error {
	bw := bufio.NewWriter(w)
	for _, r := range snap.Records() {
		b, err := encodeJSONCompact(r)
		if err != nil {
			return err
		}
		if _, err := bw.Write(b); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}
