package baseline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/flarebyte/aegis/internal/snapshot"
)

var (
	recordsBucketKey = []byte("records")
	metaBucketKey    = []byte("meta")
	metaAlgorithmKey = []byte("algorithm")
	metaVersionKey   = []byte("formatVersion")
)

// boltStore keeps records keyed by path in a bbolt file.
type boltStore struct {
	path string
}

func (s *boltStore) Path() string   { return s.path }
func (s *boltStore) Format() string { return FormatBolt }

func (s *boltStore) open(readOnly bool) (*bolt.DB, error) {
	return bolt.Open(s.path, 0o600, &bolt.Options{Timeout: 2 * time.Second, ReadOnly: readOnly})
}

func (s *boltStore) Load(ctx context.Context) (snapshot.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return snapshot.Snapshot{}, false, err
	}
	// bolt.Open would create the file; a missing baseline must stay missing.
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		return snapshot.Empty(""), false, nil
	}
	db, err := s.open(true)
	if err != nil {
		return snapshot.Snapshot{}, false, corrupt(s.path, err)
	}
	defer db.Close()

	var snap snapshot.Snapshot
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucketKey)
		records := tx.Bucket(recordsBucketKey)
		if meta == nil || records == nil {
			return errors.New("missing records or meta bucket")
		}
		if v := string(meta.Get(metaVersionKey)); v != formatVersion {
			return fmt.Errorf("unsupported formatVersion %q", v)
		}
		b := snapshot.NewBuilder(string(meta.Get(metaAlgorithmKey)))
		if err := records.ForEach(func(k, v []byte) error {
			var w wireRecord
			if err := json.Unmarshal(v, &w); err != nil {
				return fmt.Errorf("entry %q: %v", k, err)
			}
			r, err := w.toRecord(string(k))
			if err != nil {
				return fmt.Errorf("entry %q: %v", k, err)
			}
			return b.Add(r)
		}); err != nil {
			return err
		}
		snap = b.Build()
		return nil
	})
	if err != nil {
		return snapshot.Snapshot{}, false, corrupt(s.path, err)
	}
	return snap, true, nil
}

// Save swaps both buckets inside one write transaction.
func (s *boltStore) Save(ctx context.Context, snap snapshot.Snapshot) error {
	if err := prepareSave(ctx, s.path); err != nil {
		return err
	}
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		for _, key := range [][]byte{recordsBucketKey, metaBucketKey} {
			if tx.Bucket(key) != nil {
				if err := tx.DeleteBucket(key); err != nil {
					return err
				}
			}
		}
		meta, err := tx.CreateBucket(metaBucketKey)
		if err != nil {
			return err
		}
		if err := meta.Put(metaVersionKey, []byte(formatVersion)); err != nil {
			return err
		}
		if err := meta.Put(metaAlgorithmKey, []byte(snap.Algorithm())); err != nil {
			return err
		}
		records, err := tx.CreateBucket(recordsBucketKey)
		if err != nil {
			return err
		}
		for _, r := range snap.Records() {
			b, err := encodeJSONCompact(r)
			if err != nil {
				return err
			}
			if err := records.Put([]byte(r.Path), b); err != nil {
				return err
			}
		}
		return nil
	})
}
