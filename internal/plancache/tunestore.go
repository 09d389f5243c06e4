package plancache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// TuneRecord is a persisted kernel-tuning choice: the workgroup size picked
// for one operation and operand size class.
type TuneRecord struct {
	Op            string    `json:"op"`
	SizeClass     string    `json:"size_class"`
	WorkgroupSize int       `json:"workgroup_size"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TuneStore persists tuning records as JSON in a cache directory shared
// between processes. Every read and write takes a file lock, so concurrent
// processes see a consistent file.
type TuneStore struct {
	dir string
}

const tuneFileName = "tuning.json"

// NewTuneStore opens (creating if needed) a tune store rooted at dir.
func NewTuneStore(dir string) (*TuneStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating tune store dir")
	}
	return &TuneStore{dir: dir}, nil
}

// withLock runs f while holding the store's file lock.
func (s *TuneStore) withLock(f func() error) error {
	lock := flock.New(filepath.Join(s.dir, ".lock"))
	if err := lock.Lock(); err != nil {
		return errors.Wrap(err, "acquiring tune store lock")
	}
	defer lock.Unlock() //nolint:errcheck // Unlock failure leaves a stale lock file, nothing to do.
	return f()
}

// load reads the tuning file. A missing file is an empty store.
func (s *TuneStore) load() (map[string]TuneRecord, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, tuneFileName))
	if os.IsNotExist(err) {
		return map[string]TuneRecord{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading tuning file")
	}
	records := map[string]TuneRecord{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, "parsing tuning file")
	}
	return records, nil
}

func tuneKey(op, sizeClass string) string {
	return op + "/" + sizeClass
}

// Lookup returns the record for an operation and size class, if present.
func (s *TuneStore) Lookup(op, sizeClass string) (rec TuneRecord, ok bool, err error) {
	err = s.withLock(func() error {
		records, loadErr := s.load()
		if loadErr != nil {
			return loadErr
		}
		rec, ok = records[tuneKey(op, sizeClass)]
		return nil
	})
	return rec, ok, err
}

// Record stores or replaces a tuning record. The write is atomic: the file
// is replaced via rename while the lock is held.
func (s *TuneStore) Record(rec TuneRecord) error {
	return s.withLock(func() error {
		records, err := s.load()
		if err != nil {
			return err
		}
		rec.UpdatedAt = time.Now().UTC()
		records[tuneKey(rec.Op, rec.SizeClass)] = rec

		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encoding tuning file")
		}
		tmp := filepath.Join(s.dir, tuneFileName+".tmp")
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return errors.Wrap(err, "writing tuning file")
		}
		if err := os.Rename(tmp, filepath.Join(s.dir, tuneFileName)); err != nil {
			return errors.Wrap(err, "replacing tuning file")
		}
		return nil
	})
}
