package store

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// snapshotMagic identifies the file format and lets Load reject anything
// else outright instead of misparsing it.
const snapshotMagic = "TINYRDB1"

// snapshotEntry is one row of the flat binary image: entries only, no
// pub/sub state and no expiry index (expiry is re-derived on load from
// each entry's own absolute deadline).
type snapshotEntry struct {
	Key            string
	Value          []byte
	ExpireAtUnixMs int64 // 0 means no expiry
}

// Save takes a consistent snapshot of entries — holding the mutex only
// long enough to clone references to value bytes, since payloads are
// treated as immutable once stored — then serializes it to a temp file and
// atomically renames it over path. Already-expired entries are skipped.
func (s *Store) Save(path string) error {
	entries := s.snapshotEntries()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "store: create snapshot directory %s", dir)
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrapf(err, "store: open temp snapshot %s", tmp)
	}

	w := bufio.NewWriter(f)
	if err := writeSnapshot(w, entries); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "store: write snapshot")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "store: flush snapshot")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "store: fsync snapshot")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "store: close snapshot")
	}

	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "store: rename %s to %s", tmp, path)
	}
	return nil
}

// Load reads entries from path, if it exists, and re-inserts each into the
// live store, re-deriving expiry rows and skipping anything already
// expired. A missing file is not an error — it means there is nothing to
// recover yet.
func (s *Store) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "store: open snapshot %s", path)
	}
	defer f.Close()

	entries, err := readSnapshot(bufio.NewReader(f))
	if err != nil {
		return errors.Wrapf(err, "store: read snapshot %s", path)
	}

	now := time.Now()
	for _, e := range entries {
		if e.ExpireAtUnixMs != 0 {
			at := time.UnixMilli(e.ExpireAtUnixMs)
			if !at.After(now) {
				continue
			}
			ttl := at.Sub(now)
			s.Set(e.Key, e.Value, &ttl)
			continue
		}
		s.Set(e.Key, e.Value, nil)
	}
	return nil
}

func (s *Store) snapshotEntries() []snapshotEntry {
	s.mu.Lock()
	out := make([]snapshotEntry, 0, len(s.entries))
	now := time.Now()
	for key, rec := range s.entries {
		if rec.expiresAt != nil && !rec.expiresAt.After(now) {
			continue
		}
		e := snapshotEntry{Key: key, Value: rec.data}
		if rec.expiresAt != nil {
			e.ExpireAtUnixMs = rec.expiresAt.UnixMilli()
		}
		out = append(out, e)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func writeSnapshot(w io.Writer, entries []snapshotEntry) error {
	if _, err := io.WriteString(w, snapshotMagic); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := writeString(w, e.Key); err != nil {
			return err
		}
		if err := writeBytes(w, e.Value); err != nil {
			return err
		}
		if err := writeInt64(w, e.ExpireAtUnixMs); err != nil {
			return err
		}
	}
	return nil
}

func readSnapshot(r io.Reader) ([]snapshotEntry, error) {
	header := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if string(header) != snapshotMagic {
		return nil, errors.New("invalid snapshot header")
	}

	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	entries := make([]snapshotEntry, 0, n)
	for i := uint32(0); i < n; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		value, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		expireAt, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, snapshotEntry{Key: key, Value: value, ExpireAtUnixMs: expireAt})
	}
	return entries, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
