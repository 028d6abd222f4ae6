package badger

import (
	"bytes"
	"fmt"
	"time"

	"github.com/marmos91/godfs/pkg/metadata"
	xdr "github.com/rasky/go-xdr/xdr2"
)

// Key schema:
//
//	e:<path>               -> XDR encoded entryRecord
//	c:<parent>\x00<name>   -> empty (child index, scanned by prefix)
const (
	prefixEntry = "e:"
	prefixChild = "c:"
)

func keyEntry(p string) []byte {
	return []byte(prefixEntry + p)
}

func keyChild(parent, name string) []byte {
	return []byte(prefixChild + parent + "\x00" + name)
}

func keyChildPrefix(parent string) []byte {
	return []byte(prefixChild + parent + "\x00")
}

// entryRecord is the on-disk form of metadata.Entry. The path is the key.
type entryRecord struct {
	Kind        uint32
	Size        int64
	Mode        uint32
	Owner       string
	Group       string
	ModTime     int64
	AccessTime  int64
	Replication int32
	BlockSize   int64
	ContentID   string
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func encodeEntry(e *metadata.Entry) ([]byte, error) {
	rec := entryRecord{
		Kind:        uint32(e.Kind),
		Size:        e.Size,
		Mode:        e.Mode,
		Owner:       e.Owner,
		Group:       e.Group,
		ModTime:     unixNano(e.ModTime),
		AccessTime:  unixNano(e.AccessTime),
		Replication: int32(e.Replication),
		BlockSize:   e.BlockSize,
		ContentID:   string(e.ContentID),
	}

	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, &rec); err != nil {
		return nil, fmt.Errorf("encode entry %s: %w", e.Path, err)
	}
	return buf.Bytes(), nil
}

func decodeEntry(p string, data []byte) (*metadata.Entry, error) {
	var rec entryRecord
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &rec); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", p, err)
	}

	return &metadata.Entry{
		Path:        p,
		Kind:        metadata.EntryKind(rec.Kind),
		Size:        rec.Size,
		Mode:        rec.Mode,
		Owner:       rec.Owner,
		Group:       rec.Group,
		ModTime:     fromUnixNano(rec.ModTime),
		AccessTime:  fromUnixNano(rec.AccessTime),
		Replication: int16(rec.Replication),
		BlockSize:   rec.BlockSize,
		ContentID:   metadata.ContentID(rec.ContentID),
	}, nil
}
