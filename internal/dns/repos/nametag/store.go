package nametag

import (
	"encoding/binary"
	"time"

	bbolt "go.etcd.io/bbolt"
)

var (
	bucketAnchor = []byte("anchor")
	bucketMeta   = []byte("meta")
)

// boltStore implements Store using bbolt. Anchor keys are reversed domain
// names so that one Get per trimmed candidate resolves suffix matches.
type boltStore struct {
	db *bbolt.DB
}

// NewBoltStore opens (or creates) a Bolt database at path and ensures the
// buckets exist.
func NewBoltStore(path string) (Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAnchor); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) GetAnchor(reversed string) (Tag, bool, error) {
	var (
		tag     Tag
		present bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketAnchor)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(reversed)); len(v) == 1 {
			tag = Tag(v[0])
			present = true
		}
		return nil
	})
	return tag, present, err
}

func (s *boltStore) RebuildAll(rules []Rule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketAnchor); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(bucketAnchor)
		if err != nil {
			return err
		}
		for _, r := range rules {
			if err := b.Put([]byte(ReverseName(r.Name)), []byte{byte(r.Tag)}); err != nil {
				return err
			}
		}

		meta := tx.Bucket(bucketMeta)
		vbuf := make([]byte, 8)
		ubuf := make([]byte, 8)
		binary.BigEndian.PutUint64(vbuf, version)
		binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
		if err := meta.Put([]byte("version"), vbuf); err != nil {
			return err
		}
		return meta.Put([]byte("updated"), ubuf)
	})
}

func (s *boltStore) Stats() StoreStats {
	st := StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketAnchor); b != nil {
			st.AnchorCount = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get([]byte("version")); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get([]byte("updated")); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

// ReverseName reverses the bytes of a domain name. Anchor keys are stored
// reversed so related suffixes share a prefix; the same reversal must be
// used for Bloom keys to keep them aligned with Bolt keys.
func ReverseName(s string) string {
	b := []byte(s)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}
