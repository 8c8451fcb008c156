package engine

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

var ErrBadSnapshot = errors.New("snapshot: corrupt record")

// PebbleSnapshots 每个市场只留最新一份快照
// key: snap/<market>  value: seq(8) + state
type PebbleSnapshots struct {
	db *pebble.DB
}

func OpenPebbleSnapshots(dir string) (*PebbleSnapshots, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleSnapshots{db: db}, nil
}

func snapKey(market string) []byte { return []byte("snap/" + market) }

func (s *PebbleSnapshots) Save(market string, seq uint64, state []byte) error {
	val := make([]byte, 8+len(state))
	binary.BigEndian.PutUint64(val[:8], seq)
	copy(val[8:], state)
	return s.db.Set(snapKey(market), val, pebble.Sync)
}

func (s *PebbleSnapshots) Load(market string) (uint64, []byte, bool, error) {
	val, closer, err := s.db.Get(snapKey(market))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	defer closer.Close()
	if len(val) < 8 {
		return 0, nil, false, fmt.Errorf("%w: %s", ErrBadSnapshot, market)
	}
	// val 只在 closer 关闭前有效
	state := make([]byte, len(val)-8)
	copy(state, val[8:])
	return binary.BigEndian.Uint64(val[:8]), state, true, nil
}

func (s *PebbleSnapshots) Delete(market string) error {
	return s.db.Delete(snapKey(market), pebble.Sync)
}

func (s *PebbleSnapshots) Close() error { return s.db.Close() }
