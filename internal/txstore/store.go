package txstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gridwire/ocpp16core/internal/fsadapter"
)

// Store owns the ring-buffered transaction slots for every connector.
// File names follow the pattern "tx-<connector>-<slot>.json".
type Store struct {
	fs       fsadapter.FS
	maxTxCnt int
	rings    map[int]*ring
}

type ring struct {
	connectorID int
	txBegin     int
	txEnd       int
}

// New creates a Store. maxTxCnt bounds how many transactions per
// connector are kept before the oldest is trimmed.
func New(fs fsadapter.FS, maxTxCnt int) *Store {
	if maxTxCnt <= 0 {
		maxTxCnt = 4
	}
	return &Store{fs: fs, maxTxCnt: maxTxCnt, rings: make(map[int]*ring)}
}

func slotPath(connectorID, slot int) string {
	return fmt.Sprintf("tx-%d-%d.json", connectorID, slot)
}

func (s *Store) slot(txNr int) int {
	return ((txNr % s.maxTxCnt) + s.maxTxCnt) % s.maxTxCnt
}

func (s *Store) ringFor(connectorID int) *ring {
	r, ok := s.rings[connectorID]
	if !ok {
		r = &ring{connectorID: connectorID}
		s.rings[connectorID] = r
	}
	return r
}

// Recover rebuilds a connector's ring pointers by enumerating its slot
// files on disk: txBegin is the lowest populated slot, txEnd is one past
// the highest.
func (s *Store) Recover(connectorID int) error {
	r := s.ringFor(connectorID)
	prefix := fmt.Sprintf("tx-%d-", connectorID)

	var found []int
	err := s.fs.Ftw(prefix, func(path string, size int64) error {
		base := path
		if idx := strings.LastIndex(path, "/"); idx >= 0 {
			base = path[idx+1:]
		}
		if !strings.HasPrefix(base, prefix) || !strings.HasSuffix(base, ".json") {
			return nil
		}
		data, rerr := fsadapter.ReadAll(s.fs, path)
		if rerr != nil {
			return nil
		}
		var tx Transaction
		if jerr := json.Unmarshal(data, &tx); jerr != nil {
			s.fs.Remove(path)
			return nil
		}
		found = append(found, tx.TxNr)
		return nil
	})
	if err != nil {
		return fmt.Errorf("txstore: recover connector %d: %w", connectorID, err)
	}
	if len(found) == 0 {
		r.txBegin, r.txEnd = 0, 0
		return nil
	}
	sort.Ints(found)
	r.txBegin = found[0]
	r.txEnd = found[len(found)-1] + 1
	return nil
}

// Create allocates a new transaction slot for connectorID, trimming the
// oldest completed transaction if the ring is full. Returns (nil, false)
// when the ring is full and nothing eligible could be trimmed, signalling
// the caller to fall back to a silent transaction if enabled.
func (s *Store) Create(connectorID int) (*Transaction, bool) {
	r := s.ringFor(connectorID)

	if r.txEnd-r.txBegin >= s.maxTxCnt {
		lastNr := r.txEnd - 1
		if last, ok := s.load(connectorID, lastNr); ok && (last.IsAborted() || last.Silent) {
			s.remove(connectorID, lastNr)
			r.txEnd--
		} else if first, ok := s.load(connectorID, r.txBegin); ok && first.IsCompleted() {
			s.remove(connectorID, r.txBegin)
			r.txBegin++
		} else {
			return nil, false
		}
	}

	tx := &Transaction{
		TxNr:          r.txEnd,
		ConnectorID:   connectorID,
		TransactionID: -1,
		MeterStart:    -1,
		MeterStop:     -1,
		Active:        true,
		StartedSync:   SyncNotRequested,
		StoppedSync:   SyncNotRequested,
	}
	r.txEnd++
	return tx, true
}

// Commit atomically persists tx to its slot file.
func (s *Store) Commit(tx *Transaction) error {
	data, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("txstore: marshal tx %d: %w", tx.TxNr, err)
	}
	path := slotPath(tx.ConnectorID, s.slot(tx.TxNr))
	if err := fsadapter.WriteAll(s.fs, path, data); err != nil {
		return fmt.Errorf("txstore: commit tx %d: %w", tx.TxNr, err)
	}
	return nil
}

// Remove deletes a transaction slot and advances tx_begin if it was the
// oldest occupied slot (used both for explicit removal and ring
// trimming from tx_begin).
func (s *Store) Remove(connectorID, txNr int) {
	r := s.ringFor(connectorID)
	s.remove(connectorID, txNr)
	if txNr == r.txBegin {
		r.txBegin++
	}
}

func (s *Store) remove(connectorID, txNr int) {
	s.fs.Remove(slotPath(connectorID, s.slot(txNr)))
}

func (s *Store) load(connectorID, txNr int) (*Transaction, bool) {
	data, err := fsadapter.ReadAll(s.fs, slotPath(connectorID, s.slot(txNr)))
	if err != nil {
		return nil, false
	}
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, false
	}
	return &tx, true
}

// GetLatest returns the most recently allocated slot for a connector.
func (s *Store) GetLatest(connectorID int) (*Transaction, bool) {
	r := s.ringFor(connectorID)
	if r.txEnd == r.txBegin {
		return nil, false
	}
	return s.load(connectorID, r.txEnd-1)
}

// Bounds exposes the ring pointers for diagnostics and the ring
// consistency invariant test.
func (s *Store) Bounds(connectorID int) (begin, end int) {
	r := s.ringFor(connectorID)
	return r.txBegin, r.txEnd
}
