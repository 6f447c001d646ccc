package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/Yates-Labs/saga/internal/kvstore"
)

// SavesKey is the storage key holding every slot as one JSON array.
const SavesKey = "saga_saves"

var ErrSlotNotFound = errors.New("save slot not found")

// Store reads and writes the slot list. Writes degrade instead of failing
// when the backing store runs out of space.
type Store struct {
	kv     kvstore.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewStore wraps kv. A nil logger discards log output.
func NewStore(kv kvstore.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kv: kv, logger: logger, now: time.Now}
}

// LoadAll returns every stored slot in stored order. A corrupt saves entry is
// reported as an empty list so a new game can still start.
func (s *Store) LoadAll() ([]Slot, error) {
	raw, ok, err := s.kv.Get(SavesKey)
	if err != nil {
		return nil, fmt.Errorf("reading saves: %w", err)
	}
	if !ok || raw == "" {
		return []Slot{}, nil
	}

	var slots []Slot
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		s.logger.Warn("discarding unreadable saves", zap.Error(err), zap.Int("bytes", len(raw)))
		return []Slot{}, nil
	}
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// SaveAll writes slots as the complete saved set. Only the most recent image
// of each slot is kept. If the write does not fit, every image is dropped and
// the write is retried once; if that also fails the save is skipped and nil is
// returned. Other storage errors are returned. slots is never modified.
func (s *Store) SaveAll(slots []Slot) error {
	pruned := make([]Slot, len(slots))
	for i, slot := range slots {
		pruned[i] = slot.Clone()
		pruned[i].pruneImages()
	}

	err := s.write(pruned)
	if !errors.Is(err, kvstore.ErrQuotaExceeded) {
		return err
	}

	s.logger.Warn("saves exceed storage quota, dropping images", zap.Int("slots", len(pruned)))
	for i := range pruned {
		pruned[i].stripImages()
	}

	err = s.write(pruned)
	if errors.Is(err, kvstore.ErrQuotaExceeded) {
		s.logger.Error("saves still exceed storage quota, progress not saved", zap.Int("slots", len(pruned)))
		return nil
	}
	return err
}

func (s *Store) write(slots []Slot) error {
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encoding saves: %w", err)
	}
	if err := s.kv.Set(SavesKey, string(data)); err != nil {
		return fmt.Errorf("writing saves: %w", err)
	}
	return nil
}

// Get returns the slot with id.
func (s *Store) Get(id string) (Slot, error) {
	slots, err := s.LoadAll()
	if err != nil {
		return Slot{}, err
	}
	for _, slot := range slots {
		if slot.ID == id {
			return slot, nil
		}
	}
	return Slot{}, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
}

// Upsert stamps slot with the current time and stores it, replacing the
// slot with the same id or adding it at the front. The stamped slot is
// returned.
func (s *Store) Upsert(slot Slot) (Slot, error) {
	slots, err := s.LoadAll()
	if err != nil {
		return Slot{}, err
	}

	slot = slot.Clone()
	slot.LastUpdated = s.now()

	replaced := false
	for i := range slots {
		if slots[i].ID == slot.ID {
			slots[i] = slot
			replaced = true
			break
		}
	}
	if !replaced {
		slots = append([]Slot{slot}, slots...)
	}

	if err := s.SaveAll(slots); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// Delete removes the slot with id.
func (s *Store) Delete(id string) error {
	slots, err := s.LoadAll()
	if err != nil {
		return err
	}

	kept := slots[:0]
	for _, slot := range slots {
		if slot.ID != id {
			kept = append(kept, slot)
		}
	}
	if len(kept) == len(slots) {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}
	return s.SaveAll(kept)
}

// List returns every slot, most recently updated first.
func (s *Store) List() ([]Slot, error) {
	slots, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].LastUpdated.After(slots[j].LastUpdated)
	})
	return slots, nil
}
