package stores

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/cache"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"go.uber.org/zap"
)

const (
	opBoxesNew   = "stores.boxes.new"
	opFetchBoxes = "stores.fetch_boxes"
	opAddBox     = "stores.add_box"
	opUpdateBox  = "stores.update_box"
	opRemoveBox  = "stores.remove_box"

	failedCreateBox = "Failed to create box"
)

// BoxesConfig describes the dependencies of a Boxes store.
type BoxesConfig struct {
	Remote remote.BoxSource
	Cache  cache.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// BoxesState is a point-in-time copy of the Boxes store.
type BoxesState struct {
	SpaceID string          `json:"spaceId"`
	Boxes   []inventory.Box `json:"boxes"`
	Loading bool            `json:"loading"`
	Error   string          `json:"error,omitempty"`
}

// Boxes holds the boxes of the space most recently fetched. Fetching another
// space discards the previous space's boxes from memory.
type Boxes struct {
	storeBase
	remote remote.BoxSource

	mu         sync.Mutex
	state      BoxesState
	generation uint64
}

// NewBoxes constructs a Boxes store with empty state.
func NewBoxes(cfg BoxesConfig) (*Boxes, error) {
	if cfg.Remote == nil {
		return nil, newServiceError(opBoxesNew, "missing_remote", errMissingRemote)
	}
	if cfg.Cache == nil {
		return nil, newServiceError(opBoxesNew, "missing_cache", errMissingCache)
	}
	return &Boxes{
		storeBase: newStoreBase(cfg.Cache, cfg.Clock, cfg.Logger),
		remote:    cfg.Remote,
		state:     BoxesState{Boxes: []inventory.Box{}},
	}, nil
}

// Snapshot returns a copy of the current state.
func (b *Boxes) Snapshot() BoxesState {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.state
	state.Boxes = append([]inventory.Box{}, b.state.Boxes...)
	return state
}

// Box returns the loaded box with the given id.
func (b *Boxes) Box(boxID string) (inventory.Box, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return findByID(b.state.Boxes, boxID, boxKey)
}

// FetchBoxes replaces the in-memory list with the boxes of spaceID. Switching
// to another space shows its durable snapshot until the fetch resolves, and
// keeps showing it if the fetch fails.
func (b *Boxes) FetchBoxes(ctx context.Context, spaceID string) error {
	b.mu.Lock()
	b.generation++
	generation := b.generation
	if b.state.SpaceID != spaceID {
		b.state.SpaceID = spaceID
		b.state.Boxes = readSnapshot[inventory.Box](&b.storeBase, cache.BoxesKey(spaceID))
	}
	b.state.Loading = true
	b.state.Error = ""
	b.mu.Unlock()
	b.emit(Event{Topic: TopicBoxes, SpaceID: spaceID})

	rows, err := b.remote.ListBoxes(ctx, spaceID)
	if err != nil {
		if b.settle(generation, spaceID, func() {
			b.state.Error = failureMessage(err, "Failed to load boxes")
			b.state.Loading = false
		}) {
			b.logError(opFetchBoxes, "select_failed", err, zap.String("space_id", spaceID))
		}
		return newServiceError(opFetchBoxes, "select_failed", err)
	}

	boxes := make([]inventory.Box, 0, len(rows))
	for _, row := range rows {
		boxes = append(boxes, inventory.BoxFromRow(row))
	}
	applied := b.settle(generation, spaceID, func() {
		b.state.SpaceID = spaceID
		b.state.Boxes = boxes
		b.state.Loading = false
		writeSnapshot(&b.storeBase, cache.BoxesKey(spaceID), boxes)
	})
	if !applied {
		b.logger.Debug("discarding stale boxes fetch", zap.String("space_id", spaceID), zap.Uint64("generation", generation))
	}
	return nil
}

// AddBox inserts a box remotely and appends the stored row to the snapshot of
// its space, which becomes the in-memory list.
func (b *Boxes) AddBox(ctx context.Context, newBox inventory.NewBox) (string, error) {
	if err := newBox.Validate(); err != nil {
		b.setError(err.Error())
		return "", newServiceError(opAddBox, "invalid_box", err)
	}

	rows, err := b.remote.InsertBox(ctx, inventory.NewBoxRow(newBox, b.now()))
	if err == nil && (len(rows) == 0 || rows[0].ID == "") {
		err = ErrNoRowReturned
	}
	if err != nil {
		b.setError(failureMessage(err, failedCreateBox))
		b.logError(opAddBox, "insert_failed", err, zap.String("space_id", newBox.SpaceID))
		return "", newServiceError(opAddBox, "insert_failed", err)
	}

	created := inventory.BoxFromRow(rows[0])
	key := cache.BoxesKey(newBox.SpaceID)
	b.mu.Lock()
	b.supersedeFetches()
	updated := append(readSnapshot[inventory.Box](&b.storeBase, key), created)
	b.state.SpaceID = newBox.SpaceID
	b.state.Boxes = updated
	writeSnapshot(&b.storeBase, key, updated)
	b.mu.Unlock()
	b.emit(Event{Topic: TopicBoxes, SpaceID: newBox.SpaceID, BoxID: created.ID})

	return created.ID, nil
}

// UpdateBox writes the box remotely with a fresh modified_at. A box cannot
// change its space.
func (b *Boxes) UpdateBox(ctx context.Context, box inventory.Box) error {
	if err := inventory.ValidateName(box.Name); err != nil {
		b.setError(err.Error())
		return newServiceError(opUpdateBox, "invalid_box", err)
	}
	b.mu.Lock()
	existing, loaded := findByID(b.state.Boxes, box.ID, boxKey)
	b.mu.Unlock()
	if !loaded {
		b.setError(ErrNotLoaded.Error())
		return newServiceError(opUpdateBox, "not_loaded", ErrNotLoaded)
	}
	if existing.SpaceID != box.SpaceID {
		b.setError(ErrParentChanged.Error())
		return newServiceError(opUpdateBox, "space_changed", ErrParentChanged)
	}

	now := b.now()
	box.ModifiedAt = &now
	rows, err := b.remote.UpdateBox(ctx, inventory.BoxToRow(box))
	if err == nil && len(rows) == 0 {
		err = ErrNoRowReturned
	}
	if err != nil {
		b.setError(failureMessage(err, "Failed to update box"))
		b.logError(opUpdateBox, "update_failed", err, zap.String("box_id", box.ID))
		return newServiceError(opUpdateBox, "update_failed", err)
	}

	stored := inventory.BoxFromRow(rows[0])
	b.mu.Lock()
	b.supersedeFetches()
	updated, found := replaceByID(b.state.Boxes, box.ID, boxKey, stored)
	if found {
		b.state.Boxes = updated
		writeSnapshot(&b.storeBase, cache.BoxesKey(stored.SpaceID), updated)
	}
	b.mu.Unlock()
	b.emit(Event{Topic: TopicBoxes, SpaceID: stored.SpaceID, BoxID: box.ID})
	return nil
}

// StageBox replaces the in-memory copy only, as a local draft.
func (b *Boxes) StageBox(box inventory.Box) {
	now := b.now()
	box.ModifiedAt = &now
	b.mu.Lock()
	if existing, ok := findByID(b.state.Boxes, box.ID, boxKey); ok {
		box.SpaceID = existing.SpaceID
		b.state.Boxes, _ = replaceByID(b.state.Boxes, box.ID, boxKey, box)
	}
	b.mu.Unlock()
	b.emit(Event{Topic: TopicBoxes, SpaceID: box.SpaceID, BoxID: box.ID})
}

// RemoveBox deletes the box remotely, then prunes memory and the snapshot of
// the space the deleted row belonged to.
func (b *Boxes) RemoveBox(ctx context.Context, boxID string) error {
	rows, err := b.remote.DeleteBox(ctx, boxID)
	if err != nil {
		b.setError(failureMessage(err, "Failed to delete box"))
		b.logError(opRemoveBox, "delete_failed", err, zap.String("box_id", boxID))
		return newServiceError(opRemoveBox, "delete_failed", err)
	}

	b.mu.Lock()
	b.supersedeFetches()
	spaceID := b.state.SpaceID
	if len(rows) > 0 && rows[0].SpaceID != "" {
		spaceID = rows[0].SpaceID
	}
	if _, held := findByID(b.state.Boxes, boxID, boxKey); held {
		b.state.Boxes = removeByID(b.state.Boxes, boxID, boxKey)
	}
	if spaceID != "" {
		key := cache.BoxesKey(spaceID)
		snapshot := readSnapshot[inventory.Box](&b.storeBase, key)
		if _, cached := findByID(snapshot, boxID, boxKey); cached {
			writeSnapshot(&b.storeBase, key, removeByID(snapshot, boxID, boxKey))
		}
	}
	b.dropSnapshot(cache.ItemsKey(boxID))
	b.mu.Unlock()
	b.emit(Event{Topic: TopicBoxes, SpaceID: spaceID, BoxID: boxID})
	return nil
}

// supersedeFetches makes every fetch already in flight stale. Callers hold mu.
func (b *Boxes) supersedeFetches() {
	b.generation++
	b.state.Loading = false
}

func (b *Boxes) setError(message string) {
	b.mu.Lock()
	b.state.Error = message
	spaceID := b.state.SpaceID
	b.mu.Unlock()
	b.emit(Event{Topic: TopicBoxes, SpaceID: spaceID})
}

func (b *Boxes) settle(generation uint64, spaceID string, mutate func()) bool {
	b.mu.Lock()
	if generation != b.generation {
		b.mu.Unlock()
		return false
	}
	mutate()
	b.mu.Unlock()
	b.emit(Event{Topic: TopicBoxes, SpaceID: spaceID})
	return true
}

func boxKey(box inventory.Box) string {
	return box.ID
}
