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
	opItemsNew   = "stores.items.new"
	opFetchItems = "stores.fetch_items"
	opAddItem    = "stores.add_item"
	opUpdateItem = "stores.update_item"
	opRemoveItem = "stores.remove_item"
)

// ItemsConfig describes the dependencies of an Items store.
type ItemsConfig struct {
	Remote remote.ItemSource
	Cache  cache.Store
	Clock  func() time.Time
	Logger *zap.Logger
}

// ItemsState is a point-in-time copy of the Items store.
type ItemsState struct {
	BoxID   string           `json:"boxId"`
	Items   []inventory.Item `json:"items"`
	Loading bool             `json:"loading"`
	Error   string           `json:"error,omitempty"`
}

// Items holds the items of the box most recently fetched.
type Items struct {
	storeBase
	remote remote.ItemSource

	mu         sync.Mutex
	state      ItemsState
	generation uint64
}

// NewItems constructs an Items store with empty state.
func NewItems(cfg ItemsConfig) (*Items, error) {
	if cfg.Remote == nil {
		return nil, newServiceError(opItemsNew, "missing_remote", errMissingRemote)
	}
	if cfg.Cache == nil {
		return nil, newServiceError(opItemsNew, "missing_cache", errMissingCache)
	}
	return &Items{
		storeBase: newStoreBase(cfg.Cache, cfg.Clock, cfg.Logger),
		remote:    cfg.Remote,
		state:     ItemsState{Items: []inventory.Item{}},
	}, nil
}

// Snapshot returns a copy of the current state.
func (i *Items) Snapshot() ItemsState {
	i.mu.Lock()
	defer i.mu.Unlock()
	state := i.state
	state.Items = append([]inventory.Item{}, i.state.Items...)
	return state
}

// FetchItems replaces the in-memory list with the items of boxID.
func (i *Items) FetchItems(ctx context.Context, boxID string) error {
	i.mu.Lock()
	i.generation++
	generation := i.generation
	i.state.Loading = true
	i.state.Error = ""
	i.mu.Unlock()
	i.emit(Event{Topic: TopicItems, BoxID: boxID})

	rows, err := i.remote.ListItems(ctx, boxID)
	if err != nil {
		if i.settle(generation, boxID, func() {
			i.state.Error = failureMessage(err, "Failed to load items")
			i.state.Loading = false
		}) {
			i.logError(opFetchItems, "select_failed", err, zap.String("box_id", boxID))
		}
		return newServiceError(opFetchItems, "select_failed", err)
	}

	items := make([]inventory.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, inventory.ItemFromRow(row))
	}
	if !i.settle(generation, boxID, func() {
		i.state.BoxID = boxID
		i.state.Items = items
		i.state.Loading = false
		writeSnapshot(&i.storeBase, cache.ItemsKey(boxID), items)
	}) {
		i.logger.Debug("discarding stale items fetch", zap.String("box_id", boxID), zap.Uint64("generation", generation))
	}
	return nil
}

// AddItem inserts an item remotely, then appends it to the snapshot of its box.
func (i *Items) AddItem(ctx context.Context, newItem inventory.NewItem) (string, error) {
	if err := newItem.Validate(); err != nil {
		i.setError(err.Error())
		return "", newServiceError(opAddItem, "invalid_item", err)
	}

	rows, err := i.remote.InsertItem(ctx, inventory.NewItemRow(newItem, i.now()))
	if err == nil && (len(rows) == 0 || rows[0].ID == "") {
		err = ErrNoRowReturned
	}
	if err != nil {
		i.setError(failureMessage(err, "Failed to create item"))
		i.logError(opAddItem, "insert_failed", err, zap.String("box_id", newItem.BoxID))
		return "", newServiceError(opAddItem, "insert_failed", err)
	}

	created := inventory.ItemFromRow(rows[0])
	key := cache.ItemsKey(newItem.BoxID)
	i.mu.Lock()
	i.supersedeFetches()
	updated := append(readSnapshot[inventory.Item](&i.storeBase, key), created)
	i.state.BoxID = newItem.BoxID
	i.state.Items = updated
	writeSnapshot(&i.storeBase, key, updated)
	i.mu.Unlock()
	i.emit(Event{Topic: TopicItems, BoxID: newItem.BoxID})

	return created.ID, nil
}

// UpdateItem writes the item remotely with a fresh modified_at.
func (i *Items) UpdateItem(ctx context.Context, item inventory.Item) error {
	if err := inventory.ValidateName(item.Name); err != nil {
		i.setError(err.Error())
		return newServiceError(opUpdateItem, "invalid_item", err)
	}
	if item.Quantity < 0 {
		i.setError(inventory.ErrInvalidQuantity.Error())
		return newServiceError(opUpdateItem, "invalid_item", inventory.ErrInvalidQuantity)
	}
	now := i.now()
	item.ModifiedAt = &now
	rows, err := i.remote.UpdateItem(ctx, inventory.ItemToRow(item))
	if err == nil && len(rows) == 0 {
		err = ErrNoRowReturned
	}
	if err != nil {
		i.setError(failureMessage(err, "Failed to update item"))
		i.logError(opUpdateItem, "update_failed", err, zap.String("item_id", item.ID))
		return newServiceError(opUpdateItem, "update_failed", err)
	}

	stored := inventory.ItemFromRow(rows[0])
	i.mu.Lock()
	i.supersedeFetches()
	if updated, found := replaceByID(i.state.Items, item.ID, itemKey, stored); found {
		i.state.Items = updated
		writeSnapshot(&i.storeBase, cache.ItemsKey(stored.BoxID), updated)
	}
	i.mu.Unlock()
	i.emit(Event{Topic: TopicItems, BoxID: stored.BoxID})
	return nil
}

// RemoveItem deletes the item remotely, then prunes memory and the snapshot of
// the box the deleted row belonged to.
func (i *Items) RemoveItem(ctx context.Context, itemID string) error {
	rows, err := i.remote.DeleteItem(ctx, itemID)
	if err != nil {
		i.setError(failureMessage(err, "Failed to delete item"))
		i.logError(opRemoveItem, "delete_failed", err, zap.String("item_id", itemID))
		return newServiceError(opRemoveItem, "delete_failed", err)
	}

	i.mu.Lock()
	i.supersedeFetches()
	boxID := i.state.BoxID
	if len(rows) > 0 && rows[0].BoxID != "" {
		boxID = rows[0].BoxID
	}
	if _, held := findByID(i.state.Items, itemID, itemKey); held {
		i.state.Items = removeByID(i.state.Items, itemID, itemKey)
	}
	if boxID != "" {
		key := cache.ItemsKey(boxID)
		snapshot := readSnapshot[inventory.Item](&i.storeBase, key)
		if _, cached := findByID(snapshot, itemID, itemKey); cached {
			writeSnapshot(&i.storeBase, key, removeByID(snapshot, itemID, itemKey))
		}
	}
	i.mu.Unlock()
	i.emit(Event{Topic: TopicItems, BoxID: boxID})
	return nil
}

// supersedeFetches makes every fetch already in flight stale. Callers hold mu.
func (i *Items) supersedeFetches() {
	i.generation++
	i.state.Loading = false
}

func (i *Items) setError(message string) {
	i.mu.Lock()
	i.state.Error = message
	boxID := i.state.BoxID
	i.mu.Unlock()
	i.emit(Event{Topic: TopicItems, BoxID: boxID})
}

func (i *Items) settle(generation uint64, boxID string, mutate func()) bool {
	i.mu.Lock()
	if generation != i.generation {
		i.mu.Unlock()
		return false
	}
	mutate()
	i.mu.Unlock()
	i.emit(Event{Topic: TopicItems, BoxID: boxID})
	return true
}

func itemKey(item inventory.Item) string {
	return item.ID
}
