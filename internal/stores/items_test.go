package stores

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/cache"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"go.uber.org/zap"
)

func newTestItems(t *testing.T, fake *fakeRemote, store cache.Store) *Items {
	t.Helper()
	items, err := NewItems(ItemsConfig{Remote: fake, Cache: store, Clock: fixedClock, Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("failed to build items store: %v", err)
	}
	return items
}

func TestItemsLifecycle(t *testing.T) {
	fake := newFakeRemote()
	fake.items = []inventory.ItemRow{
		{ID: "i0", BoxID: "b1", Name: "Hammer", Quantity: 1},
		{ID: "i9", BoxID: "b2", Name: "Towel", Quantity: 4},
	}
	memory := cache.NewMemory()
	store := newTestItems(t, fake, memory)

	if err := store.FetchItems(context.Background(), "b1"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if state := store.Snapshot(); state.BoxID != "b1" || len(state.Items) != 1 {
		t.Fatalf("unexpected state after fetch: %#v", state)
	}

	id, err := store.AddItem(context.Background(), inventory.NewItem{BoxID: "b1", Name: "Screwdriver", Quantity: 3})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	state := store.Snapshot()
	if len(state.Items) != 2 || state.Items[1].ID != id || state.Items[1].Quantity != 3 {
		t.Fatalf("unexpected items after add: %#v", state.Items)
	}

	item := state.Items[1]
	item.Quantity = 5
	if err := store.UpdateItem(context.Background(), item); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	cached := readSnapshot[inventory.Item](&store.storeBase, cache.ItemsKey("b1"))
	if len(cached) != 2 || cached[1].Quantity != 5 {
		t.Fatalf("expected snapshot to carry update, got %#v", cached)
	}

	if err := store.RemoveItem(context.Background(), "i0"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := store.FetchItems(context.Background(), "b1"); err != nil {
		t.Fatalf("refetch failed: %v", err)
	}
	state = store.Snapshot()
	if len(state.Items) != 1 || state.Items[0].ID != id {
		t.Fatalf("unexpected items after remove: %#v", state.Items)
	}
}

func TestRemoveItemPrunesSnapshotOfAnotherBox(t *testing.T) {
	fake := newFakeRemote()
	fake.items = []inventory.ItemRow{
		{ID: "i1", BoxID: "b1", Name: "Hammer", Quantity: 1},
		{ID: "i2", BoxID: "b2", Name: "Towel", Quantity: 2},
	}
	store := newTestItems(t, fake, cache.NewMemory())
	ctx := context.Background()
	if err := store.FetchItems(ctx, "b1"); err != nil {
		t.Fatalf("fetch b1 failed: %v", err)
	}
	if err := store.FetchItems(ctx, "b2"); err != nil {
		t.Fatalf("fetch b2 failed: %v", err)
	}

	if err := store.RemoveItem(ctx, "i1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if cached := readSnapshot[inventory.Item](&store.storeBase, cache.ItemsKey("b1")); len(cached) != 0 {
		t.Fatalf("expected b1 snapshot to drop i1, got %#v", cached)
	}

	id, err := store.AddItem(ctx, inventory.NewItem{BoxID: "b1", Name: "Nails", Quantity: 50})
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if state := store.Snapshot(); len(state.Items) != 1 || state.Items[0].ID != id {
		t.Fatalf("deleted item came back after add: %#v", state.Items)
	}
}

func TestAddItemRejectsNegativeQuantity(t *testing.T) {
	fake := newFakeRemote()
	store := newTestItems(t, fake, cache.NewMemory())

	_, err := store.AddItem(context.Background(), inventory.NewItem{BoxID: "b1", Name: "Nails", Quantity: -1})
	if !errors.Is(err, inventory.ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if len(fake.items) != 0 {
		t.Fatalf("invalid item must not reach the remote")
	}
	if store.Snapshot().Error == "" {
		t.Fatalf("expected error to be recorded")
	}
}

func TestUpdateItemFailureKeepsLocalCopy(t *testing.T) {
	fake := newFakeRemote()
	fake.items = []inventory.ItemRow{{ID: "i1", BoxID: "b1", Name: "Hammer", Quantity: 1}}
	memory := cache.NewMemory()
	store := newTestItems(t, fake, memory)
	if err := store.FetchItems(context.Background(), "b1"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	beforeCache := cachedValue(t, memory, cache.ItemsKey("b1"))

	fake.updateErr = remote.NewError("permission denied for table items", remote.CodeInsufficientPrivilege)
	if err := store.UpdateItem(context.Background(), inventory.Item{ID: "i1", BoxID: "b1", Name: "Mallet", Quantity: 1}); err == nil {
		t.Fatalf("expected update to fail")
	}

	state := store.Snapshot()
	if state.Items[0].Name != "Hammer" || state.Error != "permission denied for table items" {
		t.Fatalf("unexpected state: %#v", state)
	}
	if cachedValue(t, memory, cache.ItemsKey("b1")) != beforeCache {
		t.Fatalf("durable cache changed after failed update")
	}
}

func TestFetchItemsFailureRecordsError(t *testing.T) {
	fake := newFakeRemote()
	fake.listErr = errors.New("dial tcp: connection refused")
	store := newTestItems(t, fake, cache.NewMemory())

	if err := store.FetchItems(context.Background(), "b1"); err == nil {
		t.Fatalf("expected fetch to fail")
	}
	state := store.Snapshot()
	if state.Loading || state.Error != "dial tcp: connection refused" {
		t.Fatalf("unexpected state: %#v", state)
	}
}
