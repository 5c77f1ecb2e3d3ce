package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
)

// fakeRemote is an in-memory DataSource with error injection and call hooks.
type fakeRemote struct {
	mu          sync.Mutex
	spaces      []inventory.SpaceRow
	boxes       []inventory.BoxRow
	items       []inventory.ItemRow
	memberships []inventory.MembershipRow
	members     map[string][]inventory.MemberRow
	nextID      int

	insertErr      error
	insertNoRow    bool
	updateErr      error
	deleteErr      error
	listErr        error
	membershipsErr error
	membersErr     error

	listSpacesCalls  int
	spaceMemberCalls int

	// listSpacesHook runs before ListSpaces returns, with the 1-based call number.
	listSpacesHook func(call int)
	// spaceMembersHook runs before SpaceMembers returns.
	spaceMembersHook func(spaceID string)
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{members: map[string][]inventory.MemberRow{}}
}

func (f *fakeRemote) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

func (f *fakeRemote) ListSpaces(context.Context) ([]inventory.SpaceRow, error) {
	f.mu.Lock()
	f.listSpacesCalls++
	call := f.listSpacesCalls
	rows := append([]inventory.SpaceRow{}, f.spaces...)
	err := f.listErr
	hook := f.listSpacesHook
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeRemote) InsertSpace(_ context.Context, row inventory.SpaceRow) ([]inventory.SpaceRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if f.insertNoRow {
		return []inventory.SpaceRow{}, nil
	}
	row.ID = f.newID("s")
	f.spaces = append(f.spaces, row)
	return []inventory.SpaceRow{row}, nil
}

func (f *fakeRemote) UpdateSpace(_ context.Context, row inventory.SpaceRow) ([]inventory.SpaceRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for index, existing := range f.spaces {
		if existing.ID == row.ID {
			row.CreatedAt = existing.CreatedAt
			row.Owner = existing.Owner
			f.spaces[index] = row
			return []inventory.SpaceRow{row}, nil
		}
	}
	return []inventory.SpaceRow{}, nil
}

func (f *fakeRemote) DeleteSpace(_ context.Context, spaceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := f.spaces[:0]
	for _, row := range f.spaces {
		if row.ID != spaceID {
			kept = append(kept, row)
		}
	}
	f.spaces = kept
	return nil
}

func (f *fakeRemote) ListMemberships(context.Context) ([]inventory.MembershipRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.membershipsErr != nil {
		return nil, f.membershipsErr
	}
	return append([]inventory.MembershipRow{}, f.memberships...), nil
}

func (f *fakeRemote) SpaceMembers(_ context.Context, spaceID string) ([]inventory.MemberRow, error) {
	f.mu.Lock()
	f.spaceMemberCalls++
	rows := append([]inventory.MemberRow{}, f.members[spaceID]...)
	err := f.membersErr
	hook := f.spaceMembersHook
	f.mu.Unlock()
	if hook != nil {
		hook(spaceID)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeRemote) AddSpaceMember(context.Context, string, string, string) (bool, error) {
	return true, nil
}

func (f *fakeRemote) ListBoxes(_ context.Context, spaceID string) ([]inventory.BoxRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	rows := []inventory.BoxRow{}
	for _, row := range f.boxes {
		if row.SpaceID == spaceID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeRemote) InsertBox(_ context.Context, row inventory.BoxRow) ([]inventory.BoxRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	if f.insertNoRow {
		return nil, nil
	}
	row.ID = f.newID("b")
	f.boxes = append(f.boxes, row)
	return []inventory.BoxRow{row}, nil
}

func (f *fakeRemote) UpdateBox(_ context.Context, row inventory.BoxRow) ([]inventory.BoxRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for index, existing := range f.boxes {
		if existing.ID == row.ID {
			row.CreatedAt = existing.CreatedAt
			f.boxes[index] = row
			return []inventory.BoxRow{row}, nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) DeleteBox(_ context.Context, boxID string) ([]inventory.BoxRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	deleted := []inventory.BoxRow{}
	kept := f.boxes[:0]
	for _, row := range f.boxes {
		if row.ID == boxID {
			deleted = append(deleted, row)
			continue
		}
		kept = append(kept, row)
	}
	f.boxes = kept
	return deleted, nil
}

func (f *fakeRemote) ListItems(_ context.Context, boxID string) ([]inventory.ItemRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	rows := []inventory.ItemRow{}
	for _, row := range f.items {
		if row.BoxID == boxID {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeRemote) InsertItem(_ context.Context, row inventory.ItemRow) ([]inventory.ItemRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	row.ID = f.newID("i")
	f.items = append(f.items, row)
	return []inventory.ItemRow{row}, nil
}

func (f *fakeRemote) UpdateItem(_ context.Context, row inventory.ItemRow) ([]inventory.ItemRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	for index, existing := range f.items {
		if existing.ID == row.ID {
			f.items[index] = row
			return []inventory.ItemRow{row}, nil
		}
	}
	return nil, nil
}

func (f *fakeRemote) DeleteItem(_ context.Context, itemID string) ([]inventory.ItemRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	deleted := []inventory.ItemRow{}
	kept := f.items[:0]
	for _, row := range f.items {
		if row.ID == itemID {
			deleted = append(deleted, row)
			continue
		}
		kept = append(kept, row)
	}
	f.items = kept
	return deleted, nil
}

var _ remote.DataSource = (*fakeRemote)(nil)
