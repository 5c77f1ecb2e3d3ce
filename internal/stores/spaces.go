package stores

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/cache"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"go.uber.org/zap"
)

const (
	opSpacesNew         = "stores.spaces.new"
	opFetchSpaces       = "stores.fetch_spaces"
	opAddSpace          = "stores.add_space"
	opUpdateSpace       = "stores.update_space"
	opRemoveSpace       = "stores.remove_space"
	opFetchSpaceMembers = "stores.fetch_space_members"

	failedCreateSpace = "Failed to create space"
	failedUpdateSpace = "Failed to update space"
)

// SpacesConfig describes the dependencies of a Spaces store.
type SpacesConfig struct {
	Remote remote.SpaceSource
	Cache  cache.Store
	// ViewerID identifies the signed-in user whose membership roles are tracked.
	ViewerID string
	Clock    func() time.Time
	Logger   *zap.Logger
}

// SpacesState is a point-in-time copy of the Spaces store.
type SpacesState struct {
	Spaces           []inventory.Space                  `json:"spaces"`
	Loading          bool                               `json:"loading"`
	Error            string                             `json:"error,omitempty"`
	MembershipRoles  map[string]string                  `json:"membershipRoles"`
	MembershipCounts map[string]int                     `json:"membershipCounts"`
	MembersBySpace   map[string][]inventory.SpaceMember `json:"membersBySpace"`
	MemberLoading    map[string]bool                    `json:"memberLoading"`
	MemberErrors     map[string]string                  `json:"memberErrors"`
}

// Spaces mirrors the spaces visible to one viewer, their membership summary
// and per-space member lists.
type Spaces struct {
	storeBase
	remote   remote.SpaceSource
	viewerID string

	mu         sync.Mutex
	state      SpacesState
	generation uint64
}

// NewSpaces constructs a Spaces store with empty state.
func NewSpaces(cfg SpacesConfig) (*Spaces, error) {
	if cfg.Remote == nil {
		return nil, newServiceError(opSpacesNew, "missing_remote", errMissingRemote)
	}
	if cfg.Cache == nil {
		return nil, newServiceError(opSpacesNew, "missing_cache", errMissingCache)
	}
	if strings.TrimSpace(cfg.ViewerID) == "" {
		return nil, newServiceError(opSpacesNew, "missing_viewer", errMissingViewer)
	}
	return &Spaces{
		storeBase: newStoreBase(cfg.Cache, cfg.Clock, cfg.Logger),
		remote:    cfg.Remote,
		viewerID:  cfg.ViewerID,
		state: SpacesState{
			Spaces:           []inventory.Space{},
			MembershipRoles:  map[string]string{},
			MembershipCounts: map[string]int{},
			MembersBySpace:   map[string][]inventory.SpaceMember{},
			MemberLoading:    map[string]bool{},
			MemberErrors:     map[string]string{},
		},
	}, nil
}

// Snapshot returns a copy of the current state.
func (s *Spaces) Snapshot() SpacesState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SpacesState{
		Spaces:           append([]inventory.Space{}, s.state.Spaces...),
		Loading:          s.state.Loading,
		Error:            s.state.Error,
		MembershipRoles:  copyMap(s.state.MembershipRoles),
		MembershipCounts: copyMap(s.state.MembershipCounts),
		MembersBySpace:   copyMembers(s.state.MembersBySpace),
		MemberLoading:    copyMap(s.state.MemberLoading),
		MemberErrors:     copyMap(s.state.MemberErrors),
	}
}

// Space returns the loaded space with the given id.
func (s *Spaces) Space(spaceID string) (inventory.Space, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return findByID(s.state.Spaces, spaceID, spaceKey)
}

// MembershipRole returns the role subject holds in a space through a membership row.
func (s *Spaces) MembershipRole(subject, spaceID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if subject == s.viewerID {
		role, ok := s.state.MembershipRoles[spaceID]
		return role, ok
	}
	for _, member := range s.state.MembersBySpace[spaceID] {
		if member.UserID != subject {
			continue
		}
		if member.Role == nil || *member.Role == "" {
			return inventory.RoleMember, true
		}
		return *member.Role, true
	}
	return "", false
}

// Hydrate seeds an empty in-memory list from the durable snapshot so that
// views have a last-known-good list before the first remote fetch resolves.
func (s *Spaces) Hydrate() {
	s.mu.Lock()
	if len(s.state.Spaces) > 0 {
		s.mu.Unlock()
		return
	}
	s.state.Spaces = readSnapshot[inventory.Space](&s.storeBase, cache.SpacesKey)
	s.mu.Unlock()
	s.emit(Event{Topic: TopicSpaces})
}

// FetchSpaces replaces the list with every space the backend lets the viewer
// see. Results of a fetch superseded by a newer one are discarded.
func (s *Spaces) FetchSpaces(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	generation := s.generation
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
	s.emit(Event{Topic: TopicSpaces})

	rows, err := s.remote.ListSpaces(ctx)
	if err != nil {
		if s.settle(generation, func() {
			s.state.Error = failureMessage(err, "Failed to load spaces")
			s.state.Loading = false
		}) {
			s.logError(opFetchSpaces, "select_failed", err)
		}
		return newServiceError(opFetchSpaces, "select_failed", err)
	}

	spaces := make([]inventory.Space, 0, len(rows))
	for _, row := range rows {
		spaces = append(spaces, inventory.SpaceFromRow(row))
	}
	roles, counts, summarized := s.membershipSummary(ctx, spaces)

	applied := s.settle(generation, func() {
		if summarized {
			s.state.MembershipRoles = roles
			s.state.MembershipCounts = counts
		}
		for index := range spaces {
			spaces[index].MemberCount = s.state.MembershipCounts[spaces[index].ID]
		}
		s.state.Spaces = spaces
		s.state.Loading = false
		writeSnapshot(&s.storeBase, cache.SpacesKey, spaces)
	})
	if !applied {
		s.logger.Debug("discarding stale spaces fetch", zap.Uint64("generation", generation))
	}
	return nil
}

// membershipSummary derives the viewer's roles and the per-space member counts.
// Failure is logged and reported through the bool, never propagated.
func (s *Spaces) membershipSummary(ctx context.Context, spaces []inventory.Space) (map[string]string, map[string]int, bool) {
	rows, err := s.remote.ListMemberships(ctx)
	if err != nil {
		s.logger.Warn("membership summary unavailable", zap.Error(err))
		return nil, nil, false
	}
	owners := make(map[string]string, len(spaces))
	for _, space := range spaces {
		owners[space.ID] = space.OwnerID
	}
	roles := map[string]string{}
	counts := map[string]int{}
	for _, row := range rows {
		if row.UserID == s.viewerID {
			role := inventory.RoleMember
			if row.Role != nil && *row.Role != "" {
				role = *row.Role
			}
			roles[row.SpaceID] = role
		}
		if owner, ok := owners[row.SpaceID]; ok && owner == row.UserID {
			continue
		}
		counts[row.SpaceID]++
	}
	return roles, counts, true
}

// AddSpace inserts a space remotely and, once the backend has assigned its id,
// appends it to the durable snapshot and the in-memory list.
func (s *Spaces) AddSpace(ctx context.Context, newSpace inventory.NewSpace) (string, error) {
	if err := newSpace.Validate(); err != nil {
		s.setError(err.Error())
		return "", newServiceError(opAddSpace, "invalid_space", err)
	}

	now := s.now()
	rows, err := s.remote.InsertSpace(ctx, inventory.NewSpaceRow(newSpace, now))
	if err == nil && (len(rows) == 0 || rows[0].ID == "") {
		err = ErrNoRowReturned
	}
	if err != nil {
		s.setError(failureMessage(err, failedCreateSpace))
		s.logError(opAddSpace, "insert_failed", err)
		return "", newServiceError(opAddSpace, "insert_failed", err)
	}

	created := inventory.Space{
		ID:           rows[0].ID,
		Name:         newSpace.Name,
		Location:     newSpace.Location,
		OwnerID:      newSpace.OwnerID,
		Owner:        newSpace.Owner,
		ThumbnailURL: newSpace.ThumbnailURL,
		CreatedAt:    &now,
		ModifiedAt:   &now,
	}

	s.mu.Lock()
	s.supersedeFetches()
	created.MemberCount = s.state.MembershipCounts[created.ID]
	updated := append(readSnapshot[inventory.Space](&s.storeBase, cache.SpacesKey), created)
	s.state.Spaces = updated
	writeSnapshot(&s.storeBase, cache.SpacesKey, updated)
	s.mu.Unlock()
	s.emit(Event{Topic: TopicSpaces, SpaceID: created.ID})

	return created.ID, nil
}

// UpdateSpace writes the space remotely with a fresh modified_at and replaces
// the local copy only after the backend accepted it.
func (s *Spaces) UpdateSpace(ctx context.Context, space inventory.Space) error {
	if err := inventory.ValidateName(space.Name); err != nil {
		s.setError(err.Error())
		return newServiceError(opUpdateSpace, "invalid_space", err)
	}
	now := s.now()
	space.ModifiedAt = &now

	rows, err := s.remote.UpdateSpace(ctx, inventory.SpaceToRow(space))
	if err == nil && len(rows) == 0 {
		err = ErrNoRowReturned
	}
	if err != nil {
		s.setError(failureMessage(err, failedUpdateSpace))
		s.logError(opUpdateSpace, "update_failed", err, zap.String("space_id", space.ID))
		return newServiceError(opUpdateSpace, "update_failed", err)
	}

	stored := inventory.SpaceFromRow(rows[0])
	s.mu.Lock()
	s.supersedeFetches()
	if existing, ok := findByID(s.state.Spaces, space.ID, spaceKey); ok {
		stored.MemberCount = existing.MemberCount
		if stored.Owner == nil {
			stored.Owner = existing.Owner
		}
	}
	updated, _ := replaceByID(s.state.Spaces, space.ID, spaceKey, stored)
	s.state.Spaces = updated
	writeSnapshot(&s.storeBase, cache.SpacesKey, updated)
	s.mu.Unlock()
	s.emit(Event{Topic: TopicSpaces, SpaceID: space.ID})
	return nil
}

// StageSpace replaces the in-memory copy without touching the backend or the
// durable snapshot. It backs local drafts; the next fetch discards the change.
func (s *Spaces) StageSpace(space inventory.Space) {
	now := s.now()
	space.ModifiedAt = &now
	s.mu.Lock()
	s.state.Spaces, _ = replaceByID(s.state.Spaces, space.ID, spaceKey, space)
	s.mu.Unlock()
	s.emit(Event{Topic: TopicSpaces, SpaceID: space.ID})
}

// RemoveSpace deletes the space remotely, then prunes memory and the snapshot.
// The snapshots of its boxes and their items are dropped with it.
func (s *Spaces) RemoveSpace(ctx context.Context, spaceID string) error {
	if err := s.remote.DeleteSpace(ctx, spaceID); err != nil {
		s.setError(failureMessage(err, "Failed to delete space"))
		s.logError(opRemoveSpace, "delete_failed", err, zap.String("space_id", spaceID))
		return newServiceError(opRemoveSpace, "delete_failed", err)
	}

	s.mu.Lock()
	s.supersedeFetches()
	updated := removeByID(s.state.Spaces, spaceID, spaceKey)
	s.state.Spaces = updated
	delete(s.state.MembershipRoles, spaceID)
	delete(s.state.MembershipCounts, spaceID)
	delete(s.state.MembersBySpace, spaceID)
	delete(s.state.MemberErrors, spaceID)
	writeSnapshot(&s.storeBase, cache.SpacesKey, updated)
	boxesKey := cache.BoxesKey(spaceID)
	for _, box := range readSnapshot[inventory.Box](&s.storeBase, boxesKey) {
		s.dropSnapshot(cache.ItemsKey(box.ID))
	}
	s.dropSnapshot(boxesKey)
	s.mu.Unlock()
	s.emit(Event{Topic: TopicSpaces, SpaceID: spaceID})
	return nil
}

// FetchSpaceMembers loads the collaborators of one space through the
// privileged member lookup. A call for a space whose fetch is still in flight
// returns immediately. Failures are recorded per space and never returned.
func (s *Spaces) FetchSpaceMembers(ctx context.Context, spaceID string) {
	s.mu.Lock()
	if s.state.MemberLoading[spaceID] {
		s.mu.Unlock()
		return
	}
	s.state.MemberLoading[spaceID] = true
	delete(s.state.MemberErrors, spaceID)
	s.mu.Unlock()
	s.emit(Event{Topic: TopicMembers, SpaceID: spaceID})

	rows, err := s.remote.SpaceMembers(ctx, spaceID)

	s.mu.Lock()
	delete(s.state.MemberLoading, spaceID)
	if err != nil {
		s.state.MemberErrors[spaceID] = failureMessage(err, "Failed to load members")
		s.mu.Unlock()
		s.logError(opFetchSpaceMembers, "rpc_failed", err, zap.String("space_id", spaceID))
		s.emit(Event{Topic: TopicMembers, SpaceID: spaceID})
		return
	}

	members := make([]inventory.SpaceMember, 0, len(rows)+1)
	space, known := findByID(s.state.Spaces, spaceID, spaceKey)
	if known {
		ownerRole := inventory.RoleOwner
		members = append(members, inventory.SpaceMember{
			UserID:      space.OwnerID,
			Role:        &ownerRole,
			DisplayName: space.Owner,
		})
	}
	memberRows := 0
	for _, row := range rows {
		if known && row.UserID == space.OwnerID {
			continue
		}
		members = append(members, inventory.MemberFromRow(row))
		memberRows++
	}
	ownerID := ""
	if known {
		ownerID = space.OwnerID
	}
	s.state.MembersBySpace[spaceID] = inventory.OrderMembers(members, ownerID)
	if known {
		s.state.MembershipCounts[spaceID] = memberRows
		space.MemberCount = memberRows
		s.state.Spaces, _ = replaceByID(s.state.Spaces, spaceID, spaceKey, space)
	}
	s.mu.Unlock()
	s.emit(Event{Topic: TopicMembers, SpaceID: spaceID})
}

// InvalidateMembers drops the cached member list so the next fetch reloads it.
func (s *Spaces) InvalidateMembers(spaceID string) {
	s.mu.Lock()
	delete(s.state.MembersBySpace, spaceID)
	s.mu.Unlock()
}

// supersedeFetches makes every fetch already in flight stale. Callers hold mu.
func (s *Spaces) supersedeFetches() {
	s.generation++
	s.state.Loading = false
}

func (s *Spaces) setError(message string) {
	s.mu.Lock()
	s.state.Error = message
	s.mu.Unlock()
	s.emit(Event{Topic: TopicSpaces})
}

// settle applies mutate when generation is still the latest fetch.
func (s *Spaces) settle(generation uint64, mutate func()) bool {
	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return false
	}
	mutate()
	s.mu.Unlock()
	s.emit(Event{Topic: TopicSpaces})
	return true
}

func spaceKey(space inventory.Space) string {
	return space.ID
}

func copyMap[K comparable, V any](source map[K]V) map[K]V {
	copied := make(map[K]V, len(source))
	for key, value := range source {
		copied[key] = value
	}
	return copied
}

func copyMembers(source map[string][]inventory.SpaceMember) map[string][]inventory.SpaceMember {
	copied := make(map[string][]inventory.SpaceMember, len(source))
	for key, members := range source {
		copied[key] = append([]inventory.SpaceMember{}, members...)
	}
	return copied
}
