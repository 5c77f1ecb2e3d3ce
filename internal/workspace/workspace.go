// Package workspace assembles the per-identity object graph: a session, the
// spaces, boxes and items stores bound to one data source, the permission
// policy and the sharer. A Registry keeps one Workspace per signed-in user.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/cache"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/permissions"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/session"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/sharing"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/sqlbackend"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/stores"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/supabase"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrMissingSources indicates that the registry was built without a data source factory.
	ErrMissingSources = errors.New("workspace: source factory required")
	// ErrMissingIdentity indicates an Open call without a user id.
	ErrMissingIdentity = errors.New("workspace: identity required")
	// ErrSignedOut indicates that the session holds no user.
	ErrSignedOut = errors.New("workspace: session signed out")
)

// SourceFactory binds a data source to the identity held by a session store.
type SourceFactory func(sess *session.Store) (remote.DataSource, error)

// CacheFactory returns the durable snapshot store for one user.
type CacheFactory func(userID string) (cache.Store, error)

// EventHandler observes every store event of every workspace.
type EventHandler func(userID string, event stores.Event)

// EmbeddedSources serves every user from the local SQL backend.
func EmbeddedSources(backend *sqlbackend.Backend) SourceFactory {
	return func(sess *session.Store) (remote.DataSource, error) {
		user, ok := sess.User()
		if !ok {
			return nil, ErrSignedOut
		}
		return backend.ForUser(user.ID), nil
	}
}

// SupabaseSources forwards every call to PostgREST with the session's current token.
func SupabaseSources(client *supabase.Client) SourceFactory {
	return func(sess *session.Store) (remote.DataSource, error) {
		return client.ForSession(sess), nil
	}
}

// MemoryCaches gives each workspace a private in-process cache.
func MemoryCaches() CacheFactory {
	return func(string) (cache.Store, error) {
		return cache.NewMemory(), nil
	}
}

// SQLiteCaches persists snapshots in db, namespaced by user id.
func SQLiteCaches(db *gorm.DB) CacheFactory {
	return func(userID string) (cache.Store, error) {
		return cache.NewSQLite(db, userID)
	}
}

// Workspace is the state of one signed-in user.
type Workspace struct {
	Session *session.Store
	Spaces  *stores.Spaces
	Boxes   *stores.Boxes
	Items   *stores.Items
	Policy  permissions.Policy
	Sharer  *sharing.Sharer

	userID string
	mu     sync.Mutex
}

// UserID returns the id of the user the workspace belongs to.
func (w *Workspace) UserID() string {
	return w.userID
}

// Exclusive runs fn while no other Exclusive call on the workspace is running.
// Boxes and Items track a single parent at a time, so a fetch and the read of
// its snapshot belong in one call.
func (w *Workspace) Exclusive(fn func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn()
}

// Subscribe registers listener on every store of the workspace.
func (w *Workspace) Subscribe(listener stores.Listener) func() {
	cancels := []func(){
		w.Spaces.Subscribe(listener),
		w.Boxes.Subscribe(listener),
		w.Items.Subscribe(listener),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// Capabilities resolves what the workspace's user may do with spaceID.
func (w *Workspace) Capabilities(ctx context.Context, spaceID string) (permissions.Capabilities, error) {
	return w.Policy.Capabilities(ctx, w.userID, spaceID)
}

// RegistryConfig describes the dependencies of a Registry.
type RegistryConfig struct {
	Sources SourceFactory
	// Caches defaults to MemoryCaches.
	Caches  CacheFactory
	Rules   permissions.Rules
	OnEvent EventHandler
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Registry owns one Workspace per user id.
type Registry struct {
	config RegistryConfig
	logger *zap.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// NewRegistry validates cfg and returns an empty Registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Sources == nil {
		return nil, ErrMissingSources
	}
	if cfg.Caches == nil {
		cfg.Caches = MemoryCaches()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := permissions.NewRulePolicy(permissions.RulePolicyConfig{Facts: noFacts{}, Rules: cfg.Rules}); err != nil {
		return nil, err
	}
	return &Registry{config: cfg, logger: logger, workspaces: make(map[string]*Workspace)}, nil
}

// Open returns the workspace of identity, creating it on first use. The
// session of an existing workspace is refreshed with accessToken.
func (r *Registry) Open(accessToken string, identity inventory.Identity) (*Workspace, error) {
	userID := strings.TrimSpace(identity.ID)
	if userID == "" {
		return nil, ErrMissingIdentity
	}
	authSession := &session.AuthSession{AccessToken: accessToken, User: identity}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.workspaces[userID]; ok {
		existing.Session.HandleAuthEvent(session.AuthEvent{Type: session.EventTokenRefreshed, Session: authSession})
		return existing, nil
	}

	sessionStore := session.NewStore()
	sessionStore.HandleAuthEvent(session.AuthEvent{Type: session.EventSignedIn, Session: authSession})
	created, err := r.build(userID, sessionStore)
	if err != nil {
		r.logger.Error("workspace build failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	r.workspaces[userID] = created
	r.logger.Debug("workspace opened", zap.String("user_id", userID))
	return created, nil
}

// Lookup returns the workspace of userID when it is open.
func (r *Registry) Lookup(userID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.workspaces[userID]
	return existing, ok
}

// Close signs the user out and drops the workspace. Durable snapshots stay.
func (r *Registry) Close(userID string) {
	r.mu.Lock()
	existing, ok := r.workspaces[userID]
	delete(r.workspaces, userID)
	r.mu.Unlock()
	if ok {
		existing.Session.HandleAuthEvent(session.AuthEvent{Type: session.EventSignedOut})
	}
}

func (r *Registry) build(userID string, sessionStore *session.Store) (*Workspace, error) {
	source, err := r.config.Sources(sessionStore)
	if err != nil {
		return nil, fmt.Errorf("workspace: bind data source: %w", err)
	}
	snapshots, err := r.config.Caches(userID)
	if err != nil {
		return nil, fmt.Errorf("workspace: open cache: %w", err)
	}
	logger := r.logger.With(zap.String("user_id", userID))

	spaces, err := stores.NewSpaces(stores.SpacesConfig{
		Remote:   source,
		Cache:    snapshots,
		ViewerID: userID,
		Clock:    r.config.Clock,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	boxes, err := stores.NewBoxes(stores.BoxesConfig{Remote: source, Cache: snapshots, Clock: r.config.Clock, Logger: logger})
	if err != nil {
		return nil, err
	}
	items, err := stores.NewItems(stores.ItemsConfig{Remote: source, Cache: snapshots, Clock: r.config.Clock, Logger: logger})
	if err != nil {
		return nil, err
	}
	policy, err := permissions.NewRulePolicy(permissions.RulePolicyConfig{Facts: spaces, Rules: r.config.Rules})
	if err != nil {
		return nil, err
	}
	sharer, err := sharing.NewSharer(sharing.Config{
		Members:   source,
		Refresher: spaces,
		Session:   sessionStore,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	created := &Workspace{
		Session: sessionStore,
		Spaces:  spaces,
		Boxes:   boxes,
		Items:   items,
		Policy:  policy,
		Sharer:  sharer,
		userID:  userID,
	}
	spaces.Hydrate()
	if r.config.OnEvent != nil {
		onEvent := r.config.OnEvent
		created.Subscribe(func(event stores.Event) {
			onEvent(userID, event)
		})
	}
	return created, nil
}

// noFacts lets NewRegistry compile the configured rules once up front.
type noFacts struct{}

func (noFacts) Space(string) (inventory.Space, bool) {
	return inventory.Space{}, false
}

func (noFacts) MembershipRole(string, string) (string, bool) {
	return "", false
}
