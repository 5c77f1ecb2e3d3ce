// Package sharing invites existing users into a space by email and turns the
// backend's answer into a user-facing notice.
package sharing

import (
	"context"
	"errors"
	"strings"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"go.uber.org/zap"
)

// NoticeKind is the severity of a Notice.
type NoticeKind string

const (
	KindSuccess NoticeKind = "success"
	KindInfo    NoticeKind = "info"
	KindError   NoticeKind = "error"
)

const (
	MessageShared         = "Space shared."
	MessageInvalidEmail   = "Enter an email address."
	MessageSignedOut      = "You must be signed in."
	MessageAlreadyYou     = "That's you already."
	MessageInvalidRole    = "Role must be viewer or editor."
	MessageAlreadyMember  = "User already a member."
	MessageUnknownUser    = "No user with that email."
	MessageNoPermission   = "You don't have permission to share this space."
	MessageUnexpectedData = "Could not share space (unexpected response)."
	failurePrefix         = "Share failed: "
)

var (
	errMissingMembers = errors.New("sharing: member adder required")
	errMissingSession = errors.New("sharing: identity source required")
)

// Notice is the outcome of a share attempt.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

// OK reports whether the share succeeded.
func (n Notice) OK() bool {
	return n.Kind == KindSuccess
}

// MemberAdder invokes the privileged add-member procedure.
type MemberAdder interface {
	AddSpaceMember(ctx context.Context, spaceID, email, role string) (bool, error)
}

// MemberRefresher reloads the member list of a space after a share.
type MemberRefresher interface {
	InvalidateMembers(spaceID string)
	FetchSpaceMembers(ctx context.Context, spaceID string)
}

// IdentitySource reports the signed-in user.
type IdentitySource interface {
	User() (inventory.UserProfile, bool)
}

// Config wires a Sharer.
type Config struct {
	Members   MemberAdder
	Refresher MemberRefresher
	Session   IdentitySource
	Logger    *zap.Logger
}

// Sharer adds members to spaces.
type Sharer struct {
	members   MemberAdder
	refresher MemberRefresher
	session   IdentitySource
	logger    *zap.Logger
}

// NewSharer validates cfg and returns a Sharer.
func NewSharer(cfg Config) (*Sharer, error) {
	if cfg.Members == nil {
		return nil, errMissingMembers
	}
	if cfg.Session == nil {
		return nil, errMissingSession
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sharer{members: cfg.Members, refresher: cfg.Refresher, session: cfg.Session, logger: logger}, nil
}

// Share grants role on spaceID to the user registered under email.
func (s *Sharer) Share(ctx context.Context, spaceID, email, role string) Notice {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return Notice{Kind: KindError, Message: MessageInvalidEmail}
	}
	user, signedIn := s.session.User()
	if !signedIn {
		return Notice{Kind: KindError, Message: MessageSignedOut}
	}
	if strings.ToLower(strings.TrimSpace(user.Email)) == normalized {
		return Notice{Kind: KindInfo, Message: MessageAlreadyYou}
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = inventory.RoleViewer
	}
	if role != inventory.RoleViewer && role != inventory.RoleEditor {
		return Notice{Kind: KindError, Message: MessageInvalidRole}
	}

	added, err := s.members.AddSpaceMember(ctx, spaceID, normalized, role)
	if err != nil {
		s.logger.Warn("share failed",
			zap.String("space_id", spaceID),
			zap.String("role", role),
			zap.Error(err),
		)
		return Classify(err)
	}
	if !added {
		return Notice{Kind: KindError, Message: MessageUnexpectedData}
	}

	if s.refresher != nil {
		s.refresher.InvalidateMembers(spaceID)
		s.refresher.FetchSpaceMembers(ctx, spaceID)
	}
	return Notice{Kind: KindSuccess, Message: MessageShared}
}

// Classify maps an add-member failure to a notice.
func Classify(err error) Notice {
	message := remote.Message(err)
	lowered := strings.ToLower(message)
	switch {
	case strings.Contains(lowered, "duplicate") || remote.Code(err) == remote.CodeUniqueViolation:
		return Notice{Kind: KindInfo, Message: MessageAlreadyMember}
	case strings.Contains(lowered, "not found"):
		return Notice{Kind: KindError, Message: MessageUnknownUser}
	case strings.Contains(lowered, "permission"):
		return Notice{Kind: KindError, Message: MessageNoPermission}
	default:
		return Notice{Kind: KindError, Message: failurePrefix + message}
	}
}
