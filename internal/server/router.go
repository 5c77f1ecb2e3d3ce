package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/auth"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/users"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/workspace"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	workspaceContextKey      = "storage_manager_workspace"
	accessTokenQueryParam    = "access_token"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingValidator  = errors.New("session validator dependency required")
	errMissingWorkspaces = errors.New("workspace registry dependency required")
)

// TokenValidator authenticates a request's access token.
type TokenValidator interface {
	ValidateRequest(r *http.Request) (string, auth.AccessClaims, error)
}

// ProfileRecorder upserts the profile of an authenticated identity.
type ProfileRecorder interface {
	Record(identity inventory.Identity) (users.Profile, error)
}

// Dependencies wires the HTTP handler.
type Dependencies struct {
	Validator  TokenValidator
	Workspaces *workspace.Registry
	// Profiles is set for the embedded backend, which resolves share emails
	// against the profiles of users who have signed in.
	Profiles          ProfileRecorder
	Realtime          *RealtimeDispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Validator == nil {
		return nil, errMissingValidator
	}
	if deps.Workspaces == nil {
		return nil, errMissingWorkspaces
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		validator:  deps.Validator,
		workspaces: deps.Workspaces,
		profiles:   deps.Profiles,
		realtime:   realtime,
		heartbeat:  heartbeat,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/me", handler.handleMe)
	protected.POST("/signout", handler.handleSignOut)
	protected.GET("/events", handler.handleEvents)

	protected.GET("/spaces", handler.handleListSpaces)
	protected.POST("/spaces", handler.handleCreateSpace)
	protected.PUT("/spaces/:spaceId", handler.handleUpdateSpace)
	protected.PATCH("/spaces/:spaceId", handler.handleStageSpace)
	protected.DELETE("/spaces/:spaceId", handler.handleDeleteSpace)
	protected.GET("/spaces/:spaceId/members", handler.handleListMembers)
	protected.POST("/spaces/:spaceId/members", handler.handleShareSpace)
	protected.GET("/spaces/:spaceId/permissions", handler.handlePermissions)

	protected.GET("/spaces/:spaceId/boxes", handler.handleListBoxes)
	protected.POST("/spaces/:spaceId/boxes", handler.handleCreateBox)
	protected.PUT("/boxes/:boxId", handler.handleUpdateBox)
	protected.PATCH("/boxes/:boxId", handler.handleStageBox)
	protected.DELETE("/boxes/:boxId", handler.handleDeleteBox)

	protected.GET("/boxes/:boxId/items", handler.handleListItems)
	protected.POST("/boxes/:boxId/items", handler.handleCreateItem)
	protected.PUT("/items/:itemId", handler.handleUpdateItem)
	protected.DELETE("/items/:itemId", handler.handleDeleteItem)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "Cache-Control"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowsAnyOrigin(allowedOrigins) {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func allowsAnyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

type httpHandler struct {
	validator  TokenValidator
	workspaces *workspace.Registry
	profiles   ProfileRecorder
	realtime   *RealtimeDispatcher
	heartbeat  time.Duration
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorizeRequest is the route guard: it validates the access token, opens
// the caller's workspace and populates its session.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	request := c.Request
	if token := c.Query(accessTokenQueryParam); token != "" && request.Header.Get("Authorization") == "" {
		request = request.Clone(request.Context())
		request.Header.Set("Authorization", "Bearer "+token)
	}
	token, claims, err := h.validator.ValidateRequest(request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	identity := claims.Identity()
	if h.profiles != nil {
		if _, err := h.profiles.Record(identity); err != nil {
			h.logger.Error("failed to record profile", zap.String("user_id", identity.ID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profile_record_failed"})
			return
		}
	}

	current, err := h.workspaces.Open(token, identity)
	if err != nil {
		h.logger.Error("failed to open workspace", zap.String("user_id", identity.ID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "workspace_unavailable"})
		return
	}
	if !current.Session.Authenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(workspaceContextKey, current)
	c.Next()
}

func currentWorkspace(c *gin.Context) *workspace.Workspace {
	value, ok := c.Get(workspaceContextKey)
	if !ok {
		return nil
	}
	current, _ := value.(*workspace.Workspace)
	return current
}

type meResponse struct {
	User          inventory.UserProfile `json:"user"`
	Authenticated bool                  `json:"authenticated"`
}

func (h *httpHandler) handleMe(c *gin.Context) {
	current := currentWorkspace(c)
	user, ok := current.Session.User()
	c.JSON(http.StatusOK, meResponse{User: user, Authenticated: ok})
}

func (h *httpHandler) handleSignOut(c *gin.Context) {
	current := currentWorkspace(c)
	h.workspaces.Close(current.UserID())
	c.Status(http.StatusNoContent)
}
