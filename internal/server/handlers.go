package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/permissions"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/sharing"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/stores"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/workspace"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type spacePayload struct {
	Name         string  `json:"name"`
	Location     *string `json:"location"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

type boxPayload struct {
	SpaceID      string  `json:"space_id"`
	Name         string  `json:"name"`
	Location     *string `json:"location"`
	ThumbnailURL *string `json:"thumbnail_url"`
	Content      *string `json:"content"`
}

type itemPayload struct {
	BoxID       string  `json:"box_id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Quantity    *int    `json:"quantity"`
}

type sharePayload struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type createdResponse struct {
	ID string `json:"id"`
}

type membersResponse struct {
	SpaceID string                  `json:"spaceId"`
	Members []inventory.SpaceMember `json:"members"`
	Error   string                  `json:"error,omitempty"`
}

func (h *httpHandler) handleListSpaces(c *gin.Context) {
	current := currentWorkspace(c)
	if err := current.Spaces.FetchSpaces(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, current.Spaces.Snapshot())
}

func (h *httpHandler) handleCreateSpace(c *gin.Context) {
	current := currentWorkspace(c)
	var request spacePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	user, _ := current.Session.User()
	ownerName := inventory.StringPtr(user.FullName)
	if ownerName == nil {
		ownerName = inventory.StringPtr(user.Email)
	}
	spaceID, err := current.Spaces.AddSpace(c.Request.Context(), inventory.NewSpace{
		Name:         request.Name,
		Location:     request.Location,
		OwnerID:      current.UserID(),
		Owner:        ownerName,
		ThumbnailURL: request.ThumbnailURL,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createdResponse{ID: spaceID})
}

func (h *httpHandler) handleUpdateSpace(c *gin.Context) {
	h.editSpace(c, false)
}

func (h *httpHandler) handleStageSpace(c *gin.Context) {
	h.editSpace(c, true)
}

func (h *httpHandler) editSpace(c *gin.Context, stage bool) {
	current := currentWorkspace(c)
	var request spacePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	space, ok := h.loadedSpace(c, current, c.Param("spaceId"))
	if !ok {
		return
	}
	space.Name = request.Name
	space.Location = request.Location
	space.ThumbnailURL = request.ThumbnailURL
	if stage {
		current.Spaces.StageSpace(space)
		c.JSON(http.StatusOK, current.Spaces.Snapshot())
		return
	}
	if err := current.Spaces.UpdateSpace(c.Request.Context(), space); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, current.Spaces.Snapshot())
}

func (h *httpHandler) handleDeleteSpace(c *gin.Context) {
	current := currentWorkspace(c)
	if err := current.Spaces.RemoveSpace(c.Request.Context(), c.Param("spaceId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListMembers(c *gin.Context) {
	current := currentWorkspace(c)
	spaceID := c.Param("spaceId")
	if _, ok := h.loadedSpace(c, current, spaceID); !ok {
		return
	}
	if c.Query("refresh") == "true" {
		current.Spaces.InvalidateMembers(spaceID)
	}
	current.Spaces.FetchSpaceMembers(c.Request.Context(), spaceID)
	snapshot := current.Spaces.Snapshot()
	members := snapshot.MembersBySpace[spaceID]
	if members == nil {
		members = []inventory.SpaceMember{}
	}
	c.JSON(http.StatusOK, membersResponse{SpaceID: spaceID, Members: members, Error: snapshot.MemberErrors[spaceID]})
}

func (h *httpHandler) handleShareSpace(c *gin.Context) {
	current := currentWorkspace(c)
	var request sharePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	notice := current.Sharer.Share(c.Request.Context(), c.Param("spaceId"), request.Email, request.Role)
	status := http.StatusOK
	if notice.Kind == sharing.KindError {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, notice)
}

func (h *httpHandler) handlePermissions(c *gin.Context) {
	current := currentWorkspace(c)
	spaceID := c.Param("spaceId")
	if _, ok := h.loadedSpace(c, current, spaceID); !ok {
		return
	}
	capabilities, err := current.Capabilities(c.Request.Context(), spaceID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, capabilities)
}

func (h *httpHandler) handleListBoxes(c *gin.Context) {
	current := currentWorkspace(c)
	var state stores.BoxesState
	err := current.Exclusive(func() error {
		if err := current.Boxes.FetchBoxes(c.Request.Context(), c.Param("spaceId")); err != nil {
			return err
		}
		state = current.Boxes.Snapshot()
		return nil
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *httpHandler) handleCreateBox(c *gin.Context) {
	current := currentWorkspace(c)
	var request boxPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	var boxID string
	err := current.Exclusive(func() error {
		var addErr error
		boxID, addErr = current.Boxes.AddBox(c.Request.Context(), inventory.NewBox{
			SpaceID:      c.Param("spaceId"),
			Name:         request.Name,
			Location:     request.Location,
			ThumbnailURL: request.ThumbnailURL,
			Content:      request.Content,
		})
		return addErr
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createdResponse{ID: boxID})
}

func (h *httpHandler) handleUpdateBox(c *gin.Context) {
	h.editBox(c, false)
}

func (h *httpHandler) handleStageBox(c *gin.Context) {
	h.editBox(c, true)
}

func (h *httpHandler) editBox(c *gin.Context, stage bool) {
	current := currentWorkspace(c)
	var request boxPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	boxID := c.Param("boxId")
	var state stores.BoxesState
	err := current.Exclusive(func() error {
		box, ok := current.Boxes.Box(boxID)
		if !ok && request.SpaceID != "" {
			if err := current.Boxes.FetchBoxes(c.Request.Context(), request.SpaceID); err != nil {
				return err
			}
			box, ok = current.Boxes.Box(boxID)
		}
		if !ok {
			return stores.ErrNotLoaded
		}
		if request.SpaceID != "" {
			box.SpaceID = request.SpaceID
		}
		box.Name = request.Name
		box.Location = request.Location
		box.ThumbnailURL = request.ThumbnailURL
		box.Content = request.Content
		if stage {
			current.Boxes.StageBox(box)
		} else if err := current.Boxes.UpdateBox(c.Request.Context(), box); err != nil {
			return err
		}
		state = current.Boxes.Snapshot()
		return nil
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *httpHandler) handleDeleteBox(c *gin.Context) {
	current := currentWorkspace(c)
	err := current.Exclusive(func() error {
		return current.Boxes.RemoveBox(c.Request.Context(), c.Param("boxId"))
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListItems(c *gin.Context) {
	current := currentWorkspace(c)
	var state stores.ItemsState
	err := current.Exclusive(func() error {
		if err := current.Items.FetchItems(c.Request.Context(), c.Param("boxId")); err != nil {
			return err
		}
		state = current.Items.Snapshot()
		return nil
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *httpHandler) handleCreateItem(c *gin.Context) {
	current := currentWorkspace(c)
	var request itemPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	quantity := 1
	if request.Quantity != nil {
		quantity = *request.Quantity
	}
	var itemID string
	err := current.Exclusive(func() error {
		var addErr error
		itemID, addErr = current.Items.AddItem(c.Request.Context(), inventory.NewItem{
			BoxID:       c.Param("boxId"),
			Name:        request.Name,
			Description: request.Description,
			Quantity:    quantity,
		})
		return addErr
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, createdResponse{ID: itemID})
}

func (h *httpHandler) handleUpdateItem(c *gin.Context) {
	current := currentWorkspace(c)
	var request itemPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.BoxID) == "" || request.Quantity == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	var state stores.ItemsState
	err := current.Exclusive(func() error {
		if err := current.Items.UpdateItem(c.Request.Context(), inventory.Item{
			ID:          c.Param("itemId"),
			BoxID:       request.BoxID,
			Name:        request.Name,
			Description: request.Description,
			Quantity:    *request.Quantity,
		}); err != nil {
			return err
		}
		state = current.Items.Snapshot()
		return nil
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *httpHandler) handleDeleteItem(c *gin.Context) {
	current := currentWorkspace(c)
	err := current.Exclusive(func() error {
		return current.Items.RemoveItem(c.Request.Context(), c.Param("itemId"))
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// loadedSpace returns the space from local state, fetching the list once when
// it is missing. It writes the error response itself.
func (h *httpHandler) loadedSpace(c *gin.Context, current *workspace.Workspace, spaceID string) (inventory.Space, bool) {
	if space, ok := current.Spaces.Space(spaceID); ok {
		return space, true
	}
	if err := current.Spaces.FetchSpaces(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return inventory.Space{}, false
	}
	space, ok := current.Spaces.Space(spaceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "space_not_found"})
		return inventory.Space{}, false
	}
	return space, true
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.String("code", code), zap.Error(err))
	}
	body := gin.H{"error": code}
	if message := remote.Message(err); message != "" {
		body["message"] = message
	}
	c.JSON(status, body)
}

func classifyError(err error) (int, string) {
	code := "internal_error"
	var serviceErr *stores.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	switch {
	case errors.Is(err, inventory.ErrInvalidName),
		errors.Is(err, inventory.ErrMissingOwner),
		errors.Is(err, inventory.ErrMissingSpace),
		errors.Is(err, inventory.ErrMissingBox),
		errors.Is(err, inventory.ErrInvalidQuantity):
		return http.StatusBadRequest, code
	case errors.Is(err, stores.ErrNotLoaded):
		if code == "internal_error" {
			code = "not_loaded"
		}
		return http.StatusNotFound, code
	case errors.Is(err, permissions.ErrUnknownSpace):
		return http.StatusNotFound, "space_not_found"
	case errors.Is(err, stores.ErrParentChanged):
		return http.StatusConflict, code
	case errors.Is(err, stores.ErrNoRowReturned):
		return http.StatusBadGateway, code
	}
	switch remote.Code(err) {
	case remote.CodeInsufficientPrivilege:
		return http.StatusForbidden, code
	case remote.CodeNoRows:
		return http.StatusNotFound, code
	case remote.CodeUniqueViolation:
		return http.StatusConflict, code
	}
	var remoteErr *remote.Error
	if errors.As(err, &remoteErr) {
		return http.StatusBadGateway, code
	}
	return http.StatusInternalServerError, code
}
