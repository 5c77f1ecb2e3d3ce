package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/auth"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/server"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/sharing"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/sqlbackend"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/stores"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/users"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/workspace"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sessionSigningSecret = "integration-secret"
	sessionCookieName    = "sb_access_token"
	sessionIssuer        = "https://project.supabase.co/auth/v1"
	jsonContentType      = "application/json"
)

func TestShareAndCollaborateFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file:integration?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(sqlbackend.Schema().Models...); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build users service: %v", err)
	}
	backend, err := sqlbackend.New(sqlbackend.Config{Database: db, Users: userService, Logger: zap.NewNop()})
	if err != nil {
		testContext.Fatalf("failed to build backend: %v", err)
	}
	realtime := server.NewRealtimeDispatcher()
	registry, err := workspace.NewRegistry(workspace.RegistryConfig{
		Sources: workspace.EmbeddedSources(backend),
		OnEvent: realtime.PublishStoreEvent,
		Logger:  zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build registry: %v", err)
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(sessionSigningSecret),
		Issuer:        sessionIssuer,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		testContext.Fatalf("failed to construct session validator: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Validator:  sessionValidator,
		Workspaces: registry,
		Profiles:   userService,
		Realtime:   realtime,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	now := time.Now()
	ownerCookie := &http.Cookie{Name: sessionCookieName, Value: mustMintSessionToken(testContext, "user-owner", "owner@example.com", "Olive Owner", now)}
	memberCookie := &http.Cookie{Name: sessionCookieName, Value: mustMintSessionToken(testContext, "user-member", "member@example.com", "Max Member", now)}

	var created struct {
		ID string `json:"id"`
	}
	mustCall(testContext, testServer.URL, http.MethodPost, "/spaces", ownerCookie, map[string]any{"name": "Garage"}, http.StatusCreated, &created)
	if created.ID == "" {
		testContext.Fatalf("expected space id")
	}

	var notice sharing.Notice
	mustCall(testContext, testServer.URL, http.MethodPost, "/spaces/"+created.ID+"/members", ownerCookie, map[string]any{"email": "member@example.com", "role": "editor"}, http.StatusUnprocessableEntity, &notice)
	if notice.Message != sharing.MessageUnknownUser {
		testContext.Fatalf("expected unknown user before the member signs in, got %#v", notice)
	}

	mustCall(testContext, testServer.URL, http.MethodGet, "/me", memberCookie, nil, http.StatusOK, nil)

	mustCall(testContext, testServer.URL, http.MethodPost, "/spaces/"+created.ID+"/members", ownerCookie, map[string]any{"email": "member@example.com", "role": "editor"}, http.StatusOK, &notice)
	if !notice.OK() {
		testContext.Fatalf("expected share to succeed, got %#v", notice)
	}

	var memberSpaces stores.SpacesState
	mustCall(testContext, testServer.URL, http.MethodGet, "/spaces", memberCookie, nil, http.StatusOK, &memberSpaces)
	if len(memberSpaces.Spaces) != 1 || memberSpaces.MembershipRoles[created.ID] != "editor" {
		testContext.Fatalf("expected shared space with editor role, got %#v", memberSpaces)
	}
	if memberSpaces.Spaces[0].MemberCount != 1 {
		testContext.Fatalf("expected one collaborator, got %d", memberSpaces.Spaces[0].MemberCount)
	}

	var box struct {
		ID string `json:"id"`
	}
	mustCall(testContext, testServer.URL, http.MethodPost, "/spaces/"+created.ID+"/boxes", memberCookie, map[string]any{"name": "Tools"}, http.StatusCreated, &box)

	var ownerBoxes stores.BoxesState
	mustCall(testContext, testServer.URL, http.MethodGet, "/spaces/"+created.ID+"/boxes", ownerCookie, nil, http.StatusOK, &ownerBoxes)
	if len(ownerBoxes.Boxes) != 1 || ownerBoxes.Boxes[0].ID != box.ID {
		testContext.Fatalf("owner should see the member's box, got %#v", ownerBoxes.Boxes)
	}
	if ownerBoxes.Boxes[0].CreatedAt == nil || ownerBoxes.Boxes[0].ModifiedAt == nil || *ownerBoxes.Boxes[0].CreatedAt != *ownerBoxes.Boxes[0].ModifiedAt {
		testContext.Fatalf("expected matching timestamps on a new box, got %#v", ownerBoxes.Boxes[0])
	}

	mustCall(testContext, testServer.URL, http.MethodDelete, "/spaces/"+created.ID, memberCookie, nil, http.StatusForbidden, nil)
	mustCall(testContext, testServer.URL, http.MethodDelete, "/spaces/"+created.ID, ownerCookie, nil, http.StatusNoContent, nil)

	mustCall(testContext, testServer.URL, http.MethodGet, "/spaces", memberCookie, nil, http.StatusOK, &memberSpaces)
	if len(memberSpaces.Spaces) != 0 {
		testContext.Fatalf("deleted space must disappear for the member, got %#v", memberSpaces.Spaces)
	}
}

func mustCall(testContext *testing.T, baseURL, method, path string, cookie *http.Cookie, body any, wantStatus int, out any) {
	testContext.Helper()
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	request, err := http.NewRequest(method, baseURL+path, bytes.NewReader(payload))
	if err != nil {
		testContext.Fatalf("failed to build %s %s: %v", method, path, err)
	}
	request.AddCookie(cookie)
	if body != nil {
		request.Header.Set("Content-Type", jsonContentType)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()
	if response.StatusCode != wantStatus {
		testContext.Fatalf("%s %s: unexpected status %d, want %d", method, path, response.StatusCode, wantStatus)
	}
	if out != nil {
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			testContext.Fatalf("%s %s: failed to decode response: %v", method, path, err)
		}
	}
}

func mustMintSessionToken(testContext *testing.T, userID, email, fullName string, now time.Time) string {
	testContext.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.AccessClaims{
		Email:        email,
		Role:         "authenticated",
		UserMetadata: map[string]any{"full_name": fullName},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{auth.DefaultAudience},
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(sessionSigningSecret))
	if err != nil {
		testContext.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
