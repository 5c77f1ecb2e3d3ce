package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/auth"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/database"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/sqlbackend"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/users"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/workspace"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	testSigningSecret = "test-signing-secret"
	testIssuer        = "storage-manager-test"
	testCookieName    = "sm_session"
)

var (
	ownerIdentity  = inventory.Identity{ID: "owner", Email: "owner@example.com", UserMetadata: map[string]any{"full_name": "Olive Owner"}}
	editorIdentity = inventory.Identity{ID: "editor", Email: "editor@example.com"}
	viewerIdentity = inventory.Identity{ID: "viewer", Email: "viewer@example.com"}
)

type testStack struct {
	handler  http.Handler
	issuer   *auth.TokenIssuer
	users    *users.Service
	realtime *RealtimeDispatcher
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "server.db"), sqlbackend.Schema(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build users service: %v", err)
	}
	backend, err := sqlbackend.New(sqlbackend.Config{Database: db, Users: userService})
	if err != nil {
		t.Fatalf("failed to build backend: %v", err)
	}
	realtime := NewRealtimeDispatcher()
	registry, err := workspace.NewRegistry(workspace.RegistryConfig{
		Sources: workspace.EmbeddedSources(backend),
		OnEvent: realtime.PublishStoreEvent,
	})
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		CookieName:    testCookieName,
	})
	if err != nil {
		t.Fatalf("failed to build validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		TokenTTL:      time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build issuer: %v", err)
	}
	handler, err := NewHTTPHandler(Dependencies{
		Validator:         validator,
		Workspaces:        registry,
		Profiles:          userService,
		Realtime:          realtime,
		HeartbeatInterval: 50 * time.Millisecond,
		Logger:            zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	for _, identity := range []inventory.Identity{ownerIdentity, editorIdentity, viewerIdentity} {
		if _, err := userService.Record(identity); err != nil {
			t.Fatalf("failed to record %s: %v", identity.ID, err)
		}
	}
	return testStack{handler: handler, issuer: issuer, users: userService, realtime: realtime}
}

func (s testStack) token(t *testing.T, identity inventory.Identity) string {
	t.Helper()
	token, _, err := s.issuer.IssueAccessToken(context.Background(), identity)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (s testStack) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(recorder.Body.Bytes(), &value); err != nil {
		t.Fatalf("failed to decode %q: %v", recorder.Body.String(), err)
	}
	return value
}
