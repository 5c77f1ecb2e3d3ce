package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
)

type recordedRequest struct {
	method string
	path   string
	query  map[string][]string
	header http.Header
	body   string
}

func newTestServer(t *testing.T, status int, response string) (*Client, *[]recordedRequest) {
	t.Helper()
	var recorded []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		payload, _ := io.ReadAll(request.Body)
		recorded = append(recorded, recordedRequest{
			method: request.Method,
			path:   request.URL.Path,
			query:  request.URL.Query(),
			header: request.Header.Clone(),
			body:   string(payload),
		})
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(status)
		_, _ = writer.Write([]byte(response))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(Config{URL: server.URL + "/", AnonKey: "anon-key", HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client, &recorded
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{AnonKey: "k"}); !errors.Is(err, ErrMissingURL) {
		t.Fatalf("expected missing url, got %v", err)
	}
	if _, err := NewClient(Config{URL: "project.supabase.co"}); !errors.Is(err, ErrMissingAnonKey) {
		t.Fatalf("expected missing anon key, got %v", err)
	}
	client, err := NewClient(Config{URL: "project.supabase.co/", AnonKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.BaseURL() != "https://project.supabase.co" {
		t.Fatalf("unexpected base url %q", client.BaseURL())
	}
}

func TestListSpacesSendsCallerToken(t *testing.T) {
	client, recorded := newTestServer(t, http.StatusOK, `[{"id":"s1","name":"Garage","location":null,"owner_id":"u1","thumbnail_url":null,"created_at":"2025-01-01T00:00:00.000Z","modified_at":"2025-01-01T00:00:00.000Z"}]`)

	rows, err := client.ForToken("caller-token").ListSpaces(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "s1" || rows[0].Location != nil {
		t.Fatalf("unexpected rows: %#v", rows)
	}

	request := (*recorded)[0]
	if request.method != http.MethodGet || request.path != "/rest/v1/spaces" {
		t.Fatalf("unexpected request %s %s", request.method, request.path)
	}
	if request.header.Get("apikey") != "anon-key" || request.header.Get("Authorization") != "Bearer caller-token" {
		t.Fatalf("unexpected auth headers: %v", request.header)
	}
	if request.query["select"][0] != "*" {
		t.Fatalf("expected select=*, got %v", request.query)
	}
}

func TestAnonymousRequestsUseAnonKey(t *testing.T) {
	client, recorded := newTestServer(t, http.StatusOK, `[]`)

	if _, err := client.ForToken("").ListBoxes(context.Background(), "s1"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	request := (*recorded)[0]
	if request.header.Get("Authorization") != "Bearer anon-key" {
		t.Fatalf("expected anon bearer, got %q", request.header.Get("Authorization"))
	}
	if request.query["space_id"][0] != "eq.s1" {
		t.Fatalf("expected space filter, got %v", request.query)
	}
}

func TestInsertBoxWritesExplicitNulls(t *testing.T) {
	client, recorded := newTestServer(t, http.StatusCreated, `[{"id":"b1","space_id":"s1","name":"Tools","location":null,"thumbnail_url":null,"content":null}]`)

	rows, err := client.ForToken("t").InsertBox(context.Background(), inventory.BoxRow{SpaceID: "s1", Name: "Tools"})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "b1" {
		t.Fatalf("unexpected rows: %#v", rows)
	}

	request := (*recorded)[0]
	if request.header.Get("Prefer") != "return=representation" {
		t.Fatalf("expected representation preference")
	}
	var body []map[string]any
	if err := json.Unmarshal([]byte(request.body), &body); err != nil {
		t.Fatalf("request body is not a row array: %v", err)
	}
	value, present := body[0]["content"]
	if !present || value != nil {
		t.Fatalf("expected explicit null content, got %#v", body[0])
	}
	if _, present := body[0]["id"]; present {
		t.Fatalf("id must be assigned by the backend")
	}
}

func TestUpdateSpaceFiltersById(t *testing.T) {
	client, recorded := newTestServer(t, http.StatusOK, `[{"id":"s1","name":"Workshop","owner_id":"u1"}]`)

	rows, err := client.ForToken("t").UpdateSpace(context.Background(), inventory.SpaceRow{ID: "s1", Name: "Workshop", OwnerID: "u1"})
	if err != nil || len(rows) != 1 {
		t.Fatalf("update failed: %v %#v", err, rows)
	}
	request := (*recorded)[0]
	if request.method != http.MethodPatch || request.query["id"][0] != "eq.s1" {
		t.Fatalf("unexpected request: %#v", request)
	}
}

func TestDeleteWithoutVisibleRowFails(t *testing.T) {
	client, _ := newTestServer(t, http.StatusOK, `[]`)

	err := client.ForToken("t").DeleteSpace(context.Background(), "s1")
	if remote.Code(err) != remote.CodeNoRows {
		t.Fatalf("expected no-rows error, got %v", err)
	}
}

func TestPostgrestErrorIsDecoded(t *testing.T) {
	client, _ := newTestServer(t, http.StatusForbidden, `{"code":"42501","message":"permission denied for table spaces","details":null,"hint":null}`)

	_, err := client.ForToken("t").InsertSpace(context.Background(), inventory.SpaceRow{Name: "Garage", OwnerID: "u1"})
	var remoteErr *remote.Error
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected remote error, got %v", err)
	}
	if remoteErr.Code != remote.CodeInsufficientPrivilege || remoteErr.Status != http.StatusForbidden || remoteErr.Message != "permission denied for table spaces" {
		t.Fatalf("unexpected error: %#v", remoteErr)
	}
}

func TestNonJSONErrorIsWrapped(t *testing.T) {
	client, _ := newTestServer(t, http.StatusBadGateway, `upstream unavailable`)

	_, err := client.ForToken("t").ListItems(context.Background(), "b1")
	if remote.Message(err) != "request failed with status 502: upstream unavailable" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRPCCalls(t *testing.T) {
	client, recorded := newTestServer(t, http.StatusOK, `true`)

	added, err := client.ForToken("t").AddSpaceMember(context.Background(), "s1", "friend@example.com", "editor")
	if err != nil || !added {
		t.Fatalf("add member failed: %v %v", added, err)
	}
	request := (*recorded)[0]
	if request.method != http.MethodPost || request.path != "/rest/v1/rpc/add_space_member" {
		t.Fatalf("unexpected request %s %s", request.method, request.path)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(request.body), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["p_space_id"] != "s1" || body["p_user_email"] != "friend@example.com" || body["p_member_role"] != "editor" {
		t.Fatalf("unexpected rpc arguments: %#v", body)
	}
}

func TestSpaceMembersRPC(t *testing.T) {
	client, recorded := newTestServer(t, http.StatusOK, `[{"user_id":"u2","role":"viewer","display_name":"Zoe","avatar_url":null}]`)

	rows, err := client.ForToken("t").SpaceMembers(context.Background(), "s1")
	if err != nil || len(rows) != 1 || *rows[0].Role != "viewer" {
		t.Fatalf("unexpected result: %#v %v", rows, err)
	}
	if (*recorded)[0].path != "/rest/v1/rpc/get_space_members" {
		t.Fatalf("unexpected path %s", (*recorded)[0].path)
	}
}
