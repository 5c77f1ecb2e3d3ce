package supabase

import (
	"context"
	"net/http"
	"net/url"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/inventory"
	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
)

const (
	tableSpaces       = "/spaces"
	tableSpaceMembers = "/space_members"
	tableBoxes        = "/boxes"
	tableItems        = "/items"

	rpcSpaceMembers   = "/rpc/get_space_members"
	rpcAddSpaceMember = "/rpc/add_space_member"
)

// TokenSource yields the access token to send with each request.
type TokenSource interface {
	Token() string
}

type staticToken string

func (t staticToken) Token() string {
	return string(t)
}

// Session is a remote.DataSource acting as the holder of the current access token.
type Session struct {
	client *Client
	tokens TokenSource
}

var _ remote.DataSource = (*Session)(nil)

func eq(column, value string) url.Values {
	return url.Values{column: []string{"eq." + value}}
}

func selectAll(filters url.Values) url.Values {
	query := url.Values{"select": []string{"*"}}
	for key, values := range filters {
		query[key] = values
	}
	return query
}

// ListSpaces returns every space row the caller can see.
func (s *Session) ListSpaces(ctx context.Context) ([]inventory.SpaceRow, error) {
	query := selectAll(nil)
	query.Set("order", "name.asc")
	var rows []inventory.SpaceRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodGet, tableSpaces, query, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertSpace inserts row and returns the stored representation.
func (s *Session) InsertSpace(ctx context.Context, row inventory.SpaceRow) ([]inventory.SpaceRow, error) {
	var rows []inventory.SpaceRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodPost, tableSpaces, nil, []inventory.SpaceRow{row}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateSpace patches the row with row.ID.
func (s *Session) UpdateSpace(ctx context.Context, row inventory.SpaceRow) ([]inventory.SpaceRow, error) {
	id := row.ID
	row.ID = ""
	var rows []inventory.SpaceRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodPatch, tableSpaces, eq("id", id), row, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteSpace deletes the space with spaceID.
func (s *Session) DeleteSpace(ctx context.Context, spaceID string) error {
	var rows []inventory.SpaceRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodDelete, tableSpaces, eq("id", spaceID), nil, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return noVisibleRow()
	}
	return nil
}

// ListMemberships returns the membership rows visible to the caller.
func (s *Session) ListMemberships(ctx context.Context) ([]inventory.MembershipRow, error) {
	query := url.Values{"select": []string{"space_id,user_id,role,created_at"}}
	var rows []inventory.MembershipRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodGet, tableSpaceMembers, query, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SpaceMembers calls get_space_members for spaceID.
func (s *Session) SpaceMembers(ctx context.Context, spaceID string) ([]inventory.MemberRow, error) {
	var rows []inventory.MemberRow
	body := map[string]string{"p_space_id": spaceID}
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodPost, rpcSpaceMembers, nil, body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// AddSpaceMember calls add_space_member and reports the procedure's boolean result.
func (s *Session) AddSpaceMember(ctx context.Context, spaceID, email, role string) (bool, error) {
	body := map[string]string{
		"p_member_role": role,
		"p_space_id":    spaceID,
		"p_user_email":  email,
	}
	var added bool
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodPost, rpcAddSpaceMember, nil, body, &added); err != nil {
		return false, err
	}
	return added, nil
}

// ListBoxes returns the boxes of spaceID.
func (s *Session) ListBoxes(ctx context.Context, spaceID string) ([]inventory.BoxRow, error) {
	query := selectAll(eq("space_id", spaceID))
	query.Set("order", "name.asc")
	var rows []inventory.BoxRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodGet, tableBoxes, query, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertBox inserts row and returns the stored representation.
func (s *Session) InsertBox(ctx context.Context, row inventory.BoxRow) ([]inventory.BoxRow, error) {
	var rows []inventory.BoxRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodPost, tableBoxes, nil, []inventory.BoxRow{row}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateBox patches the row with row.ID.
func (s *Session) UpdateBox(ctx context.Context, row inventory.BoxRow) ([]inventory.BoxRow, error) {
	id := row.ID
	row.ID = ""
	var rows []inventory.BoxRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodPatch, tableBoxes, eq("id", id), row, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteBox deletes the box with boxID and returns the deleted row.
func (s *Session) DeleteBox(ctx context.Context, boxID string) ([]inventory.BoxRow, error) {
	var rows []inventory.BoxRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodDelete, tableBoxes, eq("id", boxID), nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, noVisibleRow()
	}
	return rows, nil
}

// ListItems returns the items of boxID.
func (s *Session) ListItems(ctx context.Context, boxID string) ([]inventory.ItemRow, error) {
	query := selectAll(eq("box_id", boxID))
	query.Set("order", "name.asc")
	var rows []inventory.ItemRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodGet, tableItems, query, nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// InsertItem inserts row and returns the stored representation.
func (s *Session) InsertItem(ctx context.Context, row inventory.ItemRow) ([]inventory.ItemRow, error) {
	var rows []inventory.ItemRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodPost, tableItems, nil, []inventory.ItemRow{row}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateItem patches the row with row.ID.
func (s *Session) UpdateItem(ctx context.Context, row inventory.ItemRow) ([]inventory.ItemRow, error) {
	id := row.ID
	row.ID = ""
	var rows []inventory.ItemRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodPatch, tableItems, eq("id", id), row, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteItem deletes the item with itemID and returns the deleted row.
func (s *Session) DeleteItem(ctx context.Context, itemID string) ([]inventory.ItemRow, error) {
	var rows []inventory.ItemRow
	if err := s.client.do(ctx, s.tokens.Token(), http.MethodDelete, tableItems, eq("id", itemID), nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, noVisibleRow()
	}
	return rows, nil
}
