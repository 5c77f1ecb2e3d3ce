package supabase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/storage-manager/internal/remote"
)

const messageNoVisibleRow = "no visible row matched; permission denied or not found"

func decodeError(status int, payload []byte) *remote.Error {
	var failure remote.Error
	if err := json.Unmarshal(payload, &failure); err == nil && failure.Message != "" {
		failure.Status = status
		return &failure
	}
	message := strings.TrimSpace(string(payload))
	if message == "" {
		message = http.StatusText(status)
	}
	return &remote.Error{
		Message: fmt.Sprintf("request failed with status %d: %s", status, message),
		Status:  status,
	}
}

func noVisibleRow() *remote.Error {
	return &remote.Error{Message: messageNoVisibleRow, Code: remote.CodeNoRows, Status: http.StatusNotFound}
}
