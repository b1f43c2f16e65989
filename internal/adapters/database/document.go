package database

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/zatekoja/recursiadx/pkg/errors"
)

// encodeDocument marshals an aggregate for a JSONB column
func encodeDocument(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.NewInternalError("failed to encode document", err)
	}
	return string(data), nil
}

func decodeDocument(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewInternalError("failed to decode document", err)
	}
	return nil
}

// lookupColumn picks the storage id column for UUIDs and the human id
// column otherwise
func lookupColumn(id, humanColumn string) string {
	if _, err := uuid.Parse(id); err == nil {
		return "id"
	}
	return humanColumn
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive substring pattern for ILIKE
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(term)) + "%"
}
