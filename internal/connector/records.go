package connector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/timmy/sissync/internal/domain"
	"gorm.io/datatypes"
)

// BuildRecords converts raw API rows into upsertable records. Every row must
// carry an "id" field, string or numeric.
func BuildRecords(req StepRequest, rows []json.RawMessage) ([]domain.SyncedRecord, error) {
	now := time.Now()
	records := make([]domain.SyncedRecord, 0, len(rows))
	for i, row := range rows {
		id, err := externalID(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", req.Endpoint, i, err)
		}
		records = append(records, domain.SyncedRecord{
			Source:           req.System.Source,
			ExternalSchoolID: req.System.ExternalSchoolID,
			Endpoint:         req.Endpoint,
			ExternalID:       id,
			AcademicYear:     req.AcademicYear,
			Payload:          datatypes.JSON(row),
			LastRunID:        req.RunID,
			SyncedAt:         now,
		})
	}
	return records, nil
}

func externalID(row json.RawMessage) (string, error) {
	var probe struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(row, &probe); err != nil {
		return "", fmt.Errorf("malformed row: %w", err)
	}
	raw := bytes.TrimSpace(probe.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("row has no id")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("malformed id: %w", err)
		}
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("row has no id")
		}
		return s, nil
	}
	return string(raw), nil
}
