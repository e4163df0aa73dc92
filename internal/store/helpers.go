package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/HealthCoach/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func marshalProfile(p models.Profile) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}
	return string(data), nil
}

func scanReceipts(rows *sql.Rows) ([]models.Receipt, error) {
	defer rows.Close()
	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	return receipts, nil
}

func scanResponses(rows *sql.Rows) ([]models.Response, error) {
	defer rows.Close()
	var responses []models.Response
	for rows.Next() {
		var r models.Response
		var messageID sql.NullString
		if err := rows.Scan(&r.From, &r.Body, &r.Time, &messageID); err != nil {
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		r.MessageID = messageID.String
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response rows: %w", err)
	}
	return responses, nil
}

func scanAssessments(rows *sql.Rows) ([]models.Assessment, error) {
	defer rows.Close()
	var out []models.Assessment
	for rows.Next() {
		var a models.Assessment
		var profileJSON string
		if err := rows.Scan(&a.ID, &a.UserID, &profileJSON, &a.Advice, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assessment row: %w", err)
		}
		if err := json.Unmarshal([]byte(profileJSON), &a.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode profile of assessment %s: %w", a.ID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assessment rows: %w", err)
	}
	return out, nil
}
