package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/cohort/internal/model"
)

// marshalVars converts a vars map to canonical JSON TEXT for storage.
// Canonical form keeps stored rows byte-stable across runs.
func marshalVars(vars map[string]any) (string, error) {
	if len(vars) == 0 {
		return "{}", nil
	}
	data, err := model.MarshalCanonical(vars)
	if err != nil {
		return "", fmt.Errorf("marshal vars: %w", err)
	}
	return string(data), nil
}

// unmarshalVars parses JSON TEXT into a vars map. Numbers decode as
// json.Number so large integers survive the round trip.
func unmarshalVars(data string) (map[string]any, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	return decodeObject(data)
}

func marshalConfig(config map[string]any) (string, error) {
	data, err := model.MarshalCanonical(config)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

func unmarshalConfig(data string) (map[string]any, error) {
	cfg, err := decodeObject(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func decodeObject(data string) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode json object: %w", err)
	}
	return obj, nil
}

// Times are stored as Unix nanoseconds in UTC.
func timeToNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixNano(), Valid: true}
}

func nullToTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}
