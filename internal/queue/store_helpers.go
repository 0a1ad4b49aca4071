package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const jobColumns = "id, title, command_json, status, status_detail, prepared_inputs_json, created_at, updated_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id           int64
		title        string
		commandRaw   string
		statusStr    string
		statusDetail sql.NullString
		preparedRaw  sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&id,
		&title,
		&commandRaw,
		&statusStr,
		&statusDetail,
		&preparedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:           id,
		Title:        title,
		Status:       Status(statusStr),
		StatusDetail: statusDetail.String,
	}
	if err := json.Unmarshal([]byte(commandRaw), &job.Command); err != nil {
		return nil, fmt.Errorf("decode command for job %d: %w", id, err)
	}
	if preparedRaw.Valid && preparedRaw.String != "" {
		if err := json.Unmarshal([]byte(preparedRaw.String), &job.PreparedInputs); err != nil {
			return nil, fmt.Errorf("decode prepared inputs for job %d: %w", id, err)
		}
	}
	var err error
	if job.CreatedAt, err = parseTimeString(createdRaw); err != nil {
		return nil, fmt.Errorf("parse created_at for job %d: %w", id, err)
	}
	if job.UpdatedAt, err = parseTimeString(updatedRaw); err != nil {
		return nil, fmt.Errorf("parse updated_at for job %d: %w", id, err)
	}
	return job, nil
}

func encodePreparedInputs(paths []string) (any, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func idArgs(prefix []any, ids []int64) []any {
	args := make([]any, 0, len(prefix)+len(ids))
	args = append(args, prefix...)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
