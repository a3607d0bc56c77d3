package history

import (
	"database/sql"
	"errors"
	"time"
)

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run        Run
		albumDir   sql.NullString
		targets    sql.NullString
		startedRaw string
		finishRaw  string
		success    int64
		cancelled  int64
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Album,
		&albumDir,
		&run.OutputDir,
		&targets,
		&startedRaw,
		&finishRaw,
		&success,
		&cancelled,
		&run.Succeeded,
		&run.Failed,
		&run.Propagated,
		&run.Aborted,
	); err != nil {
		return nil, err
	}
	run.AlbumDir = albumDir.String
	run.Targets = splitTargets(targets.String)
	run.Success = success != 0
	run.Cancelled = cancelled != 0
	if ts, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = ts
	}
	if ts, err := parseTimeString(finishRaw); err == nil {
		run.FinishedAt = ts
	}
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
