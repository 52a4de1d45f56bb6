package database

import (
	"groupsync/internal/database/sqlc"
	"groupsync/internal/gs"
)

func toClient(row sqlc.Client) *gs.Client {
	return &gs.Client{
		ID:                row.ID,
		HostName:          row.HostName,
		MinPollIntervalMs: row.MinPollIntervalMs,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
}

func toGroup(row sqlc.ServerWatchGroup) *gs.ServerWatchGroup {
	return &gs.ServerWatchGroup{
		ID:        row.ID,
		Name:      row.Name,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toMapping(row sqlc.ClientWatchGroup) *gs.ClientWatchGroup {
	return &gs.ClientWatchGroup{
		ID:                 row.ID,
		ClientID:           row.ClientID,
		LocalPath:          row.LocalPath,
		ExcludeDotDirs:     row.ExcludeDotDirs,
		ServerWatchGroupID: row.ServerWatchGroupID,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toEvent(row sqlc.FileEvent) gs.FileEvent {
	return gs.FileEvent{
		ID:        row.ID,
		Sequence:  row.Sequence,
		GroupID:   row.ServerWatchGroupID,
		ClientID:  row.ClientID,
		Path:      row.RelativePath,
		Size:      row.Size,
		UTCMillis: row.UtcMillis,
		Kind:      gs.EventKind(row.EventType),
		Checksum:  row.ContentChecksum.String,
		CreatedAt: row.CreatedAt,
	}
}

func toEvents(rows []sqlc.FileEvent) []gs.FileEvent {
	events := make([]gs.FileEvent, len(rows))
	for i, row := range rows {
		events[i] = toEvent(row)
	}
	return events
}
