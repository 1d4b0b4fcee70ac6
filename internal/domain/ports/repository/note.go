package repository

import (
	"context"
	"time"

	"notes-ai-jobs/internal/domain/model"
)

// NoteRepository reads the saved notes the AI views are built from.
type NoteRepository interface {
	// RecentNotes returns up to limit notes, newest first. A zero since means no lower bound.
	RecentNotes(ctx context.Context, userID int64, since time.Time, limit int) ([]model.Note, error)
}
