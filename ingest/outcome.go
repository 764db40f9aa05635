package ingest

import (
	"errors"
	"time"
)

// ErrCancelled is returned when a cycle stops because its context was cancelled.
var ErrCancelled = errors.New("ingest cancelled")

// Outcome summarises one ingest cycle. It is what the health monitor stores.
type Outcome struct {
	Success        bool      `json:"success"`
	ItemsProcessed int       `json:"itemsProcessed"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	CompletedAt    time.Time `json:"completedAt"`
	Err            error     `json:"-"`
}

func succeeded(items int) Outcome {
	return Outcome{Success: true, ItemsProcessed: items, CompletedAt: time.Now()}
}

func failed(items int, err error) Outcome {
	return Outcome{
		Success:        false,
		ItemsProcessed: items,
		ErrorMessage:   err.Error(),
		CompletedAt:    time.Now(),
		Err:            err,
	}
}
