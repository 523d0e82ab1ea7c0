package history

import (
	"context"
	"time"
)

// TurnRecord stores one dispatcher or caller turn of a training call.
type TurnRecord struct {
	ID        string    `json:"id"`
	CallID    string    `json:"call_id"`
	Seq       int       `json:"seq"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists call transcripts for post-call review.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	Transcript(ctx context.Context, callID string) ([]TurnRecord, error)
	DeleteCall(ctx context.Context, callID string) error
	Close() error
}
