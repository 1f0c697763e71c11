package repository

import (
	"context"
	"io"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
)

// HistoryExporter suhbatni fayl formatiga yozish
type HistoryExporter interface {
	Export(ctx context.Context, w io.Writer, conv entity.Conversation) error
	// Import reads messages written by Export back for conversationID.
	Import(ctx context.Context, r io.Reader, conversationID string) ([]entity.Message, error)
	ContentType() string
	Extension() string
}
