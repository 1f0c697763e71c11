package storage

import (
	"fmt"

	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
)

const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

// Options storage tanlash parametrlari
type Options struct {
	Driver     string
	SQLitePath string
	BadgerPath string
	StorageKey string
}

// Open returns the chat repository for the configured driver.
func Open(opts Options) (repository.ChatRepository, error) {
	switch opts.Driver {
	case DriverMemory:
		return NewMemoryChatRepository(), nil
	case DriverSQLite:
		return NewSQLiteChatRepository(opts.SQLitePath)
	case DriverBadger, "":
		return NewBadgerChatRepository(opts.BadgerPath, opts.StorageKey)
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownDriver, opts.Driver)
	}
}
