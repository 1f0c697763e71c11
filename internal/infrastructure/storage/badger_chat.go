package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/codeneeth/neethos-chat/internal/domain/errs"
	"github.com/codeneeth/neethos-chat/internal/domain/repository"
	"github.com/dgraph-io/badger/v4"
)

// badgerChatRepository keeps each conversation as one JSON list under a single key,
// "<storageKey>:<conversationID>".
type badgerChatRepository struct {
	mu     sync.Mutex
	db     *badger.DB
	prefix string
}

// NewBadgerChatRepository opens (or creates) a badger store at path. An empty path
// opens an in-memory store.
func NewBadgerChatRepository(path, storageKey string) (repository.ChatRepository, error) {
	if storageKey == "" {
		storageKey = entity.DefaultStorageKey
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &badgerChatRepository{db: db, prefix: storageKey + ":"}, nil
}

func (b *badgerChatRepository) key(conversationID string) []byte {
	return []byte(b.prefix + conversationID)
}

// Append reads the stored list, appends and writes it back inside one transaction.
func (b *badgerChatRepository) Append(ctx context.Context, message entity.Message) error {
	if message.ConversationID == "" {
		return errs.ErrConversationRequired
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(txn *badger.Txn) error {
		history, err := readHistory(txn, b.key(message.ConversationID))
		if err != nil {
			return err
		}
		history = append(history, message)

		raw, err := json.Marshal(history)
		if err != nil {
			return err
		}
		return txn.Set(b.key(message.ConversationID), raw)
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// List suhbat tarixini olish
func (b *badgerChatRepository) List(ctx context.Context, conversationID string) ([]entity.Message, error) {
	if conversationID == "" {
		return nil, errs.ErrConversationRequired
	}

	var history []entity.Message
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		history, err = readHistory(txn, b.key(conversationID))
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// Conversations prefix bo'yicha kalitlarni yig'ish
func (b *badgerChatRepository) Conversations(ctx context.Context) ([]string, error) {
	ids := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(b.prefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, strings.TrimPrefix(string(it.Item().Key()), b.prefix))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *badgerChatRepository) Close() error {
	return b.db.Close()
}

func readHistory(txn *badger.Txn, key []byte) ([]entity.Message, error) {
	history := []entity.Message{}
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return history, nil
	}
	if err != nil {
		return nil, err
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &history)
	})
	if err != nil {
		return nil, fmt.Errorf("decode history %q: %w", key, err)
	}
	return history, nil
}
