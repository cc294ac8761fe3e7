package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"community-hub/contract"
	"community-hub/domain"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore persists relayed messages in BadgerDB. It borrows the DB
// handle; the caller owns open and close.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerStore(db *badger.DB, log *slog.Logger) contract.MessageStore {
	return &BadgerStore{db: db, log: log}
}

// messageKey formats the storage key as "msg:{community}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func messageKey(m domain.Message) []byte {
	return fmt.Appendf(nil, "msg:%s:%019d:%s", m.CommunityID, m.CreatedAt.UnixNano(), m.ID)
}

func (s *BadgerStore) Append(_ context.Context, msg domain.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message %s: %w", msg.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg), value)
	})
}

// History retrieves up to limit messages of a community, newest first.
// Thanks to the padded timestamp in the key, a reverse prefix scan walks
// messages in anti-chronological order without sorting.
//
// A zero before means "from the latest message". Otherwise only messages
// strictly older than before are returned: the seek key carries the padded
// timestamp without the uuid part, so every real key written at that same
// nanosecond sorts after it and falls out of the reverse scan.
func (s *BadgerStore) History(_ context.Context, id domain.CommunityID, limit int, before time.Time) ([]domain.Message, error) {
	var byteMessages [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := fmt.Appendf(nil, "msg:%s:", id)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if before.IsZero() {
			// Position past the newest possible key, then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		} else {
			seekKey = fmt.Appendf(nil, "msg:%s:%019d", id, before.UnixNano())
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(byteMessages) == limit {
				s.log.Debug(fmt.Sprintf("Maximum of %d messages reached", limit))
				break
			}
			// ValueCopy because the slice must outlive the transaction
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			byteMessages = append(byteMessages, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(byteMessages))
	for _, b := range byteMessages {
		var msg domain.Message
		if err := json.Unmarshal(b, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}
