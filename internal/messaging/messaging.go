// Package messaging stores direct-message conversations between two users.
package messaging

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/kv"
)

// Validation errors.
var (
	ErrEmptyText   = errors.New("message text is empty")
	ErrSelfMessage = errors.New("cannot message yourself")
	ErrTooLong     = errors.New("message too long")
)

// KeyPrefix prefixes conversation logs in the shared store.
const KeyPrefix = "chat:"

// separator joins the two user ids of a conversation key.
const separator = "--"

// ConversationKey returns the order-independent key of the a/b conversation.
func ConversationKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + separator + ids[1]
}

// Participants splits a conversation key.
func Participants(conversation string) (a, b string, ok bool) {
	return strings.Cut(conversation, separator)
}

// StorageKey is the store key of a conversation.
func StorageKey(conversation string) string { return KeyPrefix + conversation }

// Store appends to and reads conversation logs.
type Store struct {
	KV      kv.Store
	MaxText int

	now func() time.Time
}

// New wraps s. MaxText of zero disables the length check.
func New(s kv.Store, maxText int) *Store {
	return &Store{KV: s, MaxText: maxText, now: func() time.Time { return time.Now().UTC() }}
}

// Send appends a message from senderID to the conversation with recipientID.
func (s *Store) Send(ctx context.Context, senderID, recipientID, text, origin string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyText
	}
	if senderID == recipientID {
		return domain.ChatMessage{}, ErrSelfMessage
	}
	if s.MaxText > 0 && len([]rune(text)) > s.MaxText {
		return domain.ChatMessage{}, ErrTooLong
	}
	key := StorageKey(ConversationKey(senderID, recipientID))
	var log []domain.ChatMessage
	if _, err := kv.LoadJSON(ctx, s.KV, key, &log); err != nil {
		return domain.ChatMessage{}, err
	}
	msg := domain.ChatMessage{SenderID: senderID, Text: text, SentAt: s.now()}
	log = append(log, msg)
	if err := kv.SaveJSON(ctx, s.KV, key, log, origin); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// Get returns the full conversation between a and b, oldest first.
func (s *Store) Get(ctx context.Context, a, b string) ([]domain.ChatMessage, error) {
	var log []domain.ChatMessage
	if _, err := kv.LoadJSON(ctx, s.KV, StorageKey(ConversationKey(a, b)), &log); err != nil {
		return nil, err
	}
	if log == nil {
		log = []domain.ChatMessage{}
	}
	return log, nil
}

// Involving reports whether a change to key concerns userID's conversations,
// returning the other participant.
func Involving(key, userID string) (other string, ok bool) {
	conv, found := strings.CutPrefix(key, KeyPrefix)
	if !found {
		return "", false
	}
	a, b, ok := Participants(conv)
	switch {
	case !ok:
		return "", false
	case a == userID:
		return b, true
	case b == userID:
		return a, true
	}
	return "", false
}
