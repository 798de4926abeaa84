// internal/pkg/pending/store.go
package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	domain "subwatch-service/internal/domain/subscription"
	xerrors "subwatch-service/internal/pkg/errors"
)

const defaultTTL = 10 * time.Minute

// Action is a mutation awaiting the user's inline-keyboard confirmation.
// Nothing is written to the repository until the user confirms.
type Action struct {
	Kind       string              `json:"kind"` // "add" or "delete"
	Create     *domain.CreateInput `json:"create,omitempty"`
	DeleteName string              `json:"delete_name,omitempty"`
}

// Store keeps pending actions in Redis under a short TTL, keyed by owner
// and a one-time token carried in the callback data. Taking an action
// consumes it, so a double-tapped button commits once.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, ttl: defaultTTL}
}

func key(ownerID int64, token string) string {
	return fmt.Sprintf("pending:%d:%s", ownerID, token)
}

// Save stores the action and returns the confirmation token.
func (s *Store) Save(ctx context.Context, ownerID int64, action *Action) (string, error) {
	raw, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("failed to marshal pending action: %w", err)
	}
	token := ulid.Make().String()
	if err := s.client.Set(ctx, key(ownerID, token), raw, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store pending action: %w", err)
	}
	return token, nil
}

// Take atomically fetches and deletes the action. A missing token means
// it expired or was already consumed.
func (s *Store) Take(ctx context.Context, ownerID int64, token string) (*Action, error) {
	raw, err := s.client.GetDel(ctx, key(ownerID, token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: pending action expired or already handled", xerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take pending action: %w", err)
	}
	var action Action
	if err := json.Unmarshal(raw, &action); err != nil {
		return nil, fmt.Errorf("failed to decode pending action: %w", err)
	}
	return &action, nil
}

// Drop discards a pending action, e.g. on an explicit cancel.
func (s *Store) Drop(ctx context.Context, ownerID int64, token string) {
	s.client.Del(ctx, key(ownerID, token))
}
