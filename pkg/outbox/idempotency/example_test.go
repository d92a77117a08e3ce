package idempotency

import (
	"context"
	"fmt"
	"time"
)

type exampleStore struct {
	seen map[string]bool
}

func (s *exampleStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.seen[key] {
		return false, nil
	}
	s.seen[key] = true
	return true, nil
}

func (s *exampleStore) IdempotencyKey(scope, id string) string {
	return "lc:idempotency:" + scope + ":" + id
}

func (s *exampleStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.seen, key)
	}
	return nil
}

func ExampleManager_CheckAndMark() {
	ctx := context.Background()
	manager, _ := NewManager(&exampleStore{seen: map[string]bool{}}, 72*time.Hour)

	handle := func(paymentID string) string {
		dup, _ := manager.CheckAndMark(ctx, "payhere", paymentID)
		if dup {
			return "duplicate notification"
		}
		return "processing notification"
	}

	fmt.Println(handle("320025071278"))
	fmt.Println(handle("320025071278"))
	// Output:
	// processing notification
	// duplicate notification
}
