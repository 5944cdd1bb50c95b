package vidalia

import (
	"context"
	"sync"
	"time"

	"github.com/security-onion-solutions/shallot/internal/so"
)

// UserDirectory lists the manager accounts used to resolve case owners
// and comment authors.
type UserDirectory interface {
	Users(ctx context.Context) ([]so.User, error)
}

// userCache holds the ID-to-name roster with a TTL. Lookups after a
// failed refresh fall back to the stale entry, then the raw ID, so a
// flapping manager degrades names instead of pages.
type userCache struct {
	dir UserDirectory
	ttl time.Duration

	mu        sync.Mutex
	names     map[string]string
	fetchedAt time.Time
}

func newUserCache(dir UserDirectory, ttl time.Duration) *userCache {
	return &userCache{
		dir:   dir,
		ttl:   ttl,
		names: make(map[string]string),
	}
}

// Name resolves a manager user ID to a display name. IDs absent from a
// fresh roster come back as "Unknown User".
func (c *userCache) Name(ctx context.Context, id string) string {
	if id == "" {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.names) == 0 || time.Since(c.fetchedAt) > c.ttl {
		users, err := c.dir.Users(ctx)
		if err != nil {
			if name, ok := c.names[id]; ok {
				return name
			}
			return id
		}
		fresh := make(map[string]string, len(users))
		for _, u := range users {
			name := u.DisplayName()
			if name == "" {
				name = u.ID
			}
			fresh[u.ID] = name
		}
		c.names = fresh
		c.fetchedAt = time.Now()
	}

	if name, ok := c.names[id]; ok {
		return name
	}
	return "Unknown User"
}
