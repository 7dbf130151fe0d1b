package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/campusnet/backend/internal/models"
)

type cachedUser struct {
	user    models.User
	expires time.Time
}

// CachingUserRepository serves FindByID from a TTL cache in front of another UserRepository.
// Writes go straight through and evict the cached entry.
type CachingUserRepository struct {
	base UserRepository
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cachedUser

	NowFunc func() time.Time
}

// NewCachingUserRepository caches profile lookups for ttl, defaulting to one minute.
func NewCachingUserRepository(base UserRepository, ttl time.Duration) *CachingUserRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingUserRepository{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cachedUser),
	}
}

func (c *CachingUserRepository) now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

func (c *CachingUserRepository) Create(ctx context.Context, user models.User) error {
	return c.base.Create(ctx, user)
}

// FindByEmail is not cached; it backs login, which must see password changes immediately.
func (c *CachingUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return c.base.FindByEmail(ctx, email)
}

func (c *CachingUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.items[id]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.user, nil
	}

	user, err := c.base.FindByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	c.mu.Lock()
	c.items[id] = cachedUser{user: user, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	return user, nil
}

func (c *CachingUserRepository) Update(ctx context.Context, user models.User) error {
	err := c.base.Update(ctx, user)
	c.mu.Lock()
	delete(c.items, user.ID)
	c.mu.Unlock()
	return err
}
