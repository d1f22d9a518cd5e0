package internal

import (
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"storyfront/internal/story"
)

type (
	ControllerFactory func(id string) (*story.Controller, error)

	// Registry keeps one controller per browser session. Entries expire after ttl
	// without use; an expired controller is reset so its timers and listeners stop.
	Registry struct {
		mu      sync.Mutex
		cache   *cache.Cache
		factory ControllerFactory
	}
)

func NewRegistry(ttl time.Duration, factory ControllerFactory) *Registry {
	expiration, cleanup := ttl, ttl
	if ttl <= 0 {
		expiration, cleanup = cache.NoExpiration, 0
	}

	c := cache.New(expiration, cleanup)
	c.OnEvicted(func(id string, value any) {
		if ctl, ok := value.(*story.Controller); ok {
			ctl.Reset()
		}
		slog.Info("Session controller evicted", slog.String("session", id))
	})

	return &Registry{
		cache:   c,
		factory: factory,
	}
}

// Get returns the controller for id, creating it on first use, and extends its lifetime.
func (r *Registry) Get(id string) (*story.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if value, found := r.cache.Get(id); found {
		ctl := value.(*story.Controller)
		r.cache.SetDefault(id, ctl)
		return ctl, nil
	}

	ctl, err := r.factory(id)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(id, ctl)
	return ctl, nil
}

func (r *Registry) Len() int {
	return r.cache.ItemCount()
}
