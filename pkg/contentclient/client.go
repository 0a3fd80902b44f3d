/**
 * @description
 * Client for the authenticated business endpoints. Every call goes through
 * the request client, so bearer injection, refresh and forced logout apply
 * uniformly. Catalogue reads are cached under a shared key prefix.
 *
 * @dependencies
 * - internal/cache: response cache (memory or Redis)
 */
package contentclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/matthew-kal/SC---FRONTEND/internal/cache"
	"github.com/matthew-kal/SC---FRONTEND/internal/domain"
)

// DefaultCachePrefix namespaces every cached catalogue entry.
const DefaultCachePrefix = "assorted_"

// Caller performs authenticated JSON calls.
type Caller interface {
	SendJSON(ctx context.Context, method, endpoint string, payload, out any) error
}

// Options configure a Client. Zero values take the defaults.
type Options struct {
	Cache       cache.Cache
	CacheTTL    time.Duration
	CachePrefix string
	Logger      *slog.Logger
}

// Client wraps the content and nurse endpoints.
type Client struct {
	caller Caller
	cache  cache.Cache
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewClient creates a Client. Without a cache every read hits the backend.
func NewClient(caller Caller, opts Options) *Client {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.CachePrefix == "" {
		opts.CachePrefix = DefaultCachePrefix
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		caller: caller,
		cache:  opts.Cache,
		ttl:    opts.CacheTTL,
		prefix: opts.CachePrefix,
		logger: opts.Logger.With("component", "content_client"),
	}
}

// Categories lists the education categories.
func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var list domain.CategoryList
	if err := c.cachedGet(ctx, "categories", "/users/categories/", &list); err != nil {
		return nil, err
	}
	return list.Categories, nil
}

// Subcategories lists the subcategories of one category.
func (c *Client) Subcategories(ctx context.Context, categoryID int) ([]domain.Subcategory, error) {
	var list domain.SubcategoryList
	key := fmt.Sprintf("subcategories_%d", categoryID)
	if err := c.cachedGet(ctx, key, fmt.Sprintf("/users/%d/subcategories/", categoryID), &list); err != nil {
		return nil, err
	}
	return list.Subcategories, nil
}

// Modules lists the lessons in a subcategory.
func (c *Client) Modules(ctx context.Context, categoryID, subcategoryID int) ([]domain.Module, error) {
	var list domain.ModuleList
	key := fmt.Sprintf("modules_%d_%d", categoryID, subcategoryID)
	endpoint := fmt.Sprintf("/users/%d/%d/modules-list/", categoryID, subcategoryID)
	if err := c.cachedGet(ctx, key, endpoint, &list); err != nil {
		return nil, err
	}
	return list.Videos, nil
}

// Dashboard loads the patient landing data. Never cached.
func (c *Client) Dashboard(ctx context.Context) (*domain.Dashboard, error) {
	var dash domain.Dashboard
	if err := c.caller.SendJSON(ctx, http.MethodGet, "/users/dashboard/", nil, &dash); err != nil {
		return nil, err
	}
	return &dash, nil
}

// CompleteVideo marks a dashboard video as watched.
func (c *Client) CompleteVideo(ctx context.Context, videoID int) error {
	endpoint := fmt.Sprintf("/users/update_video_completion/%d/", videoID)
	if err := c.caller.SendJSON(ctx, http.MethodPost, endpoint, domain.CompletionUpdate{IsCompleted: true}, nil); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// CompleteTask marks a dashboard task as done.
func (c *Client) CompleteTask(ctx context.Context, taskID int) error {
	endpoint := fmt.Sprintf("/users/tasks/update-completion/%d/", taskID)
	if err := c.caller.SendJSON(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// RefreshCatalogue drops every cached catalogue entry.
func (c *Client) RefreshCatalogue(ctx context.Context) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.InvalidatePrefix(ctx, c.prefix)
}

func (c *Client) invalidate(ctx context.Context) {
	if err := c.RefreshCatalogue(ctx); err != nil {
		c.logger.Warn("failed to invalidate content cache", "error", err)
	}
}

// cachedGet serves out from the cache when fresh, otherwise fetches and
// stores it. Cache errors degrade to a backend read.
func (c *Client) cachedGet(ctx context.Context, key, endpoint string, out any) error {
	key = c.prefix + key
	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("content cache read failed", "key", key, "error", err)
		}
		if ok && json.Unmarshal(raw, out) == nil {
			return nil
		}
	}

	if err := c.caller.SendJSON(ctx, http.MethodGet, endpoint, nil, out); err != nil {
		return err
	}

	if c.cache != nil {
		raw, err := json.Marshal(out)
		if err == nil {
			err = c.cache.Set(ctx, key, raw, c.ttl)
		}
		if err != nil {
			c.logger.Warn("content cache write failed", "key", key, "error", err)
		}
	}
	return nil
}
