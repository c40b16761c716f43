package avatars

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	SourceAuto       = "auto"
	SourceFile       = "file"
	SourceElevenLabs = "elevenlabs"
)

// Avatar is a selectable persona and the voice it speaks with.
type Avatar struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	VoiceID string `json:"voiceId"`
}

type Config struct {
	Source        string
	PresetsPath   string
	APIKey        string
	BaseURL       string
	VoicesTimeout time.Duration
	// TTL bounds how long a non-empty list is served from cache. Zero or
	// negative disables caching.
	TTL time.Duration
}

// Catalog is a read-mostly cache of avatars. Refreshes are collapsed so only
// one load runs at a time and its result is shared.
type Catalog struct {
	source      string
	presetsPath string
	voices      *voicesClient
	ttl         time.Duration
	logger      *zap.Logger
	now         func() time.Time

	refresh singleflight.Group

	mu        sync.RWMutex
	cached    []Avatar
	fetchedAt time.Time
}

func NewCatalog(cfg Config, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	source := strings.ToLower(strings.TrimSpace(cfg.Source))
	if source == "" {
		source = SourceAuto
	}
	timeout := cfg.VoicesTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Catalog{
		source:      source,
		presetsPath: cfg.PresetsPath,
		voices: &voicesClient{
			apiKey:  strings.TrimSpace(cfg.APIKey),
			baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			client:  &http.Client{Timeout: timeout},
		},
		ttl:    cfg.TTL,
		logger: logger.Named("avatars"),
		now:    time.Now,
	}
}

func (c *Catalog) Source() string { return c.source }

// List returns cached avatars, loading them when the cache is empty or stale.
func (c *Catalog) List(ctx context.Context) ([]Avatar, error) {
	c.mu.RLock()
	cached, fresh := c.cached, c.fresh()
	c.mu.RUnlock()
	if len(cached) > 0 && fresh {
		return cloneAvatars(cached), nil
	}
	return c.Refresh(ctx)
}

// Refresh reloads avatars from the configured source. The shared load is
// detached from any one caller's cancellation and bounded by the voices client
// timeout; each caller stops waiting when its own ctx ends.
func (c *Catalog) Refresh(ctx context.Context) ([]Avatar, error) {
	loadCtx := context.WithoutCancel(ctx)
	ch := c.refresh.DoChan("avatars", func() (any, error) {
		list, err := c.load(loadCtx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cached = list
		c.fetchedAt = c.now()
		c.mu.Unlock()
		return list, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneAvatars(res.Val.([]Avatar)), nil
	}
}

// Resolve looks up an avatar by id. An empty id resolves to nothing.
func (c *Catalog) Resolve(ctx context.Context, id string) (Avatar, bool, error) {
	if id == "" {
		return Avatar{}, false, nil
	}
	list, err := c.List(ctx)
	if err != nil {
		return Avatar{}, false, err
	}
	for _, a := range list {
		if a.ID == id {
			return a, true, nil
		}
	}
	return Avatar{}, false, nil
}

func (c *Catalog) fresh() bool {
	if c.ttl <= 0 {
		return false
	}
	return c.now().Sub(c.fetchedAt) <= c.ttl
}

func (c *Catalog) load(ctx context.Context) ([]Avatar, error) {
	switch c.source {
	case SourceFile:
		return c.loadPresets(), nil
	case SourceElevenLabs:
		list, err := c.voices.fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch elevenlabs voices: %w", err)
		}
		return list, nil
	default:
		var list []Avatar
		if c.voices.apiKey != "" {
			fetched, err := c.voices.fetch(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil, err
				}
				c.logger.Warn("elevenlabs voices unavailable, using presets", zap.Error(err))
			}
			list = fetched
		}
		if len(list) == 0 {
			list = c.loadPresets()
		}
		return list, nil
	}
}

func (c *Catalog) loadPresets() []Avatar {
	list, err := LoadPresetsFile(c.presetsPath)
	if err != nil {
		c.logger.Warn("avatar presets unreadable", zap.String("path", c.presetsPath), zap.Error(err))
		return nil
	}
	return list
}

func cloneAvatars(in []Avatar) []Avatar {
	if in == nil {
		return []Avatar{}
	}
	out := make([]Avatar, len(in))
	copy(out, in)
	return out
}
