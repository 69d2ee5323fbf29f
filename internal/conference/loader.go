package conference

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader prepares an external SDK once per process.
type Loader interface {
	Load(ctx context.Context) error
	Loaded() bool
}

// LoadFunc performs the actual load.
type LoadFunc func(ctx context.Context) error

// OnceLoader runs its LoadFunc until it succeeds once. Concurrent callers share a
// single in-flight attempt; a failed attempt can be retried.
type OnceLoader struct {
	fn LoadFunc
	sf singleflight.Group

	mu     sync.RWMutex
	loaded bool
}

func NewOnceLoader(fn LoadFunc) *OnceLoader {
	return &OnceLoader{fn: fn}
}

func (l *OnceLoader) Loaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

func (l *OnceLoader) Load(ctx context.Context) error {
	if l.Loaded() {
		return nil
	}
	_, err, _ := l.sf.Do("sdk", func() (interface{}, error) {
		// Re-check in case another goroutine finished while we waited.
		if l.Loaded() {
			return nil, nil
		}
		if err := l.fn(ctx); err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.loaded = true
		l.mu.Unlock()
		return nil, nil
	})
	return err
}

// NewHTTPLoader checks that the SDK at sdkURL is reachable.
func NewHTTPLoader(client *http.Client, sdkURL string) *OnceLoader {
	return NewOnceLoader(func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, sdkURL, nil)
		if err != nil {
			return fmt.Errorf("load sdk: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("load sdk: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("load sdk: unexpected status %d", resp.StatusCode)
		}
		return nil
	})
}
