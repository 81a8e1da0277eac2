package generate

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/sudhar-ne/sudhar/model"
	"github.com/sudhar-ne/sudhar/model/inference"
)

// ErrRegistryClosed is returned by Acquire once the registry is closed.
var ErrRegistryClosed = errors.New("model registry closed")

// Registry keeps loaded model sessions keyed by kind. A model is loaded on
// first use and reused until it sits idle for the TTL, is evicted for
// capacity, or the registry is closed. An evicted session is closed once
// the last lease on it is released.
type Registry struct {
	cache   *ttlcache.Cache[model.Kind, *resident]
	loader  inference.Loader
	pathFor func(model.Kind) string
	group   singleflight.Group
	// stopEvictions waits for running eviction callbacks.
	stopEvictions func()

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// resident is a loaded session shared by concurrent requests.
type resident struct {
	kind model.Kind
	sess inference.Session

	mu      sync.Mutex
	leases  int
	evicted bool
}

func (m *resident) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.evicted {
		return false
	}
	m.leases++
	return true
}

func (m *resident) release() {
	m.mu.Lock()
	m.leases--
	last := m.evicted && m.leases == 0
	m.mu.Unlock()
	if last {
		m.close()
	}
}

func (m *resident) evict() {
	m.mu.Lock()
	m.evicted = true
	idle := m.leases == 0
	m.mu.Unlock()
	if idle {
		m.close()
	}
}

func (m *resident) close() {
	if err := m.sess.Close(); err != nil {
		slog.Warn("failed to close model", "model", m.kind, "error", err)
	}
}

// Lease is a session borrowed from the registry. The session stays open
// until Release, even if the model is evicted meanwhile.
type Lease struct {
	res  *resident
	once sync.Once
}

// Session returns the leased session.
func (l *Lease) Session() inference.Session {
	return l.res.sess
}

// Release returns the lease. Calling it more than once is harmless.
func (l *Lease) Release() {
	l.once.Do(l.res.release)
}

// NewRegistry creates a registry. pathFor resolves the model directory for a kind.
func NewRegistry(loader inference.Loader, pathFor func(model.Kind) string, ttl time.Duration, capacity int) *Registry {
	opts := []ttlcache.Option[model.Kind, *resident]{
		ttlcache.WithTTL[model.Kind, *resident](ttl),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[model.Kind, *resident](uint64(capacity)))
	}
	c := ttlcache.New[model.Kind, *resident](opts...)

	stop := c.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[model.Kind, *resident]) {
		modelsLoaded.Dec()
		slog.Debug("model evicted", "model", item.Key(), "reason", evictionReason(reason))
		item.Value().evict()
	})

	go c.Start()
	return &Registry{cache: c, loader: loader, pathFor: pathFor, stopEvictions: stop}
}

// Acquire returns a lease on the session for k, loading the model if needed.
// Concurrent callers asking for the same kind share a single load. The load
// is not tied to any one caller: a cancelled caller stops waiting while the
// others still get the model.
func (r *Registry) Acquire(ctx context.Context, k model.Kind) (*Lease, error) {
	for {
		res, err := r.resident(ctx, k)
		if err != nil {
			return nil, err
		}
		if res.acquire() {
			return &Lease{res: res}, nil
		}
		// Evicted between lookup and acquire; look again.
	}
}

func (r *Registry) resident(ctx context.Context, k model.Kind) (*resident, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.isClosed() {
		return nil, ErrRegistryClosed
	}
	if item := r.cache.Get(k); item != nil {
		return item.Value(), nil
	}

	// The backend client timeout bounds the detached load.
	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(k.String(), func() (any, error) {
		return r.load(loadCtx, k)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*resident), nil
	}
}

func (r *Registry) load(ctx context.Context, k model.Kind) (*resident, error) {
	if item := r.cache.Get(k); item != nil {
		return item.Value(), nil
	}
	// An expired entry not yet swept would be overwritten without eviction.
	r.cache.Delete(k)

	path := r.pathFor(k)
	slog.Info("loading model", "model", k, "path", path)
	sess, err := r.loader.Load(ctx, inference.Spec{Kind: k, Path: path})
	if err != nil {
		modelLoadsTotal.WithLabelValues(k.String(), "error").Inc()
		return nil, err
	}
	modelLoadsTotal.WithLabelValues(k.String(), "ok").Inc()
	res := &resident{kind: k, sess: sess}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		res.close()
		return nil, ErrRegistryClosed
	}
	modelsLoaded.Inc()
	r.cache.Set(k, res, ttlcache.DefaultTTL)
	return res, nil
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Loaded returns the kinds currently resident, in declaration order.
func (r *Registry) Loaded() []model.Kind {
	kinds := r.cache.Keys()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Evict drops k from the registry. Its session closes when the last lease
// is released.
func (r *Registry) Evict(k model.Kind) {
	r.cache.Delete(k)
}

// Close evicts every model and stops the expiration loop. Idle sessions are
// closed when it returns; sessions still leased close on release. Acquire
// fails afterwards.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.cache.DeleteAll()
		r.cache.Stop()
		r.stopEvictions()
	})
}

func evictionReason(reason ttlcache.EvictionReason) string {
	switch reason {
	case ttlcache.EvictionReasonExpired:
		return "expired"
	case ttlcache.EvictionReasonCapacityReached:
		return "capacity"
	case ttlcache.EvictionReasonDeleted:
		return "deleted"
	}
	return "unknown"
}
