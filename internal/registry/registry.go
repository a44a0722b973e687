// Package registry tracks the gateway's catalogue of agent wrappers,
// caches their health, and selects which wrapper should serve a task.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pi-gateway/pi-gateway/internal/agent"
	"github.com/pi-gateway/pi-gateway/internal/common/apierr"
	"github.com/pi-gateway/pi-gateway/internal/common/logger"
)

// healthEntry caches one wrapper's last health probe.
type healthEntry struct {
	healthy   bool
	version   string
	checkedAt time.Time
}

// Registry owns the set of agent wrappers the gateway can dispatch to.
type Registry struct {
	mu             sync.RWMutex
	wrappers       map[string]*agent.Wrapper
	health         map[string]healthEntry
	healthTTL      time.Duration
	preferredOrder []string
	logger         *logger.Logger
}

// New builds an empty Registry. preferredOrder breaks ties during
// selection: wrappers earlier in the list are preferred when more than one
// healthy wrapper satisfies a task's requested capability.
func New(preferredOrder []string, healthTTL time.Duration, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Default()
	}
	if healthTTL <= 0 {
		healthTTL = 30 * time.Second
	}
	return &Registry{
		wrappers:       make(map[string]*agent.Wrapper),
		health:         make(map[string]healthEntry),
		healthTTL:      healthTTL,
		preferredOrder: append([]string(nil), preferredOrder...),
		logger:         log,
	}
}

// Register adds or replaces the wrapper under its own ID.
func (r *Registry) Register(w *agent.Wrapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wrappers[w.ID()] = w
	delete(r.health, w.ID())
}

// Unregister removes a wrapper by ID. A no-op if id is unknown.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.wrappers, id)
	delete(r.health, id)
}

// Get returns the wrapper registered under id, if any.
func (r *Registry) Get(id string) (*agent.Wrapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wrappers[id]
	return w, ok
}

// List returns every registered wrapper, sorted by id for stable output.
func (r *Registry) List() []*agent.Wrapper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*agent.Wrapper, 0, len(r.wrappers))
	for _, w := range r.wrappers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// IsHealthy reports w's cached health, probing fresh if the cache entry is
// missing or older than the registry's health TTL.
func (r *Registry) IsHealthy(ctx context.Context, id string) bool {
	healthy, _ := r.checkHealth(ctx, id)
	return healthy
}

func (r *Registry) checkHealth(ctx context.Context, id string) (bool, string) {
	r.mu.RLock()
	entry, cached := r.health[id]
	w, ok := r.wrappers[id]
	r.mu.RUnlock()
	if !ok {
		return false, ""
	}
	if cached && time.Since(entry.checkedAt) < r.healthTTL {
		return entry.healthy, entry.version
	}

	version, healthy := w.Version(ctx)
	r.mu.Lock()
	r.health[id] = healthEntry{healthy: healthy, version: version, checkedAt: time.Now()}
	r.mu.Unlock()

	if !healthy {
		r.logger.Warn("agent health probe failed", zap.String("agent_id", id))
	}
	return healthy, version
}

// AvailableAgents returns the IDs of every registered wrapper currently
// reporting healthy, in preferred order.
func (r *Registry) AvailableAgents(ctx context.Context) []string {
	var out []string
	for _, w := range r.orderedWrappers() {
		if r.IsHealthy(ctx, w.ID()) {
			out = append(out, w.ID())
		}
	}
	return out
}

// orderedWrappers returns every registered wrapper ordered by
// preferredOrder first, then alphabetically for anything not named there.
func (r *Registry) orderedWrappers() []*agent.Wrapper {
	all := r.List()
	rank := make(map[string]int, len(r.preferredOrder))
	for i, id := range r.preferredOrder {
		rank[id] = i
	}
	sort.SliceStable(all, func(i, j int) bool {
		ri, iok := rank[all[i].ID()]
		rj, jok := rank[all[j].ID()]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return all[i].ID() < all[j].ID()
		}
	})
	return all
}

// SelectForTask picks the best healthy wrapper for task: if task.Capability
// is set, only wrappers advertising it are considered; ties are broken by
// preferredOrder. Returns apierr.ErrNoAgentAvailable, annotated with the
// IDs that were tried, when nothing qualifies.
func (r *Registry) SelectForTask(ctx context.Context, task agent.Task) (*agent.Wrapper, error) {
	var tried []string
	for _, w := range r.orderedWrappers() {
		if task.Capability != "" && !w.HasCapability(task.Capability) {
			continue
		}
		tried = append(tried, w.ID())
		if r.IsHealthy(ctx, w.ID()) {
			return w, nil
		}
	}
	return nil, noAgentAvailableError(tried)
}

// Execute selects a wrapper for task and runs it, falling back to the next
// eligible healthy wrapper if the selected one's Execute call itself
// reports StatusError with an empty Output (treated as a dispatch failure,
// not a legitimate agent answer). Every wrapper tried is recorded; if all
// are exhausted, the last result is returned alongside
// apierr.ErrNoAgentAvailable's tried-id list.
func (r *Registry) Execute(ctx context.Context, task agent.Task) (agent.Result, error) {
	var (
		tried    []string
		lastErr  error
		lastResD agent.Result
	)
	for _, w := range r.orderedWrappers() {
		if task.Capability != "" && !w.HasCapability(task.Capability) {
			continue
		}
		if !r.IsHealthy(ctx, w.ID()) {
			continue
		}
		tried = append(tried, w.ID())
		res := w.Execute(ctx, task)
		lastResD = res
		if res.Status != agent.StatusError || res.Output != "" {
			return res, nil
		}
		lastErr = fmt.Errorf("%s: %s", w.ID(), res.Stderr)
	}
	if len(tried) == 0 {
		return agent.Result{}, noAgentAvailableError(tried)
	}
	return lastResD, fmt.Errorf("%w: last failure: %v", noAgentAvailableError(tried), lastErr)
}

// ExecuteStream selects a wrapper for task and streams its output. Unlike
// Execute, it does not fall back mid-stream: once a wrapper starts
// streaming, partial output cannot be un-sent to a client.
func (r *Registry) ExecuteStream(ctx context.Context, task agent.Task) (<-chan string, <-chan agent.StreamOutcome, error) {
	w, err := r.SelectForTask(ctx, task)
	if err != nil {
		return nil, nil, err
	}
	chunks, outcome := w.ExecuteStream(ctx, task)
	return chunks, outcome, nil
}

func noAgentAvailableError(tried []string) error {
	if len(tried) == 0 {
		return apierr.ErrNoAgentAvailable
	}
	return apierr.Wrap(apierr.CodeNotFound,
		fmt.Sprintf("no available agent found (tried: %s)", strings.Join(tried, ", ")),
		apierr.ErrNoAgentAvailable)
}
