package coord

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Strategy names a distribution strategy.
type Strategy string

const (
	// StrategyLoadBalanced picks the least-recently-used servers.
	StrategyLoadBalanced Strategy = "load-balanced"
	// StrategyRedundant fans out to up to five servers and keeps every
	// response.
	StrategyRedundant Strategy = "redundant"
	// StrategySpecialized filters to servers whose capability set covers
	// the request's required capabilities.
	StrategySpecialized Strategy = "specialized"
	// StrategyFastest picks the two servers with the lowest configured
	// timeout.
	StrategyFastest Strategy = "fastest"
)

const (
	// redundantFanOutLimit caps redundant distribution.
	redundantFanOutLimit = 5
	// fastestServerCount is how many servers the fastest strategy picks.
	fastestServerCount = 2
	// degradeThreshold is how many consecutive heartbeat failures mark a
	// server degraded.
	degradeThreshold = 3
	// defaultLoadBalancedCount is how many servers load balancing picks.
	defaultLoadBalancedCount = 2
)

var (
	// ErrNoServers indicates no connected server matched the strategy.
	ErrNoServers = errors.New("no connected coordination servers available")
	// ErrDuplicateServer indicates the id is already registered.
	ErrDuplicateServer = errors.New("server already registered")
	// ErrUnknownServer indicates the id is not registered.
	ErrUnknownServer = errors.New("server not registered")
	// ErrUnknownStrategy indicates an unrecognized distribution strategy.
	ErrUnknownStrategy = errors.New("unknown distribution strategy")
	// ErrNoSuccessfulResponses indicates every contacted server failed.
	ErrNoSuccessfulResponses = errors.New("no successful responses")
)

// serverEntry is a registered server plus its live health state.
type serverEntry struct {
	info     ServerInfo
	state    ServerState
	failures int
	lastUsed time.Time
}

// Service is the distributed coordination service. The registry and
// response cache are shared across every workflow, so all access goes
// through the service's locks.
type Service struct {
	mu        sync.RWMutex
	servers   map[string]*serverEntry
	cache     *responseCache
	transport Transport

	heartbeatInterval time.Duration
	loadBalancedCount int
	now               func() time.Time
	debugLog          func(format string, args ...interface{})
}

// Option configures the service.
type Option func(*Service)

// WithHeartbeatInterval sets the health-check period.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.heartbeatInterval = interval
		}
	}
}

// WithCacheTTL sets how long aggregated responses stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.cache = newResponseCache(ttl)
		}
	}
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...interface{})) Option {
	return func(s *Service) {
		if fn != nil {
			s.debugLog = fn
		}
	}
}

// NewService creates a coordination service over the given transport.
func NewService(transport Transport, opts ...Option) *Service {
	s := &Service{
		servers:           make(map[string]*serverEntry),
		cache:             newResponseCache(5 * time.Minute),
		transport:         transport,
		heartbeatInterval: 30 * time.Second,
		loadBalancedCount: defaultLoadBalancedCount,
		now:               time.Now,
		debugLog:          func(format string, args ...interface{}) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a server to the registry in connected state.
func (s *Service) Register(info ServerInfo) error {
	if info.ID == "" {
		return fmt.Errorf("registering server: empty id")
	}
	if info.Endpoint == "" {
		return fmt.Errorf("registering server %s: empty endpoint", info.ID)
	}
	if info.Timeout <= 0 {
		info.Timeout = 10 * time.Second
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[info.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateServer, info.ID)
	}
	s.servers[info.ID] = &serverEntry{info: info, state: StateConnected}
	s.debugLog("[coord.Register] server=%s endpoint=%s capabilities=%v", info.ID, info.Endpoint, info.Capabilities)
	return nil
}

// Unregister removes a server from the registry.
func (s *Service) Unregister(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.servers[id]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	delete(s.servers, id)
	s.debugLog("[coord.Unregister] server=%s", id)
	return nil
}

// ServerState returns a server's current health state.
func (s *Service) ServerState(id string) (ServerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.servers[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	return entry.state, nil
}

// Servers returns every registered server id in sorted order.
func (s *Service) Servers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.servers))
	for id := range s.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// selectServers picks targets for a request. Only connected servers are
// eligible; a degraded server never receives requests.
func (s *Service) selectServers(strategy Strategy, requiredCapabilities []string) ([]ServerInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	connected := make([]*serverEntry, 0, len(s.servers))
	for _, entry := range s.servers {
		if entry.state == StateConnected {
			connected = append(connected, entry)
		}
	}
	sort.Slice(connected, func(i, j int) bool {
		return connected[i].info.ID < connected[j].info.ID
	})

	var picked []*serverEntry
	switch strategy {
	case StrategyLoadBalanced:
		sort.SliceStable(connected, func(i, j int) bool {
			return connected[i].lastUsed.Before(connected[j].lastUsed)
		})
		picked = connected
		if len(picked) > s.loadBalancedCount {
			picked = picked[:s.loadBalancedCount]
		}
	case StrategyRedundant:
		sort.SliceStable(connected, func(i, j int) bool {
			return connected[i].info.Priority > connected[j].info.Priority
		})
		picked = connected
		if len(picked) > redundantFanOutLimit {
			picked = picked[:redundantFanOutLimit]
		}
	case StrategySpecialized:
		for _, entry := range connected {
			if hasAllCapabilities(entry.info.Capabilities, requiredCapabilities) {
				picked = append(picked, entry)
			}
		}
	case StrategyFastest:
		sort.SliceStable(connected, func(i, j int) bool {
			return connected[i].info.Timeout < connected[j].info.Timeout
		})
		picked = connected
		if len(picked) > fastestServerCount {
			picked = picked[:fastestServerCount]
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strategy)
	}

	if len(picked) == 0 {
		return nil, ErrNoServers
	}

	now := s.now()
	infos := make([]ServerInfo, len(picked))
	for i, entry := range picked {
		entry.lastUsed = now
		infos[i] = entry.info
	}
	return infos, nil
}

// hasAllCapabilities reports whether have is a superset of want.
func hasAllCapabilities(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, c := range want {
		if !set[c] {
			return false
		}
	}
	return true
}

// Distribute fans a request out per the strategy, aggregates the
// responses, and caches the outcome by request id. A cached response
// is returned without touching the network. Every contacted server
// failing returns the aggregation alongside ErrNoSuccessfulResponses;
// the caller decides whether a local fallback exists.
func (s *Service) Distribute(ctx context.Context, req Request, strategy Strategy, requiredCapabilities []string) (AggregatedResponse, error) {
	if cached, ok := s.cache.get(req.ID); ok {
		s.debugLog("[coord.Distribute] request=%s served from cache", req.ID)
		return cached, nil
	}

	targets, err := s.selectServers(strategy, requiredCapabilities)
	if err != nil {
		return AggregatedResponse{}, err
	}

	s.debugLog("[coord.Distribute] request=%s strategy=%s targets=%d", req.ID, strategy, len(targets))

	responses := make([]Response, len(targets))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, server := range targets {
		i, server := i, server
		group.Go(func() error {
			responses[i] = s.callServer(groupCtx, server, req)
			return nil
		})
	}
	// Worker errors are folded into response statuses, never returned.
	_ = group.Wait()

	agg := Aggregate(req.ID, responses)
	successes := 0
	for _, r := range agg.Responses {
		if r.Status.Succeeded() {
			successes++
		}
	}
	if successes == 0 {
		return agg, fmt.Errorf("request %s: %w", req.ID, ErrNoSuccessfulResponses)
	}

	s.cache.put(req.ID, agg)
	return agg, nil
}

// callServer sends one request with the server's timeout and retry
// budget, translating transport failures into error responses.
func (s *Service) callServer(ctx context.Context, server ServerInfo, req Request) Response {
	timeout := server.Timeout
	if req.Timeout > 0 && req.Timeout < timeout {
		timeout = req.Timeout
	}

	var lastErr error
	for attempt := 0; attempt <= server.Retries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := s.transport.Send(callCtx, server, req)
		cancel()
		if err == nil {
			return resp
		}
		lastErr = err
		s.debugLog("[coord.callServer] server=%s attempt=%d failed: %v", server.ID, attempt+1, err)
		if ctx.Err() != nil {
			break
		}
	}

	status := StatusError
	if errors.Is(lastErr, context.DeadlineExceeded) || ctx.Err() != nil {
		status = StatusTimeout
	}
	return Response{
		RequestID: req.ID,
		ServerID:  server.ID,
		Status:    status,
		Result:    map[string]any{"error": lastErr.Error()},
		Timestamp: s.now(),
	}
}

// RunHealthChecks probes every registered server on a fixed interval
// until the context is cancelled. Three consecutive failures mark a
// server degraded and trigger an immediate reconnect attempt; a
// degraded server rejoins rotation as soon as a probe succeeds.
func (s *Service) RunHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckHealth(ctx)
		}
	}
}

// CheckHealth runs one synchronous probe pass over every server.
func (s *Service) CheckHealth(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.servers))
	for id := range s.servers {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)

	for _, id := range ids {
		s.probe(ctx, id)
	}
}

// probe health-checks one server and updates its state.
func (s *Service) probe(ctx context.Context, id string) {
	s.mu.RLock()
	entry, ok := s.servers[id]
	if !ok {
		s.mu.RUnlock()
		return
	}
	info := entry.info
	s.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, info.Timeout)
	err := s.transport.Ping(probeCtx, info)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok = s.servers[id]
	if !ok {
		return
	}

	if err == nil {
		if entry.state == StateDegraded {
			s.debugLog("[coord.probe] server=%s reconnected", id)
		}
		entry.state = StateConnected
		entry.failures = 0
		return
	}

	entry.failures++
	s.debugLog("[coord.probe] server=%s heartbeat failed (%d consecutive): %v", id, entry.failures, err)
	if entry.failures >= degradeThreshold && entry.state == StateConnected {
		entry.state = StateDegraded
		s.debugLog("[coord.probe] server=%s marked degraded, attempting reconnect", id)
		// Reconnect attempt outside the lock would race a concurrent
		// unregister; one immediate inline probe is enough.
		reconnectCtx, cancel := context.WithTimeout(ctx, entry.info.Timeout)
		reconnectErr := s.transport.Ping(reconnectCtx, entry.info)
		cancel()
		if reconnectErr == nil {
			entry.state = StateConnected
			entry.failures = 0
			s.debugLog("[coord.probe] server=%s reconnect succeeded", id)
		}
	}
}

// CacheSize reports how many responses the cache currently holds.
func (s *Service) CacheSize() int {
	return s.cache.size()
}
