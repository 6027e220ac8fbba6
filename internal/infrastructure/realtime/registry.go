package realtime

import (
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/go-taskpulse/internal/infrastructure/metrics"
)

const shardCount = 32

// Conn is one live session. Send must not block: it returns false when the
// frame cannot be queued, and the registry then drops the session.
type Conn interface {
	ID() string
	Send(frame []byte) bool
	Close()
}

type shard struct {
	mu    sync.RWMutex
	users map[string]map[string]Conn // user id -> conn id -> conn
}

// Registry maps users to their live sessions. It is process-local.
type Registry struct {
	shards [shardCount]*shard

	ownersMu sync.Mutex
	owners   map[string]string // conn id -> user id

	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		owners: make(map[string]string),
		logger: logger.With("component", "realtime"),
	}
	for i := range r.shards {
		r.shards[i] = &shard{users: make(map[string]map[string]Conn)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.shards[h.Sum32()%shardCount]
}

// Register attaches c to userID. Registering the same conn again is a no-op.
func (r *Registry) Register(userID string, c Conn) {
	r.ownersMu.Lock()
	if _, ok := r.owners[c.ID()]; ok {
		r.ownersMu.Unlock()
		return
	}
	r.owners[c.ID()] = userID
	r.ownersMu.Unlock()

	s := r.shardFor(userID)
	s.mu.Lock()
	conns, ok := s.users[userID]
	if !ok {
		conns = make(map[string]Conn)
		s.users[userID] = conns
	}
	conns[c.ID()] = c
	s.mu.Unlock()

	metrics.RealtimeSessions.Inc()
	r.logger.Debug("session registered", "user_id", userID, "conn_id", c.ID())
}

// Unregister detaches c. It reports whether c was registered.
func (r *Registry) Unregister(c Conn) bool {
	r.ownersMu.Lock()
	userID, ok := r.owners[c.ID()]
	delete(r.owners, c.ID())
	r.ownersMu.Unlock()
	if !ok {
		return false
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	if conns, ok := s.users[userID]; ok {
		delete(conns, c.ID())
		if len(conns) == 0 {
			delete(s.users, userID)
		}
	}
	s.mu.Unlock()

	metrics.RealtimeSessions.Dec()
	r.logger.Debug("session unregistered", "user_id", userID, "conn_id", c.ID())
	return true
}

// Broadcast sends ev to every session of userID and returns how many accepted it.
// Sessions whose buffer is full are unregistered and closed.
func (r *Registry) Broadcast(userID string, ev Event) int {
	frame, err := Encode(ev)
	if err != nil {
		r.logger.Error("encode event failed", "event", ev.Name, "user_id", userID, "err", err)
		return 0
	}

	s := r.shardFor(userID)
	s.mu.RLock()
	var slow []Conn
	delivered := 0
	for _, c := range s.users[userID] {
		if c.Send(frame) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		metrics.RealtimeFramesDropped.Inc()
		r.logger.Warn("dropping slow session", "user_id", userID, "conn_id", c.ID())
		if r.Unregister(c) {
			c.Close()
		}
	}
	return delivered
}

// SessionCount returns the number of live sessions of userID.
func (r *Registry) SessionCount(userID string) int {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users[userID])
}

// Total returns the number of live sessions across all users.
func (r *Registry) Total() int {
	r.ownersMu.Lock()
	defer r.ownersMu.Unlock()
	return len(r.owners)
}

// CloseAll unregisters and closes every session. Used on shutdown.
func (r *Registry) CloseAll() {
	var all []Conn
	for _, s := range r.shards {
		s.mu.RLock()
		for _, conns := range s.users {
			for _, c := range conns {
				all = append(all, c)
			}
		}
		s.mu.RUnlock()
	}
	for _, c := range all {
		if r.Unregister(c) {
			c.Close()
		}
	}
}
