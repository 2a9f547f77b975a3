package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// shardCount fixes the number of independently locked shards in the
// registry. User ids are distributed across shards so concurrent deliveries
// to different users rarely contend on the same lock.
const shardCount = 16

// registryShard holds the channel sets for the user ids hashed to it.
type registryShard struct {
	mu       sync.RWMutex
	channels map[int64]map[Channel]struct{}
}

// Registry maintains the mapping from user id to that user's active push
// channels. It is confined to a single process; fanning out across multiple
// instances would need a shared broker behind the same interface.
type Registry struct {
	shards [shardCount]*registryShard
	logger *slog.Logger
}

// NewRegistry creates an empty channel registry.
// If logger is nil, a default logger will be used.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		logger: logger.With(slog.String("component", "notification_registry")),
	}
	for i := range r.shards {
		r.shards[i] = &registryShard{channels: make(map[int64]map[Channel]struct{})}
	}
	return r
}

func (r *Registry) shard(userID int64) *registryShard {
	// Negative ids cannot occur for persisted users but must not panic.
	idx := userID % shardCount
	if idx < 0 {
		idx += shardCount
	}
	return r.shards[idx]
}

// Register adds a channel to the user's active set.
func (r *Registry) Register(userID int64, ch Channel) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.channels[userID]
	if !ok {
		set = make(map[Channel]struct{})
		s.channels[userID] = set
	}
	set[ch] = struct{}{}

	r.logger.Debug("channel registered",
		slog.Int64("user_id", userID),
		slog.Int("user_channels", len(set)))
}

// Unregister removes a channel from the user's active set. Removing the
// user's last channel removes the user's entry entirely so one-shot
// connections do not grow the map without bound.
func (r *Registry) Unregister(userID int64, ch Channel) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.channels[userID]
	if !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(s.channels, userID)
	}

	r.logger.Debug("channel unregistered",
		slog.Int64("user_id", userID),
		slog.Int("user_channels", len(set)))
}

// SendToUser delivers the event to every channel in the user's set.
// A delivery failure on one channel removes and closes only that channel,
// never aborting delivery to siblings. Sending to a user with no channels is
// a no-op.
func (r *Registry) SendToUser(userID int64, event *Event) {
	s := r.shard(userID)

	s.mu.RLock()
	set := s.channels[userID]
	channels := make([]Channel, 0, len(set))
	for ch := range set {
		channels = append(channels, ch)
	}
	s.mu.RUnlock()

	for _, ch := range channels {
		if err := ch.Send(event); err != nil {
			r.logger.Warn("dropping broken channel",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()))
			r.Unregister(userID, ch)
			_ = ch.Close()
		}
	}
}

// Broadcast delivers the event to every channel of every user, with the same
// per-channel fault isolation as SendToUser.
func (r *Registry) Broadcast(event *Event) {
	for _, s := range r.shards {
		s.mu.RLock()
		targets := make(map[int64][]Channel, len(s.channels))
		for userID, set := range s.channels {
			chs := make([]Channel, 0, len(set))
			for ch := range set {
				chs = append(chs, ch)
			}
			targets[userID] = chs
		}
		s.mu.RUnlock()

		for userID, chs := range targets {
			for _, ch := range chs {
				if err := ch.Send(event); err != nil {
					r.logger.Warn("dropping broken channel during broadcast",
						slog.Int64("user_id", userID),
						slog.String("error", err.Error()))
					r.Unregister(userID, ch)
					_ = ch.Close()
				}
			}
		}
	}
}

// UserChannelCount returns the number of active channels for the user.
func (r *Registry) UserChannelCount(userID int64) int {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[userID])
}

// HasUser reports whether the user has at least one active channel.
func (r *Registry) HasUser(userID int64) bool {
	return r.UserChannelCount(userID) > 0
}

// RunKeepalive probes idle channels until ctx is cancelled. A channel with
// no traffic for idleTimeout gets a ping; a channel that fails the ping or
// stays silent past twice the timeout is unregistered and closed.
func (r *Registry) RunKeepalive(ctx context.Context, checkInterval, idleTimeout time.Duration) {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.probeIdleChannels(idleTimeout)
		}
	}
}

func (r *Registry) probeIdleChannels(idleTimeout time.Duration) {
	now := time.Now()

	for _, s := range r.shards {
		s.mu.RLock()
		type probe struct {
			userID int64
			ch     Channel
		}
		var idle []probe
		for userID, set := range s.channels {
			for ch := range set {
				if now.Sub(ch.LastActive()) >= idleTimeout {
					idle = append(idle, probe{userID: userID, ch: ch})
				}
			}
		}
		s.mu.RUnlock()

		for _, p := range idle {
			silentFor := now.Sub(p.ch.LastActive())
			if err := p.ch.Ping(); err != nil || silentFor >= 2*idleTimeout {
				r.logger.Info("disconnecting unresponsive channel",
					slog.Int64("user_id", p.userID),
					slog.Duration("silent_for", silentFor))
				r.Unregister(p.userID, p.ch)
				_ = p.ch.Close()
			}
		}
	}
}
