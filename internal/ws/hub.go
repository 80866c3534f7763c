package ws

import (
	"context"
	"encoding/json"
	"sync"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/converse/chat-server-go/internal/metrics"
	redisclient "github.com/converse/chat-server-go/internal/redis"
)

// envelope is what travels over redis pub/sub. The origin connection id
// rides along so "exclude the sender's connection" survives the hop between
// processes.
type envelope struct {
	Channel      string `json:"channel"`
	OriginConnID string `json:"originConnId,omitempty"`
	Frame        Frame  `json:"frame"`
}

// Hub tracks which connections subscribe to which named channels (user ids
// and conversation ids) and fans events out to them. Cross-process
// propagation goes through redis pub/sub; with no redis client the hub
// delivers locally, which is what the tests use.
type Hub struct {
	redis *redisclient.Client

	mu           sync.RWMutex
	channels     map[string]map[*Conn]bool
	connChannels map[*Conn]map[string]struct{}
	pubsubs      map[string]*goredis.PubSub

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(redisClient *redisclient.Client) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		redis:        redisClient,
		channels:     make(map[string]map[*Conn]bool),
		connChannels: make(map[*Conn]map[string]struct{}),
		pubsubs:      make(map[string]*goredis.PubSub),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Subscribe adds conn to the named channel, starting the redis subscription
// on the channel's first local subscriber.
func (h *Hub) Subscribe(channel string, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.channels[channel] == nil {
		h.channels[channel] = make(map[*Conn]bool)
		if h.redis != nil {
			pubsub := h.redis.Subscribe(h.ctx, redisclient.ChannelKey(channel))
			h.pubsubs[channel] = pubsub
			go h.relay(channel, pubsub)
		}
	}
	h.channels[channel][conn] = true

	if h.connChannels[conn] == nil {
		h.connChannels[conn] = make(map[string]struct{})
	}
	h.connChannels[conn][channel] = struct{}{}
}

// Detach drops every subscription held by conn. Subscriptions are
// connection-scoped; nothing persists after disconnect.
func (h *Hub) Detach(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for channel := range h.connChannels[conn] {
		h.removeLocked(channel, conn)
	}
	delete(h.connChannels, conn)
}

func (h *Hub) removeLocked(channel string, conn *Conn) {
	conns, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.channels, channel)
		if pubsub, ok := h.pubsubs[channel]; ok {
			_ = pubsub.Close()
			delete(h.pubsubs, channel)
		}
	}
}

// Publish fans the frame out to every subscriber of the channel, skipping
// the origin connection when excludeConnID is set. Broadcast is
// fire-and-forget; individual recipient failures are not tracked.
func (h *Hub) Publish(ctx context.Context, channel string, frame Frame, excludeConnID string) error {
	metrics.EventsBroadcast.WithLabelValues(frame.Event).Inc()

	env := envelope{
		Channel:      channel,
		OriginConnID: excludeConnID,
		Frame:        frame,
	}

	if h.redis == nil {
		h.deliver(env)
		return nil
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return h.redis.Publish(ctx, redisclient.ChannelKey(channel), data).Err()
}

// relay pumps one channel's redis subscription into local delivery.
func (h *Hub) relay(channel string, pubsub *goredis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Error().Err(err).Str("channel", channel).Msg("failed to unmarshal hub envelope")
				continue
			}
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	payload, err := json.Marshal(env.Frame)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal frame")
		return
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.channels[env.Channel]))
	for conn := range h.channels[env.Channel] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if env.OriginConnID != "" && conn.ID == env.OriginConnID {
			continue
		}
		if err := conn.Send(payload); err != nil {
			log.Warn().
				Str("channel", env.Channel).
				Str("connId", conn.ID).
				Msg("dropping event for unreachable connection")
		}
	}
}

// SubscriberCount reports local subscribers of a channel, for tests.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) Close() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for channel, pubsub := range h.pubsubs {
		_ = pubsub.Close()
		delete(h.pubsubs, channel)
	}
	h.channels = make(map[string]map[*Conn]bool)
	h.connChannels = make(map[*Conn]map[string]struct{})
}
