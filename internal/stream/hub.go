package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	TopicTracking = "tracking"
	TopicSync     = "sync"

	channelRoot   = "trailzap:"
	channelSuffix = ":events"
)

// Hub fans event payloads out to websocket clients by topic. With Redis
// configured, every broadcast goes through a Redis channel so that all
// processes sharing it see the same events; local delivery is only used
// when the relay is unavailable.
type Hub struct {
	prefix  string
	redis   *redis.Client
	pubsub  *redis.PubSub
	topics  map[string]struct{}
	clients map[string]map[*Client]struct{}
	last    map[string][]byte
	mu      sync.RWMutex
}

type Client struct {
	Topic string
	Send  chan []byte
}

// NewHub creates a hub whose Redis channels are scoped to deviceID, so
// processes on different devices sharing one Redis never see each other's
// events.
func NewHub(redisClient *redis.Client, deviceID string, topics ...string) *Hub {
	if len(topics) == 0 {
		topics = []string{TopicTracking, TopicSync}
	}
	h := &Hub{
		prefix:  channelRoot + scopeName(deviceID) + ":",
		topics:  map[string]struct{}{},
		clients: map[string]map[*Client]struct{}{},
		last:    map[string][]byte{},
	}
	for _, t := range topics {
		h.topics[t] = struct{}{}
	}

	if redisClient != nil {
		pubsub := redisClient.PSubscribe(context.Background(), h.prefix+"*"+channelSuffix)
		if _, err := pubsub.Receive(context.Background()); err != nil {
			logrus.WithError(err).Warn("stream relay unavailable, delivering locally")
			pubsub.Close()
		} else {
			h.redis = redisClient
			h.pubsub = pubsub
			go h.relay(pubsub)
		}
	}
	return h
}

func (h *Hub) Known(topic string) bool {
	_, ok := h.topics[topic]
	return ok
}

// Clients reports how many local clients follow topic.
func (h *Hub) Clients(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Register adds a client to topic. The most recent event on the topic, if
// any, is queued first so a new client starts from the current state.
func (h *Hub) Register(topic string) *Client {
	client := &Client{
		Topic: topic,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.last[topic]; ok {
		client.Send <- last
	}
	if h.clients[topic] == nil {
		h.clients[topic] = map[*Client]struct{}{}
	}
	h.clients[topic][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	topicClients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := topicClients[client]; !ok {
		return
	}
	delete(topicClients, client)
	if len(topicClients) == 0 {
		delete(h.clients, client.Topic)
	}
	close(client.Send)
}

func (h *Hub) Broadcast(topic string, payload []byte) {
	if h.redis != nil {
		err := h.redis.Publish(context.Background(), h.redisChannel(topic), payload).Err()
		if err == nil {
			return
		}
		logrus.WithError(err).WithField("topic", topic).Warn("redis publish failed, delivering locally")
	}
	h.deliver(topic, payload)
}

// BroadcastJSON marshals v and broadcasts it.
func (h *Hub) BroadcastJSON(topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).WithField("topic", topic).Error("marshal stream event")
		return
	}
	h.Broadcast(topic, payload)
}

func (h *Hub) Close() {
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}

func (h *Hub) deliver(topic string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[topic] = payload
	for client := range h.clients[topic] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) relay(pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		topic := h.topicFromChannel(msg.Channel)
		if topic == "" {
			continue
		}
		h.deliver(topic, []byte(msg.Payload))
	}
}

// Forward broadcasts every value read from events as JSON until the channel
// closes or ctx ends.
func Forward[T any](ctx context.Context, h *Hub, topic string, events <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.BroadcastJSON(topic, ev)
		}
	}
}

func (h *Hub) redisChannel(topic string) string {
	return h.prefix + topic + channelSuffix
}

// topicFromChannel extracts the topic from trailzap:{device}:{topic}:events.
func (h *Hub) topicFromChannel(ch string) string {
	if !strings.HasPrefix(ch, h.prefix) || !strings.HasSuffix(ch, channelSuffix) ||
		len(ch) <= len(h.prefix)+len(channelSuffix) {
		return ""
	}
	topic := ch[len(h.prefix) : len(ch)-len(channelSuffix)]
	if !h.Known(topic) {
		return ""
	}
	return topic
}

// scopeName keeps channel names free of Redis glob characters.
func scopeName(deviceID string) string {
	if deviceID == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, deviceID)
}
