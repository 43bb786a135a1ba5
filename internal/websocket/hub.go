package websocket

import (
	"context"
	"encoding/json"

	"entrust-concierge-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ClusterChannel carries frames between instances so a visitor connected to
// one node still sees deliveries produced on another.
const ClusterChannel = "concierge_events"

// broadcastTarget addresses every connected visitor.
const broadcastTarget = "*"

type clusterFrame struct {
	Origin          string          `json:"origin"`
	TargetVisitorID string          `json:"target_visitor_id"`
	Message         json.RawMessage `json:"message"`
}

type Hub struct {
	// Registered clients: visitor id -> connections (several tabs share one visitor).
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery

	// done is closed when Run returns so late senders give up instead of
	// blocking forever.
	done chan struct{}

	// Redis connection for cross-instance communication, nil when single-node.
	rdb *redis.Client

	// instanceID tags frames this node published so its own subscriber skips them.
	instanceID string

	logger logger.ILogger
}

type delivery struct {
	target string
	data   []byte
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[string][]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// Run owns the client map. All reads and writes of it happen here.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			for _, clients := range h.clients {
				for _, c := range clients {
					close(c.Send)
				}
			}
			h.clients = make(map[string][]*Client)
			return

		case client := <-h.register:
			h.clients[client.VisitorID] = append(h.clients[client.VisitorID], client)
			// The snapshot is taken once the client is registered, so every
			// later change reaches it as a frame and none falls in between.
			if client.initial != nil {
				if frame := client.initial(); frame != nil {
					client.Send <- frame
				}
			}
			h.logger.Info("Hub", "Client registered", map[string]interface{}{
				"visitor_id":  client.VisitorID,
				"connections": len(h.clients[client.VisitorID]),
			})

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.deliver:
			h.fanOut(d)
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.VisitorID]
	if !ok {
		return
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.VisitorID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.VisitorID]) == 0 {
		delete(h.clients, client.VisitorID)
		h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"visitor_id": client.VisitorID})
	}
}

func (h *Hub) fanOut(d delivery) {
	var targets []*Client
	if d.target == broadcastTarget {
		for _, clients := range h.clients {
			targets = append(targets, clients...)
		}
	} else {
		targets = h.clients[d.target]
	}

	for _, client := range targets {
		select {
		case client.Send <- d.data:
		default:
			// A reader that cannot keep up loses the connection; the widget
			// reconnects and refetches the snapshot.
			h.logger.Warn("Hub", "Client Send buffer full, dropping connection", map[string]interface{}{"visitor_id": client.VisitorID})
			h.remove(client)
		}
	}
}

// SendToVisitor queues a frame for every connection of visitorID, here and on
// other instances.
func (h *Hub) SendToVisitor(visitorID string, data []byte) {
	h.enqueue(delivery{target: visitorID, data: data})
	h.publish(visitorID, data)
}

// Broadcast queues a frame for every connected visitor.
func (h *Hub) Broadcast(data []byte) {
	h.enqueue(delivery{target: broadcastTarget, data: data})
	h.publish(broadcastTarget, data)
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

// join registers client. It reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) publish(target string, data []byte) {
	if h.rdb == nil {
		return
	}
	payload, err := json.Marshal(clusterFrame{Origin: h.instanceID, TargetVisitorID: target, Message: data})
	if err != nil {
		return
	}
	if err := h.rdb.Publish(context.Background(), ClusterChannel, payload).Err(); err != nil {
		h.logger.Warn("Hub", "Redis publish failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, ClusterChannel)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		var frame clusterFrame
		if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
			h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err.Error()})
			continue
		}
		if frame.Origin == h.instanceID {
			continue
		}
		h.enqueue(delivery{target: frame.TargetVisitorID, data: frame.Message})
	}
}
