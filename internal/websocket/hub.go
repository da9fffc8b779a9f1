package websocket

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"groupbuy/internal/models"
	"groupbuy/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ============ sync.Pool для JSON буферов ============

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// broadcastBufferSize ёмкость очереди broadcast, при переполнении сообщения отбрасываются
const broadcastBufferSize = 256

// outbound сообщение с ключом пула для фильтрации подписок
type outbound struct {
	data   []byte
	poolID string
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Рассылает клиентам зафиксированные переходы заказов и изменения пулов.
// Реализует service.EventPublisher, подключается к движку через MultiPublisher.
//
// Клиент может подписаться на один пул: /ws/stream?pool_group_id=<id>.
// Без параметра клиент получает все события.
//
// Использование:
// 1. Создать hub: hub := NewHub(origins, logger)
// 2. Запустить: g.Go(func() error { return hub.Run(ctx) })
// 3. Маршрут: router.HandleFunc("/ws/stream", hub.ServeWS)
type Hub struct {
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	dropped  atomic.Int64
	origins  *OriginChecker
	log      *utils.Logger
	now      func() time.Time
	stopOnce sync.Once

	mu sync.RWMutex
}

// NewHub создает новый Hub. Пустой список origins разрешает все.
func NewHub(origins []string, log *utils.Logger) *Hub {
	if log == nil {
		log = utils.L()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, broadcastBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		origins:    NewOriginChecker(origins),
		log:        log.WithComponent("ws_hub"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run главный цикл Hub, блокируется до отмены ctx.
// При остановке закрывает каналы всех клиентов.
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client connected", zap.Int("clients", total))

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver копирует список клиентов под RLock и отправляет без блокировки.
// Медленные клиенты отключаются.
func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		if !client.wants(msg.poolID) {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			slow = append(slow, client)
		}
	}

	for _, client := range slow {
		h.remove(client)
	}
	if len(slow) > 0 {
		h.log.Warn("removed slow clients", zap.Int("removed", len(slow)), zap.Int("clients", h.ClientCount()))
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("client disconnected", zap.Int("clients", total))
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.mu.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mu.Unlock()
	})
}

// Broadcast сериализует сообщение и ставит в очередь без блокировки.
// poolID пустой = сообщение для всех клиентов.
func (h *Hub) Broadcast(poolID string, message interface{}) error {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer jsonBufferPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		return err
	}

	data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)

	select {
	case <-h.done:
		return nil
	case h.broadcast <- outbound{data: msgCopy, poolID: poolID}:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// PublishTransition отправляет переход заказа подписчикам его пула
func (h *Hub) PublishTransition(ctx context.Context, ev models.TransitionEvent) error {
	return h.Broadcast(ev.PoolGroupID, NewTransitionMessage(ev, h.now()))
}

// PublishPool отправляет снимок пула
func (h *Hub) PublishPool(ctx context.Context, pool *models.PoolGroup) error {
	return h.Broadcast(pool.ID, NewPoolUpdateMessage(pool, h.now()))
}

// ServeWS HTTP handler для /ws/stream
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	serveWS(h, w, r)
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages сколько сообщений отброшено из-за переполнения очереди
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
