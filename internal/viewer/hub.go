// Package viewer раздаёт меши браузерным просмотрщикам по веб-сокету
// и принимает от них точки наблюдения.
package viewer

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/annel0/voxelstream/internal/logging"
	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/render"
	"github.com/annel0/voxelstream/internal/stream"
	"github.com/annel0/voxelstream/internal/vec"
)

const (
	sendQueue = 4096
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
)

// Типы текстовых сообщений протокола
const (
	MessageHello     = "hello"     // сервер → клиент при подключении
	MessageRetract   = "retract"   // сервер → клиент, меш чанка снят
	MessageViewpoint = "viewpoint" // клиент → сервер, позиция камеры
)

// Message — текстовое JSON-сообщение. Меши идут бинарными кадрами в формате render.Codec.
type Message struct {
	Type      string      `json:"type"`
	ClientID  string      `json:"client_id,omitempty"`
	ChunkSize int         `json:"chunk_size,omitempty"`
	Chunk     *[3]int     `json:"chunk,omitempty"`
	Position  *[3]float32 `json:"position,omitempty"`
}

type frame struct {
	kind int
	data []byte
}

type client struct {
	id           string
	out          chan frame
	viewpoint    mgl32.Vec3
	hasViewpoint bool
}

// Hub одновременно является рендерером и источником точек наблюдения.
// Пока нет ни одного клиента с позицией, точки берутся из fallback.
type Hub struct {
	codec     *render.Codec
	fallback  stream.ViewpointSource
	chunkSize int
	logger    *logging.Logger
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	meshes  map[vec.Vec3][]byte
}

// NewHub создаёт хаб. fallback может быть nil.
func NewHub(codec *render.Codec, chunkSize int, fallback stream.ViewpointSource, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.GetViewerLogger()
	}
	return &Hub{
		codec:     codec,
		fallback:  fallback,
		chunkSize: chunkSize,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
		meshes:  make(map[vec.Vec3][]byte),
	}
}

// Publish реализует stream.Renderer
func (h *Hub) Publish(coord vec.Vec3, m *mesh.Mesh) {
	data, err := h.codec.EncodeMesh(m)
	if err != nil {
		h.logger.Error("Не удалось сериализовать меш %s: %v", coord, err)
		return
	}

	h.PublishEncoded(coord, data)
}

// PublishEncoded кэширует и рассылает меш, уже сериализованный render.Codec
func (h *Hub) PublishEncoded(coord vec.Vec3, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.meshes[coord] = data
	h.broadcastLocked(frame{kind: websocket.BinaryMessage, data: data})
}

// Retract реализует stream.Renderer
func (h *Hub) Retract(coord vec.Vec3) {
	data, _ := json.Marshal(Message{Type: MessageRetract, Chunk: &[3]int{coord.X, coord.Y, coord.Z}})

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.meshes, coord)
	h.broadcastLocked(frame{kind: websocket.TextMessage, data: data})
}

// Viewpoints реализует stream.ViewpointSource
func (h *Hub) Viewpoints() []mgl32.Vec3 {
	h.mu.RLock()
	var points []mgl32.Vec3
	for c := range h.clients {
		if c.hasViewpoint {
			points = append(points, c.viewpoint)
		}
	}
	h.mu.RUnlock()

	if len(points) == 0 && h.fallback != nil {
		return h.fallback.Viewpoints()
	}
	return points
}

// Clients возвращает число подключённых клиентов
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Cached возвращает число мешей, которые получит новый клиент
func (h *Hub) Cached() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.meshes)
}

// Close отключает всех клиентов
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// broadcastLocked ставит кадр в очередь каждого клиента.
// Клиент, не успевающий читать, отключается.
func (h *Hub) broadcastLocked(f frame) {
	for c := range h.clients {
		select {
		case c.out <- f:
		default:
			h.logger.Warn("Клиент %s не успевает читать, отключаем", c.id)
			h.dropLocked(c)
		}
	}
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.out)
}

// register добавляет клиента и ставит ему приветствие и все известные меши
func (h *Hub) register() *client {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &client{
		id:  uuid.NewString(),
		out: make(chan frame, max(sendQueue, len(h.meshes)+2)),
	}
	hello, _ := json.Marshal(Message{Type: MessageHello, ClientID: c.id, ChunkSize: h.chunkSize})
	c.out <- frame{kind: websocket.TextMessage, data: hello}
	for _, data := range h.meshes {
		c.out <- frame{kind: websocket.BinaryMessage, data: data}
	}

	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) setViewpoint(c *client, pos mgl32.Vec3) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.viewpoint = pos
	c.hasViewpoint = true
}

// ServeHTTP принимает веб-сокет соединение просмотрщика
func (h *Hub) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		h.logger.Warn("Ошибка апгрейда соединения %s: %v", r.RemoteAddr, err)
		return
	}

	c := h.register()
	h.logger.Info("Просмотрщик %s подключился (%s)", c.id, r.RemoteAddr)

	done := make(chan struct{})
	go h.writeLoop(conn, c, done)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		kind, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if kind != websocket.TextMessage {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Debug("Клиент %s прислал некорректное сообщение: %v", c.id, err)
			continue
		}
		if msg.Type == MessageViewpoint && msg.Position != nil {
			h.setViewpoint(c, mgl32.Vec3(*msg.Position))
		}
	}

	h.unregister(c)
	<-done
	h.logger.Info("Просмотрщик %s отключился", c.id)
}

// writeLoop пишет кадры из очереди клиента, пока очередь не закрыта
func (h *Hub) writeLoop(conn *websocket.Conn, c *client, done chan<- struct{}) {
	defer close(done)
	defer conn.Close()

	for f := range c.out {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(f.kind, f.data); err != nil {
			h.logger.Debug("Запись клиенту %s не удалась: %v", c.id, err)
			// Закрытие соединения завершит цикл чтения и unregister закроет очередь
			conn.Close()
			for range c.out {
			}
			return
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
}
