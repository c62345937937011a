package viewer

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelstream/internal/logging"
	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/render"
	"github.com/annel0/voxelstream/internal/stream"
	"github.com/annel0/voxelstream/internal/vec"
)

func newTestHub(t *testing.T, fallback stream.ViewpointSource) (*Hub, *render.Codec, *httptest.Server) {
	t.Helper()
	codec, err := render.NewCodec()
	require.NoError(t, err)
	t.Cleanup(codec.Close)

	hub := NewHub(codec, 32, fallback, logging.NewConsoleLogger("viewer", io.Discard, logging.ERROR))
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, codec, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func readMesh(t *testing.T, conn *websocket.Conn, codec *render.Codec) *mesh.Mesh {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	m, err := codec.DecodeMesh(data)
	require.NoError(t, err)
	return m
}

func triangle(coord vec.Vec3) *mesh.Mesh {
	return &mesh.Mesh{
		Coord:     coord,
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
		UVs:       []mgl32.Vec2{{0, 0}, {1, 0}, {0, 1}},
		Indices:   []uint32{0, 1, 2},
	}
}

func TestHubReplaysCacheOnJoin(t *testing.T) {
	hub, codec, srv := newTestHub(t, nil)
	coord := vec.Vec3{X: 1, Y: 2, Z: 3}
	hub.Publish(coord, triangle(coord))
	assert.Equal(t, 1, hub.Cached())

	conn := dial(t, srv)
	hello := readText(t, conn)
	assert.Equal(t, MessageHello, hello.Type)
	assert.Equal(t, 32, hello.ChunkSize)
	assert.NotEmpty(t, hello.ClientID)

	assert.Equal(t, triangle(coord), readMesh(t, conn, codec))
}

func TestHubBroadcastsPublishAndRetract(t *testing.T) {
	hub, codec, srv := newTestHub(t, nil)
	conn := dial(t, srv)
	readText(t, conn)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	coord := vec.Vec3{X: -1}
	hub.Publish(coord, triangle(coord))
	assert.Equal(t, coord, readMesh(t, conn, codec).Coord)

	hub.Retract(coord)
	msg := readText(t, conn)
	assert.Equal(t, MessageRetract, msg.Type)
	require.NotNil(t, msg.Chunk)
	assert.Equal(t, [3]int{-1, 0, 0}, *msg.Chunk)
	assert.Zero(t, hub.Cached())
}

func TestHubPublishEncodedSendsBytesAsIs(t *testing.T) {
	hub, _, srv := newTestHub(t, nil)
	coord := vec.Vec3{Z: 9}
	payload := append(render.EncodeCoord(coord), 0xde, 0xad, 0xbe, 0xef)
	hub.PublishEncoded(coord, payload)
	assert.Equal(t, 1, hub.Cached())

	conn := dial(t, srv)
	readText(t, conn)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, payload, data)
}

func TestHubViewpoints(t *testing.T) {
	fallback := stream.StaticViewpoints{{0, 0, 0}}
	hub, _, srv := newTestHub(t, fallback)

	// Без клиентов используется запасной источник
	assert.Equal(t, []mgl32.Vec3(fallback), hub.Viewpoints())

	conn := dial(t, srv)
	readText(t, conn)
	require.NoError(t, conn.WriteJSON(Message{Type: MessageViewpoint, Position: &[3]float32{10, 20, -30}}))

	require.Eventually(t, func() bool {
		points := hub.Viewpoints()
		return len(points) == 1 && points[0] == mgl32.Vec3{10, 20, -30}
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []mgl32.Vec3(fallback), hub.Viewpoints())
}

func TestHubIgnoresMalformedMessages(t *testing.T) {
	hub, _, srv := newTestHub(t, nil)
	conn := dial(t, srv)
	readText(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(Message{Type: MessageViewpoint}))
	require.NoError(t, conn.WriteJSON(Message{Type: MessageViewpoint, Position: &[3]float32{1, 1, 1}}))

	require.Eventually(t, func() bool { return len(hub.Viewpoints()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.Clients())
}
