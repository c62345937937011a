package render

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/annel0/voxelstream/internal/eventbus"
	"github.com/annel0/voxelstream/internal/logging"
	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/vec"
)

// Приоритеты событий: снятие меша важнее публикации,
// иначе потребитель может показывать выгруженный чанк.
const (
	PublishPriority = 5
	RetractPriority = 7

	EnvelopeVersion = 1

	retryDelay = 50 * time.Millisecond
)

// Renderer — получатель мешей (совпадает с stream.Renderer)
type Renderer interface {
	Publish(coord vec.Vec3, m *mesh.Mesh)
	Retract(coord vec.Vec3)
}

// BusRenderer отправляет меши в шину событий.
// Публикация mesh.published несёт сжатый меш, mesh.retracted — координату.
//
// Publish и Retract только ставят операцию в очередь и не блокируются.
// Очередь хранит по одной операции на чанк: новая заменяет ещё не
// отправленную, сохраняя её место. Отправкой занимается собственная горутина.
type BusRenderer struct {
	bus    eventbus.EventBus
	codec  *Codec
	source string
	logger *logging.Logger

	mu      sync.Mutex
	order   []vec.Vec3
	pending map[vec.Vec3]*mesh.Mesh // nil — снятие меша
	closing bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBusRenderer создаёт рендерер поверх шины и запускает горутину отправки.
// Остановить её нужно через Close.
func NewBusRenderer(bus eventbus.EventBus, codec *Codec, source string, logger *logging.Logger) *BusRenderer {
	r := newBusRenderer(bus, codec, source, logger)
	go r.loop()
	return r
}

func newBusRenderer(bus eventbus.EventBus, codec *Codec, source string, logger *logging.Logger) *BusRenderer {
	if logger == nil {
		logger = logging.GetComponentLogger("render")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BusRenderer{
		bus:     bus,
		codec:   codec,
		source:  source,
		logger:  logger,
		pending: make(map[vec.Vec3]*mesh.Mesh),
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Publish реализует Renderer
func (r *BusRenderer) Publish(coord vec.Vec3, m *mesh.Mesh) {
	if m == nil {
		m = &mesh.Mesh{Coord: coord}
	}
	r.enqueue(coord, m)
}

// Retract реализует Renderer
func (r *BusRenderer) Retract(coord vec.Vec3) {
	r.enqueue(coord, nil)
}

// Close отправляет накопленные операции и останавливает горутину.
// Если ctx истёк раньше, оставшиеся операции отбрасываются.
func (r *BusRenderer) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	r.mu.Unlock()
	r.signal()

	select {
	case <-r.done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-r.done
		return ctx.Err()
	}
}

func (r *BusRenderer) enqueue(coord vec.Vec3, m *mesh.Mesh) {
	r.mu.Lock()
	if _, queued := r.pending[coord]; !queued {
		r.order = append(r.order, coord)
	}
	r.pending[coord] = m
	r.mu.Unlock()
	r.signal()
}

// requeue возвращает неотправленную операцию в хвост, если её ещё не заменили
func (r *BusRenderer) requeue(coord vec.Vec3, m *mesh.Mesh) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, queued := r.pending[coord]; queued {
		return
	}
	r.order = append(r.order, coord)
	r.pending[coord] = m
}

func (r *BusRenderer) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *BusRenderer) next() (coord vec.Vec3, m *mesh.Mesh, ok, closing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return vec.Vec3{}, nil, false, r.closing
	}
	coord = r.order[0]
	r.order = r.order[1:]
	m = r.pending[coord]
	delete(r.pending, coord)
	return coord, m, true, r.closing
}

// backlog возвращает число операций, ожидающих отправки
func (r *BusRenderer) backlog() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func (r *BusRenderer) loop() {
	defer close(r.done)
	for r.ctx.Err() == nil {
		coord, m, ok, closing := r.next()
		if ok {
			if !r.send(coord, m) {
				r.requeue(coord, m)
				select {
				case <-time.After(retryDelay):
				case <-r.ctx.Done():
					return
				}
			}
			continue
		}
		if closing {
			return
		}
		select {
		case <-r.wake:
		case <-r.ctx.Done():
			return
		}
	}
}

// send отправляет одну операцию. false означает, что её стоит повторить.
func (r *BusRenderer) send(coord vec.Vec3, m *mesh.Mesh) bool {
	var ev *eventbus.Envelope
	if m == nil {
		ev = r.envelope(eventbus.EventMeshRetracted, coord, RetractPriority, EncodeCoord(coord))
	} else {
		payload, err := r.codec.EncodeMesh(m)
		if err != nil {
			r.logger.Error("Не удалось сериализовать меш %s: %v", coord, err)
			return true
		}
		ev = r.envelope(eventbus.EventMeshPublished, coord, PublishPriority, payload)
		ev.Metadata["triangles"] = strconv.Itoa(m.Triangles())
	}

	err := r.bus.Publish(r.ctx, ev)
	switch {
	case err == nil:
		r.logger.Trace("Отправлено %s %s (%d байт)", ev.EventType, coord, len(ev.Payload))
		return true
	case errors.Is(err, eventbus.ErrClosed) || r.ctx.Err() != nil:
		r.logger.Warn("Событие %s для %s не доставлено: %v", ev.EventType, coord, err)
		return true
	default:
		r.logger.Warn("Событие %s для %s не доставлено, повтор: %v", ev.EventType, coord, err)
		return false
	}
}

func (r *BusRenderer) envelope(eventType string, coord vec.Vec3, priority int, payload []byte) *eventbus.Envelope {
	return &eventbus.Envelope{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Source:        r.source,
		EventType:     eventType,
		Version:       EnvelopeVersion,
		CorrelationID: coord.String(),
		Priority:      priority,
		Payload:       payload,
		Metadata:      map[string]string{"chunk": coord.String()},
	}
}

// encodedPublisher принимает меш в формате Codec без повторной сериализации
type encodedPublisher interface {
	PublishEncoded(coord vec.Vec3, data []byte)
}

// Forward подписывается на события мешей и передаёт их в dst.
// Обратная сторона BusRenderer: так просмотрщик отделяется от конвейера шиной.
// Если dst умеет PublishEncoded, меш передаётся без распаковки.
func Forward(ctx context.Context, bus eventbus.EventBus, codec *Codec, dst Renderer, logger *logging.Logger) (eventbus.Subscription, error) {
	if logger == nil {
		logger = logging.GetComponentLogger("render")
	}
	filter := eventbus.Filter{Types: []string{eventbus.EventMeshPublished, eventbus.EventMeshRetracted}}

	return bus.Subscribe(ctx, filter, func(ctx context.Context, ev *eventbus.Envelope) {
		switch ev.EventType {
		case eventbus.EventMeshPublished:
			if enc, ok := dst.(encodedPublisher); ok {
				coord, err := MeshCoord(ev.Payload)
				if err != nil {
					logger.Warn("Событие %s отброшено: %v", ev.ID, err)
					return
				}
				enc.PublishEncoded(coord, ev.Payload)
				return
			}
			m, err := codec.DecodeMesh(ev.Payload)
			if err != nil {
				logger.Warn("Событие %s отброшено: %v", ev.ID, err)
				return
			}
			dst.Publish(m.Coord, m)
		case eventbus.EventMeshRetracted:
			coord, err := DecodeCoord(ev.Payload)
			if err != nil {
				logger.Warn("Событие %s отброшено: %v", ev.ID, err)
				return
			}
			dst.Retract(coord)
		}
	})
}
