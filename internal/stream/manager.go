// Package stream управляет жизненным циклом чанков вокруг точек наблюдения:
// загружает новые координаты, строит и перестраивает меши, выгружает дальние.
package stream

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxelstream/internal/logging"
	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// Config — параметры конвейера, фиксируются при старте
type Config struct {
	ChunkSize          int
	RenderDistance     int           // Радиус стриминга в чанках (метрика Чебышёва)
	TickInterval       time.Duration // Период Run
	UnloadInterval     time.Duration // Период прохода выгрузки
	MaxDispatchPerTick int           // 0 — без ограничения
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		ChunkSize:      world.DefaultChunkSize,
		RenderDistance: 5,
		TickInterval:   time.Second / 60,
		UnloadInterval: time.Second,
	}
}

// cell — запись индекса для одной координаты
type cell struct {
	state      State
	ticket     uint64 // Идентичность записи: билет генерации
	meshTicket uint64 // Билет текущей (последней) задачи меша

	volume     *world.Volume
	boundaries [voxel.DirectionCount]*world.Boundary

	// snapshot[d] — билет соседа со стороны d, чьи границы вошли
	// в последнюю отправленную задачу меша (0 — сосед не учтён)
	snapshot [voxel.DirectionCount]uint64
	dirty    bool // Соседи изменились, пока меш строился
	meshed   bool // Меш построен хотя бы раз

	published bool
	triangles int
}

// Option настраивает Manager
type Option func(*Manager)

// WithLogger задаёт логгер
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics задаёт метрики
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithTracer задаёт трассировщик для единиц работы
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) { m.tracer = t }
}

// Manager владеет индексом чанков. Индекс меняется только внутри Tick,
// воркеры получают неизменяемые входные данные и возвращают результаты
// через очередь.
type Manager struct {
	cfg      Config
	gen      VolumeGenerator
	builder  MeshBuilder
	exec     Executor
	renderer Renderer

	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer

	cells      map[vec.Vec3]*cell
	results    resultQueue
	nextTicket uint64
	inFlight   atomic.Int64
	lastUnload time.Time
	centers    []vec.Vec3
	counters   counters

	stats atomic.Pointer[Stats]
}

// NewManager создаёт менеджер. renderer может быть nil.
func NewManager(cfg Config, gen VolumeGenerator, builder MeshBuilder, exec Executor, renderer Renderer, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.RenderDistance < 0 {
		cfg.RenderDistance = 0
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.UnloadInterval <= 0 {
		cfg.UnloadInterval = def.UnloadInterval
	}
	if renderer == nil {
		renderer = discardRenderer{}
	}

	m := &Manager{
		cfg:      cfg,
		gen:      gen,
		builder:  builder,
		exec:     exec,
		renderer: renderer,
		cells:    make(map[vec.Vec3]*cell),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = logging.GetStreamLogger()
	}
	if m.metrics == nil {
		m.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer("voxelstream/stream")
	}

	m.stats.Store(&Stats{Chunks: map[string]int{}})
	return m
}

// Config возвращает действующую конфигурацию
func (m *Manager) Config() Config {
	return m.cfg
}

// Run вызывает Tick с периодом TickInterval до отмены контекста
func (m *Manager) Run(ctx context.Context, source ViewpointSource) error {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	m.logger.Info("Конвейер чанков запущен: N=%d, R=%d, тик=%v",
		m.cfg.ChunkSize, m.cfg.RenderDistance, m.cfg.TickInterval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Конвейер чанков остановлен")
			return ctx.Err()
		case now := <-ticker.C:
			m.Tick(now, source.Viewpoints())
		}
	}
}

// Tick выполняет один шаг управляющего цикла: применяет готовые результаты,
// догружает чанки в радиусе и, если пора, выгружает дальние.
func (m *Manager) Tick(now time.Time, viewpoints []mgl32.Vec3) {
	for _, r := range m.results.drain() {
		m.apply(r)
	}

	// Без точек наблюдения радиус не определён: ничего не грузим и не выгружаем
	m.updateCenters(viewpoints)
	if len(m.centers) > 0 {
		m.stream()

		if m.lastUnload.IsZero() || now.Sub(m.lastUnload) >= m.cfg.UnloadInterval {
			m.unload()
			m.lastUnload = now
		}
	}

	m.publishStats(now)
}

// Load принудительно ставит координату в конвейер, если её ещё нет.
// Вызывается только из управляющей горутины.
func (m *Manager) Load(coord vec.Vec3) {
	if _, ok := m.cells[coord]; ok {
		return
	}
	c := &cell{state: VolumePending, ticket: m.next()}
	m.cells[coord] = c
	m.dispatchVolume(coord, c)
}

// State возвращает состояние координаты. Только для управляющей горутины.
func (m *Manager) State(coord vec.Vec3) State {
	if c, ok := m.cells[coord]; ok {
		return c.state
	}
	return Unloaded
}

// Len возвращает количество координат в индексе
func (m *Manager) Len() int {
	return len(m.cells)
}

// Stats возвращает последний опубликованный снимок; безопасен из любой горутины
func (m *Manager) Stats() Stats {
	return *m.stats.Load()
}

func (m *Manager) next() uint64 {
	m.nextTicket++
	return m.nextTicket
}

func (m *Manager) updateCenters(viewpoints []mgl32.Vec3) {
	m.centers = m.centers[:0]
	for _, vp := range viewpoints {
		c := vec.ChunkOf(vp, m.cfg.ChunkSize)
		dup := false
		for _, existing := range m.centers {
			if existing == c {
				dup = true
				break
			}
		}
		if !dup {
			m.centers = append(m.centers, c)
		}
	}
}

// distance возвращает расстояние Чебышёва до ближайшего центра (-1, если центров нет)
func (m *Manager) distance(coord vec.Vec3) int {
	best := -1
	for _, c := range m.centers {
		if d := coord.Chebyshev(c); best < 0 || d < best {
			best = d
		}
	}
	return best
}

func (m *Manager) inRange(coord vec.Vec3) bool {
	d := m.distance(coord)
	return d >= 0 && d <= m.cfg.RenderDistance
}

// stream ставит в работу все недостающие координаты в радиусе, ближние первыми
func (m *Manager) stream() {
	r := m.cfg.RenderDistance

	type candidate struct {
		coord vec.Vec3
		dist  int
	}
	seen := make(map[vec.Vec3]bool)
	var missing []candidate

	for _, center := range m.centers {
		for dx := -r; dx <= r; dx++ {
			for dy := -r; dy <= r; dy++ {
				for dz := -r; dz <= r; dz++ {
					coord := center.Add(vec.Vec3{X: dx, Y: dy, Z: dz})
					if _, ok := m.cells[coord]; ok || seen[coord] {
						continue
					}
					seen[coord] = true
					missing = append(missing, candidate{coord: coord, dist: m.distance(coord)})
				}
			}
		}
	}

	sort.Slice(missing, func(i, j int) bool {
		a, b := missing[i], missing[j]
		if a.dist != b.dist {
			return a.dist < b.dist
		}
		if a.coord.Y != b.coord.Y {
			return a.coord.Y < b.coord.Y
		}
		if a.coord.X != b.coord.X {
			return a.coord.X < b.coord.X
		}
		return a.coord.Z < b.coord.Z
	})

	if limit := m.cfg.MaxDispatchPerTick; limit > 0 && len(missing) > limit {
		missing = missing[:limit]
	}
	for _, c := range missing {
		m.Load(c.coord)
	}
}

// unload удаляет все координаты вне радиуса
func (m *Manager) unload() {
	var gone []vec.Vec3
	for coord := range m.cells {
		if !m.inRange(coord) {
			gone = append(gone, coord)
		}
	}
	if len(gone) == 0 {
		return
	}

	m.removeCells(gone)
	m.counters.unloads += uint64(len(gone))
	m.metrics.unloads.Add(float64(len(gone)))
	m.logger.Debug("Выгружено чанков: %d, в индексе: %d", len(gone), len(m.cells))
}

// removeCells удаляет координаты из индекса, убирает их меши и
// перестраивает выживших соседей, чьи меши учитывали удалённые границы.
func (m *Manager) removeCells(coords []vec.Vec3) {
	removed := make(map[vec.Vec3]uint64, len(coords))
	for _, coord := range coords {
		c, ok := m.cells[coord]
		if !ok {
			continue
		}
		delete(m.cells, coord)
		if c.published {
			m.renderer.Retract(coord)
		}
		removed[coord] = c.ticket
	}

	for coord, ticket := range removed {
		for d := voxel.Direction(0); d < voxel.DirectionCount; d++ {
			nc := coord.Add(d.Offset())
			nb, ok := m.cells[nc]
			if !ok || nb.snapshot[d.Opposite()] != ticket {
				continue
			}
			m.invalidate(nc, nb)
		}
	}
}

// invalidate требует перестроить меш соседа: сразу, если он готов,
// или после завершения текущей задачи, если она в работе
func (m *Manager) invalidate(coord vec.Vec3, c *cell) {
	switch c.state {
	case MeshReady:
		m.counters.remeshes++
		m.metrics.remeshes.Inc()
		m.dispatchMesh(coord, c)
	case MeshPending:
		c.dirty = true
	}
}

func (m *Manager) dispatchVolume(coord vec.Vec3, c *cell) {
	gen := m.gen
	m.submit(unitVolume, coord, c.ticket, func(r *result) {
		vol := gen.Generate(coord)
		r.volume = vol
		for d := range r.boundaries {
			r.boundaries[d] = vol.Boundary(voxel.Direction(d))
		}
	})
}

// dispatchMesh отправляет построение меша со снимком границ соседей,
// у которых меш уже был построен
func (m *Manager) dispatchMesh(coord vec.Vec3, c *cell) {
	var neighbors mesh.NeighborSet
	for d := voxel.Direction(0); d < voxel.DirectionCount; d++ {
		c.snapshot[d] = 0
		nb, ok := m.cells[coord.Add(d.Offset())]
		if !ok || !nb.meshed {
			continue
		}
		neighbors[d] = nb.boundaries[d.Opposite()]
		c.snapshot[d] = nb.ticket
	}

	c.state = MeshPending
	c.dirty = false
	c.meshTicket = m.next()

	vol := c.volume
	builder := m.builder
	m.submit(unitMesh, coord, c.meshTicket, func(r *result) {
		r.mesh = builder.Build(vol, neighbors)
	})
}

// submit отправляет единицу работы исполнителю. Паника внутри work
// превращается в ошибку результата.
func (m *Manager) submit(kind unitKind, coord vec.Vec3, ticket uint64, work func(r *result)) {
	m.counters.dispatched++
	m.metrics.dispatched.WithLabelValues(kind.String()).Inc()
	m.inFlight.Add(1)

	m.exec.Submit(func() {
		r := result{kind: kind, coord: coord, ticket: ticket}
		start := time.Now()
		_, span := m.tracer.Start(context.Background(), "stream."+kind.String(),
			trace.WithAttributes(
				attribute.Int("chunk.x", coord.X),
				attribute.Int("chunk.y", coord.Y),
				attribute.Int("chunk.z", coord.Z),
			))

		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("%s %s: паника: %v", kind, coord, p)
				span.RecordError(r.err)
				span.SetStatus(codes.Error, "panic")
			}
			span.End()
			r.elapsed = time.Since(start)
			m.inFlight.Add(-1)
			m.results.push(r)
		}()

		work(&r)
	})
}

// owns проверяет, что результат относится к текущей задаче записи
func (c *cell) owns(r result) bool {
	if r.kind == unitVolume {
		return c.state == VolumePending && c.ticket == r.ticket
	}
	return c.state == MeshPending && c.meshTicket == r.ticket
}

// apply применяет результат единицы работы к индексу
func (m *Manager) apply(r result) {
	kind := r.kind.String()
	m.metrics.duration.WithLabelValues(kind).Observe(r.elapsed.Seconds())

	c, ok := m.cells[r.coord]
	if !ok || !c.owns(r) {
		m.counters.stale++
		m.metrics.stale.WithLabelValues(kind).Inc()
		if r.err != nil {
			m.counters.failed++
			m.metrics.failed.WithLabelValues(kind).Inc()
		}
		return
	}

	if r.err != nil {
		m.counters.failed++
		m.metrics.failed.WithLabelValues(kind).Inc()
		m.logger.Error("Сбой задачи, координата %s сброшена: %v", r.coord, r.err)
		m.removeCells([]vec.Vec3{r.coord})
		return
	}

	m.counters.completed++
	m.metrics.completed.WithLabelValues(kind).Inc()

	switch r.kind {
	case unitVolume:
		c.volume = r.volume
		c.boundaries = r.boundaries
		c.state = VolumeReady
		m.dispatchMesh(r.coord, c)

	case unitMesh:
		c.state = MeshReady
		c.meshed = true
		c.published = true
		c.triangles = r.mesh.Triangles()
		m.renderer.Publish(r.coord, r.mesh)

		if c.dirty {
			m.counters.remeshes++
			m.metrics.remeshes.Inc()
			m.dispatchMesh(r.coord, c)
		}
		m.fanOut(r.coord, c)
	}
}

// fanOut перестраивает соседей, чьи меши ещё не учитывают границы c
func (m *Manager) fanOut(coord vec.Vec3, c *cell) {
	for d := voxel.Direction(0); d < voxel.DirectionCount; d++ {
		nc := coord.Add(d.Offset())
		nb, ok := m.cells[nc]
		if !ok || nb.snapshot[d.Opposite()] == c.ticket {
			continue
		}
		m.invalidate(nc, nb)
	}
}

func (m *Manager) publishStats(now time.Time) {
	s := &Stats{
		Tick:       now,
		Chunks:     make(map[string]int, len(trackedStates)),
		Loaded:     len(m.cells),
		InFlight:   m.inFlight.Load(),
		Dispatched: m.counters.dispatched,
		Completed:  m.counters.completed,
		Failed:     m.counters.failed,
		Stale:      m.counters.stale,
		Remeshes:   m.counters.remeshes,
		Unloads:    m.counters.unloads,
		Centers:    append([]vec.Vec3(nil), m.centers...),
	}
	if occ, ok := m.exec.(occupancy); ok {
		s.WorkersBusy = occ.Running()
		s.QueuedTasks = occ.Waiting()
	}
	for _, st := range trackedStates {
		s.Chunks[st.String()] = 0
	}
	for _, c := range m.cells {
		s.Chunks[c.state.String()]++
		if c.published {
			s.Published++
			s.Triangles += c.triangles
		}
	}

	for state, n := range s.Chunks {
		m.metrics.chunks.WithLabelValues(state).Set(float64(n))
	}
	m.metrics.triangles.Set(float64(s.Triangles))
	m.stats.Store(s)
}
