package stream

import (
	"context"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/voxelstream/internal/atlas"
	"github.com/annel0/voxelstream/internal/logging"
	"github.com/annel0/voxelstream/internal/mesh"
	"github.com/annel0/voxelstream/internal/vec"
	"github.com/annel0/voxelstream/internal/world"
	"github.com/annel0/voxelstream/internal/world/voxel"
)

// manualExecutor копит задачи и выполняет их только по команде теста
type manualExecutor struct {
	tasks []func()
}

func (e *manualExecutor) Submit(task func()) {
	e.tasks = append(e.tasks, task)
}

// runAll выполняет все накопленные задачи в порядке отправки
func (e *manualExecutor) runAll() int {
	n := 0
	for len(e.tasks) > 0 {
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		task()
		n++
	}
	return n
}

// recordingRenderer запоминает опубликованные меши
type recordingRenderer struct {
	mu        sync.Mutex
	meshes    map[vec.Vec3]*mesh.Mesh
	publishes int
	retracts  []vec.Vec3
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{meshes: make(map[vec.Vec3]*mesh.Mesh)}
}

func (r *recordingRenderer) Publish(coord vec.Vec3, m *mesh.Mesh) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meshes[coord] = m
	r.publishes++
}

func (r *recordingRenderer) Retract(coord vec.Vec3) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.meshes, coord)
	r.retracts = append(r.retracts, coord)
}

func (r *recordingRenderer) get(coord vec.Vec3) *mesh.Mesh {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.meshes[coord]
}

// solidGenerator заполняет объёмы камнем, кроме координат из air
type solidGenerator struct {
	size  int
	air   map[vec.Vec3]bool
	panic map[vec.Vec3]int // сколько раз паниковать для координаты
	mu    sync.Mutex
}

func (g *solidGenerator) Generate(coord vec.Vec3) *world.Volume {
	g.mu.Lock()
	if g.panic[coord] > 0 {
		g.panic[coord]--
		g.mu.Unlock()
		panic("сбой генерации")
	}
	g.mu.Unlock()

	vol := world.NewVolume(coord, g.size)
	if g.air[coord] {
		return vol
	}
	for i := range vol.Voxels {
		vol.Voxels[i] = voxel.Voxel{Material: voxel.Stone, Solid: true}
	}
	return vol
}

// failingBuilder паникует на заданных координатах, остальное делегирует
type failingBuilder struct {
	inner MeshBuilder
	mu    sync.Mutex
	fail  map[vec.Vec3]bool
}

func (b *failingBuilder) Build(vol *world.Volume, ns mesh.NeighborSet) *mesh.Mesh {
	b.mu.Lock()
	fail := b.fail[vol.Coord]
	b.mu.Unlock()
	if fail {
		panic("сбой построения меша")
	}
	return b.inner.Build(vol, ns)
}

func testBuilder(t *testing.T) *mesh.Builder {
	t.Helper()
	g, err := atlas.NewGrid(8, 8)
	require.NoError(t, err)
	return mesh.NewBuilder(g)
}

func testOptions() []Option {
	return []Option{
		WithLogger(logging.NewConsoleLogger("stream", io.Discard, logging.ERROR)),
		WithMetrics(NewMetrics(prometheus.NewRegistry())),
	}
}

type fixture struct {
	m        *Manager
	exec     *manualExecutor
	renderer *recordingRenderer
	now      time.Time
}

func newFixture(t *testing.T, cfg Config, gen VolumeGenerator, builder MeshBuilder) *fixture {
	t.Helper()
	f := &fixture{
		exec:     &manualExecutor{},
		renderer: newRecordingRenderer(),
		now:      time.Unix(1000, 0),
	}
	f.m = NewManager(cfg, gen, builder, f.exec, f.renderer, testOptions()...)
	return f
}

// step выполняет задачи и делает тик
func (f *fixture) step(viewpoints ...mgl32.Vec3) {
	f.exec.runAll()
	f.tick(viewpoints...)
}

func (f *fixture) tick(viewpoints ...mgl32.Vec3) {
	f.now = f.now.Add(100 * time.Millisecond)
	f.m.Tick(f.now, viewpoints)
}

// settle крутит цикл, пока не закончатся задачи
func (f *fixture) settle(viewpoints ...mgl32.Vec3) {
	for i := 0; i < 100; i++ {
		if len(f.exec.tasks) == 0 {
			f.tick(viewpoints...)
			if len(f.exec.tasks) == 0 {
				return
			}
		}
		f.step(viewpoints...)
	}
}

// borderTriangles возвращает нижние углы (y, z) треугольников, лежащих
// целиком на плоскости x = plane
func borderTriangles(m *mesh.Mesh, plane float32) [][2]int {
	var out [][2]int
	for i := 0; i+2 < len(m.Indices); i += 3 {
		p0 := m.Positions[m.Indices[i]]
		p1 := m.Positions[m.Indices[i+1]]
		p2 := m.Positions[m.Indices[i+2]]
		if p0.X() != plane || p1.X() != plane || p2.X() != plane {
			continue
		}
		y := int(math.Floor(float64(min(p0.Y(), p1.Y(), p2.Y()))))
		z := int(math.Floor(float64(min(p0.Z(), p1.Z(), p2.Z()))))
		out = append(out, [2]int{y, z})
	}
	return out
}

func TestEndToEndNeighborTriggersRemesh(t *testing.T) {
	const n = world.DefaultChunkSize

	for _, cy := range []int{0, 1, 2, 3} {
		a := vec.Vec3{X: 0, Y: cy, Z: 0}
		b := vec.Vec3{X: 1, Y: cy, Z: 0}

		genCfg := world.DefaultGeneratorConfig()
		genCfg.DecorationChance = 0
		gen := world.NewGenerator(genCfg)

		cfg := DefaultConfig()
		f := newFixture(t, cfg, gen, testBuilder(t))

		// Сначала только (0,y,0)
		f.m.Load(a)
		f.step()
		require.Equal(t, MeshPending, f.m.State(a))
		f.step()
		require.Equal(t, MeshReady, f.m.State(a))
		first := f.renderer.get(a)
		require.NotNil(t, first)

		// Затем сосед по +X
		f.m.Load(b)
		f.step()
		require.Equal(t, MeshPending, f.m.State(b))
		f.step()
		require.Equal(t, MeshReady, f.m.State(b))

		// Готовность соседа обязана запустить перестроение (0,y,0)
		assert.Equal(t, MeshPending, f.m.State(a), "y=%d: ожидалось перестроение", cy)
		assert.Len(t, f.exec.tasks, 1)
		assert.Same(t, first, f.renderer.get(a), "старый меш остаётся до прихода нового")

		f.step()
		require.Equal(t, MeshReady, f.m.State(a))
		remeshed := f.renderer.get(a)
		require.NotSame(t, first, remeshed)

		// Ни одной грани на границе x=N напротив твёрдого вокселя соседа
		neighbor := gen.Generate(b)
		for _, yz := range borderTriangles(remeshed, float32(n)) {
			ly := yz[0] - cy*n
			lz := yz[1]
			assert.False(t, neighbor.At(0, ly, lz).Solid,
				"y=%d: грань на границе напротив твёрдой ячейки (0,%d,%d)", cy, ly, lz)
		}
		assert.LessOrEqual(t, remeshed.Triangles(), first.Triangles())

		// Со стороны соседа тоже нет лишних граней
		own := gen.Generate(a)
		for _, yz := range borderTriangles(f.renderer.get(b), float32(n)) {
			assert.False(t, own.At(n-1, yz[0]-cy*n, yz[1]).Solid)
		}
	}
}

func TestEndToEndSolidBoundaryIsSealed(t *testing.T) {
	const n = 4
	gen := &solidGenerator{size: n}
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	f := newFixture(t, cfg, gen, testBuilder(t))

	a, b := vec.Vec3{}, vec.Vec3{X: 1}
	f.m.Load(a)
	f.settle()
	assert.Equal(t, 12*n*n, f.renderer.get(a).Triangles())

	f.m.Load(b)
	f.settle()
	assert.Equal(t, 10*n*n, f.renderer.get(a).Triangles(), "грань +X закрыта соседом")
	assert.Equal(t, 10*n*n, f.renderer.get(b).Triangles(), "грань -X закрыта соседом")
	assert.Empty(t, borderTriangles(f.renderer.get(a), n))
}

func TestSimultaneousNeighborsConverge(t *testing.T) {
	const n = 4
	gen := &solidGenerator{size: n}
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	f := newFixture(t, cfg, gen, testBuilder(t))

	a, b := vec.Vec3{}, vec.Vec3{X: 1}
	f.m.Load(a)
	f.m.Load(b)
	f.step() // объёмы готовы, оба меша отправлены без соседей
	require.Equal(t, MeshPending, f.m.State(a))
	require.Equal(t, MeshPending, f.m.State(b))
	require.Len(t, f.exec.tasks, 2)

	// Оба меша завершаются в одном тике: каждый должен перестроиться ровно один раз
	f.step()
	assert.Equal(t, MeshPending, f.m.State(a))
	assert.Equal(t, MeshPending, f.m.State(b))
	assert.Len(t, f.exec.tasks, 2, "не больше одной задачи меша на координату")

	f.step()
	assert.Equal(t, MeshReady, f.m.State(a))
	assert.Equal(t, MeshReady, f.m.State(b))
	assert.Empty(t, f.exec.tasks)
	assert.Equal(t, uint64(2), f.m.Stats().Remeshes)
	assert.Equal(t, 10*n*n, f.renderer.get(a).Triangles())
	assert.Equal(t, 10*n*n, f.renderer.get(b).Triangles())
}

func TestStreamingRadiusInvariant(t *testing.T) {
	const n = 2
	gen := &solidGenerator{size: n}
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	cfg.RenderDistance = 1
	f := newFixture(t, cfg, gen, testBuilder(t))

	origin := mgl32.Vec3{0.5, 0.5, 0.5}
	f.tick(origin)
	assert.Equal(t, 27, f.m.Len())
	f.settle(origin)
	assert.Equal(t, 27, f.m.Stats().Chunks[MeshReady.String()])

	// Уходим на 10 чанков по X
	far := mgl32.Vec3{10*n + 0.5, 0.5, 0.5}
	f.now = f.now.Add(2 * time.Second)
	f.m.Tick(f.now, []mgl32.Vec3{far})

	center := vec.Vec3{X: 10}
	for coord := range f.m.cells {
		assert.LessOrEqual(t, coord.Chebyshev(center), cfg.RenderDistance, "координата %s вне радиуса", coord)
	}
	assert.Equal(t, 27, f.m.Len())
	assert.Len(t, f.renderer.retracts, 27, "все старые меши убраны")
	assert.Equal(t, uint64(27), f.m.Stats().Unloads)
}

func TestViewpointUsesFloorDivision(t *testing.T) {
	const n = 4
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	cfg.RenderDistance = 0
	f := newFixture(t, cfg, &solidGenerator{size: n}, testBuilder(t))

	f.tick(mgl32.Vec3{-0.5, 3.9, 4})
	assert.Equal(t, 1, f.m.Len())
	assert.Equal(t, VolumePending, f.m.State(vec.Vec3{X: -1, Y: 0, Z: 1}))
}

func TestDispatchCapNearestFirst(t *testing.T) {
	const n = 2
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	cfg.RenderDistance = 1
	cfg.MaxDispatchPerTick = 5
	f := newFixture(t, cfg, &solidGenerator{size: n}, testBuilder(t))

	vp := mgl32.Vec3{1, 1, 1}
	f.tick(vp)
	assert.Equal(t, 5, f.m.Len())
	assert.Equal(t, VolumePending, f.m.State(vec.Vec3{}), "центр грузится первым")

	f.tick(vp)
	assert.Equal(t, 10, f.m.Len())
}

func TestLoadIsIdempotent(t *testing.T) {
	f := newFixture(t, Config{ChunkSize: 2}, &solidGenerator{size: 2}, testBuilder(t))

	f.m.Load(vec.Vec3{})
	f.m.Load(vec.Vec3{})
	assert.Len(t, f.exec.tasks, 1)
}

func TestNoViewpointsKeepsIndex(t *testing.T) {
	f := newFixture(t, Config{ChunkSize: 2}, &solidGenerator{size: 2}, testBuilder(t))

	f.m.Load(vec.Vec3{X: 50})
	f.settle()
	f.now = f.now.Add(time.Minute)
	f.tick()
	assert.Equal(t, MeshReady, f.m.State(vec.Vec3{X: 50}))
}

func TestStaleResultDropped(t *testing.T) {
	const n = 2
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	cfg.RenderDistance = 0
	f := newFixture(t, cfg, &solidGenerator{size: n}, testBuilder(t))

	f.tick(mgl32.Vec3{})
	require.Equal(t, VolumePending, f.m.State(vec.Vec3{}))
	require.Len(t, f.exec.tasks, 1)

	// Точка наблюдения уходит, пока генерация в работе
	far := mgl32.Vec3{5 * n, 0, 0}
	f.now = f.now.Add(2 * time.Second)
	f.m.Tick(f.now, []mgl32.Vec3{far})
	require.Equal(t, Unloaded, f.m.State(vec.Vec3{}))

	f.step(far)
	assert.Equal(t, Unloaded, f.m.State(vec.Vec3{}), "устаревший результат не возвращает координату")
	assert.Equal(t, uint64(1), f.m.Stats().Stale)
	assert.Nil(t, f.renderer.get(vec.Vec3{}))
}

func TestGenerationPanicResetsCoordinate(t *testing.T) {
	const n = 2
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	cfg.RenderDistance = 0
	gen := &solidGenerator{size: n, panic: map[vec.Vec3]int{{}: 1}}
	f := newFixture(t, cfg, gen, testBuilder(t))

	vp := mgl32.Vec3{0.5, 0.5, 0.5}
	f.tick(vp)
	f.exec.runAll()

	// Сбой применяется и сразу же координата ставится заново
	f.tick(vp)
	stats := f.m.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, VolumePending, f.m.State(vec.Vec3{}), "следующий проход стриминга повторяет попытку")

	f.settle(vp)
	assert.Equal(t, MeshReady, f.m.State(vec.Vec3{}))
	assert.NotNil(t, f.renderer.get(vec.Vec3{}))
}

func TestMeshPanicRetractsAndRemeshesNeighbors(t *testing.T) {
	const n = 2
	gen := &solidGenerator{size: n}
	builder := &failingBuilder{inner: testBuilder(t), fail: map[vec.Vec3]bool{}}
	f := newFixture(t, Config{ChunkSize: n}, gen, builder)

	a, b := vec.Vec3{}, vec.Vec3{X: 1}
	f.m.Load(a)
	f.settle()
	f.m.Load(b)

	// b падает при построении меша. a перестраивается только после
	// готовности b, поэтому его меш не затронут
	builder.mu.Lock()
	builder.fail[b] = true
	builder.mu.Unlock()

	f.step()
	f.step()
	assert.Equal(t, Unloaded, f.m.State(b))
	assert.Equal(t, MeshReady, f.m.State(a))
	assert.Equal(t, uint64(1), f.m.Stats().Failed)

	// Повторная загрузка проходит после устранения сбоя
	builder.mu.Lock()
	builder.fail[b] = false
	builder.mu.Unlock()
	f.m.Load(b)
	f.settle()
	assert.Equal(t, MeshReady, f.m.State(b))
	assert.Empty(t, borderTriangles(f.renderer.get(a), n))

	// Теперь a учитывает b; сбой при перестроении a убирает его меш
	// и заставляет b перестроиться без него
	builder.mu.Lock()
	builder.fail[a] = true
	builder.mu.Unlock()
	f.m.invalidate(a, f.m.cells[a])
	f.step()
	assert.Equal(t, Unloaded, f.m.State(a))
	assert.Contains(t, f.renderer.retracts, a)
	assert.Equal(t, MeshPending, f.m.State(b), "сосед перестраивается без удалённой границы")

	f.settle()
	assert.Equal(t, 12*n*n, f.renderer.get(b).Triangles())
}

func TestUnloadRemeshesSurvivingNeighbor(t *testing.T) {
	const n = 2
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	cfg.RenderDistance = 1
	f := newFixture(t, cfg, &solidGenerator{size: n}, testBuilder(t))

	vp := mgl32.Vec3{1, 1, 1}
	f.settle(vp)
	require.Equal(t, 27, f.m.Stats().Chunks[MeshReady.String()])
	remeshesBefore := f.m.Stats().Remeshes

	// Сдвиг на один чанк по X: слой x=-1 выгружается, слой x=2 загружается
	vp2 := mgl32.Vec3{n + 1, 1, 1}
	f.now = f.now.Add(2 * time.Second)
	f.m.Tick(f.now, []mgl32.Vec3{vp2})
	assert.Equal(t, MeshPending, f.m.State(vec.Vec3{X: 0}), "сосед выгруженного чанка перестраивается")
	assert.Greater(t, f.m.Stats().Remeshes, remeshesBefore)

	f.settle(vp2)
	for coord := range f.m.cells {
		assert.Equal(t, MeshReady, f.m.State(coord))
	}
	// Плоскость x=0 стала внешней границей и снова видна
	assert.NotEmpty(t, borderTriangles(f.renderer.get(vec.Vec3{X: 0, Y: 0, Z: 0}), 0))
}

func TestStatsSnapshot(t *testing.T) {
	const n = 2
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	cfg.RenderDistance = 0
	f := newFixture(t, cfg, &solidGenerator{size: n}, testBuilder(t))

	empty := f.m.Stats()
	assert.Zero(t, empty.Loaded)

	vp := mgl32.Vec3{0.5, 0.5, 0.5}
	f.settle(vp)
	s := f.m.Stats()
	assert.Equal(t, 1, s.Loaded)
	assert.Equal(t, 1, s.Published)
	assert.Equal(t, 12*n*n, s.Triangles)
	assert.Equal(t, uint64(2), s.Dispatched)
	assert.Equal(t, uint64(2), s.Completed)
	assert.Equal(t, []vec.Vec3{{}}, s.Centers)
	assert.Equal(t, 1, s.Chunks[MeshReady.String()])
	assert.Equal(t, 0, s.Chunks[VolumePending.String()])
	assert.Zero(t, s.WorkersBusy)
	assert.Zero(t, s.QueuedTasks)
}

// gatedGenerator ждёт открытия gate перед генерацией
type gatedGenerator struct {
	solidGenerator
	gate chan struct{}
}

func (g *gatedGenerator) Generate(coord vec.Vec3) *world.Volume {
	<-g.gate
	return g.solidGenerator.Generate(coord)
}

func TestStatsReportPoolOccupancy(t *testing.T) {
	const n = 2
	exec := NewPoolExecutor(1)
	defer exec.Stop()

	gen := &gatedGenerator{solidGenerator: solidGenerator{size: n}, gate: make(chan struct{})}
	var once sync.Once
	release := func() { once.Do(func() { close(gen.gate) }) }
	defer release()

	m := NewManager(Config{ChunkSize: n}, gen, testBuilder(t), exec, nil, testOptions()...)
	m.Load(vec.Vec3{})
	m.Load(vec.Vec3{X: 1})
	m.Load(vec.Vec3{X: 2})

	now := time.Unix(1000, 0)
	var s Stats
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		now = now.Add(100 * time.Millisecond)
		m.Tick(now, nil)
		s = m.Stats()
		if s.WorkersBusy == 1 && s.QueuedTasks == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, int64(1), s.WorkersBusy)
	assert.Equal(t, uint64(2), s.QueuedTasks)

	release()
	require.Eventually(t, func() bool { return exec.Waiting() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestRunWithPool(t *testing.T) {
	const n = 4
	cfg := DefaultConfig()
	cfg.ChunkSize = n
	cfg.RenderDistance = 1
	cfg.TickInterval = time.Millisecond

	exec := NewPoolExecutor(2)
	defer exec.Stop()

	renderer := newRecordingRenderer()
	m := NewManager(cfg, &solidGenerator{size: n}, testBuilder(t), exec, renderer, testOptions()...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Run(ctx, StaticViewpoints{{1, 1, 1}})
	}()

	require.Eventually(t, func() bool {
		s := m.Stats()
		return s.Chunks[MeshReady.String()] == 27 && s.InFlight == 0
	}, 10*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}

	// Внутренняя грань центрального чанка закрыта со всех сторон
	center := renderer.get(vec.Vec3{})
	require.NotNil(t, center)
	assert.Zero(t, center.Triangles())
}
