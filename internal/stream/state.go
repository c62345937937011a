package stream

// State — стадия жизненного цикла координаты чанка
type State uint8

const (
	Unloaded      State = iota // Координаты нет в индексе
	VolumePending              // Генерация объёма в работе
	VolumeReady                // Объём есть, меша ещё нет
	MeshPending                // Построение меша в работе (старый меш может оставаться опубликованным)
	MeshReady                  // Меш опубликован
)

// String возвращает имя состояния для логов и метрик
func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case VolumePending:
		return "volume_pending"
	case VolumeReady:
		return "volume_ready"
	case MeshPending:
		return "mesh_pending"
	case MeshReady:
		return "mesh_ready"
	default:
		return "unknown"
	}
}

// trackedStates — состояния, которые реально хранятся в индексе
var trackedStates = [...]State{VolumePending, VolumeReady, MeshPending, MeshReady}
