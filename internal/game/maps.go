package game

// MapInfo describes one loadable map.
type MapInfo struct {
	Name      string
	Starts    []Vec3
	Obstacles []AABB
}

// MapCatalog is an in-memory SceneManager: loading a map is instant.
type MapCatalog struct {
	maps   map[string]MapInfo
	active string
	next   int
}

// NewMapCatalog starts in scene initial.
func NewMapCatalog(initial string, maps ...MapInfo) *MapCatalog {
	m := &MapCatalog{maps: make(map[string]MapInfo), active: initial}
	for _, info := range maps {
		m.maps[info.Name] = info
	}
	return m
}

func (m *MapCatalog) ActiveScene() string { return m.active }

func (m *MapCatalog) ChangeScene(name string, ready func(string)) {
	m.active = name
	m.next = 0
	if ready != nil {
		ready(name)
	}
}

// StartPosition cycles through the active map's start positions. Maps
// without any yield the origin.
func (m *MapCatalog) StartPosition() Vec3 {
	starts := m.maps[m.active].Starts
	if len(starts) == 0 {
		return Vec3{}
	}
	p := starts[m.next%len(starts)]
	m.next++
	return p
}

func (m *MapCatalog) Obstacles() []AABB {
	return append([]AABB(nil), m.maps[m.active].Obstacles...)
}

func DefaultMaps() []MapInfo {
	return []MapInfo{
		{Name: "Scene_Lobby"},
		{
			Name: "Scene_Map01",
			Starts: []Vec3{
				{X: -40, Z: -40},
				{X: 40, Z: 40},
				{X: -40, Z: 40},
				{X: 40, Z: -40},
			},
			Obstacles: []AABB{
				// central ridge
				{Min: Vec3{X: -6, Y: 0, Z: -6}, Max: Vec3{X: 6, Y: 4, Z: 6}},
				{Min: Vec3{X: -30, Y: 0, Z: -2}, Max: Vec3{X: -20, Y: 3, Z: 2}},
				{Min: Vec3{X: 20, Y: 0, Z: -2}, Max: Vec3{X: 30, Y: 3, Z: 2}},
			},
		},
	}
}
