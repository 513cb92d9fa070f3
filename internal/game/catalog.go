package game

// BuildingTemplate is the immutable description of one building type.
type BuildingTemplate struct {
	ID        int32
	Name      string
	Price     int
	Footprint Box
	Yaw       float64 // degrees around Y
	Icon      string
	MaxHealth int
	Base      bool
}

// UnitTemplate is the immutable description of one unit type.
type UnitTemplate struct {
	ID        int32
	Name      string
	Cost      int
	MaxHealth int
}

// Catalog lists what players may build. Base is spawned by the coordinator at
// match start and is not placeable.
type Catalog struct {
	Buildings []BuildingTemplate
	Units     []UnitTemplate
	Base      BuildingTemplate
}

// Building looks up a placeable building template.
func (c *Catalog) Building(id int32) (BuildingTemplate, bool) {
	for _, b := range c.Buildings {
		if b.ID == id {
			return b, true
		}
	}
	return BuildingTemplate{}, false
}

// Unit looks up a unit template.
func (c *Catalog) Unit(id int32) (UnitTemplate, bool) {
	for _, u := range c.Units {
		if u.ID == id {
			return u, true
		}
	}
	return UnitTemplate{}, false
}

func DefaultCatalog() Catalog {
	return Catalog{
		Base: BuildingTemplate{
			ID: 0, Name: "Base", Icon: "base",
			Footprint: Box{Center: Vec3{Y: 1}, Size: Vec3{X: 3, Y: 2, Z: 3}},
			MaxHealth: 1000, Base: true,
		},
		Buildings: []BuildingTemplate{
			{
				ID: 1, Name: "Resource Generator", Price: 100, Icon: "generator",
				Footprint: Box{Center: Vec3{Y: 0.5}, Size: Vec3{X: 1, Y: 1, Z: 1}},
				MaxHealth: 200,
			},
			{
				ID: 2, Name: "Unit Spawner", Price: 150, Icon: "spawner",
				Footprint: Box{Center: Vec3{Y: 0.75}, Size: Vec3{X: 2, Y: 1.5, Z: 2}},
				MaxHealth: 300,
			},
			{
				ID: 3, Name: "Tower", Price: 200, Icon: "tower", Yaw: 45,
				Footprint: Box{Center: Vec3{Y: 1.5}, Size: Vec3{X: 1, Y: 3, Z: 1}},
				MaxHealth: 250,
			},
		},
		Units: []UnitTemplate{
			{ID: 1, Name: "Tank", Cost: 50, MaxHealth: 100},
		},
	}
}

// Rules are the tunable session parameters.
type Rules struct {
	StartingResources  int
	BuildingRangeLimit float64
	MinPlayers         int
	MaxPlayers         int // 0 means unlimited
	LobbyScene         string
	BattleMap          string
	BattleMapPrefix    string
}

func DefaultRules() Rules {
	return Rules{
		StartingResources:  500,
		BuildingRangeLimit: 5,
		MinPlayers:         2,
		MaxPlayers:         8,
		LobbyScene:         "Scene_Lobby",
		BattleMap:          "Scene_Map01",
		BattleMapPrefix:    "Scene_Map",
	}
}
