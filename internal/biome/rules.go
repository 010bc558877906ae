package biome

// TransitionRules controls how a biome hands over to its successors.
type TransitionRules struct {
	MaxConsecutiveSame        int
	BaseTransitionProbability float64
	ConsecutiveSamePenalty    float64
	AllowImmediateReturn      bool
	ValidTransitions          []Biome
	PreferredShapes           []IntersectionShape
}

// DefaultRules returns the rule record used for any biome without an explicit entry.
func DefaultRules() TransitionRules {
	return TransitionRules{
		MaxConsecutiveSame:        3,
		BaseTransitionProbability: 0.7,
		ConsecutiveSamePenalty:    0.3,
		AllowImmediateReturn:      false,
	}
}

func rulesWith(valid []Biome, shapes []IntersectionShape) TransitionRules {
	r := DefaultRules()
	r.ValidTransitions = valid
	r.PreferredShapes = shapes
	return r
}

// DefaultRuleTable is the built-in transition graph.
func DefaultRuleTable() map[Biome]TransitionRules {
	return map[Biome]TransitionRules{
		Forest:      rulesWith([]Biome{Mountains, Countryside, Wetlands}, []IntersectionShape{YFork, CaveEntrance}),
		Beach:       rulesWith([]Biome{Urban, Countryside, Wetlands}, []IntersectionShape{Boardwalk, Bridge}),
		Desert:      rulesWith([]Biome{Mountains, Urban, Countryside}, []IntersectionShape{RockPass, YFork}),
		Urban:       rulesWith([]Biome{Beach, Desert, Countryside}, []IntersectionShape{Roundabout, TJunction}),
		Countryside: rulesWith([]Biome{Forest, Beach, Desert, Urban, Mountains}, []IntersectionShape{TJunction, YFork, Bridge}),
		Mountains:   rulesWith([]Biome{Forest, Desert, Countryside}, []IntersectionShape{RockPass, Bridge, CaveEntrance}),
		Wetlands:    rulesWith([]Biome{Forest, Beach, Countryside}, []IntersectionShape{RiverCrossing, Bridge, Boardwalk}),
	}
}

// GenerationParams are the content-density presets handed to the
// content layer together with a section's biome.
type GenerationParams struct {
	VegetationDensity   float64 `json:"vegetation_density"`
	RockDensity         float64 `json:"rock_density"`
	PathWindiness       float64 `json:"path_windiness"`
	PathWidth           float64 `json:"path_width"`
	TransitionLength    float64 `json:"transition_length"`
	DetailObjectDensity float64 `json:"detail_object_density"`
	WildlifeSpawnRate   float64 `json:"wildlife_spawn_rate"`
	WeatherEventChance  float64 `json:"weather_event_chance"`
}

// DefaultParams is returned for biomes with no preset.
func DefaultParams() GenerationParams {
	return GenerationParams{
		VegetationDensity:   0.5,
		RockDensity:         0.3,
		PathWindiness:       0.5,
		PathWidth:           400,
		TransitionLength:    2000,
		DetailObjectDensity: 0.4,
		WildlifeSpawnRate:   0.2,
		WeatherEventChance:  0.15,
	}
}

func params(veg, rock, wind, width, detail, wildlife, weather float64) GenerationParams {
	p := DefaultParams()
	p.VegetationDensity = veg
	p.RockDensity = rock
	p.PathWindiness = wind
	p.PathWidth = width
	p.DetailObjectDensity = detail
	p.WildlifeSpawnRate = wildlife
	p.WeatherEventChance = weather
	return p
}

// DefaultParamTable holds the per-biome content presets.
func DefaultParamTable() map[Biome]GenerationParams {
	return map[Biome]GenerationParams{
		Forest:      params(0.85, 0.2, 0.75, 350, 0.8, 0.4, 0.2),
		Beach:       params(0.2, 0.4, 0.3, 450, 0.3, 0.25, 0.35),
		Desert:      params(0.15, 0.6, 0.2, 500, 0.2, 0.1, 0.1),
		Urban:       params(0.4, 0.1, 0.1, 600, 0.9, 0.05, 0.05),
		Countryside: params(0.6, 0.2, 0.4, 400, 0.5, 0.3, 0.15),
		Mountains:   params(0.3, 0.8, 0.6, 300, 0.4, 0.2, 0.4),
		Wetlands:    params(0.7, 0.1, 0.8, 320, 0.6, 0.5, 0.3),
	}
}
