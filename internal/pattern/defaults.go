package pattern

// Priorities of the built-in rules.
const (
	PriorityComponent  = 60
	PriorityMultiStep  = 50
	PriorityCurrency   = 40
	PriorityCalculator = 10
	PriorityWeather    = 8
	PriorityKnowledge  = 6
)

// Default returns a sealed registry holding the built-in rules. gaz
// validates the cities of multi-city requests and may be nil.
func Default(gaz Gazetteer) (*Registry, error) {
	reg := NewRegistry()
	patterns := []Pattern{
		NewComponent(PriorityComponent, reg),
		NewMultiStep(PriorityMultiStep, gaz),
		NewCurrency(PriorityCurrency),
		NewCalculator(PriorityCalculator),
		NewWeather(PriorityWeather),
		NewKnowledge(PriorityKnowledge),
	}
	for _, p := range patterns {
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	return reg, nil
}
