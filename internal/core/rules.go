package core

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewCageOccupancyRule())
	engine.Register(NewEventBindingRule())
	engine.Register(NewPositionUniqueRule())
	engine.Register(NewRackCapacityRule())
	return engine
}
