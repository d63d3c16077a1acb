package compliance

// Enforcer binds the pure rules to the current policy snapshot. Each call
// reads the snapshot once so a concurrent reload cannot split a decision.
type Enforcer struct {
	src Source
}

func NewEnforcer(src Source) *Enforcer {
	if src == nil {
		src = Static(DefaultPolicy())
	}
	return &Enforcer{src: src}
}

func (e *Enforcer) Policy() Policy {
	return e.src.Current()
}

func (e *Enforcer) RequireNotes(decision, notes string) error {
	return RequireNotes(e.src.Current(), decision, notes)
}

func (e *Enforcer) CheckSkuPurity(childType, parentType string, existingParentTypes []string) error {
	return CheckSkuPurity(e.src.Current(), childType, parentType, existingParentTypes)
}

func (e *Enforcer) CheckBufferPurity(bufferCode string, allowed []string, lotType string) error {
	return CheckBufferPurity(bufferCode, allowed, lotType)
}

func (e *Enforcer) EvaluateTemperature(measurementType string, tempC float64, band *TemperatureBand, forced bool) TemperatureEvaluation {
	return EvaluateTemperature(e.src.Current(), measurementType, tempC, band, forced)
}

func (e *Enforcer) CheckCapacity(capacityKg, currentLoadKg, incomingKg float64) CapacityCheck {
	return CheckCapacity(e.src.Current(), capacityKg, currentLoadKg, incomingKg)
}
