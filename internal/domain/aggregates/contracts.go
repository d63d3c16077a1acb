package aggregates

// Contract describes what an aggregate owns. Every write method runs in one
// transaction started by the aggregate and appends its audit events there.
type Contract struct {
	Name string
	// AuditEntities are the entity_type values the aggregate appends.
	AuditEntities []string
	// Locks lists the rows taken FOR UPDATE, in acquisition order.
	Locks []string
	// Idempotent names the operations that replay on a repeated key.
	Idempotent []string
	Notes      string
}

// Aggregate is implemented by every write-side aggregate.
type Aggregate interface {
	Contract() Contract
}

// Audits reports whether the aggregate writes audit events for entityType.
func (c Contract) Audits(entityType string) bool {
	for _, e := range c.AuditEntities {
		if e == entityType {
			return true
		}
	}
	return false
}

// ReplaysOn reports whether op is deduplicated through the idempotency ledger.
func (c Contract) ReplaysOn(op string) bool {
	for _, o := range c.Idempotent {
		if o == op {
			return true
		}
	}
	return false
}
