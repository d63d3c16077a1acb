package production

import "strings"

const (
	VersionDraft      = "DRAFT"
	VersionReview     = "REVIEW"
	VersionPublished  = "PUBLISHED"
	VersionDeprecated = "DEPRECATED"
)

const (
	RunIdle      = "IDLE"
	RunRunning   = "RUNNING"
	RunHold      = "HOLD"
	RunCompleted = "COMPLETED"
	RunAborted   = "ABORTED"
	RunArchived  = "ARCHIVED"
)

// ActiveRunStatuses block deprecation of the pinned version.
var ActiveRunStatuses = []string{RunIdle, RunRunning, RunHold}

const (
	StepPending    = "PENDING"
	StepInProgress = "IN_PROGRESS"
	StepCompleted  = "COMPLETED"
	StepSkipped    = "SKIPPED"
)

const (
	LotCreated    = "CREATED"
	LotQuarantine = "QUARANTINE"
	LotReleased   = "RELEASED"
	LotHold       = "HOLD"
	LotRejected   = "REJECTED"
	LotConsumed   = "CONSUMED"
	LotFinished   = "FINISHED"
)

const (
	DecisionPass = "PASS"
	DecisionHold = "HOLD"
	DecisionFail = "FAIL"
)

const (
	MoveReceive  = "RECEIVE"
	MoveTransfer = "TRANSFER"
	MoveShip     = "SHIP"
	MoveConsume  = "CONSUME"
)

const (
	MeasureSurface = "SURFACE"
	MeasureCore    = "CORE"
	MeasureAmbient = "AMBIENT"
)

// LotTypes lists every lot type a code may carry, in process order.
var LotTypes = []string{
	"RAW", "DEB", "BULK", "MIX",
	"SKW", "SKW15", "SKW30",
	"FRZ", "FRZ15", "FRZ30",
	"FG", "FG15", "FG30",
	"PAL", "SHIP",
}

func IsLotType(t string) bool {
	for _, known := range LotTypes {
		if known == t {
			return true
		}
	}
	return false
}

// SizeVariant returns the SKU size suffix of a lot type ("15", "30") or "".
func SizeVariant(lotType string) string {
	for _, suffix := range []string{"15", "30"} {
		if strings.HasSuffix(lotType, suffix) && len(lotType) > len(suffix) {
			return suffix
		}
	}
	return ""
}

func IsDecision(d string) bool {
	return d == DecisionPass || d == DecisionHold || d == DecisionFail
}

func IsMeasurementType(m string) bool {
	return m == MeasureSurface || m == MeasureCore || m == MeasureAmbient
}

func IsMoveType(m string) bool {
	switch m {
	case MoveReceive, MoveTransfer, MoveShip, MoveConsume:
		return true
	}
	return false
}
