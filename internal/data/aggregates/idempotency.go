package aggregates

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

// Ledger scopes. A key is unique per scope.
const (
	scopeRunStart       = "run.start"
	scopeLotRegister    = "lot.register"
	scopeLotInspection  = "lot.inspection"
	scopeLotTransition  = "lot.transition"
	scopeLotTemperature = "lot.temperature"
	scopeGenealogyLink  = "genealogy.link"
	scopeInventoryMove  = "inventory.move"
)

// claim is the outcome of an idempotency check.
type claim struct {
	ledger *idempotencyLedger
	recID  uuid.UUID
	// ResultRef of the original mutation when this is a replay.
	replayRef string
}

// Replay reports whether the key was already used with the same payload.
func (c *claim) Replay() bool {
	return c != nil && c.replayRef != ""
}

// complete records the mutation result in the same transaction.
func (c *claim) complete(dbc dbctx.Context, resultRef string) error {
	if c == nil || c.ledger == nil || c.recID == uuid.Nil {
		return nil
	}
	return c.ledger.repo.Complete(dbc, c.recID, resultRef)
}

type idempotencyLedger struct {
	repo repos.IdempotencyRepo
}

func newIdempotencyLedger(repo repos.IdempotencyRepo) *idempotencyLedger {
	return &idempotencyLedger{repo: repo}
}

// RequestHash is the sha256 of the JSON encoding of payload. Struct field
// order makes the encoding canonical.
func RequestHash(payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", ValidationError("request payload is not encodable: " + err.Error())
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// check claims (scope, key). An empty key opts out and returns a nil
// claim. A different payload under a used key is an idempotency conflict.
func (l *idempotencyLedger) check(dbc dbctx.Context, scope, key string, payload any) (*claim, error) {
	key = strings.TrimSpace(key)
	if key == "" || l == nil || l.repo == nil {
		return nil, nil
	}
	hash, err := RequestHash(payload)
	if err != nil {
		return nil, err
	}
	rec, created, err := l.repo.Claim(dbc, scope, key, hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, RetryableError("idempotency claim returned no record")
	}
	if created {
		return &claim{ledger: l, recID: rec.ID}, nil
	}
	if rec.RequestHash != hash {
		return nil, production.Errorf(production.ErrIdempotencyConflict,
			"idempotency key %q was already used for a different %s request", key, scope)
	}
	if rec.CompletedAt == nil || rec.ResultRef == "" {
		return nil, ConflictError("idempotency key " + key + " is still being processed")
	}
	return &claim{ledger: l, replayRef: rec.ResultRef}, nil
}
