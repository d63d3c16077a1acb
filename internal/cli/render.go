package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/realtime/bus"
	"github.com/yungbote/lotline-backend/internal/services"
)

// TreeRenderer draws genealogy walks as indented trees. Each hop hangs under
// the lot it was reached through.
type TreeRenderer struct {
	Color bool
}

func (r TreeRenderer) RenderTree(w io.Writer, t *services.TraceTree) error {
	if t == nil || t.Root == nil {
		return fmt.Errorf("empty trace tree")
	}
	var b strings.Builder
	b.WriteString(r.lotLine(t.Root, t.Root.WeightKg))
	b.WriteByte('\n')
	r.branch(&b, "ancestors", t.Root.ID, t.Ancestors)
	r.branch(&b, "descendants", t.Root.ID, t.Descendants)
	_, err := io.WriteString(w, b.String())
	return err
}

func (r TreeRenderer) RenderTrace(w io.Writer, res *services.TraceResult) error {
	if res == nil || res.Root == nil {
		return fmt.Errorf("empty trace result")
	}
	label := "ancestors"
	if res.Direction == services.DirectionForward {
		label = "descendants"
	}
	var b strings.Builder
	b.WriteString(r.lotLine(res.Root, res.Root.WeightKg))
	b.WriteByte('\n')
	r.branch(&b, label, res.Root.ID, res.Hops)
	_, err := io.WriteString(w, b.String())
	return err
}

func (r TreeRenderer) branch(b *strings.Builder, label string, rootID uuid.UUID, hops []services.TraceHop) {
	fmt.Fprintf(b, "%s (%d):\n", label, len(hops))
	if len(hops) == 0 {
		b.WriteString("└─ (none)\n")
		return
	}
	children := map[uuid.UUID][]services.TraceHop{}
	for _, h := range hops {
		if h.Lot == nil {
			continue
		}
		children[h.ViaLotID] = append(children[h.ViaLotID], h)
	}
	for id := range children {
		sort.Slice(children[id], func(i, j int) bool {
			return children[id][i].Lot.LotCode < children[id][j].Lot.LotCode
		})
	}
	seen := map[uuid.UUID]bool{rootID: true}
	r.walk(b, children, seen, rootID, "")
}

func (r TreeRenderer) walk(b *strings.Builder, children map[uuid.UUID][]services.TraceHop, seen map[uuid.UUID]bool, parent uuid.UUID, indent string) {
	kids := children[parent]
	for i, h := range kids {
		last := i == len(kids)-1
		connector, next := "├─ ", "│  "
		if last {
			connector, next = "└─ ", "   "
		}
		b.WriteString(indent + connector + r.lotLine(h.Lot, h.QuantityKg) + "\n")
		if seen[h.Lot.ID] {
			continue
		}
		seen[h.Lot.ID] = true
		r.walk(b, children, seen, h.Lot.ID, indent+next)
	}
}

func (r TreeRenderer) lotLine(l *production.Lot, qtyKg *float64) string {
	line := l.LotCode + "  " + l.LotType + "  " + r.status(l.Status)
	if qtyKg != nil {
		line += fmt.Sprintf("  %.2f kg", *qtyKg)
	}
	return line
}

func (r TreeRenderer) status(s string) string {
	var c *color.Color
	switch s {
	case production.LotReleased, production.LotFinished:
		c = color.New(color.FgGreen)
	case production.LotHold, production.LotQuarantine:
		c = color.New(color.FgYellow)
	case production.LotRejected:
		c = color.New(color.FgRed, color.Bold)
	default:
		return s
	}
	if !r.Color {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	return c.Sprint(s)
}

// RenderAudit writes one line per audit message.
func (r TreeRenderer) RenderAudit(w io.Writer, m bus.AuditMessage) error {
	c := color.New(color.FgCyan)
	if !r.Color {
		c.DisableColor()
	} else {
		c.EnableColor()
	}
	actor := m.ActorID
	if actor == "" {
		actor = "-"
	}
	_, err := fmt.Fprintf(w, "#%d  %s  %s  %s/%s  by %s\n",
		m.Seq, m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), c.Sprint(m.EventType), m.EntityType, m.EntityID, actor)
	return err
}
