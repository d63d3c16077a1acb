package cli

import (
	"context"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yungbote/lotline-backend/internal/app"
	"github.com/yungbote/lotline-backend/internal/realtime/bus"
	"github.com/yungbote/lotline-backend/internal/services"
)

type AuditTailOptions struct {
	*RootOptions
	Since    int64
	Poll     bool
	Interval time.Duration
	// Once drains the backlog after Since and exits.
	Once bool
}

func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
	}
	opts := &AuditTailOptions{RootOptions: rootOpts}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Stream committed audit events",
		Long: `Stream audit events as they commit. With REDIS_ADDR set the command
subscribes to the audit bus; otherwise (or with --poll) it polls the log.

Examples:
  lotline audit tail
  lotline audit tail --since 1200 --once --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Interval <= 0 {
				return NewExitError(ExitCommandError, "--interval must be positive")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return runAuditTail(ctx, cmd.OutOrStdout(), opts, a.Services.Audit, a.Clients.AuditBus)
			})
		},
	}
	tail.Flags().Int64Var(&opts.Since, "since", 0, "print backlog after this sequence number first")
	tail.Flags().BoolVar(&opts.Poll, "poll", false, "poll the database instead of subscribing to the bus")
	tail.Flags().DurationVar(&opts.Interval, "interval", 2*time.Second, "poll interval")
	tail.Flags().BoolVar(&opts.Once, "once", false, "print the backlog and exit")
	cmd.AddCommand(tail)
	return cmd
}

const auditTailPage = 200

func runAuditTail(ctx context.Context, out io.Writer, opts *AuditTailOptions, audit services.AuditService, auditBus bus.Bus) error {
	r := TreeRenderer{Color: !color.NoColor}
	emit := func(m bus.AuditMessage) error {
		if opts.Format == "json" {
			return writeJSON(out, m)
		}
		return r.RenderAudit(out, m)
	}

	// Subscribe before draining so nothing committed in between is lost.
	var msgs chan bus.AuditMessage
	if auditBus != nil && !opts.Poll && !opts.Once {
		msgs = make(chan bus.AuditMessage, 64)
		if err := auditBus.Subscribe(ctx, func(m bus.AuditMessage) {
			select {
			case msgs <- m:
			case <-ctx.Done():
			}
		}); err != nil {
			return WrapExitError(ExitCommandError, "subscribe", err)
		}
	}

	last, err := drainAudit(ctx, audit, opts.Since, emit)
	if err != nil {
		return err
	}
	if opts.Once {
		return nil
	}

	if msgs != nil {
		if opts.Format != "json" {
			printInfo(out, "subscribed to audit bus")
		}
		for {
			select {
			case <-ctx.Done():
				return nil
			case m := <-msgs:
				if m.Seq <= last {
					continue
				}
				last = m.Seq
				if err := emit(m); err != nil {
					return err
				}
			}
		}
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if last, err = drainAudit(ctx, audit, last, emit); err != nil {
				return err
			}
		}
	}
}

// drainAudit emits every event after seq and returns the last one seen.
func drainAudit(ctx context.Context, audit services.AuditService, seq int64, emit func(bus.AuditMessage) error) (int64, error) {
	for {
		events, err := audit.After(ctx, seq, auditTailPage)
		if err != nil {
			if ctx.Err() != nil {
				return seq, nil
			}
			return seq, domainFailure("read audit log", err)
		}
		for _, ev := range events {
			if err := emit(bus.MessageFromEvent(ev)); err != nil {
				return seq, err
			}
			seq = ev.ID
		}
		if len(events) < auditTailPage {
			return seq, nil
		}
	}
}
