// Package gateway turns authenticated inbound events into runner and cache
// operations, and reports outcomes back through a Notifier. It is the only
// component that talks to the outside in both directions.
package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fableworks/continuity/internal/core/cache"
	"github.com/fableworks/continuity/internal/core/model"
	"github.com/fableworks/continuity/internal/core/runner"
)

// Event is one inbound delivery, already authenticated at the transport.
type Event struct {
	// ID is the upstream delivery id, stable across redeliveries.
	ID string `json:"id"`
	// Target names the content revision under test.
	Target string `json:"target"`
	// Sender is the actor behind the event, used for approval authorization.
	Sender string `json:"sender"`
	// Comment is free text scanned for directives. Empty for push-style
	// events, which validate with the default mode.
	Comment string `json:"comment"`
}

// Ack is the immediate human-readable response to an event. Final run
// aggregates arrive later through the Notifier.
type Ack struct {
	Message string
	// Started is set when a validation run was kicked off in the background.
	Started bool
}

// CollaboratorVerifier answers whether an actor may approve paths. The
// authoritative membership check lives outside this service.
type CollaboratorVerifier interface {
	IsCollaborator(ctx context.Context, login string) (bool, error)
}

// StaticCollaborators is the config-driven verifier.
type StaticCollaborators map[string]bool

func NewStaticCollaborators(logins []string) StaticCollaborators {
	set := make(StaticCollaborators, len(logins))
	for _, l := range logins {
		set[strings.ToLower(l)] = true
	}
	return set
}

func (s StaticCollaborators) IsCollaborator(_ context.Context, login string) (bool, error) {
	return s[strings.ToLower(login)], nil
}

// Notifier delivers human-facing messages for a target (in production, a
// comment on the change under review).
type Notifier interface {
	Post(ctx context.Context, target, message string) error
}

// LogNotifier writes messages to the process log. The default when no
// comment transport is configured.
type LogNotifier struct{}

func (LogNotifier) Post(_ context.Context, target, message string) error {
	log.Printf("notify[%s]: %s", target, message)
	return nil
}

// Gateway dispatches deduplicated events to the runner or the approval path.
type Gateway struct {
	Runner        *runner.Runner
	Store         *cache.Store
	Collaborators CollaboratorVerifier
	Notifier      Notifier
	Dedup         *Deduper
}

func New(rn *runner.Runner, store *cache.Store, collaborators CollaboratorVerifier, notifier Notifier, dedupWindow time.Duration) *Gateway {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Gateway{
		Runner:        rn,
		Store:         store,
		Collaborators: collaborators,
		Notifier:      notifier,
		Dedup:         NewDeduper(dedupWindow),
	}
}

// HandleEvent runs the dispatch half of the event pipeline:
// deduplicate, parse, dispatch. Authentication happened at the HTTP layer
// against the raw payload.
func (g *Gateway) HandleEvent(ctx context.Context, ev Event) (Ack, error) {
	if ev.ID != "" && g.Dedup.Seen(ev.ID) {
		log.Printf("dropping duplicate event %s", ev.ID)
		return Ack{Message: "duplicate delivery, already handled"}, nil
	}

	cmd, err := ParseCommand(ev.Comment)
	if err != nil {
		return Ack{}, err
	}

	switch cmd.Kind {
	case CommandValidate:
		return g.startRun(ev.Target, cmd.Mode)
	case CommandApprove:
		return g.approve(ctx, ev, cmd.IDs)
	default:
		if ev.Comment == "" {
			// Push-style event: no directive to parse, validate with the
			// default scope.
			return g.startRun(ev.Target, model.ModeNewOnly)
		}
		return Ack{Message: "no directive found, ignoring"}, nil
	}
}

func (g *Gateway) startRun(target string, mode model.Mode) (Ack, error) {
	run, err := g.Runner.Start(target, mode)
	if err != nil {
		return Ack{}, err
	}

	// Drain progress and post the final aggregate once the run is terminal.
	// The event handler itself returns immediately; checker latency never
	// blocks delivery workers.
	go func() {
		for range run.Progress() {
		}
		result := run.Wait()
		if err := g.Notifier.Post(context.Background(), target, FormatRunResult(result)); err != nil {
			log.Printf("failed to post run result for %s: %v", target, err)
		}
	}()

	return Ack{
		Message: fmt.Sprintf("validation run %s started for %s (mode %s)", run.ID, target, mode),
		Started: true,
	}, nil
}

func (g *Gateway) approve(ctx context.Context, ev Event, ids []string) (Ack, error) {
	ok, err := g.Collaborators.IsCollaborator(ctx, ev.Sender)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to verify collaborator %q: %w", ev.Sender, err)
	}
	if !ok {
		return Ack{}, fmt.Errorf("%w: %q is not a collaborator and may not approve paths", ErrUnauthorized, ev.Sender)
	}

	var applied, skippedUnknown []string
	err = g.Store.Update(func(st *cache.State) error {
		applied, skippedUnknown = st.MarkValidated(ids, time.Now())
		return nil
	})
	if err != nil {
		return Ack{}, err
	}

	message := FormatApproval(ev.Sender, applied, skippedUnknown)
	if err := g.Notifier.Post(ctx, ev.Target, message); err != nil {
		log.Printf("failed to post approval outcome for %s: %v", ev.Target, err)
	}
	return Ack{Message: message}, nil
}

// FormatRunResult renders the final aggregate of a run.
func FormatRunResult(result runner.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation %s for %s (mode %s): %d new, %d modified, %d unchanged — %d checked, %d failed, %d skipped",
		result.Status, result.Target, result.Mode,
		result.Stats.New, result.Stats.Modified, result.Stats.Unchanged,
		result.Stats.Checked, result.Stats.Failed, result.Stats.Skipped)
	if result.Err != nil {
		fmt.Fprintf(&b, "\nerror: %v", result.Err)
	}
	for _, res := range result.Results {
		switch {
		case res.Outcome == model.OutcomeCheckFailed:
			fmt.Fprintf(&b, "\n- %s (%s): check failed: %v", res.PathID, res.Name, res.Err)
		case res.Outcome == model.OutcomeChecked && res.Severity > model.SeverityNone:
			fmt.Fprintf(&b, "\n- %s (%s): %s: %s", res.PathID, res.Name, res.Severity, res.Summary)
			for _, issue := range res.Issues {
				fmt.Fprintf(&b, "\n    [%s/%s] %s (%s)", issue.Type, issue.Severity, issue.Description, issue.Location)
			}
		}
	}
	return b.String()
}

// FormatApproval renders an approval outcome.
func FormatApproval(sender string, applied, skippedUnknown []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "approval by %s:", sender)
	if len(applied) > 0 {
		fmt.Fprintf(&b, " applied %s.", strings.Join(applied, ", "))
	} else {
		b.WriteString(" nothing applied.")
	}
	if len(skippedUnknown) > 0 {
		fmt.Fprintf(&b, " unknown ids skipped: %s.", strings.Join(skippedUnknown, ", "))
	}
	return b.String()
}
