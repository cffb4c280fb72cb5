// Package publisher delivers a finished run: the artifact goes to its stores
// (local file, GitHub repository) and a summary goes to chat notifiers.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cfip_nexus/internal/shared/logger"
	"cfip_nexus/ippool/model"
)

// ErrDegradedRun is returned when asked to publish a run without records.
var ErrDegradedRun = errors.New("run is degraded, refusing to overwrite artifact")

// Payload is what every target and notifier receives.
type Payload struct {
	FileName string // artifact name as shown to remote consumers
	Artifact []byte
	Result   *model.RunResult
}

// Target stores the artifact somewhere.
type Target interface {
	Name() string
	Publish(ctx context.Context, p Payload) error
}

// Notifier announces a published run. summary is the human-readable text
// built after all targets ran.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, p Payload, summary string) error
}

// Outcome records how one target or notifier fared.
type Outcome struct {
	Name string
	Err  error
}

// Dispatcher runs targets in order, then notifiers.
type Dispatcher struct {
	fileName  string
	targets   []Target
	notifiers []Notifier
	now       func() time.Time
}

// NewDispatcher creates a dispatcher publishing the artifact as fileName.
func NewDispatcher(fileName string) *Dispatcher {
	return &Dispatcher{fileName: fileName, now: time.Now}
}

// AddTarget appends a store. Targets run in the order they were added.
func (d *Dispatcher) AddTarget(t Target) {
	d.targets = append(d.targets, t)
}

// AddNotifier appends a notifier.
func (d *Dispatcher) AddNotifier(n Notifier) {
	d.notifiers = append(d.notifiers, n)
}

// Publish delivers res. A failing target does not stop the others; all
// failures are joined into the returned error. Degraded runs are refused
// with ErrDegradedRun before anything is touched.
func (d *Dispatcher) Publish(ctx context.Context, res *model.RunResult) ([]Outcome, error) {
	l := logger.WithComponent("IPPool/Publisher")
	if res.Degraded() {
		l.Warn().Str("run_id", res.RunID).Msg("Skipping publish of degraded run.")
		return nil, ErrDegradedRun
	}

	p := Payload{
		FileName: d.fileName,
		Artifact: []byte(res.Artifact),
		Result:   res,
	}

	var outcomes []Outcome
	var errs []error
	for _, t := range d.targets {
		err := t.Publish(ctx, p)
		outcomes = append(outcomes, Outcome{Name: t.Name(), Err: err})
		if err != nil {
			l.Error().Err(err).Str("target", t.Name()).Msg("Publish target failed.")
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
			continue
		}
		l.Info().Str("target", t.Name()).Msg("Artifact published.")
	}

	if len(d.notifiers) > 0 {
		summary := BuildSummary(res, d.fileName, outcomes, d.now())
		for _, n := range d.notifiers {
			err := n.Notify(ctx, p, summary)
			outcomes = append(outcomes, Outcome{Name: n.Name(), Err: err})
			if err != nil {
				l.Error().Err(err).Str("notifier", n.Name()).Msg("Notification failed.")
				errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
				continue
			}
			l.Info().Str("notifier", n.Name()).Msg("Notification sent.")
		}
	}

	return outcomes, errors.Join(errs...)
}
