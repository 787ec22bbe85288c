package backport

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/itchyny/gojq"
	"go.uber.org/zap"

	"github.com/simplesurance/backportd/internal/logfields"
	"github.com/simplesurance/backportd/internal/provider"
)

const DefEventChannelBufferSize = 512

// backportCommandRe matches explicit backport command comments like
// "/backport release-5.0".
var backportCommandRe = regexp.MustCompile(`^/backport\s+(\S+)\s*$`)

// Dispatcher receives hosting events and converts them into backport
// triggers that are handed to the orchestrator.
type Dispatcher struct {
	ch           chan *provider.Event
	orchestrator *Orchestrator
	filterQuery  *gojq.Query
	logger       *zap.Logger
}

// NewDispatcher returns a dispatcher forwarding triggers to orchestrator.
// filterQuery is an optional jq expression, when it is not empty only events
// for that it evaluates to true are dispatched.
func NewDispatcher(orchestrator *Orchestrator, filterQuery string) (*Dispatcher, error) {
	d := Dispatcher{
		ch:           make(chan *provider.Event, DefEventChannelBufferSize),
		orchestrator: orchestrator,
		logger:       zap.L().Named("dispatcher"),
	}

	if filterQuery != "" {
		query, err := gojq.Parse(filterQuery)
		if err != nil {
			return nil, fmt.Errorf("parsing filter query failed: %w", err)
		}

		d.filterQuery = query
	}

	return &d, nil
}

// C returns the event channel.
// Events sent to this channel will be processed.
// The channel is closed when Stop() is called.
func (d *Dispatcher) C() chan<- *provider.Event {
	return d.ch
}

func (d *Dispatcher) Start() {
	ctx := context.Background()
	d.logger.Info("ready to process events", logfields.Event("dispatcher_started"))

	for ev := range d.ch {
		metrics.ReceivedEventsInc()

		logger := d.logger.With(ev.LogFields()...)
		logger.Debug("event received", logfields.Event("event_received"))

		match, err := d.matchesFilter(ctx, ev)
		if err != nil {
			logger.Error(
				"evaluating filter query failed, event is skipped",
				logfields.Event("event_filter_evaluation_failed"),
				zap.Error(err),
			)
			continue
		}

		if !match {
			logger.Debug(
				"event does not match filter query",
				logfields.Event("event_filter_mismatch"),
			)
			continue
		}

		trigger := triggerFromEvent(ev)
		if trigger == nil {
			logger.Debug(
				"event does not describe a backport trigger",
				logfields.Event("event_without_trigger"),
			)
			continue
		}

		if err := d.orchestrator.Process(ctx, trigger); err != nil {
			logger.Error(
				"processing backport trigger failed",
				logfields.Event("trigger_processing_failed"),
				zap.Error(err),
			)
		}
	}

	d.logger.Info(
		"dispatcher terminated, event channel was closed",
		logfields.Event("dispatcher_terminated"),
	)
}

// Stop closes the event channel, the Start loop terminates after draining
// it.
func (d *Dispatcher) Stop() {
	close(d.ch)
}

func (d *Dispatcher) matchesFilter(ctx context.Context, ev *provider.Event) (bool, error) {
	if d.filterQuery == nil {
		return true, nil
	}

	if len(ev.JSON) == 0 {
		return false, fmt.Errorf("json field of event is empty")
	}

	var evUn any
	if err := json.Unmarshal(ev.JSON, &evUn); err != nil {
		return false, fmt.Errorf("unmarshaling json failed: %w", err)
	}

	iter := d.filterQuery.RunWithContext(ctx, evUn)

	res, ok := iter.Next()
	if !ok {
		return false, fmt.Errorf("json query returned 0 results, expected 1, query: %q", d.filterQuery.String())
	}

	switch val := res.(type) {
	case error:
		return false, val

	case bool:
		if _, more := iter.Next(); more {
			return false, fmt.Errorf("json query returned multiple results, expected 1, query: %q", d.filterQuery.String())
		}

		return val, nil

	default:
		return false, fmt.Errorf(
			"json query returned non-bool result: %+v (%T), query: %q",
			res, res, d.filterQuery.String(),
		)
	}
}

// triggerFromEvent converts a hosting event to a backport trigger.
// It returns nil when the event is not one of the two trigger surfaces:
// a label applied to a pull request or a backport command comment.
func triggerFromEvent(ev *provider.Event) *Trigger {
	if ev.RepoOwner == "" || ev.Repository == "" || ev.PRNumber == 0 {
		return nil
	}

	switch ev.EventType {
	case "pull_request":
		if ev.Action != "labeled" || ev.Label == "" {
			return nil
		}

		return &Trigger{
			Kind:       TriggerLabel,
			RepoOwner:  ev.RepoOwner,
			Repository: ev.Repository,
			PRNumber:   ev.PRNumber,
			Label:      ev.Label,
		}

	case "issue_comment":
		if ev.Action != "created" {
			return nil
		}

		matches := backportCommandRe.FindStringSubmatch(strings.TrimSpace(ev.CommentBody))
		if matches == nil {
			return nil
		}

		return &Trigger{
			Kind:         TriggerCommand,
			RepoOwner:    ev.RepoOwner,
			Repository:   ev.Repository,
			PRNumber:     ev.PRNumber,
			TargetBranch: matches[1],
		}

	default:
		return nil
	}
}
