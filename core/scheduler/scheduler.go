// Package scheduler runs the cooperative polling loop: fetch every
// configured source, normalize and persist each group's schedule, detect
// material changes and fan notifications out to subscribed recipients.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/svitlobot/svitlo/core/change"
	"github.com/svitlobot/svitlo/core/diff"
	"github.com/svitlobot/svitlo/core/fetch"
	"github.com/svitlobot/svitlo/core/interval"
	"github.com/svitlobot/svitlo/core/logger"
	"github.com/svitlobot/svitlo/core/metrics"
	"github.com/svitlobot/svitlo/core/model"
	"github.com/svitlobot/svitlo/core/monitoring"
	"github.com/svitlobot/svitlo/core/notify"
	"github.com/svitlobot/svitlo/core/source"
	"github.com/svitlobot/svitlo/core/store"
	"github.com/svitlobot/svitlo/internal/eventbus"
)

// Source is one monitored upstream document.
type Source struct {
	ID      string
	URL     string
	Adapter source.Adapter
}

// Config holds the loop timing parameters.
type Config struct {
	// PollInterval is the fixed period between cycles.
	PollInterval time.Duration
	// SendDelay is the pause between consecutive deliveries, a politeness
	// measure against the delivery channel's rate limit.
	SendDelay time.Duration
}

// SetDefaults applies the standard cadence.
func (c *Config) SetDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Minute
	}
	if c.SendDelay <= 0 {
		c.SendDelay = 500 * time.Millisecond
	}
}

// Scheduler owns the Idle/Polling loop. It is single-threaded: sources,
// groups and recipient deliveries are processed sequentially.
type Scheduler struct {
	cfg      Config
	sources  []Source
	fetcher  fetch.Fetcher
	store    store.SnapshotStore
	dir      store.RecipientDirectory
	channel  notify.Channel
	sink     metrics.Sink
	commands <-chan eventbus.Command
	log      logger.Logger
}

// New wires a Scheduler. commands may be nil when no admin surface feeds
// the loop; sink may be nil to disable metrics.
func New(cfg Config, sources []Source, fetcher fetch.Fetcher, snapshots store.SnapshotStore,
	dir store.RecipientDirectory, channel notify.Channel, sink metrics.Sink,
	commands <-chan eventbus.Command, log logger.Logger) *Scheduler {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Scheduler{
		cfg:      cfg,
		sources:  sources,
		fetcher:  fetcher,
		store:    snapshots,
		dir:      dir,
		channel:  channel,
		sink:     sink,
		commands: commands,
		log:      log,
	}
}

// Run executes one cycle immediately, then one per tick until the context
// is cancelled. Cycle errors are logged, never terminal to the process.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.RunCycle(ctx); err != nil {
		s.log.Errorf("poll cycle: %v", err)
	}
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.RunCycle(ctx); err != nil {
				s.log.Errorf("poll cycle: %v", err)
			}
		case cmd, ok := <-s.commands:
			if !ok {
				s.commands = nil
				continue
			}
			s.handleCommand(ctx, cmd)
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd eventbus.Command) {
	switch c := cmd.(type) {
	case eventbus.PollNow:
		s.log.Infof("poll requested (%s)", c.ID)
		if err := s.RunCycle(ctx); err != nil {
			s.log.Errorf("poll cycle: %v", err)
		}
	case eventbus.Broadcast:
		s.broadcast(ctx, c)
	default:
		s.log.Warnf("unknown command %T", cmd)
	}
}

type changedGroup struct {
	sourceID string
	groupID  string
}

// RunCycle processes every source and group once, persists the rotated
// snapshots and notifies subscribers of changed groups. Failing sources
// and groups are skipped; only a snapshot write failure aborts the cycle,
// leaving that snapshot stale until the next one.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	start := time.Now()
	ev := metrics.CycleEvent{Time: start, Sources: len(s.sources)}
	var changed []changedGroup

	for _, src := range s.sources {
		raw, err := s.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			ev.FetchErrors++
			s.log.Errorf("source %s: fetch: %v", src.ID, err)
			monitoring.CaptureException(err, map[string]string{"source": src.ID, "stage": "fetch"})
			continue
		}
		if len(raw) == 0 {
			s.log.Debugf("source %s: nothing to fetch", src.ID)
			continue
		}
		groups, err := src.Adapter.Parse(raw)
		if err != nil {
			ev.ParseErrors++
			s.log.Errorf("source %s: parse: %v", src.ID, err)
			monitoring.CaptureException(err, map[string]string{"source": src.ID, "stage": "parse"})
			continue
		}
		groupIDs := make([]string, 0, len(groups))
		for id := range groups {
			groupIDs = append(groupIDs, id)
		}
		sort.Strings(groupIDs)
		srcChanged := 0
		for _, groupID := range groupIDs {
			today, tomorrow := source.SplitDays(groups[groupID])
			if today == "" {
				s.log.Warnf("source %s group %s: no schedule for today", src.ID, groupID)
				continue
			}
			stored, err := s.store.Hash(ctx, src.ID, groupID)
			if err != nil {
				s.log.Errorf("source %s group %s: read hash: %v", src.ID, groupID, err)
				continue
			}
			res := change.Detect(stored, today, tomorrow)
			if err := s.store.Upsert(ctx, src.ID, groupID, today, tomorrow, res.Hash); err != nil {
				recordCycle(s, &ev, start)
				monitoring.CaptureException(err, map[string]string{"source": src.ID, "group": groupID, "stage": "persist"})
				return fmt.Errorf("source %s group %s: persist snapshot: %w", src.ID, groupID, err)
			}
			ev.GroupsSeen++
			if res.Changed {
				ev.GroupsChanged++
				srcChanged++
				changed = append(changed, changedGroup{sourceID: src.ID, groupID: groupID})
			}
		}
		s.log.Infof("source %s: %d groups, %d changed", src.ID, len(groupIDs), srcChanged)
	}

	for _, cg := range changed {
		s.notifyGroup(ctx, cg)
	}
	recordCycle(s, &ev, start)
	s.log.Debugw("cycle complete", map[string]any{
		"sources":        ev.Sources,
		"fetch_errors":   ev.FetchErrors,
		"parse_errors":   ev.ParseErrors,
		"groups_seen":    ev.GroupsSeen,
		"groups_changed": ev.GroupsChanged,
		"duration_ms":    ev.Duration.Milliseconds(),
	})
	return nil
}

func recordCycle(s *Scheduler, ev *metrics.CycleEvent, start time.Time) {
	ev.Duration = time.Since(start)
	if err := s.sink.RecordCycle(*ev); err != nil {
		s.log.Warnf("record cycle: %v", err)
	}
}

// notifyGroup fans the change summary out to the group's subscribers.
// Delivery failures are isolated per recipient.
func (s *Scheduler) notifyGroup(ctx context.Context, cg changedGroup) {
	recipients, err := s.dir.ListRecipients(ctx, cg.sourceID, cg.groupID)
	if err != nil {
		s.log.Errorf("group %s: list recipients: %v", cg.groupID, err)
		return
	}
	if len(recipients) == 0 {
		return
	}
	snap, err := s.store.Get(ctx, cg.sourceID, cg.groupID)
	if err != nil {
		s.log.Errorf("group %s: load snapshot: %v", cg.groupID, err)
		return
	}
	if snap == nil {
		s.log.Errorf("group %s: snapshot missing after upsert", cg.groupID)
		return
	}

	previous := interval.Build(snap.PreviousToday)
	current := interval.Build(snap.Today)
	d := diff.Compute(previous, current)
	var tomorrow *model.IntervalSet
	if snap.Tomorrow != "" {
		tm := interval.Build(snap.Tomorrow)
		tomorrow = &tm
	}
	text := notify.ChangeMessage(cg.groupID, d, current, tomorrow)

	for i, recipientID := range recipients {
		if i > 0 && !s.pause(ctx) {
			return
		}
		err := s.channel.Send(ctx, recipientID, text, true)
		if err != nil {
			s.log.Errorf("group %s: deliver to %s: %v", cg.groupID, recipientID, err)
			monitoring.CaptureException(err, map[string]string{"group": cg.groupID, "stage": "deliver"})
		}
		s.recordDelivery(metrics.DeliveryEvent{
			Time:        time.Now(),
			SourceID:    cg.sourceID,
			GroupID:     cg.groupID,
			RecipientID: recipientID,
			Success:     err == nil,
		})
	}
}

// broadcast sends a fixed text to every known recipient under the same
// rate limit and failure isolation as change fan-out.
func (s *Scheduler) broadcast(ctx context.Context, cmd eventbus.Broadcast) {
	recipients, err := s.dir.AllRecipients(ctx)
	if err != nil {
		s.log.Errorf("broadcast %s: list recipients: %v", cmd.ID, err)
		return
	}
	sent := 0
	for i, recipientID := range recipients {
		if i > 0 && !s.pause(ctx) {
			break
		}
		if err := s.channel.Send(ctx, recipientID, cmd.Text, cmd.Escape); err != nil {
			s.log.Errorf("broadcast %s: deliver to %s: %v", cmd.ID, recipientID, err)
			continue
		}
		sent++
	}
	s.log.Infof("broadcast %s: sent to %d/%d recipients", cmd.ID, sent, len(recipients))
}

// pause waits the inter-delivery delay, reporting false when the context
// ended first.
func (s *Scheduler) pause(ctx context.Context) bool {
	t := time.NewTimer(s.cfg.SendDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (s *Scheduler) recordDelivery(ev metrics.DeliveryEvent) {
	if err := s.sink.RecordDelivery(ev); err != nil {
		s.log.Warnf("record delivery: %v", err)
	}
}
