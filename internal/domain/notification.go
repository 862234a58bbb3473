package domain

import (
	"sort"
	"time"
)

// NotificationKind selects the notification family rendered by channels.
type NotificationKind string

const (
	// NotificationAlert carries new and recurring events.
	NotificationAlert NotificationKind = "alert"
	// NotificationResolution carries resolution events.
	NotificationResolution NotificationKind = "resolution"
	// NotificationTest is an operator-triggered channel check.
	NotificationTest NotificationKind = "test"
)

// Event is one lifecycle transition included in a notification.
// Params: lifecycle kind, record snapshot, optional detail, and active duration.
// Returns: renderable unit for channel templates.
type Event struct {
	Kind      LifecycleKind
	Record    AlertRecord
	Detail    string
	Duration  time.Duration
	Timestamp time.Time
}

// Notification contains the channel-independent payload.
// Params: kind, batch flag, events, concurrently active alerts, and cooldown.
// Returns: one dispatch request for the notifier layer.
type Notification struct {
	Kind        NotificationKind
	Batch       bool
	Events      []Event
	OtherActive []AlertRecord
	Cooldown    time.Duration
	Timestamp   time.Time
}

// EventCounts summarizes events per lifecycle kind.
type EventCounts struct {
	New       int
	Recurring int
	Resolved  int
	Servers   int
}

// Counts tallies events by kind and distinct server.
// Params: none.
// Returns: per-kind counters.
func (n Notification) Counts() EventCounts {
	var out EventCounts
	servers := make(map[string]struct{}, len(n.Events))
	for _, event := range n.Events {
		servers[event.Record.Server] = struct{}{}
		switch event.Kind {
		case KindNew:
			out.New++
		case KindRecurring:
			out.Recurring++
		case KindResolved:
			out.Resolved++
		}
	}
	out.Servers = len(servers)
	return out
}

// ServerGroup holds the events of one server in a batch.
type ServerGroup struct {
	Server   string
	Hostname string
	Events   []Event
}

// GroupByServer groups events by server nickname in first-appearance order.
// Params: none.
// Returns: ordered server groups.
func (n Notification) GroupByServer() []ServerGroup {
	index := make(map[string]int, len(n.Events))
	groups := make([]ServerGroup, 0, len(n.Events))
	for _, event := range n.Events {
		pos, ok := index[event.Record.Server]
		if !ok {
			pos = len(groups)
			index[event.Record.Server] = pos
			groups = append(groups, ServerGroup{
				Server:   event.Record.Server,
				Hostname: event.Record.Hostname,
			})
		}
		groups[pos].Events = append(groups[pos].Events, event)
	}
	return groups
}

// First returns the first event or zero value for empty notifications.
func (n Notification) First() Event {
	if len(n.Events) == 0 {
		return Event{}
	}
	return n.Events[0]
}

// SortRecords orders alert records by first detection, then fingerprint.
// Params: records slice sorted in place.
// Returns: none.
func SortRecords(records []AlertRecord) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].FirstDetected.Equal(records[j].FirstDetected) {
			return records[i].FirstDetected.Before(records[j].FirstDetected)
		}
		return records[i].Fingerprint < records[j].Fingerprint
	})
}
