// Package activitymap flattens account activity into rows suitable for
// log lines and redis streams.
package activitymap

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	accounts "github.com/goliatone/go-accounts"
)

// SystemActor names the actor of events nobody was logged in for
const SystemActor = "system"

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Entry is one account activity event, keyed by the handle it touched
type Entry struct {
	Verb        string
	Area        string
	Outcome     string
	Actor       string
	ActorType   string
	Handle      string
	SelfService bool
	Metadata    map[string]any
	OccurredAt  time.Time
}

// FromEvent builds an Entry. The area is the first segment of the event
// type ("account" or "auth"); event types ending in ".failure" carry the
// failure outcome.
func FromEvent(event accounts.ActivityEvent) Entry {
	verb := string(event.EventType)

	area := verb
	if i := strings.IndexByte(verb, '.'); i > 0 {
		area = verb[:i]
	}

	outcome := OutcomeSuccess
	if strings.HasSuffix(verb, "."+OutcomeFailure) {
		outcome = OutcomeFailure
	}

	handle := strings.TrimSpace(event.Handle)
	actor := strings.TrimSpace(event.Actor.Handle)
	self := actor != "" && actor == handle
	if actor == "" {
		actor = SystemActor
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	var metadata map[string]any
	if len(event.Metadata) > 0 {
		metadata = make(map[string]any, len(event.Metadata))
		for k, v := range event.Metadata {
			metadata[k] = v
		}
	}

	return Entry{
		Verb:        verb,
		Area:        area,
		Outcome:     outcome,
		Actor:       actor,
		ActorType:   strings.TrimSpace(event.Actor.Type),
		Handle:      handle,
		SelfService: self,
		Metadata:    metadata,
		OccurredAt:  occurredAt.UTC(),
	}
}

// Fields returns the flat string row written to a redis stream. Metadata
// is JSON encoded under "metadata".
func (e Entry) Fields() (map[string]any, error) {
	row := map[string]any{
		"verb":        e.Verb,
		"area":        e.Area,
		"outcome":     e.Outcome,
		"actor":       e.Actor,
		"handle":      e.Handle,
		"self":        boolField(e.SelfService),
		"occurred_at": e.OccurredAt.Format(time.RFC3339Nano),
	}
	if e.ActorType != "" {
		row["actor_type"] = e.ActorType
	}

	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode activity metadata")
		}
		row["metadata"] = string(raw)
	}

	return row, nil
}

// Attrs returns key/value pairs for a structured logger
func (e Entry) Attrs() []any {
	attrs := []any{
		"verb", e.Verb,
		"outcome", e.Outcome,
		"actor", e.Actor,
		"handle", e.Handle,
	}
	if e.SelfService {
		attrs = append(attrs, "self", true)
	}
	if len(e.Metadata) > 0 {
		attrs = append(attrs, "metadata", e.Metadata)
	}
	return attrs
}

// Forward returns an ActivitySink handing every event to fn as an Entry
func Forward(fn func(ctx context.Context, entry Entry) error) accounts.ActivitySink {
	return accounts.ActivitySinkFunc(func(ctx context.Context, event accounts.ActivityEvent) error {
		return fn(ctx, FromEvent(event))
	})
}

func boolField(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
