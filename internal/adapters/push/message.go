package push

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/okian/livewatch/internal/domain/model"
)

// Action is what the monitor does with a push message.
type Action int

const (
	ActionIgnore Action = iota
	// ActionLogAndRefresh appends a notable event and triggers a throttled refresh.
	ActionLogAndRefresh
	// ActionRefresh triggers a throttled refresh only.
	ActionRefresh
	// ActionRosterRefresh refreshes both rosters immediately, outside the throttle.
	ActionRosterRefresh
)

func (a Action) String() string {
	switch a {
	case ActionLogAndRefresh:
		return "log_and_refresh"
	case ActionRefresh:
		return "refresh"
	case ActionRosterRefresh:
		return "roster_refresh"
	default:
		return "ignore"
	}
}

// Classify maps a message to its action. An event_logged outside the notable
// allow-list still triggers a refresh because the service recomputes metrics
// after every logged event.
func Classify(msg model.PushMessage) Action {
	switch msg.Type {
	case model.MessageEventLogged:
		if msg.EventType.IsNotable() {
			return ActionLogAndRefresh
		}
		return ActionRefresh
	case model.MessageMetricsUpdate:
		return ActionRefresh
	case model.MessageStatusUpdate, model.MessageAssessmentCompleted:
		return ActionRosterRefresh
	default:
		return ActionIgnore
	}
}

// ParseMessage decodes a push frame. timestamp may be RFC3339 or epoch
// milliseconds and defaults to now; a missing event_id on event_logged gets a
// generated one; a non-object payload is wrapped as {"value": ...}.
func ParseMessage(data []byte, now time.Time) (model.PushMessage, error) {
	if !gjson.ValidBytes(data) {
		return model.PushMessage{}, fmt.Errorf("%w: not JSON", ErrInvalidMessage)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return model.PushMessage{}, fmt.Errorf("%w: not an object", ErrInvalidMessage)
	}

	msg := model.PushMessage{
		Type:      model.MessageType(root.Get("type").String()),
		EventType: model.EventType(root.Get("event_type").String()),
		EventID:   root.Get("event_id").String(),
		Timestamp: parseTimestamp(root.Get("timestamp"), now),
	}
	if msg.Type == "" {
		return model.PushMessage{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}
	if msg.Type == model.MessageEventLogged && msg.EventID == "" {
		msg.EventID = uuid.NewString()
	}

	switch p := root.Get("payload"); {
	case !p.Exists() || p.Type == gjson.Null:
	case p.IsObject():
		msg.Payload = []byte(p.Raw)
	default:
		msg.Payload = []byte(`{"value":` + p.Raw + `}`)
	}
	return msg, nil
}

func parseTimestamp(v gjson.Result, now time.Time) time.Time {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).UTC()
	case gjson.String:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, v.Str); err == nil {
				return t
			}
		}
	}
	return now
}
