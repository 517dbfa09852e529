package model

import "time"

// UpdateKind identifies what an Update carries.
type UpdateKind string

const (
	UpdateSnapshot UpdateKind = "snapshot"
	UpdatePush     UpdateKind = "push"
	UpdateRoster   UpdateKind = "roster"
)

// Origin records what caused a fetch.
type Origin string

const (
	OriginSelect     Origin = "select"
	OriginAutoSelect Origin = "auto_select"
	OriginPoll       Origin = "poll"
	OriginPush       Origin = "push"
	OriginDelete     Origin = "delete"
)

// Update is an asynchronous result tagged at request time with the session
// and generation it targets. Updates are applied one at a time in arrival order.
type Update struct {
	Kind      UpdateKind
	SessionID string
	// Epoch is the focus epoch a push channel was opened under.
	Epoch uint64
	// Seq is the per-session request generation for snapshots and the global
	// generation for rosters.
	Seq    uint64
	Origin Origin

	Payload []byte
	Message *PushMessage

	Active    []RosterEntry
	Completed []RosterEntry

	ReceivedAt time.Time
}

// ConnectionState is the push channel state.
type ConnectionState string

const (
	ConnIdle       ConnectionState = "idle"
	ConnConnecting ConnectionState = "connecting"
	ConnOpen       ConnectionState = "open"
	ConnClosed     ConnectionState = "closed"
)

// DeleteState is the per-row state of the two-phase delete.
type DeleteState string

const (
	DeleteIdle     DeleteState = "idle"
	DeletePending  DeleteState = "pending"
	DeleteDeleting DeleteState = "deleting"
)

// LiveViewState is the read-only view handed to the presentation layer.
type LiveViewState struct {
	FocusedSessionID string                 `json:"focusedSessionId,omitempty"`
	Snapshot         Snapshot               `json:"snapshot"`
	HasStarted       bool                   `json:"hasStarted"`
	EventLog         []NotableEvent         `json:"eventLog"`
	ConnectionState  ConnectionState        `json:"connectionState"`
	ChannelSessionID string                 `json:"channelSessionId,omitempty"`
	Active           []RosterEntry          `json:"active"`
	Completed        []RosterEntry          `json:"completed"`
	DeleteStates     map[string]DeleteState `json:"deleteStates"`
}
