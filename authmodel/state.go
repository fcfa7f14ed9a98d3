package authmodel

import "time"

// Status is the lifecycle position of a session
type Status string

const (
	StatusIdle          Status = "idle" // anonymous
	StatusLoading       Status = "loading"
	StatusAuthenticated Status = "authenticated"
	StatusError         Status = "error" // anonymous, LastError set
)

// State is a snapshot of the session. Values handed out by the controller are
// copies; changing them has no effect on the live session.
type State struct {
	Identity   *Identity
	Credential *Credential
	Status     Status
	LastError  string
}

// Anonymous returns the empty state, optionally carrying an error message
func Anonymous(lastError string) State {
	if lastError == "" {
		return State{Status: StatusIdle}
	}
	return State{Status: StatusError, LastError: lastError}
}

func (s State) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.Credential != nil && s.Identity != nil
}

// Clone deep-copies the pointer fields
func (s State) Clone() State {
	return State{
		Identity:   s.Identity.clone(),
		Credential: s.Credential.clone(),
		Status:     s.Status,
		LastError:  s.LastError,
	}
}

// EventType names a session transition
type EventType string

const (
	EventSnapshot        EventType = "snapshot" // replay of the current state on subscribe
	EventLoading         EventType = "loading"
	EventLogin           EventType = "login"
	EventLoginFailed     EventType = "login_failed"
	EventLogout          EventType = "logout"
	EventRenewed         EventType = "renewed"
	EventRenewalFailed   EventType = "renewal_failed"
	EventExpired         EventType = "expired"
	EventIdentityUpdated EventType = "identity_updated"
)

// Event is delivered to subscribers on every transition
type Event struct {
	Type  EventType
	State State
}

// ActivityEntry is one line of the persisted activity log
type ActivityEntry struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	At     time.Time `json:"at"`
	Email  string    `json:"email,omitempty"`
	Detail string    `json:"detail,omitempty"`
}
