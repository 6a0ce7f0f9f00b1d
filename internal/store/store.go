package store

import "errors"

var (
	// ErrEventNotFound is returned by reads against an unknown event id.
	ErrEventNotFound = errors.New("event not found")
	// ErrEventExists is returned by CreateEvent when the id is already taken.
	ErrEventExists = errors.New("event already exists")
	// ErrTxRefNotFound is returned when no ledger entry carries the reference.
	ErrTxRefNotFound = errors.New("tx ref not found")
)

// EventStore is the contract shared by the in-memory and sqlite engines. Both
// must behave identically; the in-memory engine reproduces the relational
// INSERT ... ON CONFLICT DO UPDATE ... COALESCE merge semantics in process.
type EventStore interface {
	Init() error
	// Mode reports which engine is active ("memory" or "sqlite") so the
	// health surface can expose degraded operation after a fallback.
	Mode() string

	ListEvents() ([]Event, error)
	GetEventByID(eventID string) (*Event, error)
	CreateEvent(input CreateEventInput) (*Event, error)
	UpdateEvent(eventID string, patch UpdateEventInput) (*Event, error)
	// SetPoapCollectionIfAbsent atomically assigns the event's poap collection
	// when it is still unset and returns the value that won. Concurrent first
	// claims must observe a single winner.
	SetPoapCollectionIfAbsent(eventID, collection string) (string, error)

	GetOverview() (*OrganizerOverview, error)
	GetEventStats(eventID string) (*EventStats, error)
	GetEventTimeseries(eventID string, q RangeQuery) ([]TimeseriesPoint, error)
	GetRetentionCohorts(q RangeQuery) ([]RetentionPoint, error)

	ListParticipants(eventID string) ([]ParticipantRow, error)
	ListParticipantsPage(eventID string, q ParticipantsQuery) (*ParticipantsPage, error)

	GetWalletVerification(eventID, wallet string) (*WalletVerification, error)
	GetTxVerification(txRef string) (*TxVerification, error)

	HasRegistration(eventID, wallet string) (bool, error)
	AddRegistration(eventID, wallet, txRef string) error
	HasCheckin(eventID, wallet string) (bool, error)
	AddCheckin(eventID, wallet, txRef string) error
	HasClaim(eventID, wallet string) (bool, error)
	AddClaim(eventID, wallet, txRef string, mintAddress *string) error
}
