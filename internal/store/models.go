package store

import (
	"strings"
	"time"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusEnded     EventStatus = "ended"
)

// Event is a scheduled event tracked by the participation funnel. Events are
// never deleted; status moves draft -> published -> ended.
type Event struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	Description         string      `json:"description"`
	StartAt             time.Time   `json:"startAt"`
	EndAt               time.Time   `json:"endAt"`
	CheckInSecret       string      `json:"checkInSecret"`
	TicketPriceLamports int64       `json:"ticketPriceLamports"`
	PoapCollection      *string     `json:"poapCollection"`
	Status              EventStatus `json:"status"`
}

type CreateEventInput struct {
	ID                  string      `json:"id"`
	Name                string      `json:"name"`
	Description         string      `json:"description"`
	StartAt             time.Time   `json:"startAt"`
	EndAt               time.Time   `json:"endAt"`
	CheckInSecret       string      `json:"checkInSecret"`
	TicketPriceLamports int64       `json:"ticketPriceLamports"`
	PoapCollection      *string     `json:"poapCollection"`
	Status              EventStatus `json:"status"`
}

// UpdateEventInput is a partial patch; nil fields keep their current value.
type UpdateEventInput struct {
	Name                *string      `json:"name"`
	Description         *string      `json:"description"`
	StartAt             *time.Time   `json:"startAt"`
	EndAt               *time.Time   `json:"endAt"`
	CheckInSecret       *string      `json:"checkInSecret"`
	TicketPriceLamports *int64       `json:"ticketPriceLamports"`
	PoapCollection      *string      `json:"poapCollection"`
	Status              *EventStatus `json:"status"`
}

// ActionRecord is one ledger entry for a registration or check-in.
type ActionRecord struct {
	At    time.Time `json:"at"`
	TxRef *string   `json:"txRef"`
}

// ClaimRecord is a claim ledger entry; mintAddress stays null until a
// credential has actually been issued.
type ClaimRecord struct {
	At          time.Time `json:"at"`
	TxRef       *string   `json:"txRef"`
	MintAddress *string   `json:"mintAddress"`
}

type VerificationStage string

const (
	StageNotRegistered VerificationStage = "not-registered"
	StageRegistered    VerificationStage = "registered"
	StageCheckedIn     VerificationStage = "checked-in"
	StageClaimed       VerificationStage = "claimed"
)

// WalletVerification is the derived funnel position of one wallet for one
// event. Status follows precedence claimed > checked-in > registered.
type WalletVerification struct {
	EventID    string            `json:"eventId"`
	Wallet     string            `json:"wallet"`
	Status     VerificationStage `json:"status"`
	Registered *ActionRecord     `json:"registered"`
	CheckedIn  *ActionRecord     `json:"checkedIn"`
	Claimed    *ClaimRecord      `json:"claimed"`
}

type TxStage string

const (
	TxStageRegister TxStage = "register"
	TxStageCheckIn  TxStage = "check-in"
	TxStageClaim    TxStage = "claim"
)

// TxVerification resolves an opaque transaction reference back to the ledger
// entry that produced it.
type TxVerification struct {
	TxRef       string    `json:"txRef"`
	EventID     string    `json:"eventId"`
	Wallet      string    `json:"wallet"`
	Stage       TxStage   `json:"stage"`
	OccurredAt  time.Time `json:"occurredAt"`
	MintAddress *string   `json:"mintAddress"`
}

// ParticipantRow is the denormalized per-wallet funnel view for one event.
type ParticipantRow struct {
	Wallet       string     `json:"wallet"`
	RegisteredAt *time.Time `json:"registeredAt"`
	CheckedInAt  *time.Time `json:"checkedInAt"`
	ClaimedAt    *time.Time `json:"claimedAt"`
}

type StageFilter string

const (
	FilterAll        StageFilter = "all"
	FilterRegistered StageFilter = "registered"
	FilterCheckedIn  StageFilter = "checked-in"
	FilterClaimed    StageFilter = "claimed"
)

type ParticipantsQuery struct {
	Stage  StageFilter
	Search string
	Limit  int
	Offset int
}

type ParticipantsPage struct {
	Rows   []ParticipantRow `json:"rows"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type StatusCounts struct {
	Draft     int `json:"draft"`
	Published int `json:"published"`
	Ended     int `json:"ended"`
}

type OrganizerOverview struct {
	EventsTotal        int          `json:"eventsTotal"`
	EventsByStatus     StatusCounts `json:"eventsByStatus"`
	RegistrationsTotal int          `json:"registrationsTotal"`
	CheckinsTotal      int          `json:"checkinsTotal"`
	ClaimsTotal        int          `json:"claimsTotal"`
	OverallCheckinRate float64      `json:"overallCheckinRate"`
	OverallClaimRate   float64      `json:"overallClaimRate"`
}

type EventStats struct {
	EventID       string  `json:"eventId"`
	Registrations int     `json:"registrations"`
	Checkins      int     `json:"checkins"`
	Claims        int     `json:"claims"`
	CheckinRate   float64 `json:"checkinRate"`
	ClaimRate     float64 `json:"claimRate"`
}

// RangeQuery is an inclusive calendar-day range, both ends YYYY-MM-DD in UTC.
type RangeQuery struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type TimeseriesPoint struct {
	Date          string `json:"date"`
	Registrations int    `json:"registrations"`
	Checkins      int    `json:"checkins"`
	Claims        int    `json:"claims"`
}

type RetentionPoint struct {
	CohortDate      string  `json:"cohortDate"`
	CohortSize      int     `json:"cohortSize"`
	RetainedD7      int     `json:"retainedD7"`
	RetentionRateD7 float64 `json:"retentionRateD7"`
}

// NormalizeWallet lowercases a wallet string so every casing of the same
// address maps to one ledger key.
func NormalizeWallet(wallet string) string {
	return strings.ToLower(wallet)
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func seedEvent(now time.Time) Event {
	const oneMonth = 30 * 24 * time.Hour
	return Event{
		ID:                  "solana-campus-week",
		Name:                "Solana Campus Week",
		Description:         "Community meetup for builders and students.",
		StartAt:             now.Add(-oneMonth).UTC(),
		EndAt:               now.Add(oneMonth).UTC(),
		CheckInSecret:       "campus-2026",
		TicketPriceLamports: 0,
		PoapCollection:      nil,
		Status:              EventStatusPublished,
	}
}
