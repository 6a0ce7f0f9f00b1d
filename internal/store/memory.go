package store

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// entryKey is the composite ledger key. Keeping it a struct avoids the
// ambiguity of separator-joined strings when identifiers contain the
// separator themselves.
type entryKey struct {
	eventID string
	wallet  string
}

type ledgerEntry struct {
	at          time.Time
	txRef       *string
	mintAddress *string
}

// ledger is one append-mostly in-memory log keyed by (event, wallet), with a
// secondary index by event for scoped scans. All mutation runs under mu.
type ledger struct {
	mu      sync.Mutex
	entries map[entryKey]ledgerEntry
	byEvent map[string]map[string]struct{}
}

func newLedger() *ledger {
	return &ledger{
		entries: make(map[entryKey]ledgerEntry),
		byEvent: make(map[string]map[string]struct{}),
	}
}

// add performs the idempotent upsert: insert with the supplied timestamp when
// absent, otherwise keep the original timestamp and fill only null fields.
func (l *ledger) add(eventID, wallet string, txRef *string, mintAddress *string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := entryKey{eventID: eventID, wallet: wallet}
	if existing, ok := l.entries[key]; ok {
		if existing.txRef == nil {
			existing.txRef = txRef
		}
		if existing.mintAddress == nil {
			existing.mintAddress = mintAddress
		}
		l.entries[key] = existing
		return
	}

	l.entries[key] = ledgerEntry{at: at, txRef: txRef, mintAddress: mintAddress}
	wallets, ok := l.byEvent[eventID]
	if !ok {
		wallets = make(map[string]struct{})
		l.byEvent[eventID] = wallets
	}
	wallets[wallet] = struct{}{}
}

func (l *ledger) get(eventID, wallet string) (ledgerEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[entryKey{eventID: eventID, wallet: wallet}]
	return entry, ok
}

func (l *ledger) has(eventID, wallet string) bool {
	_, ok := l.get(eventID, wallet)
	return ok
}

func (l *ledger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *ledger) countForEvent(eventID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byEvent[eventID])
}

func (l *ledger) walletsForEvent(eventID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	wallets := make([]string, 0, len(l.byEvent[eventID]))
	for wallet := range l.byEvent[eventID] {
		wallets = append(wallets, wallet)
	}
	return wallets
}

// snapshot copies the full entry map so aggregations can run without holding
// the ledger lock.
func (l *ledger) snapshot() map[entryKey]ledgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[entryKey]ledgerEntry, len(l.entries))
	for key, entry := range l.entries {
		out[key] = entry
	}
	return out
}

// MemoryStore is the zero-dependency engine used in development and as the
// fallback when sqlite initialization fails.
type MemoryStore struct {
	mu            sync.Mutex
	events        map[string]Event
	registrations *ledger
	checkins      *ledger
	claims        *ledger
	now           func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:        make(map[string]Event),
		registrations: newLedger(),
		checkins:      newLedger(),
		claims:        newLedger(),
		now:           time.Now,
	}
}

func (s *MemoryStore) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		seed := seedEvent(s.now())
		s.events[seed.ID] = seed
	}
	return nil
}

func (s *MemoryStore) Mode() string { return "memory" }

func (s *MemoryStore) ListEvents() ([]Event, error) {
	s.mu.Lock()
	events := make([]Event, 0, len(s.events))
	for _, event := range s.events {
		events = append(events, event)
	}
	s.mu.Unlock()

	sort.Slice(events, func(i, j int) bool {
		return events[i].StartAt.After(events[j].StartAt)
	})
	return events, nil
}

func (s *MemoryStore) GetEventByID(eventID string) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &event, nil
}

func (s *MemoryStore) CreateEvent(input CreateEventInput) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[input.ID]; ok {
		return nil, ErrEventExists
	}

	event := Event{
		ID:                  input.ID,
		Name:                input.Name,
		Description:         input.Description,
		StartAt:             input.StartAt.UTC(),
		EndAt:               input.EndAt.UTC(),
		CheckInSecret:       input.CheckInSecret,
		TicketPriceLamports: input.TicketPriceLamports,
		PoapCollection:      input.PoapCollection,
		Status:              input.Status,
	}
	s.events[event.ID] = event
	return &event, nil
}

func (s *MemoryStore) UpdateEvent(eventID string, patch UpdateEventInput) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}

	if patch.Name != nil {
		event.Name = *patch.Name
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.StartAt != nil {
		event.StartAt = patch.StartAt.UTC()
	}
	if patch.EndAt != nil {
		event.EndAt = patch.EndAt.UTC()
	}
	if patch.CheckInSecret != nil {
		event.CheckInSecret = *patch.CheckInSecret
	}
	if patch.TicketPriceLamports != nil {
		event.TicketPriceLamports = *patch.TicketPriceLamports
	}
	if patch.PoapCollection != nil {
		event.PoapCollection = patch.PoapCollection
	}
	if patch.Status != nil {
		event.Status = *patch.Status
	}

	s.events[eventID] = event
	return &event, nil
}

func (s *MemoryStore) SetPoapCollectionIfAbsent(eventID, collection string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.events[eventID]
	if !ok {
		return "", ErrEventNotFound
	}
	if event.PoapCollection != nil {
		return *event.PoapCollection, nil
	}

	event.PoapCollection = &collection
	s.events[eventID] = event
	return collection, nil
}

func (s *MemoryStore) GetOverview() (*OrganizerOverview, error) {
	s.mu.Lock()
	var counts StatusCounts
	total := len(s.events)
	for _, event := range s.events {
		switch event.Status {
		case EventStatusDraft:
			counts.Draft++
		case EventStatusPublished:
			counts.Published++
		case EventStatusEnded:
			counts.Ended++
		}
	}
	s.mu.Unlock()

	registrations := s.registrations.size()
	checkins := s.checkins.size()
	claims := s.claims.size()

	return &OrganizerOverview{
		EventsTotal:        total,
		EventsByStatus:     counts,
		RegistrationsTotal: registrations,
		CheckinsTotal:      checkins,
		ClaimsTotal:        claims,
		OverallCheckinRate: ratio(checkins, registrations),
		OverallClaimRate:   ratio(claims, checkins),
	}, nil
}

func (s *MemoryStore) GetEventStats(eventID string) (*EventStats, error) {
	registrations := s.registrations.countForEvent(eventID)
	checkins := s.checkins.countForEvent(eventID)
	claims := s.claims.countForEvent(eventID)

	return &EventStats{
		EventID:       eventID,
		Registrations: registrations,
		Checkins:      checkins,
		Claims:        claims,
		CheckinRate:   ratio(checkins, registrations),
		ClaimRate:     ratio(claims, checkins),
	}, nil
}

func (s *MemoryStore) GetEventTimeseries(eventID string, q RangeQuery) ([]TimeseriesPoint, error) {
	days, err := enumerateDays(q.From, q.To)
	if err != nil {
		return nil, err
	}

	points := make([]TimeseriesPoint, len(days))
	index := make(map[string]int, len(days))
	for i, day := range days {
		points[i] = TimeseriesPoint{Date: day}
		index[day] = i
	}

	bump := func(l *ledger, inc func(p *TimeseriesPoint)) {
		for key, entry := range l.snapshot() {
			if key.eventID != eventID {
				continue
			}
			if i, ok := index[dayUTC(entry.at)]; ok {
				inc(&points[i])
			}
		}
	}

	bump(s.registrations, func(p *TimeseriesPoint) { p.Registrations++ })
	bump(s.checkins, func(p *TimeseriesPoint) { p.Checkins++ })
	bump(s.claims, func(p *TimeseriesPoint) { p.Claims++ })

	return points, nil
}

func (s *MemoryStore) GetRetentionCohorts(q RangeQuery) ([]RetentionPoint, error) {
	days, err := enumerateDays(q.From, q.To)
	if err != nil {
		return nil, err
	}

	// Registrations per wallet across every event; the cohort anchor is the
	// wallet's first registration anywhere, not per event.
	byWallet := make(map[string][]time.Time)
	for key, entry := range s.registrations.snapshot() {
		byWallet[key.wallet] = append(byWallet[key.wallet], entry.at)
	}

	points := make([]RetentionPoint, len(days))
	index := make(map[string]int, len(days))
	for i, day := range days {
		points[i] = RetentionPoint{CohortDate: day}
		index[day] = i
	}

	for _, timestamps := range byWallet {
		sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })
		anchor := timestamps[0]

		i, ok := index[dayUTC(anchor)]
		if !ok {
			continue
		}

		deadline := anchor.Add(7 * 24 * time.Hour)
		retained := false
		for _, ts := range timestamps[1:] {
			if ts.After(anchor) && !ts.After(deadline) {
				retained = true
				break
			}
		}

		points[i].CohortSize++
		if retained {
			points[i].RetainedD7++
		}
	}

	for i := range points {
		points[i].RetentionRateD7 = ratio(points[i].RetainedD7, points[i].CohortSize)
	}
	return points, nil
}

func (s *MemoryStore) ListParticipants(eventID string) ([]ParticipantRow, error) {
	wallets := make(map[string]struct{})
	for _, l := range []*ledger{s.registrations, s.checkins, s.claims} {
		for _, wallet := range l.walletsForEvent(eventID) {
			wallets[wallet] = struct{}{}
		}
	}

	rows := make([]ParticipantRow, 0, len(wallets))
	for wallet := range wallets {
		row := ParticipantRow{Wallet: wallet}
		if entry, ok := s.registrations.get(eventID, wallet); ok {
			at := entry.at
			row.RegisteredAt = &at
		}
		if entry, ok := s.checkins.get(eventID, wallet); ok {
			at := entry.at
			row.CheckedInAt = &at
		}
		if entry, ok := s.claims.get(eventID, wallet); ok {
			at := entry.at
			row.ClaimedAt = &at
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Wallet < rows[j].Wallet })
	return rows, nil
}

func matchesStage(row ParticipantRow, stage StageFilter) bool {
	switch stage {
	case FilterRegistered:
		return row.RegisteredAt != nil
	case FilterCheckedIn:
		return row.CheckedInAt != nil
	case FilterClaimed:
		return row.ClaimedAt != nil
	default:
		return true
	}
}

func matchesSearch(row ParticipantRow, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(strings.ToLower(row.Wallet), strings.ToLower(search))
}

func (s *MemoryStore) ListParticipantsPage(eventID string, q ParticipantsQuery) (*ParticipantsPage, error) {
	all, err := s.ListParticipants(eventID)
	if err != nil {
		return nil, err
	}

	filtered := make([]ParticipantRow, 0, len(all))
	for _, row := range all {
		if matchesStage(row, q.Stage) && matchesSearch(row, q.Search) {
			filtered = append(filtered, row)
		}
	}

	start := q.Offset
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + q.Limit
	if end > len(filtered) {
		end = len(filtered)
	}

	return &ParticipantsPage{
		Rows:   filtered[start:end],
		Total:  len(filtered),
		Limit:  q.Limit,
		Offset: q.Offset,
	}, nil
}

func (s *MemoryStore) GetWalletVerification(eventID, wallet string) (*WalletVerification, error) {
	normalized := NormalizeWallet(wallet)
	verification := &WalletVerification{
		EventID: eventID,
		Wallet:  normalized,
		Status:  StageNotRegistered,
	}

	if entry, ok := s.registrations.get(eventID, normalized); ok {
		verification.Registered = &ActionRecord{At: entry.at, TxRef: entry.txRef}
		verification.Status = StageRegistered
	}
	if entry, ok := s.checkins.get(eventID, normalized); ok {
		verification.CheckedIn = &ActionRecord{At: entry.at, TxRef: entry.txRef}
		verification.Status = StageCheckedIn
	}
	if entry, ok := s.claims.get(eventID, normalized); ok {
		verification.Claimed = &ClaimRecord{At: entry.at, TxRef: entry.txRef, MintAddress: entry.mintAddress}
		verification.Status = StageClaimed
	}

	return verification, nil
}

func (s *MemoryStore) GetTxVerification(txRef string) (*TxVerification, error) {
	var best *TxVerification
	var bestRank int

	// Scan order runs register -> check-in -> claim so that on equal
	// timestamps the later funnel stage wins; across distinct timestamps the
	// most recent entry wins. Equal timestamps at the same stage resolve by
	// wallet then event id so repeated lookups always agree.
	consider := func(l *ledger, stage TxStage, rank int) {
		for key, entry := range l.snapshot() {
			if entry.txRef == nil || *entry.txRef != txRef {
				continue
			}
			if best != nil {
				if best.OccurredAt.After(entry.at) {
					continue
				}
				if best.OccurredAt.Equal(entry.at) && rank == bestRank {
					if key.wallet > best.Wallet ||
						(key.wallet == best.Wallet && key.eventID > best.EventID) {
						continue
					}
				}
			}
			best = &TxVerification{
				TxRef:       txRef,
				EventID:     key.eventID,
				Wallet:      key.wallet,
				Stage:       stage,
				OccurredAt:  entry.at,
				MintAddress: entry.mintAddress,
			}
			bestRank = rank
		}
	}

	consider(s.registrations, TxStageRegister, 1)
	consider(s.checkins, TxStageCheckIn, 2)
	consider(s.claims, TxStageClaim, 3)

	if best == nil {
		return nil, ErrTxRefNotFound
	}
	return best, nil
}

func (s *MemoryStore) HasRegistration(eventID, wallet string) (bool, error) {
	return s.registrations.has(eventID, NormalizeWallet(wallet)), nil
}

func (s *MemoryStore) AddRegistration(eventID, wallet, txRef string) error {
	s.registrations.add(eventID, NormalizeWallet(wallet), nullable(txRef), nil, s.now().UTC())
	return nil
}

func (s *MemoryStore) HasCheckin(eventID, wallet string) (bool, error) {
	return s.checkins.has(eventID, NormalizeWallet(wallet)), nil
}

func (s *MemoryStore) AddCheckin(eventID, wallet, txRef string) error {
	s.checkins.add(eventID, NormalizeWallet(wallet), nullable(txRef), nil, s.now().UTC())
	return nil
}

func (s *MemoryStore) HasClaim(eventID, wallet string) (bool, error) {
	return s.claims.has(eventID, NormalizeWallet(wallet)), nil
}

func (s *MemoryStore) AddClaim(eventID, wallet, txRef string, mintAddress *string) error {
	s.claims.add(eventID, NormalizeWallet(wallet), nullable(txRef), mintAddress, s.now().UTC())
	return nil
}
