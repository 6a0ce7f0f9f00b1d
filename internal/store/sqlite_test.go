package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T, clock *testClock) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(filepath.Join(t.TempDir(), "store.db"))
	s.now = clock.Now
	require.NoError(t, s.Init())
	return s
}

func TestSQLiteStore_InitSeedsOnce(t *testing.T) {
	clock := newTestClock(mustDay("2026-03-01"))
	path := filepath.Join(t.TempDir(), "store.db")

	s := NewSQLiteStore(path)
	s.now = clock.Now
	require.NoError(t, s.Init())

	events, err := s.ListEvents()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "solana-campus-week", events[0].ID)

	// Reopening the same file must not seed again.
	reopened := NewSQLiteStore(path)
	reopened.now = clock.Now
	require.NoError(t, reopened.Init())

	events, err = reopened.ListEvents()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSQLiteStore_EventCRUD(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	created := createTestEvent(t, s, "ev1")
	assert.Equal(t, "Test Event ev1", created.Name)

	_, err := s.CreateEvent(CreateEventInput{ID: "ev1", Name: "Again"})
	assert.ErrorIs(t, err, ErrEventExists)

	_, err = s.GetEventByID("nope")
	assert.ErrorIs(t, err, ErrEventNotFound)

	name := "Renamed"
	price := int64(5000)
	updated, err := s.UpdateEvent("ev1", UpdateEventInput{Name: &name, TicketPriceLamports: &price})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, int64(5000), updated.TicketPriceLamports)
	assert.Equal(t, "An event used in tests.", updated.Description)

	fetched, err := s.GetEventByID("ev1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fetched.Name)
}

func TestSQLiteStore_AddRegistration_Idempotent(t *testing.T) {
	clock := newTestClock(mustDay("2026-03-01"))
	s := newTestSQLiteStore(t, clock)
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddRegistration("ev1", "wallet-one", "t1"))
	first, err := s.GetWalletVerification("ev1", "wallet-one")
	require.NoError(t, err)
	require.NotNil(t, first.Registered)

	clock.Advance(time.Hour)
	require.NoError(t, s.AddRegistration("ev1", "wallet-one", "t2"))

	second, err := s.GetWalletVerification("ev1", "wallet-one")
	require.NoError(t, err)
	require.NotNil(t, second.Registered)

	// The original timestamp and txRef always win.
	assert.True(t, first.Registered.At.Equal(second.Registered.At))
	require.NotNil(t, second.Registered.TxRef)
	assert.Equal(t, "t1", *second.Registered.TxRef)

	stats, err := s.GetEventStats("ev1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Registrations)
}

func TestSQLiteStore_AddRegistration_FillsMissingTxRef(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddRegistration("ev1", "wallet-one", ""))
	require.NoError(t, s.AddRegistration("ev1", "wallet-one", "t-late"))

	verification, err := s.GetWalletVerification("ev1", "wallet-one")
	require.NoError(t, err)
	require.NotNil(t, verification.Registered)
	require.NotNil(t, verification.Registered.TxRef)
	assert.Equal(t, "t-late", *verification.Registered.TxRef)
}

func TestSQLiteStore_AddClaim_FillsMintAddressOnce(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddClaim("ev1", "wallet-one", "c1", nil))

	mint := "mint-abc"
	require.NoError(t, s.AddClaim("ev1", "wallet-one", "c2", &mint))

	other := "mint-xyz"
	require.NoError(t, s.AddClaim("ev1", "wallet-one", "c3", &other))

	verification, err := s.GetWalletVerification("ev1", "wallet-one")
	require.NoError(t, err)
	require.NotNil(t, verification.Claimed)
	require.NotNil(t, verification.Claimed.TxRef)
	assert.Equal(t, "c1", *verification.Claimed.TxRef)
	require.NotNil(t, verification.Claimed.MintAddress)
	assert.Equal(t, "mint-abc", *verification.Claimed.MintAddress)
}

func TestSQLiteStore_WalletCaseNormalized(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddRegistration("ev1", "WaLLeT-One", "t1"))

	has, err := s.HasRegistration("ev1", "wallet-ONE")
	require.NoError(t, err)
	assert.True(t, has)

	verification, err := s.GetWalletVerification("ev1", "WALLET-ONE")
	require.NoError(t, err)
	assert.Equal(t, "wallet-one", verification.Wallet)
	assert.Equal(t, StageRegistered, verification.Status)
}

func TestSQLiteStore_WalletVerification_Precedence(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	// A claim without prior stages still reports claimed.
	require.NoError(t, s.AddClaim("ev1", "w1", "c1", nil))
	verification, err := s.GetWalletVerification("ev1", "w1")
	require.NoError(t, err)
	assert.Equal(t, StageClaimed, verification.Status)
	assert.Nil(t, verification.Registered)
	assert.Nil(t, verification.CheckedIn)

	unknown, err := s.GetWalletVerification("ev1", "w-unknown")
	require.NoError(t, err)
	assert.Equal(t, StageNotRegistered, unknown.Status)
}

func TestSQLiteStore_StatsAndOverview(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	for _, wallet := range []string{"w1", "w2", "w3"} {
		require.NoError(t, s.AddRegistration("ev1", wallet, ""))
	}
	require.NoError(t, s.AddCheckin("ev1", "w1", ""))
	require.NoError(t, s.AddCheckin("ev1", "w2", ""))
	require.NoError(t, s.AddClaim("ev1", "w1", "", nil))

	stats, err := s.GetEventStats("ev1")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Registrations)
	assert.Equal(t, 2, stats.Checkins)
	assert.Equal(t, 1, stats.Claims)
	assert.InDelta(t, 0.6667, stats.CheckinRate, 0.00001)
	assert.InDelta(t, 0.5, stats.ClaimRate, 0.00001)

	overview, err := s.GetOverview()
	require.NoError(t, err)
	assert.Equal(t, 2, overview.EventsTotal) // seed + ev1
	assert.Equal(t, 2, overview.EventsByStatus.Published)
	assert.Equal(t, 3, overview.RegistrationsTotal)
	assert.Equal(t, 2, overview.CheckinsTotal)
	assert.Equal(t, 1, overview.ClaimsTotal)
	assert.InDelta(t, 0.6667, overview.OverallCheckinRate, 0.00001)
}

func TestSQLiteStore_Stats_EmptyEvent(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	stats, err := s.GetEventStats("ev1")
	require.NoError(t, err)
	assert.Zero(t, stats.Registrations)
	assert.Zero(t, stats.CheckinRate)
	assert.Zero(t, stats.ClaimRate)
}

func TestSQLiteStore_Timeseries_ZeroFilled(t *testing.T) {
	clock := newTestClock(mustDay("2026-03-01"))
	s := newTestSQLiteStore(t, clock)
	createTestEvent(t, s, "ev1")
	createTestEvent(t, s, "ev2")

	require.NoError(t, s.AddRegistration("ev1", "w1", ""))
	clock.Advance(48 * time.Hour)
	require.NoError(t, s.AddRegistration("ev1", "w2", ""))
	require.NoError(t, s.AddCheckin("ev1", "w2", ""))
	// Activity on another event must not leak into ev1's series.
	require.NoError(t, s.AddRegistration("ev2", "w9", ""))

	points, err := s.GetEventTimeseries("ev1", RangeQuery{From: "2026-03-01", To: "2026-03-04"})
	require.NoError(t, err)
	require.Len(t, points, 4)

	assert.Equal(t, "2026-03-01", points[0].Date)
	assert.Equal(t, 1, points[0].Registrations)
	assert.Zero(t, points[1].Registrations)
	assert.Equal(t, "2026-03-03", points[2].Date)
	assert.Equal(t, 1, points[2].Registrations)
	assert.Equal(t, 1, points[2].Checkins)
	assert.Zero(t, points[3].Registrations)
	assert.Zero(t, points[3].Checkins)
	assert.Zero(t, points[3].Claims)
}

func TestSQLiteStore_RetentionCohorts(t *testing.T) {
	clock := newTestClock(mustDay("2026-03-01"))
	s := newTestSQLiteStore(t, clock)
	createTestEvent(t, s, "ev1")
	createTestEvent(t, s, "ev2")

	// w1 comes back on day 5 via a different event: retained.
	require.NoError(t, s.AddRegistration("ev1", "w1", ""))
	// w2 registers the same day and never returns.
	require.NoError(t, s.AddRegistration("ev1", "w2", ""))

	clock.Advance(5 * 24 * time.Hour)
	require.NoError(t, s.AddRegistration("ev2", "w1", ""))

	// w3 first appears later; its return lands outside the 7-day window.
	clock.Advance(24 * time.Hour) // 2026-03-07
	require.NoError(t, s.AddRegistration("ev1", "w3", ""))
	clock.Advance(8 * 24 * time.Hour)
	require.NoError(t, s.AddRegistration("ev2", "w3", ""))

	points, err := s.GetRetentionCohorts(RangeQuery{From: "2026-03-01", To: "2026-03-07"})
	require.NoError(t, err)
	require.Len(t, points, 7)

	assert.Equal(t, "2026-03-01", points[0].CohortDate)
	assert.Equal(t, 2, points[0].CohortSize)
	assert.Equal(t, 1, points[0].RetainedD7)
	assert.InDelta(t, 0.5, points[0].RetentionRateD7, 0.00001)

	// Days with no first registrations are zero-filled.
	assert.Equal(t, "2026-03-02", points[1].CohortDate)
	assert.Zero(t, points[1].CohortSize)
	assert.Zero(t, points[1].RetentionRateD7)

	assert.Equal(t, "2026-03-07", points[6].CohortDate)
	assert.Equal(t, 1, points[6].CohortSize)
	assert.Zero(t, points[6].RetainedD7)
}

func TestSQLiteStore_Participants_UnionAndSort(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddRegistration("ev1", "bbb", ""))
	require.NoError(t, s.AddCheckin("ev1", "aaa", "")) // check-in with no registration
	require.NoError(t, s.AddClaim("ev1", "ccc", "", nil))

	rows, err := s.ListParticipants("ev1")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "aaa", rows[0].Wallet)
	assert.Nil(t, rows[0].RegisteredAt)
	assert.NotNil(t, rows[0].CheckedInAt)
	assert.Equal(t, "bbb", rows[1].Wallet)
	assert.NotNil(t, rows[1].RegisteredAt)
	assert.Equal(t, "ccc", rows[2].Wallet)
	assert.NotNil(t, rows[2].ClaimedAt)
}

func TestSQLiteStore_ParticipantsPage_StageAndPagination(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	for _, wallet := range []string{"w1", "w2", "w3", "w4"} {
		require.NoError(t, s.AddRegistration("ev1", wallet, ""))
	}
	require.NoError(t, s.AddCheckin("ev1", "w1", ""))
	require.NoError(t, s.AddCheckin("ev1", "w2", ""))
	require.NoError(t, s.AddCheckin("ev1", "w3", ""))
	require.NoError(t, s.AddClaim("ev1", "w1", "", nil))
	require.NoError(t, s.AddClaim("ev1", "w2", "", nil))
	require.NoError(t, s.AddClaim("ev1", "w3", "", nil))

	page, err := s.ListParticipantsPage("ev1", ParticipantsQuery{Stage: FilterClaimed, Limit: 1, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "w1", page.Rows[0].Wallet)

	page, err = s.ListParticipantsPage("ev1", ParticipantsQuery{Stage: FilterClaimed, Limit: 1, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "w3", page.Rows[0].Wallet)

	page, err = s.ListParticipantsPage("ev1", ParticipantsQuery{Stage: FilterRegistered, Limit: 10, Offset: 0})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	page, err = s.ListParticipantsPage("ev1", ParticipantsQuery{Stage: FilterAll, Limit: 10, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Empty(t, page.Rows)
}

func TestSQLiteStore_ParticipantsPage_Search(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddRegistration("ev1", "alpha-wallet", ""))
	require.NoError(t, s.AddRegistration("ev1", "beta-wallet", ""))

	page, err := s.ListParticipantsPage("ev1", ParticipantsQuery{Stage: FilterAll, Search: "ALPHA", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "alpha-wallet", page.Rows[0].Wallet)
}

func TestSQLiteStore_ParticipantsPage_SearchMetacharsAreLiteral(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddRegistration("ev1", "wallet-alpha-xyz-beta", ""))
	require.NoError(t, s.AddRegistration("ev1", "wallet-alpha_beta", ""))

	// % and _ in a search term are plain characters, never wildcards.
	page, err := s.ListParticipantsPage("ev1", ParticipantsQuery{Stage: FilterAll, Search: "alpha%beta", Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	page, err = s.ListParticipantsPage("ev1", ParticipantsQuery{Stage: FilterAll, Search: "alpha_beta", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "wallet-alpha_beta", page.Rows[0].Wallet)
}

func TestSQLiteStore_TxVerification(t *testing.T) {
	clock := newTestClock(mustDay("2026-03-01"))
	s := newTestSQLiteStore(t, clock)
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddRegistration("ev1", "w1", "ref-1"))

	verification, err := s.GetTxVerification("ref-1")
	require.NoError(t, err)
	assert.Equal(t, "ev1", verification.EventID)
	assert.Equal(t, "w1", verification.Wallet)
	assert.Equal(t, TxStageRegister, verification.Stage)

	_, err = s.GetTxVerification("ref-unknown")
	assert.ErrorIs(t, err, ErrTxRefNotFound)
}

func TestSQLiteStore_TxVerification_DuplicateRefMostRecentWins(t *testing.T) {
	clock := newTestClock(mustDay("2026-03-01"))
	s := newTestSQLiteStore(t, clock)
	createTestEvent(t, s, "ev1")

	require.NoError(t, s.AddRegistration("ev1", "w1", "shared"))
	clock.Advance(time.Hour)
	require.NoError(t, s.AddCheckin("ev1", "w2", "shared"))

	verification, err := s.GetTxVerification("shared")
	require.NoError(t, err)
	assert.Equal(t, TxStageCheckIn, verification.Stage)
	assert.Equal(t, "w2", verification.Wallet)

	// Equal timestamps: the later funnel stage wins.
	require.NoError(t, s.AddClaim("ev1", "w2", "shared", nil))
	verification, err = s.GetTxVerification("shared")
	require.NoError(t, err)
	assert.Equal(t, TxStageClaim, verification.Stage)
}

func TestSQLiteStore_TxVerification_EqualTimestampSameStageStable(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	// Same ref, same instant, same ledger: lowest wallet wins every time.
	require.NoError(t, s.AddRegistration("ev1", "w-bravo", "twin-ref"))
	require.NoError(t, s.AddRegistration("ev1", "w-alpha", "twin-ref"))

	verification, err := s.GetTxVerification("twin-ref")
	require.NoError(t, err)
	assert.Equal(t, "w-alpha", verification.Wallet)
	assert.Equal(t, TxStageRegister, verification.Stage)
}

func TestSQLiteStore_SetPoapCollectionIfAbsent(t *testing.T) {
	s := newTestSQLiteStore(t, newTestClock(mustDay("2026-03-01")))
	createTestEvent(t, s, "ev1")

	value, err := s.SetPoapCollectionIfAbsent("ev1", "col-first")
	require.NoError(t, err)
	assert.Equal(t, "col-first", value)

	// A later attempt observes the stored value instead of replacing it.
	value, err = s.SetPoapCollectionIfAbsent("ev1", "col-second")
	require.NoError(t, err)
	assert.Equal(t, "col-first", value)

	_, err = s.SetPoapCollectionIfAbsent("missing", "col-x")
	assert.ErrorIs(t, err, ErrEventNotFound)
}
