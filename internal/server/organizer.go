package server

import (
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nialthony/Campuss-Blink-Pass/internal/store"
)

const maxRangeDays = 366

var (
	eventIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
	dayPattern     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dashRun        = regexp.MustCompile(`-+`)
)

type createEventBody struct {
	ID                  string             `json:"id"`
	Name                string             `json:"name"`
	Description         string             `json:"description"`
	StartAt             time.Time          `json:"startAt"`
	EndAt               time.Time          `json:"endAt"`
	CheckInSecret       string             `json:"checkInSecret"`
	TicketPriceLamports int64              `json:"ticketPriceLamports"`
	PoapCollection      *string            `json:"poapCollection"`
	Status              *store.EventStatus `json:"status"`
}

type updateEventBody struct {
	Name                *string            `json:"name"`
	Description         *string            `json:"description"`
	StartAt             *time.Time         `json:"startAt"`
	EndAt               *time.Time         `json:"endAt"`
	CheckInSecret       *string            `json:"checkInSecret"`
	TicketPriceLamports *int64             `json:"ticketPriceLamports"`
	PoapCollection      *string            `json:"poapCollection"`
	Status              *store.EventStatus `json:"status"`
}

func validStatus(status store.EventStatus) bool {
	switch status {
	case store.EventStatusDraft, store.EventStatusPublished, store.EventStatusEnded:
		return true
	}
	return false
}

func slugifyEventName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	slug := dashRun.ReplaceAllString(b.String(), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return slug
}

func (a *api) handleOverview(w http.ResponseWriter, _ *http.Request) {
	overview, err := a.store.GetOverview()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"overview": overview})
}

func (a *api) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	events, err := a.store.ListEvents()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

func (a *api) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := a.store.GetEventByID(r.PathValue("eventId"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": event})
}

func (a *api) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var body createEventBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	if len(body.Name) < 3 || len(body.Name) > 120 {
		writeError(w, http.StatusBadRequest, "name must be 3-120 characters")
		return
	}
	if len(body.Description) < 3 || len(body.Description) > 1000 {
		writeError(w, http.StatusBadRequest, "description must be 3-1000 characters")
		return
	}
	if len(body.CheckInSecret) < 4 || len(body.CheckInSecret) > 128 {
		writeError(w, http.StatusBadRequest, "checkInSecret must be 4-128 characters")
		return
	}
	if body.TicketPriceLamports < 0 {
		writeError(w, http.StatusBadRequest, "ticketPriceLamports must be non-negative")
		return
	}
	if body.StartAt.IsZero() || body.EndAt.IsZero() || !body.StartAt.Before(body.EndAt) {
		writeError(w, http.StatusBadRequest, "endAt must be later than startAt")
		return
	}

	status := store.EventStatusDraft
	if body.Status != nil {
		if !validStatus(*body.Status) {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		status = *body.Status
	}

	eventID := body.ID
	if eventID == "" {
		eventID = fmt.Sprintf("%s-%s", slugifyEventName(body.Name), uuid.NewString()[:8])
	}
	if len(eventID) < 3 || len(eventID) > 80 || !eventIDPattern.MatchString(eventID) {
		writeError(w, http.StatusBadRequest, "id must be 3-80 lowercase slug characters")
		return
	}

	created, err := a.store.CreateEvent(store.CreateEventInput{
		ID:                  eventID,
		Name:                body.Name,
		Description:         body.Description,
		StartAt:             body.StartAt,
		EndAt:               body.EndAt,
		CheckInSecret:       body.CheckInSecret,
		TicketPriceLamports: body.TicketPriceLamports,
		PoapCollection:      body.PoapCollection,
		Status:              status,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"event": created})
}

func (a *api) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var body updateEventBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid body")
		return
	}

	if body.Status != nil && !validStatus(*body.Status) {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	eventID := r.PathValue("eventId")
	current, err := a.store.GetEventByID(eventID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	mergedStart := current.StartAt
	if body.StartAt != nil {
		mergedStart = *body.StartAt
	}
	mergedEnd := current.EndAt
	if body.EndAt != nil {
		mergedEnd = *body.EndAt
	}
	if !mergedStart.Before(mergedEnd) {
		writeError(w, http.StatusBadRequest, "endAt must be later than startAt")
		return
	}

	updated, err := a.store.UpdateEvent(eventID, store.UpdateEventInput{
		Name:                body.Name,
		Description:         body.Description,
		StartAt:             body.StartAt,
		EndAt:               body.EndAt,
		CheckInSecret:       body.CheckInSecret,
		TicketPriceLamports: body.TicketPriceLamports,
		PoapCollection:      body.PoapCollection,
		Status:              body.Status,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"event": updated})
}

func (a *api) handleEventStats(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")
	if _, err := a.store.GetEventByID(eventID); err != nil {
		writeStoreError(w, err)
		return
	}

	stats, err := a.store.GetEventStats(eventID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"eventId": eventID, "stats": stats})
}

// parseRangeQuery validates from/to, defaulting to the trailing 30 days.
func parseRangeQuery(r *http.Request) (store.RangeQuery, error) {
	to := time.Now().UTC().Format("2006-01-02")
	from := time.Now().UTC().AddDate(0, 0, -29).Format("2006-01-02")

	if v := r.URL.Query().Get("from"); v != "" {
		if !dayPattern.MatchString(v) {
			return store.RangeQuery{}, fmt.Errorf("from must be YYYY-MM-DD")
		}
		from = v
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if !dayPattern.MatchString(v) {
			return store.RangeQuery{}, fmt.Errorf("to must be YYYY-MM-DD")
		}
		to = v
	}

	if from > to {
		return store.RangeQuery{}, fmt.Errorf("from must be less than or equal to to")
	}

	start, _ := time.ParseInLocation("2006-01-02", from, time.UTC)
	end, _ := time.ParseInLocation("2006-01-02", to, time.UTC)
	if int(end.Sub(start).Hours()/24)+1 > maxRangeDays {
		return store.RangeQuery{}, fmt.Errorf("date range cannot exceed %d days", maxRangeDays)
	}

	return store.RangeQuery{From: from, To: to}, nil
}

func parseParticipantsQuery(r *http.Request) (store.ParticipantsQuery, error) {
	q := store.ParticipantsQuery{
		Stage:  store.FilterAll,
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:  200,
		Offset: 0,
	}

	if v := r.URL.Query().Get("stage"); v != "" {
		switch store.StageFilter(v) {
		case store.FilterAll, store.FilterRegistered, store.FilterCheckedIn, store.FilterClaimed:
			q.Stage = store.StageFilter(v)
		default:
			return q, fmt.Errorf("invalid stage")
		}
	}
	if len(q.Search) > 120 {
		return q, fmt.Errorf("search too long")
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 1000 {
			return q, fmt.Errorf("limit must be 1-1000")
		}
		q.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return q, fmt.Errorf("offset must be non-negative")
		}
		q.Offset = offset
	}

	return q, nil
}

func (a *api) handleTimeseries(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")
	if _, err := a.store.GetEventByID(eventID); err != nil {
		writeStoreError(w, err)
		return
	}

	rangeQuery, err := parseRangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := a.store.GetEventTimeseries(eventID, rangeQuery)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var totals store.TimeseriesPoint
	for _, point := range points {
		totals.Registrations += point.Registrations
		totals.Checkins += point.Checkins
		totals.Claims += point.Claims
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"eventId": eventID,
		"range":   rangeQuery,
		"totals": map[string]int{
			"registrations": totals.Registrations,
			"checkins":      totals.Checkins,
			"claims":        totals.Claims,
		},
		"points": points,
	})
}

func (a *api) handleRetention(w http.ResponseWriter, r *http.Request) {
	rangeQuery, err := parseRangeQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cohorts, err := a.store.GetRetentionCohorts(rangeQuery)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	var cohortSize, retained int
	for _, cohort := range cohorts {
		cohortSize += cohort.CohortSize
		retained += cohort.RetainedD7
	}
	rate := 0.0
	if cohortSize > 0 {
		rate = math.Round(float64(retained)/float64(cohortSize)*10000) / 10000
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"range": rangeQuery,
		"totals": map[string]interface{}{
			"cohortSize":      cohortSize,
			"retainedD7":      retained,
			"retentionRateD7": rate,
		},
		"cohorts": cohorts,
	})
}

func (a *api) handleParticipants(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")
	if _, err := a.store.GetEventByID(eventID); err != nil {
		writeStoreError(w, err)
		return
	}

	query, err := parseParticipantsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := a.store.ListParticipantsPage(eventID, query)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"eventId": eventID,
		"query": map[string]interface{}{
			"stage":  query.Stage,
			"search": query.Search,
			"limit":  query.Limit,
			"offset": query.Offset,
		},
		"page": page,
	})
}

func escapeCSVCell(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func formatCSVTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (a *api) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventId")
	if _, err := a.store.GetEventByID(eventID); err != nil {
		writeStoreError(w, err)
		return
	}

	query, err := parseParticipantsQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := a.store.ListParticipantsPage(eventID, query)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	lines := make([]string, 0, len(page.Rows)+1)
	lines = append(lines, "wallet,registeredAt,checkedInAt,claimedAt")
	for _, row := range page.Rows {
		lines = append(lines, strings.Join([]string{
			escapeCSVCell(row.Wallet),
			escapeCSVCell(formatCSVTime(row.RegisteredAt)),
			escapeCSVCell(formatCSVTime(row.CheckedInAt)),
			escapeCSVCell(formatCSVTime(row.ClaimedAt)),
		}, ","))
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-participants.csv"`, eventID))
	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strings.Join(lines, "\n")))
}
