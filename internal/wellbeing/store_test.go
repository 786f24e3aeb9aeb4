package wellbeing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_FetchEntries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(14 * 24 * time.Hour)
	ts := since.Add(time.Hour)

	rows := pgxmock.NewRows([]string{"id", "user_id", "content", "created_at", "mood_rating", "stress_level", "energy_level", "stress_triggers"}).
		AddRow("e-1", "user-1", "long day", ts, IntPtr(6), IntPtr(3), IntPtr(5), []string{"deadline"})
	mock.ExpectQuery("SELECT id, user_id, content").WithArgs("user-1", since, until).WillReturnRows(rows)

	entries, err := store.FetchEntries(context.Background(), "user-1", since, until)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "long day", entries[0].Content)
	mood, ok := entries[0].Metric(MetricMood)
	assert.True(t, ok)
	assert.Equal(t, 6, mood)
	assert.Equal(t, []string{"deadline"}, entries[0].StressTriggers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FetchEntriesUnavailable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	until := time.Now().UTC()
	since := until.Add(-time.Hour)
	mock.ExpectQuery("SELECT id, user_id, content").
		WithArgs("user-1", since, until).
		WillReturnError(errors.New("connection refused"))

	_, err = store.FetchEntries(context.Background(), "user-1", since, until)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorContains(t, err, "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FetchDeliveries(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	since := time.Now().UTC().Add(-7 * 24 * time.Hour)
	rows := pgxmock.NewRows([]string{"id", "user_id", "intervention_type", "delivered_at", "was_completed", "perceived_helpfulness", "crisis_escalation_level"}).
		AddRow("d-1", "user-1", "breathing_exercise", time.Now().UTC(), true, IntPtr(4), 3)
	mock.ExpectQuery("FROM intervention_deliveries").WithArgs("user-1", since).WillReturnRows(rows)

	deliveries, err := store.FetchDeliveries(context.Background(), "user-1", since)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.True(t, deliveries[0].WasCompleted)
	require.NotNil(t, deliveries[0].PerceivedHelpfulness)
	assert.Equal(t, 4, *deliveries[0].PerceivedHelpfulness)
	assert.Equal(t, 3, deliveries[0].CrisisEscalationLevel)
}

func TestPostgresStore_HighRiskUsers(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)
	since := time.Now().UTC().Add(-7 * 24 * time.Hour)
	mock.ExpectQuery("SELECT DISTINCT ON").WithArgs(since, 6).
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("user-1").AddRow("user-2"))

	users, err := store.HighRiskUsers(context.Background(), since, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1", "user-2"}, users)
}

func TestPostgresStore_GetConsent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store := NewPostgresStore(mock)

	mock.ExpectQuery("FROM privacy_consents").WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"crisis_intervention_consent", "manager_access_consent"}).AddRow(true, false))
	consent, err := store.GetConsent(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, consent)
	assert.True(t, consent.CrisisInterventionConsent)
	assert.False(t, consent.ManagerAccessConsent)

	mock.ExpectQuery("FROM privacy_consents").WithArgs("user-2").WillReturnError(pgx.ErrNoRows)
	consent, err = store.GetConsent(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Nil(t, consent)

	mock.ExpectQuery("FROM privacy_consents").WithArgs("user-3").WillReturnError(errors.New("timeout"))
	_, err = store.GetConsent(context.Background(), "user-3")
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestJournalEntryValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		entry   JournalEntry
		wantErr bool
	}{
		{"valid without metrics", JournalEntry{UserID: "u", Timestamp: now}, false},
		{"valid with metrics", JournalEntry{UserID: "u", Timestamp: now, Mood: IntPtr(10), Stress: IntPtr(1), Energy: IntPtr(5)}, false},
		{"missing user", JournalEntry{Timestamp: now}, true},
		{"missing timestamp", JournalEntry{UserID: "u"}, true},
		{"mood too high", JournalEntry{UserID: "u", Timestamp: now, Mood: IntPtr(11)}, true},
		{"stress too high", JournalEntry{UserID: "u", Timestamp: now, Stress: IntPtr(6)}, true},
		{"energy zero", JournalEntry{UserID: "u", Timestamp: now, Energy: IntPtr(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryStoreHighRiskUsesLatestDelivery(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.AddDelivery(Delivery{UserID: "a", DeliveredAt: now.Add(-2 * time.Hour), CrisisEscalationLevel: 8})
	store.AddDelivery(Delivery{UserID: "a", DeliveredAt: now.Add(-time.Hour), CrisisEscalationLevel: 2})
	store.AddDelivery(Delivery{UserID: "b", DeliveredAt: now.Add(-time.Hour), CrisisEscalationLevel: 7})
	store.AddDelivery(Delivery{UserID: "c", DeliveredAt: now.Add(-10 * 24 * time.Hour), CrisisEscalationLevel: 9})

	users, err := store.HighRiskUsers(context.Background(), now.Add(-7*24*time.Hour), 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, users)
}
