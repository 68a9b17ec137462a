package management

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew/mentor-gateway/internal/auth"
	"github.com/andrew/mentor-gateway/internal/database/models"
)

type fakeStore struct {
	alerts []models.QuotaAlert
	failID int64
	since  *time.Time
}

func (f *fakeStore) ListQuotaAlerts(ctx context.Context, unacknowledgedOnly bool, limit int) ([]models.QuotaAlert, error) {
	var out []models.QuotaAlert
	for _, a := range f.alerts {
		if unacknowledgedOnly && a.Acknowledged {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeStore) AcknowledgeQuotaAlert(ctx context.Context, id int64) error {
	if id == f.failID {
		return errors.New("not found")
	}
	for i := range f.alerts {
		if f.alerts[i].ID == id {
			f.alerts[i].Acknowledged = true
		}
	}
	return nil
}

func (f *fakeStore) GetUsageStats(ctx context.Context, since *time.Time) (*models.UsageStats, error) {
	f.since = since
	return &models.UsageStats{TotalRequests: 7, TotalTokens: 900}, nil
}

func newStore() *fakeStore {
	return &fakeStore{alerts: []models.QuotaAlert{
		{ID: 1, Provider: "groq", Threshold: 80, PercentUsed: 81},
		{ID: 2, Provider: "groq", Threshold: 90, PercentUsed: 91, Acknowledged: true},
	}}
}

func TestListAlertsJSON(t *testing.T) {
	var out bytes.Buffer
	am := NewAlertManager(newStore(), &out)

	require.NoError(t, am.ListAlertsJSON(context.Background(), false))
	var open ListAlertsOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &open))
	assert.True(t, open.Success)
	assert.Len(t, open.Alerts, 1)

	out.Reset()
	require.NoError(t, am.ListAlertsJSON(context.Background(), true))
	var all ListAlertsOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &all))
	assert.Len(t, all.Alerts, 2)
}

func TestAcknowledgeJSON(t *testing.T) {
	var out bytes.Buffer
	store := newStore()
	store.failID = 9
	am := NewAlertManager(store, &out)

	require.NoError(t, am.AcknowledgeJSON(context.Background(), []int64{1}))
	assert.True(t, store.alerts[0].Acknowledged)

	out.Reset()
	err := am.AcknowledgeJSON(context.Background(), []int64{2, 9})
	require.Error(t, err)

	var result AcknowledgeOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.False(t, result.Success)
	assert.Equal(t, []int64{2}, result.Acknowledged)
	assert.Contains(t, result.Error, "alert 9")
}

func TestUsageJSON(t *testing.T) {
	var out bytes.Buffer
	store := newStore()
	am := NewAlertManager(store, &out)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, am.UsageJSON(context.Background(), &since))
	assert.Equal(t, &since, store.since)

	var result UsageOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, 7, result.Stats.TotalRequests)
}

func TestTokenJSON(t *testing.T) {
	var out bytes.Buffer
	am := NewAlertManager(newStore(), &out)

	require.NoError(t, am.TokenJSON())
	var result TokenOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.True(t, strings.HasPrefix(result.Token, auth.TokenPrefix))
}
