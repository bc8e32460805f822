package sweep

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/amrivadeneyra/lunari-sub001/internal/clock"
	conversationdomain "github.com/amrivadeneyra/lunari-sub001/internal/conversation/domain"
	"github.com/amrivadeneyra/lunari-sub001/internal/lifecycle"
	obsmetrics "github.com/amrivadeneyra/lunari-sub001/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupSweepMetrics(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	obsmetrics.ResetSweepMetricsForTest()
	obsmetrics.SweepWithConfig(obsmetrics.Config{ServiceName: "test", Environment: "test"})
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSweepMetricsForTest()
	})
	return registry
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

func setupSweepDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	// SQLite has no row locks; strip the clauses the selection queries
	// carry for postgres.
	stripForUpdate := func(d *gorm.DB) {
		sql := d.Statement.SQL.String()
		if strings.Contains(sql, "FOR UPDATE") {
			newSQL := strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
			newSQL = strings.ReplaceAll(newSQL, "FOR UPDATE", "")
			d.Statement.SQL.Reset()
			d.Statement.SQL.WriteString(newSQL)
		}
	}
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("sqlite_skip_locked", stripForUpdate))
	require.NoError(t, db.Callback().Row().Before("gorm:row").Register("sqlite_skip_locked_row", stripForUpdate))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Exec(`
		CREATE TABLE conversations (
			id INTEGER PRIMARY KEY,
			company_id INTEGER NOT NULL,
			customer_id INTEGER NOT NULL,
			state TEXT NOT NULL DEFAULT 'ACTIVE',
			resolution_type TEXT,
			resolved BOOLEAN NOT NULL DEFAULT FALSE,
			satisfaction_collected BOOLEAN NOT NULL DEFAULT FALSE,
			last_user_activity_at DATETIME NOT NULL,
			live BOOLEAN NOT NULL DEFAULT FALSE,
			channel TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error)
	require.NoError(t, db.Exec(`
		CREATE TABLE messages (
			id INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)
	`).Error)
	return db
}

func newTestSweeper(t *testing.T, db *gorm.DB, fakeClock *clock.FakeClock) *Sweeper {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	sweeper, err := New(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fakeClock,
		Detector: lifecycle.NewSubstringHelpDetector(),
		Config:   Config{BatchSize: 10},
	})
	require.NoError(t, err)
	return sweeper
}

type conversationRow struct {
	ID                    snowflake.ID
	State                 conversationdomain.State
	Resolved              bool
	SatisfactionCollected bool
}

func seedConversation(t *testing.T, db *gorm.DB, id int64, lastUserActivity time.Time) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO conversations
		   (id, company_id, customer_id, state, last_user_activity_at, created_at, updated_at)
		 VALUES (?, 1, 1, 'ACTIVE', ?, ?, ?)`,
		id, lastUserActivity, lastUserActivity, lastUserActivity,
	).Error)
}

func seedMessage(t *testing.T, db *gorm.DB, id, conversationID int64, role, body string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO messages (id, conversation_id, role, body, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, conversationID, role, body, at,
	).Error)
}

func loadConversation(t *testing.T, db *gorm.DB, id int64) conversationRow {
	t.Helper()
	var row conversationRow
	require.NoError(t, db.Raw(
		`SELECT id, state, resolved, satisfaction_collected FROM conversations WHERE id = ?`, id,
	).Scan(&row).Error)
	require.NotZero(t, row.ID)
	return row
}

func countMessages(t *testing.T, db *gorm.DB, conversationID int64) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Raw(
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conversationID,
	).Scan(&count).Error)
	return count
}

func TestRunOnceHelpConfirmation(t *testing.T) {
	registry := setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	// Customer silent for 3 minutes, help offered 1 minute ago.
	seedConversation(t, db, 1, now.Add(-3*time.Minute))
	seedMessage(t, db, 11, 1, "assistant", "Espero haberte ayudado con tu pedido.", now.Add(-time.Minute))

	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.HelpConfirmed)
	assert.Equal(t, 0, summary.Inactive)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, summary.Failed)

	row := loadConversation(t, db, 1)
	assert.Equal(t, conversationdomain.StateAwaitingRating, row.State)
	assert.True(t, row.Resolved)
	assert.True(t, row.SatisfactionCollected)

	// The rating prompt is appended as the latest assistant message.
	var prompt string
	require.NoError(t, db.Raw(
		`SELECT body FROM messages WHERE conversation_id = 1 ORDER BY created_at DESC, id DESC LIMIT 1`,
	).Scan(&prompt).Error)
	assert.Equal(t, DefaultRatingPrompt, prompt)
	assert.Equal(t, int64(2), countMessages(t, db, 1))

	processed := getCounterValue(t, registry, "lunari_sweep_candidates_processed_total", map[string]string{
		"service":  "test",
		"env":      "test",
		"job":      jobName,
		"resource": obsmetrics.SweepResourceHelpConfirmation,
	})
	assert.Equal(t, 1.0, processed)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	fakeClock := clock.NewFakeClock(now)
	sweeper := newTestSweeper(t, db, fakeClock)

	seedConversation(t, db, 1, now.Add(-3*time.Minute))
	seedMessage(t, db, 11, 1, "assistant", "Listo, problema resuelto.", now.Add(-time.Minute))

	first, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.HelpConfirmed)

	fakeClock.Advance(30 * time.Second)
	second, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Processed)

	// Still exactly one prompt.
	assert.Equal(t, int64(2), countMessages(t, db, 1))
	assert.Equal(t, conversationdomain.StateAwaitingRating, loadConversation(t, db, 1).State)
}

func TestRunOnceHelpConfirmationBeatsInactivity(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	// Eligible for both transitions: silent past the inactivity threshold
	// and a recent help offer. Help confirmation wins.
	seedConversation(t, db, 1, now.Add(-10*time.Minute))
	seedMessage(t, db, 11, 1, "assistant", "¿Pude ayudarte con algo más?", now.Add(-90*time.Second))

	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.HelpConfirmed)
	assert.Equal(t, 0, summary.Inactive)

	assert.Equal(t, conversationdomain.StateAwaitingRating, loadConversation(t, db, 1).State)
}

func TestRunOnceInactivity(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	// Silent past the inactivity threshold, no help offered in the window.
	seedConversation(t, db, 1, now.Add(-6*time.Minute))
	seedMessage(t, db, 11, 1, "assistant", "Déjame revisar tu caso.", now.Add(-time.Minute))

	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.HelpConfirmed)
	assert.Equal(t, 1, summary.Inactive)

	row := loadConversation(t, db, 1)
	assert.Equal(t, conversationdomain.StateIdle, row.State)
	assert.False(t, row.Resolved)
	assert.False(t, row.SatisfactionCollected)

	// Inactivity appends nothing.
	assert.Equal(t, int64(1), countMessages(t, db, 1))
}

func TestRunOnceSkipsRecentActivity(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	// Customer spoke a minute ago; no transition applies yet even though
	// help was offered.
	seedConversation(t, db, 1, now.Add(-time.Minute))
	seedMessage(t, db, 11, 1, "assistant", "Espero haberte ayudado.", now.Add(-30*time.Second))

	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, conversationdomain.StateActive, loadConversation(t, db, 1).State)
}

func TestRunOnceIgnoresStaleHelpOffer(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	// The help offer predates the confirmation window, so only the
	// inactivity transition applies.
	seedConversation(t, db, 1, now.Add(-10*time.Minute))
	seedMessage(t, db, 11, 1, "assistant", "Espero haberte ayudado.", now.Add(-8*time.Minute))

	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.HelpConfirmed)
	assert.Equal(t, 1, summary.Inactive)
	assert.Equal(t, conversationdomain.StateIdle, loadConversation(t, db, 1).State)
}

func TestRunOnceIgnoresUserMessagesForConfirmation(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	seedConversation(t, db, 1, now.Add(-3*time.Minute))
	seedMessage(t, db, 11, 1, "user", "problema resuelto, gracias", now.Add(-time.Minute))

	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.HelpConfirmed)
	assert.Equal(t, conversationdomain.StateActive, loadConversation(t, db, 1).State)
}

func TestRunOnceMixedBatch(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	seedConversation(t, db, 1, now.Add(-3*time.Minute))
	seedMessage(t, db, 11, 1, "assistant", "Queda resuelto tu reclamo.", now.Add(-time.Minute))
	seedConversation(t, db, 2, now.Add(-6*time.Minute))
	seedConversation(t, db, 3, now.Add(-30*time.Second))

	summary, err := sweeper.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.HelpConfirmed)
	assert.Equal(t, 1, summary.Inactive)
	assert.Equal(t, 2, summary.Processed)

	assert.Equal(t, conversationdomain.StateAwaitingRating, loadConversation(t, db, 1).State)
	assert.Equal(t, conversationdomain.StateIdle, loadConversation(t, db, 2).State)
	assert.Equal(t, conversationdomain.StateActive, loadConversation(t, db, 3).State)
}

func TestRunOnceSkipsWhileRunning(t *testing.T) {
	registry := setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	sweeper.running.Store(true)
	_, err := sweeper.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	deferred := getCounterValue(t, registry, "lunari_sweep_runs_deferred_total", map[string]string{
		"service": "test",
		"env":     "test",
		"job":     jobName,
		"reason":  obsmetrics.SweepDeferredReasonRunInProgress,
	})
	assert.Equal(t, 1.0, deferred)

	sweeper.running.Store(false)
	_, err = sweeper.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestRunOnceAbortsWhenSelectionFails(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	require.NoError(t, db.Exec(`DROP TABLE conversations`).Error)

	summary, err := sweeper.RunOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, summary.Processed)
}

func TestApplyTransitionSkipsReactivatedConversation(t *testing.T) {
	setupSweepMetrics(t)
	db := setupSweepDB(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	sweeper := newTestSweeper(t, db, clock.NewFakeClock(now))

	// Stale at selection time, but the customer speaks again before the
	// write lands.
	seedConversation(t, db, 1, now.Add(-3*time.Minute))
	seedMessage(t, db, 11, 1, "assistant", "Espero haberte ayudado.", now.Add(-time.Minute))
	require.NoError(t, db.Exec(
		`UPDATE conversations SET last_user_activity_at = ? WHERE id = 1`, now,
	).Error)

	decision, ok := lifecycle.Decide(conversationdomain.Conversation{
		ID:                 snowflake.ID(1),
		State:              conversationdomain.StateActive,
		LastUserActivityAt: now.Add(-3 * time.Minute),
	}, lifecycle.TriggerHelpConfirmed)
	require.True(t, ok)

	updated, err := sweeper.applyTransition(context.Background(), snowflake.ID(1), decision, now.Add(-2*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, updated)

	row := loadConversation(t, db, 1)
	assert.Equal(t, conversationdomain.StateActive, row.State)
	assert.False(t, row.Resolved)
	assert.False(t, row.SatisfactionCollected)
	assert.Equal(t, int64(1), countMessages(t, db, 1))

	// Same race on the inactivity path.
	seedConversation(t, db, 2, now.Add(-10*time.Minute))
	require.NoError(t, db.Exec(
		`UPDATE conversations SET last_user_activity_at = ? WHERE id = 2`, now,
	).Error)

	decision, ok = lifecycle.Decide(conversationdomain.Conversation{
		ID:                 snowflake.ID(2),
		State:              conversationdomain.StateActive,
		LastUserActivityAt: now.Add(-10 * time.Minute),
	}, lifecycle.TriggerInactivity)
	require.True(t, ok)

	updated, err = sweeper.applyTransition(context.Background(), snowflake.ID(2), decision, now.Add(-5*time.Minute), now)
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, conversationdomain.StateActive, loadConversation(t, db, 2).State)
}
