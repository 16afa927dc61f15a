package anomaly

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costlens/backend/internal/config"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/repository"
)

var testToday = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)

type fakePointSource struct {
	points []model.DailyCostPoint
	err    error
}

func (f *fakePointSource) UpsertSnapshot(ctx context.Context, s *model.CostSnapshot) error {
	return nil
}

func (f *fakePointSource) GetSnapshot(ctx context.Context, accountID uuid.UUID, month, year int) (*model.CostSnapshot, error) {
	return nil, nil
}

func (f *fakePointSource) GetSnapshotsByUser(ctx context.Context, userID uuid.UUID, month, year int) ([]*model.CostSnapshot, error) {
	return nil, nil
}

func (f *fakePointSource) UpsertDailyPoints(ctx context.Context, points []model.DailyCostPoint) error {
	return nil
}

func (f *fakePointSource) GetDailyPoints(ctx context.Context, accountID uuid.UUID, dateRange model.DateRange) ([]model.DailyCostPoint, error) {
	return f.points, f.err
}

func (f *fakePointSource) GetDailyTotals(ctx context.Context, filter model.CostFilter) ([]repository.DailyTotal, error) {
	return nil, nil
}

func (f *fakePointSource) GetMonthlyTotal(ctx context.Context, accountID uuid.UUID, month, year int) (float64, error) {
	return 0, nil
}

type fakeAnomalyRepo struct {
	rows      []*model.AnomalyBaseline
	upsertErr func(row *model.AnomalyBaseline) error
	top       *model.AnomalyBaseline
}

func (f *fakeAnomalyRepo) UpsertBaseline(ctx context.Context, row *model.AnomalyBaseline) error {
	if f.upsertErr != nil {
		if err := f.upsertErr(row); err != nil {
			return err
		}
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeAnomalyRepo) List(ctx context.Context, filter model.AnomalyFilter, thresholdPct float64) ([]*model.AnomalyBaseline, error) {
	return f.rows, nil
}

func (f *fakeAnomalyRepo) TopVariance(ctx context.Context, accountID uuid.UUID, since time.Time, thresholdPct float64) (*model.AnomalyBaseline, error) {
	return f.top, nil
}

type fakeUserRepo struct {
	user *model.User
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return f.user, nil
}

type fakeAlertSink struct {
	detected []*model.AnomalyBaseline
	emails   []*model.AnomalyBaseline
}

func (f *fakeAlertSink) AnomalyDetected(ctx context.Context, account *model.ProviderAccount, baseline *model.AnomalyBaseline) {
	f.detected = append(f.detected, baseline)
}

func (f *fakeAlertSink) AnomalyEmail(ctx context.Context, user *model.User, account *model.ProviderAccount, baseline *model.AnomalyBaseline) error {
	f.emails = append(f.emails, baseline)
	return nil
}

func testAnomalyConfig() config.AnomalyConfig {
	return config.AnomalyConfig{
		BaselineWindowDays:  30,
		RecomputeWindowDays: 7,
		MinHistoryPoints:    5,
		AlertThresholdPct:   50,
	}
}

func newTestEngine(costs *fakePointSource, anomalies *fakeAnomalyRepo, users *fakeUserRepo, sink *fakeAlertSink) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var notifier Notifier
	if sink != nil {
		notifier = sink
	}
	e := NewEngine(costs, anomalies, users, notifier, testAnomalyConfig(), logger)
	e.now = func() time.Time { return testToday }
	return e
}

// steadyHistory builds daily points for one service at a flat cost, ending the
// day before testToday.
func steadyHistory(accountID uuid.UUID, service string, days int, cost float64) []model.DailyCostPoint {
	points := make([]model.DailyCostPoint, 0, days)
	for i := days; i >= 1; i-- {
		points = append(points, model.DailyCostPoint{
			AccountID: accountID,
			Date:      testToday.AddDate(0, 0, -i),
			Service:   service,
			Cost:      cost,
		})
	}
	return points
}

func testAccount() *model.ProviderAccount {
	return &model.ProviderAccount{
		BaseEntity:   model.NewBaseEntity(),
		UserID:       uuid.New(),
		ProviderType: model.ProviderAWS,
		Active:       true,
	}
}

func TestRecomputeFlagsSpike(t *testing.T) {
	account := testAccount()
	points := steadyHistory(account.ID, "Amazon EC2", 20, 10)
	// Today spikes to 15, a +50% deviation from the trailing mean of 10.
	points = append(points, model.DailyCostPoint{
		AccountID: account.ID, Date: testToday, Service: "Amazon EC2", Cost: 15,
	})

	anomalies := &fakeAnomalyRepo{}
	e := newTestEngine(&fakePointSource{points: points}, anomalies, &fakeUserRepo{}, nil)
	require.NoError(t, e.Recompute(context.Background(), account))

	var today *model.AnomalyBaseline
	for _, row := range anomalies.rows {
		if row.Date.Equal(testToday) {
			today = row
		}
	}
	require.NotNil(t, today, "expected a baseline row for today")
	assert.InDelta(t, 10, today.BaselineCost, 1e-9)
	assert.InDelta(t, 15, today.CurrentCost, 1e-9)
	assert.InDelta(t, 50, today.VariancePercent, 1e-9)
	assert.True(t, today.IsIncrease)
}

func TestRecomputeFlagsDrop(t *testing.T) {
	account := testAccount()
	points := steadyHistory(account.ID, "Amazon S3", 20, 10)
	points = append(points, model.DailyCostPoint{
		AccountID: account.ID, Date: testToday, Service: "Amazon S3", Cost: 6,
	})

	anomalies := &fakeAnomalyRepo{}
	e := newTestEngine(&fakePointSource{points: points}, anomalies, &fakeUserRepo{}, nil)
	require.NoError(t, e.Recompute(context.Background(), account))

	var today *model.AnomalyBaseline
	for _, row := range anomalies.rows {
		if row.Date.Equal(testToday) {
			today = row
		}
	}
	require.NotNil(t, today)
	assert.InDelta(t, -40, today.VariancePercent, 1e-9)
	assert.False(t, today.IsIncrease)
}

func TestRecomputeSkipsThinHistory(t *testing.T) {
	account := testAccount()
	// Only 3 trailing points, below the 5-point minimum. No row may exist,
	// absence of a baseline is not a zero baseline.
	points := steadyHistory(account.ID, "Amazon EC2", 3, 10)
	points = append(points, model.DailyCostPoint{
		AccountID: account.ID, Date: testToday, Service: "Amazon EC2", Cost: 100,
	})

	anomalies := &fakeAnomalyRepo{}
	e := newTestEngine(&fakePointSource{points: points}, anomalies, &fakeUserRepo{}, nil)
	require.NoError(t, e.Recompute(context.Background(), account))

	for _, row := range anomalies.rows {
		assert.False(t, row.Date.Equal(testToday), "thin history must not produce a baseline row")
	}
}

func TestRecomputeBaselineExcludesCurrentDay(t *testing.T) {
	account := testAccount()
	points := steadyHistory(account.ID, "Amazon EC2", 10, 10)
	// A huge spike today must not drag its own baseline up.
	points = append(points, model.DailyCostPoint{
		AccountID: account.ID, Date: testToday, Service: "Amazon EC2", Cost: 1000,
	})

	anomalies := &fakeAnomalyRepo{}
	e := newTestEngine(&fakePointSource{points: points}, anomalies, &fakeUserRepo{}, nil)
	require.NoError(t, e.Recompute(context.Background(), account))

	for _, row := range anomalies.rows {
		if row.Date.Equal(testToday) {
			assert.InDelta(t, 10, row.BaselineCost, 1e-9)
		}
	}
}

func TestRecomputeContinuesPastUpsertErrors(t *testing.T) {
	account := testAccount()
	points := append(
		steadyHistory(account.ID, "Amazon EC2", 20, 10),
		steadyHistory(account.ID, "Amazon S3", 20, 5)...,
	)
	points = append(points,
		model.DailyCostPoint{AccountID: account.ID, Date: testToday, Service: "Amazon EC2", Cost: 12},
		model.DailyCostPoint{AccountID: account.ID, Date: testToday, Service: "Amazon S3", Cost: 7},
	)

	anomalies := &fakeAnomalyRepo{
		upsertErr: func(row *model.AnomalyBaseline) error {
			if row.Service == "Amazon EC2" {
				return errors.New("constraint violation")
			}
			return nil
		},
	}
	e := newTestEngine(&fakePointSource{points: points}, anomalies, &fakeUserRepo{}, nil)
	require.NoError(t, e.Recompute(context.Background(), account), "upsert failures are best effort")

	var s3Rows int
	for _, row := range anomalies.rows {
		require.NotEqual(t, "Amazon EC2", row.Service)
		s3Rows++
	}
	assert.Positive(t, s3Rows, "the failing service must not starve its siblings")
}

func TestRecomputePropagatesLoadError(t *testing.T) {
	account := testAccount()
	e := newTestEngine(&fakePointSource{err: errors.New("db down")}, &fakeAnomalyRepo{}, &fakeUserRepo{}, nil)
	assert.Error(t, e.Recompute(context.Background(), account))
}

func TestAfterSyncEscalatesTopDeviation(t *testing.T) {
	account := testAccount()
	top := &model.AnomalyBaseline{
		BaseEntity:      model.NewBaseEntity(),
		AccountID:       account.ID,
		Service:         "Amazon EC2",
		Date:            testToday,
		BaselineCost:    10,
		CurrentCost:     25,
		VariancePercent: 150,
		IsIncrease:      true,
	}
	anomalies := &fakeAnomalyRepo{top: top}
	users := &fakeUserRepo{user: &model.User{
		BaseEntity: model.NewBaseEntity(),
		Email:      "owner@example.com",
		Tier:       model.TierPro,
	}}
	sink := &fakeAlertSink{}

	e := newTestEngine(&fakePointSource{}, anomalies, users, sink)
	e.AfterSync(context.Background(), account)

	require.Len(t, sink.detected, 1)
	assert.Equal(t, top, sink.detected[0])
	require.Len(t, sink.emails, 1, "pro tier owners get email alerts")
}

func TestAfterSyncFreeTierSkipsEmail(t *testing.T) {
	account := testAccount()
	anomalies := &fakeAnomalyRepo{top: &model.AnomalyBaseline{
		BaseEntity: model.NewBaseEntity(), AccountID: account.ID, VariancePercent: 80,
	}}
	users := &fakeUserRepo{user: &model.User{
		BaseEntity: model.NewBaseEntity(),
		Tier:       model.TierFree,
	}}
	sink := &fakeAlertSink{}

	e := newTestEngine(&fakePointSource{}, anomalies, users, sink)
	e.AfterSync(context.Background(), account)

	assert.Len(t, sink.detected, 1, "in-app notification is tier independent")
	assert.Empty(t, sink.emails, "free tier owners never get email alerts")
}

func TestAfterSyncNoDeviationStaysQuiet(t *testing.T) {
	account := testAccount()
	sink := &fakeAlertSink{}

	e := newTestEngine(&fakePointSource{}, &fakeAnomalyRepo{}, &fakeUserRepo{}, sink)
	e.AfterSync(context.Background(), account)

	assert.Empty(t, sink.detected)
	assert.Empty(t, sink.emails)
}

func TestAnomaliesDefaultsThreshold(t *testing.T) {
	anomalies := &fakeAnomalyRepo{rows: []*model.AnomalyBaseline{{VariancePercent: 60}}}
	e := newTestEngine(&fakePointSource{}, anomalies, &fakeUserRepo{}, nil)

	out, err := e.Anomalies(context.Background(), model.AnomalyFilter{UserID: uuid.New()}, 0)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
