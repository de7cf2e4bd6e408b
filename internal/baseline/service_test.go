package baseline

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ratio-backtester/internal/infrastructure"
	"ratio-backtester/internal/model"
)

type fakeTickSource struct {
	ticks map[string][]model.Tick // symbol|session -> day ticks
}

func (f *fakeTickSource) FetchDay(_ context.Context, symbol string, session model.Session, _ time.Time) ([]model.Tick, error) {
	return f.ticks[symbol+"|"+string(session)], nil
}

type fakeBaselineStore struct {
	rows []model.Baseline
}

func (f *fakeBaselineStore) Upsert(_ context.Context, b model.Baseline) error {
	f.rows = append(f.rows, b)
	return nil
}

func TestService_MethodFailureDoesNotBlockOthers(t *testing.T) {
	// Zero-volume ticks starve the three volume-weighted methods, but
	// EQUAL_MEAN and WINSORIZED must still produce baselines.
	src := &fakeTickSource{ticks: map[string][]model.Tick{
		"AAPL|PRIMARY":  {ratioTick(100, 0, 0), ratioTick(102, 0, 0)},
		"AAPL|EXTENDED": nil,
	}}
	store := &fakeBaselineStore{}
	svc := NewService(src, store, zap.NewNop())

	prior := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	trading := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	written, err := svc.ComputeFor(context.Background(), []string{"AAPL"}, prior, trading)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	methods := make(map[model.Method]bool)
	for _, b := range store.rows {
		assert.Equal(t, trading, b.TradingDay)
		assert.Equal(t, model.SessionPrimary, b.Session)
		methods[b.Method] = true
	}
	assert.True(t, methods[model.MethodEqualMean])
	assert.True(t, methods[model.MethodWinsorized])
}

func TestService_CountsComputedBaselines(t *testing.T) {
	src := &fakeTickSource{ticks: map[string][]model.Tick{
		"MSFT|PRIMARY": {ratioTick(100, 0, 0), ratioTick(102, 0, 0)},
	}}
	store := &fakeBaselineStore{}
	svc := NewService(src, store, zap.NewNop())

	before := testutil.ToFloat64(infrastructure.BaselinesComputed.WithLabelValues(string(model.MethodEqualMean)))

	prior := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	trading := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	written, err := svc.ComputeFor(context.Background(), []string{"MSFT"}, prior, trading)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	after := testutil.ToFloat64(infrastructure.BaselinesComputed.WithLabelValues(string(model.MethodEqualMean)))
	assert.Equal(t, before+1, after)
}

func TestPrevTradingDay_SkipsWeekend(t *testing.T) {
	monday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	friday := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, friday, PrevTradingDay(monday))

	tuesday := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, PrevTradingDay(tuesday))
}
