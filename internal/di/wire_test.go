package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/consensus/internal/config"
	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:                t.TempDir(),
		StaleThreshold:         3,
		PriceAlertThreshold:    7.5,
		CrossSourceMinHoldings: 2,
		CrossSourceMinMentions: 1,
		AlertDisplayLimit:      10,
		Workers:                2,
		FetchTimeout:           5 * time.Second,
		FetchRetries:           2,
		RetryBackoff:           time.Millisecond,
		MaxArticles:            5,
		Sources: &config.Sources{
			Publications: []domain.Publication{{Name: "Value Letter", URL: "https://value.example.com"}},
			Investors:    []string{"BRK"},
			Rules:        []domain.AlertRule{{Name: "cheap", Condition: "pe_ratio < 10", Enabled: true}},
		},
	}
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.StateDB)
	assert.NotNil(t, container.Store)
	assert.FileExists(t, filepath.Join(cfg.DataDir, "state.db"))

	state, err := container.Store.LoadState(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.Entities)
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.Holdings)
	assert.NotNil(t, container.Mentions)
	assert.NotNil(t, container.Market)
	assert.NotNil(t, container.Writer)
	assert.NotNil(t, container.Pipeline)
	assert.Nil(t, container.Publisher, "publisher needs every R2 setting")
	assert.Equal(t, cfg.PolitenessDelay, container.Gate.Delay())

	_, isLog := container.Notifier.(*notify.LogNotifier)
	assert.True(t, isLog, "without an API key alerts are logged")
}

func TestWire_ResendNotifier(t *testing.T) {
	cfg := testConfig(t)
	cfg.ResendAPIKey = "re_test"
	cfg.AlertEmail = "ops@example.com"

	container, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	_, isResend := container.Notifier.(*notify.ResendNotifier)
	assert.True(t, isResend)
}

func TestPipelineOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.ForceFullRefresh = true

	opts := PipelineOptions(cfg)
	assert.True(t, opts.ForceFullRefresh)
	assert.Equal(t, 3, opts.StaleThreshold)
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, 7.5, opts.Alerts.PriceThreshold)
	assert.Len(t, opts.Publications, 1)
	assert.Equal(t, []string{"BRK"}, opts.Investors)
	assert.Len(t, opts.Rules, 1)

	cfg.Sources = nil
	opts = PipelineOptions(cfg)
	assert.Empty(t, opts.Publications)
}

func TestRetryPolicy(t *testing.T) {
	cfg := testConfig(t)
	p := RetryPolicy(cfg)
	assert.Equal(t, 3, p.Attempts)
	assert.Equal(t, 5*time.Second, p.Timeout)
	assert.Equal(t, time.Millisecond, p.Backoff)
}
