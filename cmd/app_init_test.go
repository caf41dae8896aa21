package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishleshok-ai/bishleshok/internal/collection"
	"github.com/bishleshok-ai/bishleshok/internal/config"
	"github.com/bishleshok-ai/bishleshok/internal/cost"
	"github.com/bishleshok-ai/bishleshok/internal/identity"
	"github.com/bishleshok-ai/bishleshok/internal/model"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Gemini: config.GeminiConfig{
			ContentModel: "gemini-2.5-flash-preview-09-2025",
			TTSModel:     "gemini-2.5-flash-preview-tts",
			Voice:        "Kore",
			MaxAttempts:  5,
		},
		Assistant: config.AssistantConfig{Provider: "gemini"},
		Store:     config.StoreConfig{Driver: "memory"},
		Identity: config.IdentityConfig{
			AppID:       "bishleshok",
			UID:         "u1",
			SessionFile: filepath.Join(t.TempDir(), "session"),
		},
		Recorder: config.RecorderConfig{MaxSeconds: 17},
		Server:   config.ServerConfig{Port: 8080},
		Pricing:  cost.DefaultRates(),
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestInitBackend_Drivers(t *testing.T) {
	c := testConfig(t)
	withConfig(t, c)

	b, err := initBackend(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &collection.MemoryBackend{}, b)
	require.NoError(t, b.Close())

	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "test.db")
	b, err = initBackend(context.Background())
	require.NoError(t, err)
	assert.IsType(t, &collection.SQLiteBackend{}, b)
	require.NoError(t, b.Close())

	c.Store.Driver = "mongo"
	_, err = initBackend(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver: mongo")
}

func TestInitApp_Records(t *testing.T) {
	withConfig(t, testConfig(t))
	ctx := context.Background()

	var echo bytes.Buffer
	env, err := initApp(ctx, appOptions{mode: "records", echo: &echo})
	require.NoError(t, err)
	defer env.Close()

	assert.Equal(t, "u1", env.Identity.UID)
	assert.Equal(t, identity.MethodConfigured, env.Identity.Method)
	assert.Equal(t, collection.UserPath("bishleshok", "u1"), env.Store.Path())
	assert.Nil(t, env.Gemini, "no key configured")
	assert.Nil(t, env.Receipts)
	assert.Nil(t, env.Assistant)
	assert.Nil(t, env.Archiver)
	require.NotNil(t, env.Loader)

	_, err = env.Backend.Create(ctx, env.Store.Path(), &model.Receipt{Date: "2025-03-01", TotalAmount: 120, Currency: "BDT"})
	require.NoError(t, err)
	require.NoError(t, env.loadSnapshot(ctx))

	assert.Equal(t, 1, env.Store.Len())
	assert.Len(t, env.Engine.View().Records, 1, "engine follows the store")
	assert.Contains(t, echo.String(), "> ✓ Data loaded successfully (1 item(s))")
}

func TestInitApp_ExtractBuildsPipelines(t *testing.T) {
	c := testConfig(t)
	c.Gemini.Key = "test-key"
	withConfig(t, c)

	env, err := initApp(context.Background(), appOptions{mode: "extract"})
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Gemini)
	assert.NotNil(t, env.Receipts)
	assert.NotNil(t, env.Voice)
	assert.NotNil(t, env.Clips)
	assert.NotNil(t, newRecorder(env))
}

func TestInitApp_ValidationFails(t *testing.T) {
	withConfig(t, testConfig(t))

	_, err := initApp(context.Background(), appOptions{mode: "extract"})
	assert.ErrorContains(t, err, "gemini.key is required")
}

func TestNewAssistant_GeminiNeedsClient(t *testing.T) {
	withConfig(t, testConfig(t))

	_, err := newAssistant(nil, cost.NewCalculator(cost.DefaultRates()))
	assert.ErrorContains(t, err, "gemini.key is required")
}

func TestEchoSink(t *testing.T) {
	var buf bytes.Buffer
	s := echoSink(&buf)
	s.Post("Ready for input.", false)
	s.Post("Error clearing data.", true)
	assert.Equal(t, "> Ready for input.\n! Error clearing data.\n", buf.String())
}
