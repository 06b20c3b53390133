package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesCLIDefaultsAndRoutingConfig(t *testing.T) {
	t.Setenv("ALPHA_API_KEY", "k-alpha")
	t.Setenv("BETA_API_KEY", "k-beta")

	cfg, err := Load([]string{
		"--topic", "minerals",
		"--producers", "3",
		"--routing-strategy", "weighted",
		"--routing-config", "alpha:alpha-large:2,beta::1",
	})
	require.NoError(t, err)
	require.Equal(t, "minerals", cfg.Topic)
	require.Equal(t, 3, cfg.Producers)
	require.Equal(t, "weighted", cfg.RoutingStrategy)
	require.Nil(t, cfg.IterationBudget)
	require.Equal(t, "outputs", cfg.OutputDir)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 20, cfg.RequestSize)

	require.Len(t, cfg.Providers, 2)
	require.Equal(t, ProviderSpec{ID: "alpha", Model: "alpha-large", Weight: 2}, cfg.Providers[0])
	require.Equal(t, ProviderSpec{ID: "beta", Model: "beta", Weight: 1}, cfg.Providers[1])
}

func TestLoadIterationsFlagSetsBudgetOnlyWhenChanged(t *testing.T) {
	t.Setenv("ALPHA_API_KEY", "k")

	cfg, err := Load([]string{"--topic", "t", "--routing-config", "alpha", "--iterations", "50"})
	require.NoError(t, err)
	require.NotNil(t, cfg.IterationBudget)
	require.Equal(t, 50, *cfg.IterationBudget)
}

func TestLoadCLIOverridesEnv(t *testing.T) {
	t.Setenv("ROUTING_STRATEGY", "backoff")
	t.Setenv("ROUTING_CONFIG", "envprov")
	t.Setenv("ENVPROV_API_KEY", "k")
	t.Setenv("FLAGPROV_API_KEY", "k2")

	cfg, err := Load([]string{"--topic", "t", "--routing-strategy", "weighted", "--routing-config", "flagprov"})
	require.NoError(t, err)
	require.Equal(t, "weighted", cfg.RoutingStrategy)
	require.Len(t, cfg.Providers, 1)
	require.Equal(t, "flagprov", cfg.Providers[0].ID)
}

func TestLoadEnvUsedWhenFlagsAbsent(t *testing.T) {
	t.Setenv("ROUTING_STRATEGY", "priority")
	t.Setenv("ROUTING_CONFIG", "envprov:model1:3")
	t.Setenv("ENVPROV_API_KEY", "k")

	cfg, err := Load([]string{"--topic", "t"})
	require.NoError(t, err)
	require.Equal(t, "priority", cfg.RoutingStrategy)
	require.Equal(t, ProviderSpec{ID: "envprov", Model: "model1", Weight: 3}, cfg.Providers[0])
}

func TestLoadWithNoTopicIsServerModeNotAnError(t *testing.T) {
	cfg, err := Load([]string{})
	require.NoError(t, err)
	require.Empty(t, cfg.Topic)
}

func TestLoadRejectsUnknownRoutingStrategy(t *testing.T) {
	t.Setenv("ALPHA_API_KEY", "k")
	_, err := Load([]string{"--topic", "t", "--routing-strategy", "bogus", "--routing-config", "alpha"})
	require.Error(t, err)
}

func TestLoadRejectsMissingAPIKey(t *testing.T) {
	_, err := Load([]string{"--topic", "t", "--routing-config", "noKeyProvider"})
	require.Error(t, err)
}

func TestLoadRejectsNoProvidersInBatchMode(t *testing.T) {
	_, err := Load([]string{"--topic", "t"})
	require.Error(t, err)
}

func TestParseRoutingConfigRejectsEmptyProviderID(t *testing.T) {
	_, err := ParseRoutingConfig(":model:1")
	require.Error(t, err)
}

func TestParseRoutingConfigRejectsBadWeight(t *testing.T) {
	_, err := ParseRoutingConfig("alpha:model:notanumber")
	require.Error(t, err)
}

func TestValidateRejectsDuplicateProvider(t *testing.T) {
	cfg := Config{
		Topic:           "t",
		Producers:       1,
		RoutingStrategy: "weighted",
		Providers:       []ProviderSpec{{ID: "alpha"}, {ID: "alpha"}},
		APIKeys:         map[string]string{"alpha": "k"},
	}
	require.Error(t, cfg.Validate())
}
