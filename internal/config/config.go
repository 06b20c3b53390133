// Package config resolves spec.md §6's CLI flags and environment
// variables into a validated Config, independent of cobra/viper so it can
// be constructed directly in tests (pkg/common/config.go's JSON-config
// pattern, generalized to a runtime CLI since this system has one and the
// teacher's ldflag-only build doesn't).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/attrforge/swarm/internal/errs"
	"github.com/attrforge/swarm/internal/ipc"
)

var validRoutingStrategies = map[string]bool{
	"backoff":    true,
	"roundrobin": true,
	"priority":   true,
	"weighted":   true,
}

// ProviderSpec is one entry of --routing-config / ROUTING_CONFIG:
// "provider[:model[:weight]]".
type ProviderSpec struct {
	ID     string
	Model  string
	Weight float64
}

// Config is the fully resolved, validated set of options spec.md §6
// recognizes.
type Config struct {
	Topic           string
	Producers       int
	IterationBudget *int
	RoutingStrategy string
	Providers       []ProviderSpec
	OutputDir       string
	LogLevel        string
	RequestSize     int
	TraceEndpoint   string
	APIKeys         map[string]string // provider ID -> key, from <PROVIDER>_API_KEY
}

// Validate applies the fatal-at-startup checks spec.md §7 lists under the
// Configuration error category: invalid routing string, no providers
// configured, bad CLI combination. An empty Topic is valid — it means
// "no immediate batch mode", so cmd/orchestrator starts the dashboard
// feed's HTTP server instead and defers provider/routing validation to
// each StartTopic request (spec.md §6's "--topic enables batch mode").
func (c *Config) Validate() error {
	if c.Producers < 1 {
		return errs.New(errs.ErrCodeConfigBadCombination, "--producers must be >= 1")
	}
	if !validRoutingStrategies[c.RoutingStrategy] {
		return errs.New(errs.ErrCodeConfigInvalidRouting, fmt.Sprintf("unrecognized routing strategy %q", c.RoutingStrategy))
	}
	if c.Topic != "" {
		if len(c.Providers) == 0 {
			return errs.New(errs.ErrCodeConfigNoProviders, "no providers configured: set --routing-config or ROUTING_CONFIG")
		}
		seen := make(map[string]bool, len(c.Providers))
		for _, p := range c.Providers {
			if seen[p.ID] {
				return errs.New(errs.ErrCodeConfigBadCombination, fmt.Sprintf("provider %q configured more than once", p.ID))
			}
			seen[p.ID] = true
			if _, ok := c.APIKeys[p.ID]; !ok {
				return errs.New(errs.ErrCodeConfigNoProviders, fmt.Sprintf("missing %s for provider %q", apiKeyEnvVar(p.ID), p.ID))
			}
		}
	}
	if c.LogLevel != "" {
		switch strings.ToLower(c.LogLevel) {
		case "trace", "debug", "info", "warn", "error":
		default:
			return errs.New(errs.ErrCodeConfigInvalidLogLevel, fmt.Sprintf("unrecognized log level %q", c.LogLevel))
		}
	}
	return nil
}

// ParseRoutingConfig parses spec.md §6's comma-separated
// "provider[:model[:weight]]" list. Model defaults to the provider ID,
// weight defaults to 1.
func ParseRoutingConfig(s string) ([]ProviderSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	specs := make([]ProviderSpec, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		spec := ProviderSpec{ID: fields[0], Model: fields[0], Weight: 1}
		if len(fields) > 1 && fields[1] != "" {
			spec.Model = fields[1]
		}
		if len(fields) > 2 && fields[2] != "" {
			w, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, errs.Wrap(errs.ErrCodeConfigInvalidRouting, fmt.Errorf("bad weight in %q: %w", part, err))
			}
			spec.Weight = w
		}
		if spec.ID == "" {
			return nil, errs.New(errs.ErrCodeConfigInvalidRouting, fmt.Sprintf("empty provider id in %q", part))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// IPCProviders converts Providers into the wire shape internal/ipc and
// internal/orchestrator expect.
func (c *Config) IPCProviders() []ipc.Provider {
	out := make([]ipc.Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		out = append(out, ipc.Provider{ID: p.ID, Model: p.Model, Weight: p.Weight})
	}
	return out
}

// WorkerArgsFor builds the extra argv the supervisor prepends to every
// spawned worker (ahead of its own "--id"/"--orchestrator-addr" pair),
// carrying the provider routing table in through cmd/worker's own
// --providers flag. Shared by batch mode (cmd/orchestrator) and the
// dashboard feed's per-topic Manager so both spawn workers the same way.
func WorkerArgsFor(providers []ipc.Provider, logLevel string) []string {
	specs := make([]string, 0, len(providers))
	for _, p := range providers {
		specs = append(specs, fmt.Sprintf("%s:%s:%g", p.ID, p.Model, p.Weight))
	}
	return []string{"--log-level", logLevel, "--providers", strings.Join(specs, ",")}
}

// apiKeyEnvVar is the per-provider env var spec.md §6 names: one
// "<PROVIDER>_API_KEY" per configured provider.
func apiKeyEnvVar(providerID string) string {
	return strings.ToUpper(providerID) + "_API_KEY"
}

func loadAPIKeys(specs []ProviderSpec) map[string]string {
	keys := make(map[string]string, len(specs))
	for _, p := range specs {
		if v, ok := os.LookupEnv(apiKeyEnvVar(p.ID)); ok && v != "" {
			keys[p.ID] = v
		}
	}
	return keys
}
