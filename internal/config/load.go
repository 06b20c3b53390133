package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/attrforge/swarm/internal/errs"
)

// Load parses args (as given to os.Args[1:]) into a validated Config. CLI
// flags always override bound environment variables, matching spec.md §6.
// Load never calls os.Exit; cmd/orchestrator maps a returned error to the
// Configuration exit code (1) per spec.md §7.
func Load(args []string) (*Config, error) {
	v := viper.New()
	v.SetDefault("routing-strategy", "weighted")
	v.SetDefault("routing-config", "")
	if err := v.BindEnv("routing-strategy", "ROUTING_STRATEGY"); err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfigBadCombination, err)
	}
	if err := v.BindEnv("routing-config", "ROUTING_CONFIG"); err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfigBadCombination, err)
	}

	var cfg Config
	var iterations int
	var routingConfigRaw string

	root := &cobra.Command{
		Use:           "attrswarm",
		Short:         "Drive a pool of LLM workers enumerating unique attributes of a topic",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlag("routing-strategy", cmd.Flags().Lookup("routing-strategy")); err != nil {
				return err
			}
			if err := v.BindPFlag("routing-config", cmd.Flags().Lookup("routing-config")); err != nil {
				return err
			}

			cfg.Topic, _ = cmd.Flags().GetString("topic")
			cfg.Producers, _ = cmd.Flags().GetInt("producers")
			cfg.OutputDir, _ = cmd.Flags().GetString("output")
			cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
			cfg.RequestSize, _ = cmd.Flags().GetInt("request-size")
			cfg.TraceEndpoint, _ = cmd.Flags().GetString("trace-ep")
			cfg.RoutingStrategy = v.GetString("routing-strategy")
			routingConfigRaw = v.GetString("routing-config")

			if cmd.Flags().Changed("iterations") {
				budget := iterations
				cfg.IterationBudget = &budget
			}
			return nil
		},
	}

	root.Flags().String("topic", "", "enable batch mode and start generation for this topic immediately")
	root.Flags().Int("producers", 5, "number of worker processes to spawn (>= 1)")
	root.Flags().IntVar(&iterations, "iterations", 0, "per-worker iteration budget; unset means unbounded")
	root.Flags().String("routing-strategy", "", "one of {backoff, roundrobin, priority, weighted}")
	root.Flags().String("routing-config", "", "comma-separated provider[:model[:weight]] list")
	root.Flags().String("output", "outputs", "base directory for output.txt/output.json/metadata.json")
	root.Flags().String("log-level", "info", "one of {trace, debug, info, warn, error}")
	root.Flags().Int("request-size", 20, "initial batch_size")
	root.Flags().String("trace-ep", "", "optional tracing endpoint")

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfigBadCombination, err)
	}

	specs, err := ParseRoutingConfig(routingConfigRaw)
	if err != nil {
		return nil, err
	}
	cfg.Providers = specs
	cfg.APIKeys = loadAPIKeys(specs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
