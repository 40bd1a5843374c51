package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var strategiesCmd = &cobra.Command{
	Use:   "strategies",
	Short: "List the registered retry strategies",
	Long: `List the built-in retry strategies and those defined under
retryStrategies in the configuration file.`,
	Args: cobra.NoArgs,
	RunE: strategiesCommand,
}

func strategiesCommand(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(verboseFlag)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	policies, err := newPolicyResolver(cfg, logger)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	registry := policies.Registry()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tATTEMPTS\tBACKOFF\tDELAY\tMAX DELAY\tJITTER")
	for _, name := range registry.Names() {
		spec, err := registry.Lookup(name)
		if err != nil {
			return err
		}
		fallback := ""
		if name == cfg.FallbackStrategy {
			fallback = " (fallback)"
		}
		fmt.Fprintf(w, "%s%s\t%d\t%s\t%s\t%s\t%t\n",
			name, fallback, spec.MaxAttempts, spec.Backoff, spec.BaseDelay, spec.MaxDelay, spec.Jitter)
	}
	return w.Flush()
}
