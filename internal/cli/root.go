package cli

import (
	"github.com/spf13/cobra"

	"admission-gateway/internal/config"
	"admission-gateway/internal/logger"
)

// app é o estado compartilhado entre os comandos, preenchido no PersistentPreRunE.
type app struct {
	cfgFile  string
	logLevel string

	cfg *config.Config
	log *logger.Logger
}

// NewRootCmd monta a árvore de comandos do gateway.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Admission control gateway for agents sharing a rate-limited upstream",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.log != nil {
				return a.log.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./configs/gateway.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override logger.level (debug|info|warn|error)")

	root.AddCommand(
		newServeCmd(a),
		newStatusCmd(a),
		newResetCmd(a),
		newLimitsCmd(a),
		newSimulateCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	return nil
}
