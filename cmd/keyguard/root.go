package main

import (
	"github.com/RishiKendai/keyguard/internal/config"
	"github.com/RishiKendai/keyguard/internal/configs/env"
	"github.com/RishiKendai/keyguard/internal/logger"
	"github.com/RishiKendai/keyguard/internal/report"
	"github.com/spf13/cobra"
)

var clientCfg *config.ClientConfig

var rootCmd = &cobra.Command{
	Use:   "keyguard",
	Short: "Editor-side keystroke reporting tools",
	Long: `keyguard talks to the keystroke backend the way the embedded code editor does.
It can replay a recorded editing session through the paste classifier, show the
recorded state of the current session and clear it after submission.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = env.LoadEnv()
		clientCfg = config.LoadClient()

		flags := cmd.Flags()
		if v, _ := flags.GetString("api"); v != "" {
			clientCfg.BaseURL = v
		}
		if v, _ := flags.GetString("token"); v != "" {
			clientCfg.Token = v
		}
		if v, _ := flags.GetString("log-level"); v != "" {
			clientCfg.LogLevel = v
		}

		logger.InitWithFormat(clientCfg.LogLevel, "console")
		return clientCfg.Validate()
	},
}

func init() {
	rootCmd.PersistentFlags().String("api", "", "keystroke backend base URL (default $KEYGUARD_API_URL)")
	rootCmd.PersistentFlags().String("token", "", "bearer token (default $KEYGUARD_TOKEN)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (default $LOG_LEVEL)")
}

func newClient() *report.Client {
	return report.NewClient(clientCfg.BaseURL, report.StaticToken(clientCfg.Token))
}
