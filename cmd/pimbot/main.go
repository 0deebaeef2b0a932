package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/iwapim/pimbot/cmd/pimbot/servecmd"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "pimbot",
		Short:         "Slack assistant for the iwapim product catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default pimbot.yaml in the working directory)")
	root.AddCommand(servecmd.NewCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() error {
	// .env keeps local setups out of the shell profile; absence is fine.
	_ = godotenv.Load()

	viper.SetEnvPrefix("PIMBOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if strings.TrimSpace(cfgFile) != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pimbot")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	if err := viper.ReadInConfig(); err != nil {
		// An absent default config is fine; an explicit one must load.
		var notFound viper.ConfigFileNotFoundError
		if strings.TrimSpace(cfgFile) == "" && (errors.As(err, &notFound) || os.IsNotExist(err)) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
