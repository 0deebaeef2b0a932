// Package configutil resolves settings that can arrive either as a CLI flag
// or a viper key (config file or environment). An explicitly set flag wins;
// otherwise the viper value is used when present, falling back to the flag
// default.
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FlagOrViperString resolves a string setting.
func FlagOrViperString(cmd *cobra.Command, flagName, viperKey string) string {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetString(flagName)
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetString(viperKey)
	}
	if cmd == nil {
		return ""
	}
	v, _ := cmd.Flags().GetString(flagName)
	return v
}

// FlagOrViperInt resolves an int setting.
func FlagOrViperInt(cmd *cobra.Command, flagName, viperKey string) int {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetInt(flagName)
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetInt(viperKey)
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetInt(flagName)
	return v
}

// FlagOrViperBool resolves a bool setting.
func FlagOrViperBool(cmd *cobra.Command, flagName, viperKey string) bool {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetBool(flagName)
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetBool(viperKey)
	}
	if cmd == nil {
		return false
	}
	v, _ := cmd.Flags().GetBool(flagName)
	return v
}

// FlagOrViperDuration resolves a duration setting.
func FlagOrViperDuration(cmd *cobra.Command, flagName, viperKey string) time.Duration {
	if cmd != nil && cmd.Flags().Changed(flagName) {
		v, _ := cmd.Flags().GetDuration(flagName)
		return v
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetDuration(viperKey)
	}
	if cmd == nil {
		return 0
	}
	v, _ := cmd.Flags().GetDuration(flagName)
	return v
}
