package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix scopes environment overrides: --n-patients reads AMDSIM_N_PATIENTS.
const EnvPrefix = "AMDSIM"

// applyEnvOverrides sets every flag the user did not pass on the command
// line from its AMDSIM_* environment variable, when present. Flags given
// explicitly always win.
func applyEnvOverrides(flags *pflag.FlagSet) error {
	v := viper.New()

	var firstErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || firstErr != nil {
			return
		}
		if err := v.BindEnv(f.Name, EnvPrefix+"_"+envKey(f.Name)); err != nil {
			firstErr = err
			return
		}
		if !v.IsSet(f.Name) {
			return
		}
		value := v.GetString(f.Name)
		if err := flags.Set(f.Name, value); err != nil {
			firstErr = fmt.Errorf("%s_%s=%q: %w", EnvPrefix, envKey(f.Name), value, err)
			return
		}
		logrus.Debugf("flag --%s set from environment", f.Name)
	})
	return firstErr
}

func envKey(flag string) string {
	return strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}
