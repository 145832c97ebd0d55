// Package cmd implements the queuestrap command line.
package cmd

import (
	"reflect"
	"strings"

	"dario.cat/mergo"
	"github.com/errm/queuestrap/pkg/logging"
	"github.com/errm/queuestrap/pkg/settings"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "QUEUESTRAP"

// Set by the build process using ldflags.
var (
	Version   = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

type options struct {
	v   *viper.Viper
	log *zap.Logger
	// nodeOverrides reads settings from the EC2 instance, swapped in tests.
	nodeOverrides func() (settings.Settings, error)
}

// New returns the root command with every subcommand attached.
func New() *cobra.Command {
	return newRoot(&options{v: viper.New(), nodeOverrides: ec2Overrides})
}

func newRoot(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "queuestrap",
		Short: "Configure a RabbitMQ node for clustering through Consul",
		Long: `queuestrap renders the configuration of a RabbitMQ broker node, installs it
and restarts or reloads whatever depends on the files that changed.

Settings may be given in a YAML or TOML file (--config) and overridden with
environment variables: QUEUESTRAP_ followed by the key in capitals, replacing
dots (.) with a double underscore (__) and hyphens (-) with an underscore (_).
	export QUEUESTRAP_RABBITMQ__AMQP_PORT=5673`,
		SilenceUsage:      true,
		PersistentPreRunE: o.init,
		PersistentPostRun: func(*cobra.Command, []string) {
			if o.log != nil {
				o.log.Sync()
			}
		},
	}
	flags := root.PersistentFlags()
	flags.SortFlags = false
	flags.String("config", "", "Path to a YAML or TOML settings file.")
	flags.Bool("ec2", false, "Read the Consul datacenter and firewall source from the tags of this EC2 instance.")
	flags.String("log.type", logging.StdErr, "Where log messages should be sent ('stderr', 'stdout', 'logfile').")
	flags.String("log.file", "/var/log/queuestrap/queuestrap.log", "The log file when log.type is 'logfile'.")
	flags.Int8("log.level", 3, "Adjust the logging level (0=Fatal, 1=Error, 2=Warn, 3=Info, 4+5=Debug).")
	flags.Int("log.max-size", 100, "When log.type is 'logfile' the maximum size of log.file in megabytes before it is rotated.")
	flags.Int("log.num-rotated-files", 5, "When log.type is 'logfile' the number of rotated files to keep.")
	flags.Bool("log.developer", false, "Enable developer logging with stack traces, other log settings are ignored.")
	flags.MarkHidden("log.developer")

	root.AddCommand(
		newRenderCommand(o),
		newApplyCommand(o),
		newWatchCommand(o),
		newVerifyCommand(o),
		newVersionCommand(),
	)
	return root
}

func (o *options) init(cmd *cobra.Command, _ []string) error {
	o.v.SetEnvPrefix(envPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "__", "-", "_"))
	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if err := o.v.BindPFlag(flag.Name, flag); err != nil && bindErr == nil {
			bindErr = err
		}
		o.v.BindEnv(flag.Name)
	})
	if bindErr != nil {
		return errors.Wrap(bindErr, "unable to bind flags")
	}
	bindSettingsEnv(o.v, "", reflect.TypeOf(settings.Settings{}))

	if path := o.v.GetString("config"); path != "" {
		o.v.SetConfigFile(path)
		if err := o.v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "unable to read %s", path)
		}
	}

	var c logging.Config
	if err := o.v.UnmarshalKey("log", &c); err != nil {
		return errors.Wrap(err, "unable to read log settings")
	}
	log, err := logging.New(c)
	if err != nil {
		return errors.Wrap(err, "unable to initialize logger")
	}
	o.log = log
	return nil
}

// bindSettingsEnv binds an environment variable to every scalar and
// string list setting, so that they reach Unmarshal without a file.
func bindSettingsEnv(v *viper.Viper, prefix string, t reflect.Type) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			continue
		}
		key := prefix + name
		ft := f.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		switch ft.Kind() {
		case reflect.Struct:
			bindSettingsEnv(v, key+".", ft)
		case reflect.Map:
		case reflect.Slice:
			if ft.Elem().Kind() == reflect.String {
				v.BindEnv(key)
			}
		default:
			v.BindEnv(key)
		}
	}
}

// settings merges the file and environment over the node overrides and the
// defaults.
func (o *options) settings() (settings.Settings, error) {
	var overrides settings.Settings
	if err := o.v.Unmarshal(&overrides); err != nil {
		return settings.Settings{}, errors.Wrap(err, "unable to decode settings")
	}
	if !o.v.GetBool("ec2") {
		return settings.Load(overrides)
	}
	base, err := o.nodeOverrides()
	if err != nil {
		return settings.Settings{}, errors.Wrap(err, "unable to read settings from the instance")
	}
	if err := mergo.Merge(&base, overrides, mergo.WithOverride); err != nil {
		return settings.Settings{}, errors.Wrap(err, "unable to merge instance settings")
	}
	return settings.Load(base)
}
