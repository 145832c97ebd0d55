package cmd

import (
	"fmt"

	"github.com/errm/queuestrap/pkg/consul"
	"github.com/errm/queuestrap/pkg/render"
	"github.com/errm/queuestrap/pkg/verify"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newVerifyCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that the broker accepts connections and is registered in Consul",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.settings()
			if err != nil {
				return err
			}
			checker := verify.Checker{Host: o.v.GetString("host")}
			var result *multierror.Error
			if err := checker.AMQP(s); err != nil {
				result = multierror.Append(result, err)
			}
			if s.RabbitMQ.PluginEnabled("rabbitmq_management") {
				if err := checker.Aliveness(cmd.Context(), s); err != nil {
					result = multierror.Append(result, err)
				}
			}

			agent, err := consul.New(s.Consul.Address)
			if err != nil {
				return multierror.Append(result, err)
			}
			var ids []string
			for _, service := range render.Services(s) {
				ids = append(ids, service.ID)
			}
			missing, err := agent.MissingServices(ids...)
			if err != nil {
				result = multierror.Append(result, err)
			} else if len(missing) > 0 {
				result = multierror.Append(result, errors.Errorf("services not registered with consul: %v", missing))
			}
			// Templates fall back to defaults for missing keys, so these only warn.
			keys, err := agent.MissingKeys(render.Keys(s)...)
			if err != nil {
				o.log.Warn("unable to read consul keys", zap.Error(err))
			}
			for _, key := range keys {
				o.log.Warn("consul key not set, templates use the default", zap.String("key", key))
			}

			if err := result.ErrorOrNil(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().String("host", "localhost", "The broker host to connect to.")
	return cmd
}
