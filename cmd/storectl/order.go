package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/go-faster/errors"
	"github.com/spf13/cobra"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/authorstore/internal/app"
	"github.com/xenking/authorstore/internal/domain/order"
	"github.com/xenking/authorstore/internal/storage/postgres"
)

const closeTimeout = 30 * time.Second

func newOrderCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Back-office order actions",
	}

	show := &cobra.Command{
		Use:   "show <order-id>",
		Short: "Print an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(svc *app.Services) error {
				o, err := svc.Orders.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	}

	fulfill := &cobra.Command{
		Use:   "fulfill <order-id>",
		Short: "Submit a paid order to the fulfillment vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(svc *app.Services) error {
				res, err := svc.Orders.FulfillOrder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	var ship order.ShipRequest
	shipCmd := &cobra.Command{
		Use:   "ship <order-id>",
		Short: "Mark a processing order as shipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(svc *app.Services) error {
				o, err := svc.Orders.MarkShipped(cmd.Context(), args[0], ship)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	}
	shipCmd.Flags().StringVar(&ship.TrackingNumber, "tracking-number", "", "Carrier tracking number")
	shipCmd.Flags().StringVar(&ship.TrackingURL, "tracking-url", "", "Carrier tracking URL")

	deliver := &cobra.Command{
		Use:   "deliver <order-id>",
		Short: "Mark a shipped order as delivered",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(svc *app.Services) error {
				o, err := svc.Orders.MarkDelivered(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), o)
			})
		},
	}

	var cancel order.CancelRequest
	cancelCmd := &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an order, optionally refunding the payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withServices(cmd.Context(), func(svc *app.Services) error {
				res, err := svc.Orders.Cancel(cmd.Context(), args[0], cancel)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cancelCmd.Flags().BoolVar(&cancel.Refund, "refund", false, "Refund the payment")
	cancelCmd.Flags().StringVar(&cancel.Reason, "reason", "", "Cancellation reason")

	cmd.AddCommand(show, fulfill, shipCmd, deliver, cancelCmd)
	return cmd
}

// withServices builds the order service from the STORE_ configuration.
func (o *rootOptions) withServices(ctx context.Context, fn func(svc *app.Services) error) error {
	cfg, err := app.LoadCLIConfig(o.databaseURL)
	if err != nil {
		return err
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	svc, err := app.NewServices(cfg, pool, o.lg, tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		svc.Close(closeCtx)
	}()
	return fn(svc)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
