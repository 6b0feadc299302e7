package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dtroode/storefront-client/internal/api"
	"github.com/dtroode/storefront-client/internal/cart"
	"github.com/dtroode/storefront-client/internal/config"
	"github.com/dtroode/storefront-client/internal/logger"
	"github.com/dtroode/storefront-client/internal/model"
	"github.com/dtroode/storefront-client/internal/order"
)

type runFunc func(cmd *cobra.Command, a *app, args []string) error

func newRootCommand(cfg *config.Config, logger *logger.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Storefront client session, cart and order tool",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(appVersion())

	// with opens the client state for the duration of one command.
	with := func(run runFunc) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, a, args)
		}
	}

	root.AddCommand(
		loginCommand(with),
		registerCommand(with),
		forgotPasswordCommand(with),
		resetPasswordCommand(with),
		logoutCommand(with),
		whoamiCommand(with),
		cartCommand(with),
		orderCommand(with),
	)
	return root
}

type wrapper func(runFunc) func(*cobra.Command, []string) error

func loginCommand(with wrapper) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in and merge the guest cart into the account cart",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.cart.Hydrate(cmd.Context()); err != nil {
				return err
			}
			account, err := a.manager.Login(cmd.Context(), args[0], password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", account.Email)
			return printCart(cmd.OutOrStdout(), a.cart)
		}),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func registerCommand(with wrapper) *cobra.Command {
	var form model.Registration
	cmd := &cobra.Command{
		Use:   "register <email>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, a *app, args []string) error {
			form.Email = args[0]
			if form.ConfirmPassword == "" {
				form.ConfirmPassword = form.Password
			}
			account, err := a.client.Register(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s, log in to continue\n", account.Email)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&form.Password, "password", "p", "", "account password")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm-password", "", "password confirmation, defaults to --password")
	cmd.Flags().StringVar(&form.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&form.LastName, "last-name", "", "last name")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func forgotPasswordCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "forgot-password <email>",
		Short: "Request a password reset link",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, a *app, args []string) error {
			msg, err := a.client.ForgotPassword(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		}),
	}
}

func resetPasswordCommand(with wrapper) *cobra.Command {
	var form model.PasswordReset
	cmd := &cobra.Command{
		Use:   "reset-password <uid> <token>",
		Short: "Set a new password from a reset link",
		Args:  cobra.ExactArgs(2),
		RunE: with(func(cmd *cobra.Command, a *app, args []string) error {
			form.UID, form.Token = args[0], args[1]
			if form.ConfirmPassword == "" {
				form.ConfirmPassword = form.NewPassword
			}
			msg, err := a.client.ResetPassword(cmd.Context(), form)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&form.NewPassword, "password", "p", "", "new password")
	cmd.Flags().StringVar(&form.ConfirmPassword, "confirm-password", "", "password confirmation, defaults to --password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func logoutCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.manager.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		}),
	}
}

func whoamiCommand(with wrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, a *app, _ []string) error {
			cred, err := a.creds.Read(cmd.Context())
			if errors.Is(err, model.ErrNotFound) {
				return errNotLoggedIn
			}
			if err != nil {
				return err
			}
			// Checked before Me, which may refresh the pair.
			expired := cred.Expired(time.Now())

			account, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "ID\t%d\n", account.ID)
			fmt.Fprintf(w, "Email\t%s\n", account.Email)
			fmt.Fprintf(w, "Name\t%s\n", strings.TrimSpace(account.FirstName+" "+account.LastName))
			fmt.Fprintf(w, "Role\t%s\n", account.Role)
			fmt.Fprintf(w, "Staff\t%t\n", account.IsAdmin())
			if expired {
				fmt.Fprintln(w, "Access\trefreshed")
			} else if !cred.Expiry.IsZero() {
				fmt.Fprintf(w, "Access\tvalid until %s\n", cred.Expiry.Local().Format(time.RFC1123))
			}
			return w.Flush()
		}),
	}
}

func cartCommand(with wrapper) *cobra.Command {
	// hydrated loads the mirror before running a cart subcommand.
	hydrated := func(run runFunc) func(*cobra.Command, []string) error {
		return with(func(cmd *cobra.Command, a *app, args []string) error {
			if err := a.cart.Hydrate(cmd.Context()); err != nil {
				a.logger.Warn("Cart engine: hydrate failed, showing local cart", "error", err)
			}
			if err := run(cmd, a, args); err != nil {
				return err
			}
			return printCart(cmd.OutOrStdout(), a.cart)
		})
	}

	root := &cobra.Command{Use: "cart", Short: "Inspect and change the cart"}

	root.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the cart",
		Args:  cobra.NoArgs,
		RunE:  hydrated(func(*cobra.Command, *app, []string) error { return nil }),
	})

	var title, price string
	var stock int
	add := &cobra.Command{
		Use:   "add <product-id> [qty]",
		Short: "Add a product to the cart",
		Args:  cobra.RangeArgs(1, 2),
		RunE: hydrated(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty := 1
			if len(args) == 2 {
				if qty, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid quantity %q", args[1])
				}
			}
			product := cart.Product{"id": id, "title": title, "price": price}
			if stock > 0 {
				product["stock"] = stock
			}
			change, err := a.cart.AddItem(cmd.Context(), product, qty)
			reportClamp(cmd.OutOrStdout(), change)
			return err
		}),
	}
	add.Flags().StringVar(&title, "title", "", "product title")
	add.Flags().StringVar(&price, "price", "0", "unit price")
	add.Flags().IntVar(&stock, "stock", 0, "known stock, 0 when unknown")
	root.AddCommand(add)

	root.AddCommand(&cobra.Command{
		Use:   "set <product-id> <qty>",
		Short: "Set the quantity of a cart line",
		Args:  cobra.ExactArgs(2),
		RunE: hydrated(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			change, err := a.cart.SetQuantity(cmd.Context(), id, qty)
			reportClamp(cmd.OutOrStdout(), change)
			return err
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: hydrated(func(cmd *cobra.Command, a *app, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return a.cart.RemoveItem(cmd.Context(), id)
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the cart",
		Args:  cobra.NoArgs,
		RunE: hydrated(func(cmd *cobra.Command, a *app, _ []string) error {
			return a.cart.Clear(cmd.Context())
		}),
	})

	return root
}

func orderCommand(with wrapper) *cobra.Command {
	var scopeName string
	scope := func() (api.Scope, error) { return api.ParseScope(scopeName) }

	root := &cobra.Command{Use: "order", Short: "Manage order status"}
	root.PersistentFlags().StringVar(&scopeName, "scope", "admin", "management surface: admin or vendor")

	root.AddCommand(&cobra.Command{
		Use:   "show <order-id>",
		Short: "Print an order with its status history",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, a *app, args []string) error {
			sc, err := scope()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			o, err := a.orders.Get(cmd.Context(), sc, id)
			if err != nil {
				return err
			}
			return printOrder(cmd.OutOrStdout(), o)
		}),
	})

	var note string
	transition := &cobra.Command{
		Use:   "transition <order-id> <status>",
		Short: "Move an order to another status",
		Args:  cobra.ExactArgs(2),
		RunE: with(func(cmd *cobra.Command, a *app, args []string) error {
			sc, err := scope()
			if err != nil {
				return err
			}
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			next, err := order.ParseStatus(args[1])
			if err != nil {
				return err
			}
			claims, err := a.claims(cmd.Context())
			if err != nil {
				return err
			}

			if sc == api.ScopeAdmin && !claims.IsAdmin() {
				a.logger.Warn("Order service: account is not staff, the server will likely refuse", "email", claims.Email)
			}

			current, err := a.orders.Get(cmd.Context(), sc, id)
			if err != nil {
				return err
			}
			updated, err := a.orders.Submit(cmd.Context(), sc, current, next, note, claims.Email)
			if err != nil {
				return err
			}
			return printOrder(cmd.OutOrStdout(), updated)
		}),
	}
	transition.Flags().StringVar(&note, "note", "", "note recorded with the change; required for cancelled and refunded")
	root.AddCommand(transition)

	root.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the status transition table as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := order.SchemaJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	})

	return root
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func reportClamp(w io.Writer, change cart.QuantityChange) {
	if change.Clamped {
		fmt.Fprintf(w, "Quantity for product %d adjusted from %d to %d\n",
			change.ProductID, change.Requested, change.Applied)
	}
}

func printCart(w io.Writer, e *cart.Engine) error {
	snap := e.Snapshot()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Cart (%s)\n", snap.Mode)
	fmt.Fprintln(tw, "PRODUCT\tTITLE\tQTY\tPRICE\tTOTAL")
	for _, it := range snap.Items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			it.ProductID, it.Title, it.Quantity, it.UnitPrice.StringFixed(2), it.LineTotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\t\t%d\t\t%s\n", e.TotalItems(), e.TotalPrice().StringFixed(2))
	return tw.Flush()
}

func printOrder(w io.Writer, o order.Order) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Order\t%s (#%d)\n", o.Number, o.ID)
	fmt.Fprintf(tw, "Status\t%s\n", o.Status)
	fmt.Fprintf(tw, "Payment\t%s\n", o.PaymentStatus)
	fmt.Fprintf(tw, "Total\t%s\n", o.Total.StringFixed(2))
	if next := o.Next(); len(next) > 0 {
		names := make([]string, len(next))
		for i, st := range next {
			names[i] = st.String()
		}
		fmt.Fprintf(tw, "Next\t%s\n", strings.Join(names, ", "))
	}
	fmt.Fprintln(tw, "\nWHEN\tFROM\tTO\tBY\tNOTE")
	for _, h := range o.History {
		from := h.From.String()
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", h.At.Format("2006-01-02 15:04"), from, h.To, h.Actor, h.Note)
	}
	return tw.Flush()
}
