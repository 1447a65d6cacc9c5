package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/storefront/internal/domain"
)

// addressFlags holds the editable address fields.
type addressFlags struct {
	Type       string
	Default    bool
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

func (f *addressFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Type, "type", "home", "address type (home|work|other)")
	cmd.Flags().BoolVar(&f.Default, "default", false, "make this the default address")
	cmd.Flags().StringVar(&f.Name, "name", "", "recipient name")
	cmd.Flags().StringVar(&f.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&f.Line1, "line1", "", "street address")
	cmd.Flags().StringVar(&f.Line2, "line2", "", "apartment, suite, etc.")
	cmd.Flags().StringVar(&f.City, "city", "", "city")
	cmd.Flags().StringVar(&f.State, "state", "", "state or region")
	cmd.Flags().StringVar(&f.PostalCode, "postal-code", "", "postal code")
	cmd.Flags().StringVar(&f.Country, "country", "", "ISO 3166-1 alpha-2 country code")
}

// apply copies the flags the user set onto a.
func (f *addressFlags) apply(cmd *cobra.Command, a domain.Address) domain.Address {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	if set("type") {
		a.Type = domain.AddressType(f.Type)
	}
	if set("default") {
		a.IsDefault = f.Default
	}
	if set("name") {
		a.Name = f.Name
	}
	if set("phone") {
		a.Phone = f.Phone
	}
	if set("line1") {
		a.Line1 = f.Line1
	}
	if set("line2") {
		a.Line2 = f.Line2
	}
	if set("city") {
		a.City = f.City
	}
	if set("state") {
		a.State = f.State
	}
	if set("postal-code") {
		a.PostalCode = f.PostalCode
	}
	if set("country") {
		a.Country = f.Country
	}
	return a
}

// NewAddressCommand creates the address command group.
func NewAddressCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Manage saved shipping addresses",
	}

	cmd.AddCommand(newAddressListCommand(rootOpts))
	cmd.AddCommand(newAddressAddCommand(rootOpts))
	cmd.AddCommand(newAddressUpdateCommand(rootOpts))
	cmd.AddCommand(newAddressSetDefaultCommand(rootOpts))
	cmd.AddCommand(newAddressDeleteCommand(rootOpts))
	return cmd
}

func newAddressListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List addresses, default first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			addrs := sess.Addresses.Addresses()
			return newFormatter(cmd, opts).Result(addrs, func(w io.Writer) {
				if len(addrs) == 0 {
					fmt.Fprintln(w, "No saved addresses.")
					return
				}
				for _, a := range addrs {
					writeAddress(w, a)
				}
			})
		},
	}
}

func newAddressAddCommand(opts *RootOptions) *cobra.Command {
	flags := &addressFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a new address",
		Long: `Save a new address. The first address of a user always becomes the
default; --default moves the default to the new address.

Example:
  storefront address add -u u1 --name "Ada Lovelace" --line1 "12 St James's Square" \
    --city London --postal-code "SW1Y 4JH" --country GB`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			added, err := sess.Addresses.Add(cmd.Context(), flags.apply(cmd, domain.Address{Type: domain.AddressHome}))
			if err != nil {
				return operationError("failed to add address", err)
			}
			return newFormatter(cmd, opts).Result(added, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Added address %s\n", added.ID)
				writeAddress(w, added)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newAddressUpdateCommand(opts *RootOptions) *cobra.Command {
	flags := &addressFlags{}
	cmd := &cobra.Command{
		Use:           "update <address-id>",
		Short:         "Change fields of a saved address",
		Long:          "Change the fields given as flags; other fields keep their value.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			var current domain.Address
			for _, a := range sess.Addresses.Addresses() {
				if a.ID == args[0] {
					current = a
				}
			}
			updated, err := sess.Addresses.Update(cmd.Context(), args[0], flags.apply(cmd, current))
			if err != nil {
				return operationError("failed to update address", err)
			}
			return newFormatter(cmd, opts).Result(updated, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Updated address %s\n", updated.ID)
				writeAddress(w, updated)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newAddressSetDefaultCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-default <address-id>",
		Short:         "Make an address the default",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := sess.Addresses.SetDefault(cmd.Context(), args[0]); err != nil {
				return operationError("failed to set default address", err)
			}
			return newFormatter(cmd, opts).Result(map[string]string{"default": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Default address is now %s\n", args[0])
			})
		},
	}
}

func newAddressDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <address-id>",
		Short: "Delete a saved address",
		Long: `Delete a saved address. Deleting the default promotes the most
recently created remaining address.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := sess.Addresses.Delete(cmd.Context(), args[0]); err != nil {
				return operationError("failed to delete address", err)
			}

			result := map[string]string{"deleted": args[0]}
			if def, ok := sess.Addresses.Default(); ok {
				result["default"] = def.ID
			}
			return newFormatter(cmd, opts).Result(result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ Deleted address %s\n", args[0])
				if def, ok := result["default"]; ok {
					fmt.Fprintf(w, "  Default address: %s\n", def)
				}
			})
		},
	}
}

func writeAddress(w io.Writer, a domain.Address) {
	marker := " "
	if a.IsDefault {
		marker = "*"
	}
	fmt.Fprintf(w, "%s %s  [%s] %s, %s, %s %s %s\n",
		marker, a.ID, a.Type, a.Name, a.Line1, a.City, a.PostalCode, a.Country)
}
