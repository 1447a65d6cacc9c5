package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/storefront/internal/doc"
	"github.com/roach88/storefront/internal/domain"
	"github.com/roach88/storefront/internal/orders"
)

// ImportedRecord reports where one checkout record was stored.
type ImportedRecord struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// NewCheckoutCommand creates the checkout command group.
func NewCheckoutCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Manage checkout records",
	}
	cmd.AddCommand(newCheckoutImportCommand(rootOpts))
	return cmd
}

func newCheckoutImportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Store checkout records from a YAML or JSON file",
		Long: `Store checkout records the way the payment processor's webhook handler
does. The file holds one record or a list of records. Each record is stored
for the user named by its metadata.userId, or for --user.

The records are validated first; nothing is written unless all are valid.

Example:
  storefront checkout import sessions.yaml
  storefront checkout import -u u1 cs_test_1.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read checkout file", err)
			}
			records, err := parseCheckoutRecords(data)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid checkout file", err)
			}

			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			batch := st.Batch()
			imported := make([]ImportedRecord, 0, len(records))
			for i, rec := range records {
				user := firstNonEmpty(rec.Meta(domain.MetaUserID), opts.User)
				if user == "" {
					return NewExitError(ExitFailure, fmt.Sprintf("record %d (%s): no metadata.userId and no --user", i, rec.ID))
				}
				if rec.Metadata == nil {
					rec.Metadata = map[string]string{}
				}
				fields, err := doc.Encode(rec)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to encode checkout record", err)
				}
				if err := domain.ValidateDocument(domain.KindCheckoutRecord, fields); err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("record %d (%s)", i, rec.ID), err)
				}
				batch.Set(doc.Collection(user, doc.FamilyCheckoutSessions), rec.ID, fields)
				imported = append(imported, ImportedRecord{ID: rec.ID, UserID: user})
			}

			if _, err := batch.Commit(cmd.Context()); err != nil {
				return WrapExitError(ExitCommandError, "failed to store checkout records", err)
			}
			opts.Logger.Debug("checkout records imported", "count", len(imported), "file", args[0])

			return newFormatter(cmd, opts).Result(imported, func(w io.Writer) {
				for _, r := range imported {
					fmt.Fprintf(w, "✓ %s (user %s)\n", r.ID, r.UserID)
				}
			})
		},
	}
}

// parseCheckoutRecords decodes a single record or a sequence of records.
// JSON input is accepted as YAML.
func parseCheckoutRecords(data []byte) ([]domain.CheckoutRecord, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("no checkout records")
	}

	node := root.Content[0]
	var records []domain.CheckoutRecord
	switch node.Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&records); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var rec domain.CheckoutRecord
		if err := node.Decode(&rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	default:
		return nil, fmt.Errorf("line %d: expected a record or a list of records", node.Line)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no checkout records")
	}
	for i, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			return nil, fmt.Errorf("record %d: missing id", i)
		}
	}
	return records, nil
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <checkout-session-id>",
		Short: "Turn a completed checkout into an order",
		Long: `Reconcile a stored checkout record into an order, as the storefront's
success page does. Running it again for the same session returns the
existing order. The cart is cleared only when the order is created.

Example:
  storefront reconcile -u u1 cs_test_1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, release, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			res, err := sess.CompleteCheckout(cmd.Context(), args[0])
			if err != nil {
				return operationError("failed to reconcile checkout", err)
			}
			return newFormatter(cmd, opts).Result(res, func(w io.Writer) {
				writeReconcileResult(w, res)
			})
		},
	}
}

func writeReconcileResult(w io.Writer, res orders.Result) {
	if res.Created {
		fmt.Fprintf(w, "✓ Created order %s\n", res.Order.OrderNumber)
	} else {
		fmt.Fprintf(w, "✓ Order %s already exists\n", res.Order.OrderNumber)
	}
	writeOrder(w, res.Order)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
