package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/buygag/claimdesk/internal/commerce"
	"github.com/buygag/claimdesk/internal/identity"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	OrderNumber string
	Email       string
	Handle      string
}

// VerifyResult reports an order verdict and, when a handle is given, the
// resolved account.
type VerifyResult struct {
	OrderNumber string             `json:"orderNumber"`
	Valid       bool               `json:"valid"`
	Reason      string             `json:"reason,omitempty"`
	Identity    *identity.Identity `json:"identity,omitempty"`
	IdentityErr string             `json:"identityError,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check an order and username without opening a claim session",
		Long: `Run the order validator and, if a handle is given, the identity resolver.

Nothing is rate limited, recorded or sent. Use it to answer support tickets.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.OrderNumber, "order", "", "order number, with or without #")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email on the order")
	cmd.Flags().StringVar(&opts.Handle, "handle", "", "game platform username")
	_ = cmd.MarkFlagRequired("order")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runVerify(rootOpts *RootOptions, opts *VerifyOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	_, components, err := rootOpts.components(ctx, cmd)
	if err != nil {
		return err
	}

	verdict := components.Validator.Validate(ctx, opts.OrderNumber, opts.Email)
	result := VerifyResult{
		OrderNumber: commerce.NormalizeOrderName(opts.OrderNumber),
		Valid:       verdict.Valid,
		Reason:      string(verdict.Reason),
	}
	if opts.Handle != "" {
		resolved, err := components.Resolver.Resolve(ctx, opts.Handle)
		switch {
		case err == nil:
			result.Identity = &resolved
		case errors.Is(err, identity.ErrNotFound):
			result.IdentityErr = "not_found"
		default:
			result.IdentityErr = "lookup_failed"
		}
	}

	return writeOutput(cmd.OutOrStdout(), rootOpts.Format, result, func(w io.Writer) error {
		if result.Valid {
			fprintln(w, "order %s: valid", result.OrderNumber)
		} else {
			fprintln(w, "order %s: invalid (%s) %s", result.OrderNumber, result.Reason, verdict.Reason.Message())
		}
		switch {
		case result.Identity != nil:
			fprintln(w, "handle %s: id=%d display=%q avatar=%s",
				opts.Handle, result.Identity.NumericID, result.Identity.DisplayName, result.Identity.AvatarRef)
		case result.IdentityErr != "":
			fprintln(w, "handle %s: %s", opts.Handle, result.IdentityErr)
		}
		return nil
	})
}
