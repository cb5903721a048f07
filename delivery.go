package accounts

import (
	"context"
	"fmt"
	"io"
	"os"
)

// ConsoleCodeDelivery prints recovery codes on the operator console.
// Self-hosted deployments read the code from the server output and pass
// it to the account owner.
type ConsoleCodeDelivery struct {
	Out io.Writer
}

var _ CodeDelivery = ConsoleCodeDelivery{}

// DeliverRecoveryCode implements CodeDelivery
func (d ConsoleCodeDelivery) DeliverRecoveryCode(_ context.Context, account *Account, code string) error {
	out := d.Out
	if out == nil {
		out = os.Stdout
	}

	_, err := fmt.Fprintf(out,
		"\n====== PASSWORD RECOVERY =======\n%s (%s), your password recovery code is: %s\n\n",
		account.Name,
		account.Handle,
		code,
	)
	return err
}

// CodeDeliveryFunc adapts a function to CodeDelivery
type CodeDeliveryFunc func(ctx context.Context, account *Account, code string) error

// DeliverRecoveryCode implements CodeDelivery
func (f CodeDeliveryFunc) DeliverRecoveryCode(ctx context.Context, account *Account, code string) error {
	return f(ctx, account, code)
}
