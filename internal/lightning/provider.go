package lightning

import "context"

// Receipt records a completed payment.
type Receipt struct {
	TransactionID string
	AmountSats    int64
	Recipient     string
}

// Provider is the payment capability the reward dispatcher depends on.
type Provider interface {
	// Name identifies the provider in logs and error records.
	Name() string
	// Send pays amountSats to a Lightning address. The memo travels with
	// the payment where the provider supports comments.
	Send(ctx context.Context, address string, amountSats int64, memo string) (Receipt, error)
}
