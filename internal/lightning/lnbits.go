package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// LNBits pays Lightning addresses through an LNBits wallet.
//
// Sending is a three-step flow: resolve the address's .well-known/lnurlp
// descriptor, request a bolt11 invoice from the descriptor's callback for the
// desired amount, then pay the invoice through the wallet's payments API
// using the admin key.
type LNBits struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	// wellKnownBase overrides the https://<domain> prefix for lnurlp
	// resolution. Tests point it at a local server.
	wellKnownBase string
}

// NewLNBits creates an LNBits provider for the wallet at baseURL.
func NewLNBits(baseURL, apiKey string) *LNBits {
	return &LNBits{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
	}
}

// Name implements Provider.
func (l *LNBits) Name() string { return "lnbits" }

type lnurlPayDescriptor struct {
	Callback string `json:"callback"`
}

type lnurlPayInvoice struct {
	PR string `json:"pr"`
}

type lnbitsPaymentResult struct {
	PaymentHash string `json:"payment_hash"`
	Detail      string `json:"detail"`
	Message     string `json:"message"`
	Error       string `json:"error"`
}

// Send implements Provider.
func (l *LNBits) Send(ctx context.Context, address string, amountSats int64, memo string) (Receipt, error) {
	user, domain, err := SplitAddress(address)
	if err != nil {
		return Receipt{}, err
	}

	base := l.wellKnownBase
	if base == "" {
		base = "https://" + domain
	}
	descriptor, err := l.resolveDescriptor(ctx, fmt.Sprintf("%s/.well-known/lnurlp/%s", base, user))
	if err != nil {
		return Receipt{}, err
	}

	invoice, err := l.requestInvoice(ctx, descriptor.Callback, amountSats*1000, memo)
	if err != nil {
		return Receipt{}, err
	}

	hash, err := l.payInvoice(ctx, invoice.PR)
	if err != nil {
		return Receipt{}, err
	}

	return Receipt{TransactionID: hash, AmountSats: amountSats, Recipient: address}, nil
}

func (l *LNBits) resolveDescriptor(ctx context.Context, wellKnownURL string) (lnurlPayDescriptor, error) {
	var descriptor lnurlPayDescriptor
	if err := l.getJSON(ctx, wellKnownURL, &descriptor); err != nil {
		return descriptor, fmt.Errorf("resolve lightning address: %w", err)
	}
	if descriptor.Callback == "" {
		return descriptor, fmt.Errorf("invalid lnurl-pay response: missing callback")
	}
	return descriptor, nil
}

func (l *LNBits) requestInvoice(ctx context.Context, callback string, amountMsat int64, memo string) (lnurlPayInvoice, error) {
	var invoice lnurlPayInvoice
	separator := "?"
	if strings.Contains(callback, "?") {
		separator = "&"
	}
	requestURL := fmt.Sprintf("%s%samount=%d&comment=%s", callback, separator, amountMsat, url.QueryEscape(memo))
	if err := l.getJSON(ctx, requestURL, &invoice); err != nil {
		return invoice, fmt.Errorf("request invoice: %w", err)
	}
	if invoice.PR == "" {
		return invoice, fmt.Errorf("no payment request in lnurl-pay callback response")
	}
	return invoice, nil
}

func (l *LNBits) payInvoice(ctx context.Context, bolt11 string) (string, error) {
	body, err := json.Marshal(map[string]any{"out": true, "bolt11": bolt11})
	if err != nil {
		return "", fmt.Errorf("encode payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/api/v1/payments", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", l.apiKey)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pay invoice: %w", err)
	}
	defer resp.Body.Close()

	var result lnbitsPaymentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode payment response: %w", err)
	}

	if resp.StatusCode < 300 && result.PaymentHash != "" {
		return result.PaymentHash, nil
	}
	return "", fmt.Errorf("lnbits payment failed: %s", lnbitsFailureMessage(resp.StatusCode, result))
}

// lnbitsFailureMessage turns an API failure into an actionable message. The
// admin-key hints matter in practice: the most common misconfiguration is
// supplying the wallet's invoice/read key.
func lnbitsFailureMessage(status int, result lnbitsPaymentResult) string {
	message := result.Detail
	if message == "" {
		message = result.Message
	}
	if message == "" {
		message = result.Error
	}
	if message == "" {
		message = "payment failed"
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		message = fmt.Sprintf("authentication failed: %s (use the admin key from your LNBits wallet, not the invoice/read key)", message)
	case status == http.StatusBadRequest:
		message = fmt.Sprintf("invalid request: %s", message)
	case status >= 500:
		message = fmt.Sprintf("lnbits server error (%d): %s", status, message)
	}
	if strings.Contains(result.Detail, "Only internal invoices") {
		message += "; enable external payments or switch to the admin key"
	}
	return message
}

func (l *LNBits) getJSON(ctx context.Context, requestURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
