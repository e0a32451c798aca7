package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// DefaultZBDBaseURL is the production ZBD API endpoint.
const DefaultZBDBaseURL = "https://api.zebedee.io"

// ZBD pays Lightning addresses through the ZBD send-payment API.
type ZBD struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	clock      func() time.Time
}

// NewZBD creates a ZBD provider using the production endpoint.
func NewZBD(apiKey string) *ZBD {
	return &ZBD{
		baseURL:    DefaultZBDBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		clock:      time.Now,
	}
}

// Name implements Provider.
func (z *ZBD) Name() string { return "zbd" }

type zbdSendRequest struct {
	LNAddress  string `json:"lnAddress"`
	Amount     string `json:"amount"`
	Comment    string `json:"comment"`
	InternalID string `json:"internalId"`
}

type zbdSendResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Send implements Provider. ZBD expects the amount in millisats as a string.
func (z *ZBD) Send(ctx context.Context, address string, amountSats int64, memo string) (Receipt, error) {
	if _, _, err := SplitAddress(address); err != nil {
		return Receipt{}, err
	}

	payload := zbdSendRequest{
		LNAddress:  address,
		Amount:     strconv.FormatInt(amountSats*1000, 10),
		Comment:    memo,
		InternalID: fmt.Sprintf("goldenpie-%d", z.clock().UnixMilli()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Receipt{}, fmt.Errorf("encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, z.baseURL+"/v0/ln-address/send-payment", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", z.apiKey)

	resp, err := z.httpClient.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("send payment: %w", err)
	}
	defer resp.Body.Close()

	var result zbdSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Receipt{}, fmt.Errorf("decode send response: %w", err)
	}

	if resp.StatusCode >= 300 || !result.Success {
		message := result.Message
		if message == "" {
			message = "payment failed"
		}
		return Receipt{}, fmt.Errorf("zbd payment failed: %s", message)
	}

	return Receipt{TransactionID: result.Data.ID, AmountSats: amountSats, Recipient: address}, nil
}
