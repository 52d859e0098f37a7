package ledgerport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// HTTPClient is the production Ledger Port implementation: a plain JSON
// REST client to the sibling token-ledger service, called synchronously
// on the request path rather than polled.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *logrus.Logger
}

// NewHTTPClient builds a Ledger Port client for the service at host:port.
func NewHTTPClient(host, port string, timeout time.Duration, logger *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: fmt.Sprintf("http://%s:%s", host, port),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

type verifyDepositRequest struct {
	From   string `json:"from"`
	Amount int64  `json:"amount"`
	Memo   string `json:"memo"`
}

// VerifyDeposit asks the ledger service to confirm a claimed deposit.
func (c *HTTPClient) VerifyDeposit(ctx context.Context, from string, amount int64, memo string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(verifyDepositRequest{From: from, Amount: amount, Memo: memo})
	if err != nil {
		return &Error{Class: Permanent, Err: fmt.Errorf("marshal verify request: %w", err)}
	}

	_, err = c.doPost(ctx, "/v1/deposits/verify", body)
	return err
}

type transferRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

type transferResponse struct {
	TxHandle string `json:"tx_handle"`
}

// Transfer asks the ledger service to move funds to `to`.
func (c *HTTPClient) Transfer(ctx context.Context, to string, amount int64) (TxHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(transferRequest{To: to, Amount: amount})
	if err != nil {
		return "", &Error{Class: Permanent, Err: fmt.Errorf("marshal transfer request: %w", err)}
	}

	respBody, err := c.doPost(ctx, "/v1/transfers", body)
	if err != nil {
		return "", err
	}

	var resp transferResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &Error{Class: Permanent, Err: fmt.Errorf("decode transfer response: %w", err)}
	}
	return TxHandle(resp.TxHandle), nil
}

// Ping checks that the ledger service is reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return &Error{Class: Permanent, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Class: Temporary, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &Error{Class: classifyStatus(resp.StatusCode), Err: fmt.Errorf("ledger ping returned %d", resp.StatusCode)}
	}
	return nil
}

func (c *HTTPClient) doPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Class: Permanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// A network-level failure (timeout, connection refused) is worth
		// retrying — the ledger service may simply be restarting.
		c.logger.Warnf("ledger port request to %s failed: %v", path, err)
		return nil, &Error{Class: Temporary, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Class: Temporary, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}

	c.logger.Warnf("ledger port request to %s returned %d: %s", path, resp.StatusCode, string(respBody))
	return nil, &Error{Class: classifyStatus(resp.StatusCode), Err: fmt.Errorf("ledger request failed with status %d", resp.StatusCode)}
}

// classifyStatus follows the same 5xx/network-timeout -> Temporary,
// 4xx -> Permanent split used for the Container Port, applied
// identically here.
func classifyStatus(status int) Classification {
	if status >= 500 {
		return Temporary
	}
	return Permanent
}
