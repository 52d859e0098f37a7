package containerport

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

// HTTPClient is the production Container Port implementation, grounded on
// the same outbound-worker shape as ledgerport.HTTPClient.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *logrus.Logger
}

// NewHTTPClient builds a Container Port client for the service at host:port.
func NewHTTPClient(host, port string, timeout time.Duration, logger *logrus.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: fmt.Sprintf("http://%s:%s", host, port),
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

type createResponse struct {
	ContainerID string `json:"container_id"`
}

// Create provisions a new container.
func (c *HTTPClient) Create(ctx context.Context) (ContainerID, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	respBody, err := c.doPost(ctx, "/v1/containers", nil)
	if err != nil {
		return "", err
	}
	var resp createResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &Error{Class: Permanent, Err: fmt.Errorf("decode create response: %w", err)}
	}
	return ContainerID(resp.ContainerID), nil
}

type installRequest struct {
	ObjectKey string          `json:"object_key"`
	InitBlob  json.RawMessage `json:"init_blob,omitempty"`
}

// Install streams the code image's object key and the deployment's init
// payload to a provisioned container.
func (c *HTTPClient) Install(ctx context.Context, id ContainerID, objectKey string, initBlob []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(installRequest{ObjectKey: objectKey, InitBlob: initBlob})
	if err != nil {
		return &Error{Class: Permanent, Err: fmt.Errorf("marshal install request: %w", err)}
	}

	_, err = c.doPost(ctx, fmt.Sprintf("/v1/containers/%s/install", id), body)
	return err
}

// Destroy tears down a container.
func (c *HTTPClient) Destroy(ctx context.Context, id ContainerID) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/containers/"+string(id), nil)
	if err != nil {
		return &Error{Class: Permanent, Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Class: Temporary, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &Error{Class: classifyStatus(resp.StatusCode), Err: fmt.Errorf("destroy returned %d", resp.StatusCode)}
}

// Ping checks reachability.
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
		return &Error{Class: classifyStatus(resp.StatusCode), Err: fmt.Errorf("container ping returned %d", resp.StatusCode)}
	}
	return nil
}

func (c *HTTPClient) doPost(ctx context.Context, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, &Error{Class: Permanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warnf("container port request to %s failed: %v", path, err)
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
	c.logger.Warnf("container port request to %s returned %d: %s", path, resp.StatusCode, string(respBody))
	return nil, &Error{Class: classifyStatus(resp.StatusCode), Err: fmt.Errorf("container request failed with status %d", resp.StatusCode)}
}

func classifyStatus(status int) Classification {
	if status >= 500 {
		return Temporary
	}
	return Permanent
}
