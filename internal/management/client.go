package management

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"harness/internal/api"
	"harness/pkg/logging"
)

const (
	// DefaultHTTPTimeout bounds a single management call.
	DefaultHTTPTimeout = 60 * time.Second

	managementPath = "/management"
	uploadPath     = "/management-upload"
)

// Client talks to the server's HTTP management interface. It implements
// api.ManagementClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
	user       string
	password   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCredentials sets basic-auth credentials. Empty user disables auth.
func WithCredentials(user, password string) ClientOption {
	return func(c *Client) {
		c.user = user
		c.password = password
	}
}

// NewClient creates a client for the management interface at address.
func NewClient(address api.Address, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(address.String(), "/"),
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the management endpoint root.
func (c *Client) BaseURL() string { return c.baseURL }

// response is the management wire format.
type response struct {
	Outcome            string          `json:"outcome"`
	Result             json.RawMessage `json:"result,omitempty"`
	FailureDescription json.RawMessage `json:"failure-description,omitempty"`
}

// Execute runs op and returns its result. A failed outcome is not an error;
// it is reported through Result.Success and Result.FailureMessage. Errors
// are reserved for transport and protocol failures.
func (c *Client) Execute(ctx context.Context, op api.Operation) (api.Result, error) {
	body, err := json.Marshal(op)
	if err != nil {
		return api.Result{}, fmt.Errorf("failed to encode operation %s: %w", op.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+managementPath, bytes.NewReader(body))
	if err != nil {
		return api.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	logging.Debug("Management", "Executing %s on %s", op.Name, api.FormatAddress(op.Address))
	return c.do(req, op.Name)
}

// Upload runs op with content attached as input stream 0.
func (c *Client) Upload(ctx context.Context, op api.Operation, fileName string, content io.Reader) (api.Result, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	opJSON, err := json.Marshal(op)
	if err != nil {
		return api.Result{}, fmt.Errorf("failed to encode operation %s: %w", op.Name, err)
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="operation"`)
	header.Set("Content-Type", "application/json")
	part, err := mw.CreatePart(header)
	if err != nil {
		return api.Result{}, err
	}
	if _, err := part.Write(opJSON); err != nil {
		return api.Result{}, err
	}

	file, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return api.Result{}, err
	}
	if _, err := io.Copy(file, content); err != nil {
		return api.Result{}, fmt.Errorf("failed to read content of %s: %w", fileName, err)
	}
	if err := mw.Close(); err != nil {
		return api.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+uploadPath, body)
	if err != nil {
		return api.Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	logging.Debug("Management", "Uploading %s with %s", fileName, op.Name)
	return c.do(req, op.Name)
}

func (c *Client) do(req *http.Request, opName string) (api.Result, error) {
	req.Header.Set("Accept", "application/json")
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return api.Result{}, fmt.Errorf("management request %s failed: %w", opName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return api.Result{}, fmt.Errorf("management request %s was rejected with status %d", opName, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return api.Result{}, fmt.Errorf("failed to read response of %s: %w", opName, err)
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return api.Result{}, fmt.Errorf("failed to parse response of %s (status %d): %w", opName, resp.StatusCode, err)
	}

	result := api.Result{
		Success: r.Outcome == "success",
		Value:   r.Result,
	}
	if !result.Success {
		result.FailureMessage = failureMessage(r.FailureDescription)
		if result.FailureMessage == "" {
			result.FailureMessage = fmt.Sprintf("operation %s failed with status %d", opName, resp.StatusCode)
		}
	}
	return result, nil
}

// failureMessage renders a failure-description, which is either a plain
// string or (in domain mode) a nested object.
func failureMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Ping reports whether the management interface answers a trivial read.
func (c *Client) Ping(ctx context.Context) error {
	r, err := c.Execute(ctx, api.ReadAttribute("name"))
	if err != nil {
		return err
	}
	if !r.Success {
		return fmt.Errorf("management interface not ready: %s", r.FailureMessage)
	}
	return nil
}
