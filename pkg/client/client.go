package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client talks to the taskmgr REST and management surfaces.
type Client struct {
	baseURL  string
	adminURL string
	client   *http.Client
	logger   *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL  string // REST surface, including any base path
	AdminURL string // management surface
	Timeout  time.Duration
	Logger   *slog.Logger // Optional logger for client operations
	TLS      *TLSClientConfig
	Insecure bool // Skip TLS verification
}

// TLSClientConfig holds TLS configuration for client
type TLSClientConfig struct {
	Enabled    bool
	CACert     string // CA certificate file path
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL:  "http://localhost:8080",
		AdminURL: "http://127.0.0.1:9090",
		Timeout:  10 * time.Second,
	}
}

// New creates a new taskmgr API client.
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.AdminURL == "" {
		config.AdminURL = def.AdminURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if config.TLS != nil && config.TLS.Enabled || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL:  strings.TrimRight(config.BaseURL, "/"),
		adminURL: strings.TrimRight(config.AdminURL, "/"),
		logger:   config.Logger,
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
		},
	}
}

// CreateTask submits a new task; the server applies the admission strategy.
func (c *Client) CreateTask(ctx context.Context, req CreateRequest) (Task, error) {
	c.logger.Debug("Creating task", "task", req.Task, "type", req.Type, "priority", req.Priority)
	var out Task
	err := c.do(ctx, http.MethodPost, c.baseURL+"/tasks", req, &out)
	return out, err
}

// ListTasks returns all tasks ordered by creation time.
func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var out []Task
	err := c.do(ctx, http.MethodGet, c.baseURL+"/tasks", nil, &out)
	return out, err
}

// ListTasksSorted returns all tasks ordered by key (date, priority or id).
func (c *Client) ListTasksSorted(ctx context.Context, key string) ([]Task, error) {
	var out []Task
	err := c.do(ctx, http.MethodGet, c.baseURL+"/tasks/sortedBy/"+url.PathEscape(key), nil, &out)
	return out, err
}

func (c *Client) GetTask(ctx context.Context, pid int64) (Task, error) {
	var out Task
	err := c.do(ctx, http.MethodGet, c.baseURL+"/tasks/"+strconv.FormatInt(pid, 10), nil, &out)
	return out, err
}

// RemoveTask kills a single task and returns it.
func (c *Client) RemoveTask(ctx context.Context, pid int64) ([]Task, error) {
	var out []Task
	err := c.do(ctx, http.MethodDelete, c.baseURL+"/tasks/remove/"+strconv.FormatInt(pid, 10), nil, &out)
	return out, err
}

// RemoveTasks kills every listed task, or none of them if any is missing.
func (c *Client) RemoveTasks(ctx context.Context, pids ...int64) ([]Task, error) {
	var out []Task
	err := c.do(ctx, http.MethodDelete, c.baseURL+"/tasks/remove/", removeRequest{List: pids}, &out)
	return out, err
}

func (c *Client) RemoveAllTasks(ctx context.Context) ([]Task, error) {
	var out []Task
	err := c.do(ctx, http.MethodDelete, c.baseURL+"/tasks/remove/all", nil, &out)
	return out, err
}

// Capacity reads the current limit from the management surface.
func (c *Client) Capacity(ctx context.Context) (int, error) {
	var out capacityBody
	err := c.do(ctx, http.MethodGet, c.adminURL+"/capacity", nil, &out)
	return out.Max, err
}

// SetCapacity raises the limit and returns the value now in effect.
func (c *Client) SetCapacity(ctx context.Context, n int) (int, error) {
	var out capacityBody
	err := c.do(ctx, http.MethodPut, c.adminURL+"/capacity", capacityBody{Max: n}, &out)
	return out.Max, err
}

// Health reports whether the server and its store answer.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.adminURL+"/healthz", nil, nil)
}

// setupClientTLS configures TLS settings for HTTP client
func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.TLS == nil {
		return tlsConfig, nil
	}
	tlsConfig.InsecureSkipVerify = config.TLS.SkipVerify
	tlsConfig.ServerName = config.TLS.ServerName
	if config.TLS.CACert != "" {
		if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
			return nil, fmt.Errorf("failed to load CA certificate: %w", err)
		}
	}
	if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("failed to read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("failed to parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}

// do sends in as JSON (when not nil) and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "url", u)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		c.logger.Error("Failed to decode error response", "status", resp.StatusCode)
		return apiErr
	}
	apiErr.Message = er.Error
	c.logger.Debug("API request failed", "error", er.Error, "status", resp.StatusCode)
	return apiErr
}
