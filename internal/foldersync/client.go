// Package foldersync drives a local Syncthing daemon through its REST API so
// two peers can share a folder. PeerPad never moves file contents itself.
package foldersync

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
)

const (
	DefaultAPIURL = "http://127.0.0.1:8384"
	FolderID      = "peerpad-shared"
	FolderLabel   = "PeerPad"
)

var (
	ErrNoAPIKey     = errors.New("foldersync: no Syncthing API key found")
	ErrNotInstalled = errors.New("foldersync: syncthing is not installed")
	errNotReady     = errors.New("foldersync: API not ready")
)

// StatusError is a non-2xx API response.
type StatusError struct {
	Method   string
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("syncthing %s %s returned status %d", e.Method, e.Endpoint, e.Code)
}

// Opts configures a Client.
type Opts struct {
	APIURL string
	// APIKey skips reading config.xml when set.
	APIKey string
	// ConfigPaths are searched in order for config.xml.
	ConfigPaths  []string
	Binary       string
	StartTimeout time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client talks to one Syncthing instance.
type Client struct {
	apiURL       string
	configPaths  []string
	binary       string
	startTimeout time.Duration
	httpClient   *http.Client
	logger       *slog.Logger

	mu     sync.Mutex
	apiKey string
}

func New(opts Opts) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.ConfigPaths == nil {
		opts.ConfigPaths = DefaultConfigPaths()
	}
	if opts.Binary == "" {
		opts.Binary = "syncthing"
	}
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 30 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		apiURL:       opts.APIURL,
		configPaths:  opts.ConfigPaths,
		binary:       opts.Binary,
		startTimeout: opts.StartTimeout,
		httpClient:   opts.HTTPClient,
		logger:       opts.Logger,
		apiKey:       opts.APIKey,
	}
}

// DefaultConfigPaths lists where Syncthing keeps config.xml on Linux.
func DefaultConfigPaths() []string {
	paths := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "syncthing", "config.xml"),
			filepath.Join(home, ".local", "state", "syncthing", "config.xml"),
		)
	}
	return append(paths, "/var/lib/syncthing/.config/syncthing/config.xml")
}

// IsInstalled reports whether the syncthing binary runs.
func (c *Client) IsInstalled() bool {
	if _, err := exec.LookPath(c.binary); err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, c.binary, "--version").Run() == nil
}

// IsRunning pings the API. No key is needed.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/rest/system/ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck
	return resp.StatusCode == http.StatusOK
}

type syncthingConfigXML struct {
	GUI struct {
		APIKey string `xml:"apikey"`
	} `xml:"gui"`
}

// APIKey returns the key from the first readable config.xml. It is cached.
func (c *Client) APIKey() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.apiKey != "" {
		return c.apiKey, nil
	}

	for _, path := range c.configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var cfg syncthingConfigXML
		if err := xml.Unmarshal(data, &cfg); err != nil {
			c.logger.Debug("Skipping unreadable Syncthing config", "path", path, "error", err)
			continue
		}
		if cfg.GUI.APIKey != "" {
			c.apiKey = cfg.GUI.APIKey
			return c.apiKey, nil
		}
	}
	return "", ErrNoAPIKey
}

// Start launches the daemon when it is not already answering and waits for
// its API with exponential backoff, up to the start timeout.
func (c *Client) Start(ctx context.Context) error {
	if c.IsRunning(ctx) {
		return nil
	}
	if !c.IsInstalled() {
		return ErrNotInstalled
	}

	cmd := exec.Command(c.binary, "serve", "--no-browser", "--no-default-folder")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start syncthing: %w", err)
	}
	go cmd.Wait() //nolint:errcheck

	c.logger.Info("Started Syncthing, waiting for API", "pid", cmd.Process.Pid)
	return c.waitReady(ctx)
}

func (c *Client) waitReady(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = c.startTimeout

	err := backoff.Retry(func() error {
		if c.IsRunning(ctx) {
			return nil
		}
		return errNotReady
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("syncthing did not become ready: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	key, err := c.APIKey()
	if err != nil {
		return err
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+endpoint, r)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("syncthing %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Method: method, Endpoint: endpoint, Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}
