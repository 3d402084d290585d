package docker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/client"
	"github.com/sirupsen/logrus"
)

// HTTPClientConfig tunes the pooled HTTP transport the Discoverer's Docker
// client talks to the daemon over.
type HTTPClientConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`

	DialTimeout           time.Duration `yaml:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout"`

	DisableKeepAlives bool          `yaml:"disable_keep_alives"`
	KeepAlive         time.Duration `yaml:"keep_alive"`

	SocketPath string `yaml:"socket_path"`
}

// DefaultHTTPClientConfig returns a pool sized for a single forwarder
// polling the daemon's container list on its discovery interval - there's
// no fan-out of concurrent Docker API callers to size for.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost:  10,
		MaxConnsPerHost:      10,
		IdleConnTimeout:      90 * time.Second,

		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableKeepAlives: false,
		KeepAlive:         30 * time.Second,

		SocketPath: "unix:///var/run/docker.sock",
	}
}

// HTTPDockerClient is a Docker API client dialing the daemon over a pooled
// Unix-socket HTTP transport, shared by the Discoverer across every
// ContainerList poll.
type HTTPDockerClient struct {
	client    *client.Client
	transport *http.Transport
	logger    *logrus.Logger
}

// NewHTTPDockerClient builds a Docker client over a custom transport that
// dials the configured Unix socket regardless of what address the Docker
// SDK asks for - the SDK's HTTP layer addresses requests to a placeholder
// host, so the real routing happens here.
func NewHTTPDockerClient(cfg HTTPClientConfig, logger *logrus.Logger) (*HTTPDockerClient, error) {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: cfg.ExpectContinueTimeout,

		DisableKeepAlives: cfg.DisableKeepAlives,

		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cfg.SocketPath != "" {
				return dialer.DialContext(ctx, "unix", strings.TrimPrefix(cfg.SocketPath, "unix://"))
			}
			return dialer.DialContext(ctx, network, addr)
		},

		ForceAttemptHTTP2: false,
	}

	httpClient := &http.Client{Transport: transport}

	dockerClient, err := client.NewClientWithOpts(
		client.WithHost(cfg.SocketPath),
		client.WithHTTPClient(httpClient),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("docker: new client: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"max_idle_conns":     cfg.MaxIdleConns,
		"max_conns_per_host": cfg.MaxConnsPerHost,
		"socket_path":        cfg.SocketPath,
	}).Info("docker: http client created")

	return &HTTPDockerClient{client: dockerClient, transport: transport, logger: logger}, nil
}

// Client returns the underlying Docker SDK client the Discoverer lists
// containers through.
func (hdc *HTTPDockerClient) Client() *client.Client {
	return hdc.client
}

// Close releases the pooled HTTP connections and the Docker client itself,
// called once on forwarder shutdown.
func (hdc *HTTPDockerClient) Close() error {
	hdc.transport.CloseIdleConnections()
	if hdc.client == nil {
		return nil
	}
	if err := hdc.client.Close(); err != nil {
		hdc.logger.WithError(err).Warn("docker: error closing client")
		return err
	}
	return nil
}
