package docker

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultHTTPClientConfig(t *testing.T) {
	config := DefaultHTTPClientConfig()

	assert.Equal(t, 10, config.MaxIdleConns)
	assert.Equal(t, 10, config.MaxIdleConnsPerHost)
	assert.Equal(t, 10, config.MaxConnsPerHost)
	assert.Equal(t, 90*time.Second, config.IdleConnTimeout)
	assert.Equal(t, 30*time.Second, config.DialTimeout)
	assert.False(t, config.DisableKeepAlives, "keep-alive must stay enabled for connection reuse")
	assert.Equal(t, 30*time.Second, config.KeepAlive)
	assert.Equal(t, "unix:///var/run/docker.sock", config.SocketPath)
}

func TestNewHTTPDockerClient(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	config := DefaultHTTPClientConfig()
	client, err := NewHTTPDockerClient(config, logger)
	require.NoError(t, err)
	require.NotNil(t, client.Client(), "docker SDK client should be reachable for ContainerList")
	defer client.Close()

	assert.Equal(t, config.MaxIdleConns, client.transport.MaxIdleConns)
	assert.Equal(t, config.MaxIdleConnsPerHost, client.transport.MaxIdleConnsPerHost)
	assert.Equal(t, config.IdleConnTimeout, client.transport.IdleConnTimeout)
	assert.Equal(t, config.DisableKeepAlives, client.transport.DisableKeepAlives)
}

func TestHTTPDockerClient_CustomConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	config := HTTPClientConfig{
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   5,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       60 * time.Second,
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		ExpectContinueTimeout: 2 * time.Second,
		DisableKeepAlives:     false,
		KeepAlive:             15 * time.Second,
		SocketPath:            "unix:///var/run/docker.sock",
	}

	client, err := NewHTTPDockerClient(config, logger)
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, config.MaxIdleConns, client.transport.MaxIdleConns)
	assert.Equal(t, config.MaxIdleConnsPerHost, client.transport.MaxIdleConnsPerHost)
	assert.Equal(t, config.IdleConnTimeout, client.transport.IdleConnTimeout)
	assert.Equal(t, config.DisableKeepAlives, client.transport.DisableKeepAlives)
}

func TestHTTPDockerClient_Close(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	config := DefaultHTTPClientConfig()
	client, err := NewHTTPDockerClient(config, logger)
	require.NoError(t, err)

	assert.NoError(t, client.Close())
}
