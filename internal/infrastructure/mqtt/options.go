package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultAckTimeout is the maximum time to wait for PUBACK or SUBACK.
	defaultAckTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultInboundBuffer is the inbound queue capacity.
	defaultInboundBuffer = 64

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12

	// subackFailure is the SUBACK return code for a rejected filter.
	subackFailure = 0x80
)

// ConnectionConfig describes one broker connection.
type ConnectionConfig struct {
	Host string
	Port int

	// TLS selects ssl:// and verifies the broker against TrustAnchor.
	TLS bool

	// TrustAnchor is the path to a PEM bundle of root certificates.
	// Required when TLS is set.
	TrustAnchor string

	ClientID string
	Username string
}

// BrokerURL returns the paho broker URL for the configuration.
//
// Example: ssl://h.example.com:8883
func (c ConnectionConfig) BrokerURL() string {
	scheme := "tcp"
	if c.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// LoadTrustAnchor reads a PEM bundle into a certificate pool.
//
// Returns:
//   - *x509.CertPool: Pool containing every certificate in the bundle
//   - error: ErrTrustAnchor if the file is unreadable or holds no certificates
func LoadTrustAnchor(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrustAnchor, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no certificates in %s", ErrTrustAnchor, path)
	}
	return pool, nil
}

// buildClientOptions creates paho options for a single connection attempt.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and credentials
//   - Clean session mode
//   - Auto-reconnect and connect-retry disabled
//   - TLS with the trust anchor as the only root
func buildClientOptions(cfg ConnectionConfig, password string, o Options) (*pahomqtt.ClientOptions, error) {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.BrokerURL())
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(password)
	}

	opts.SetCleanSession(true)

	// The session supervisor owns retries.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(o.KeepAlive)

	if cfg.TLS {
		pool, err := LoadTrustAnchor(cfg.TrustAnchor)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tlsMinVersion,
			RootCAs:    pool,
			ServerName: cfg.Host,
		})
	}

	return opts, nil
}
