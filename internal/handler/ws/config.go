package ws

import "time"

// Config holds configuration for websocket connections
type Config struct {
	// KeepAliveInterval is how often the server pings. Proxies commonly drop
	// idle connections after 30-60 seconds.
	KeepAliveInterval time.Duration

	// PongTimeout closes a connection that has sent nothing, not even a pong, for this long
	PongTimeout time.Duration

	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration

	// RequestTimeout bounds the handling of one acknowledged event
	RequestTimeout time.Duration

	// SendQueue is the outbound buffer per connection. A full buffer drops the client.
	SendQueue int

	// EventsPerSecond and EventBurst rate-limit inbound events per connection
	EventsPerSecond float64
	EventBurst      int

	// MaxMessageBytes caps an inbound frame
	MaxMessageBytes int64

	// AllowedOrigins for the upgrade handshake. "*" allows any origin.
	AllowedOrigins []string
}

// DefaultConfig returns the default websocket configuration
func DefaultConfig() *Config {
	return &Config{
		KeepAliveInterval: 10 * time.Second,
		PongTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
		RequestTimeout:    10 * time.Second,
		SendQueue:         64,
		EventsPerSecond:   20,
		EventBurst:        40,
		MaxMessageBytes:   6 << 20,
		AllowedOrigins:    []string{"*"},
	}
}
