package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type StreamMode string

const (
	StreamModeNone      StreamMode = "none"
	StreamModeGRPC      StreamMode = "grpc"
	StreamModeWebSocket StreamMode = "websocket"
	Version             string     = "v0.1.0"
)

type Config struct {
	ServiceName            string
	ListenAddr             string
	ProbeListenAddr        string
	BackendBaseURL         string
	SnapshotDir            string
	TargetsFile            string
	Targets                []TargetSpec
	PollInterval           time.Duration
	RequestTimeout         time.Duration
	HealthInterval         time.Duration
	ShutdownTimeout        time.Duration
	StreamMode             StreamMode
	BackendGRPCAddr        string
	BackendWSURL           string
	BackendToken           string
	GRPCWidgetStreamMethod string
	WebSocketWriteTimeout  time.Duration
	WebSocketPingInterval  time.Duration
	AgentVersion           string
	TLSEnabled             bool
	TLSSkipVerify          bool
	TLSCAPath              string
	TLSCertPath            string
	TLSKeyPath             string
	LogJSON                bool
	LogLevel               string
	GeoLookupURL           string
	VisitDelay             time.Duration
	SessionDir             string
	SessionCookie          string
	ReviewsPageSize        int
}

func Load() (Config, error) {
	cfg := Config{
		ServiceName:            env("SITEPULSE_SERVICE_NAME", "sitepulse"),
		ListenAddr:             env("SITEPULSE_LISTEN_ADDR", "0.0.0.0:8080"),
		ProbeListenAddr:        env("SITEPULSE_PROBE_ADDR", "0.0.0.0:7443"),
		BackendBaseURL:         strings.TrimRight(env("SITEPULSE_BACKEND_URL", "https://nemesis-backend-yv3w.onrender.com"), "/"),
		SnapshotDir:            env("SITEPULSE_SNAPSHOT_DIR", "./public/data"),
		TargetsFile:            env("SITEPULSE_TARGETS_FILE", ""),
		PollInterval:           envDuration("SITEPULSE_POLL_INTERVAL", 30*time.Second),
		RequestTimeout:         envDuration("SITEPULSE_REQUEST_TIMEOUT", 10*time.Second),
		HealthInterval:         envDuration("SITEPULSE_HEALTH_INTERVAL", 10*time.Second),
		ShutdownTimeout:        envDuration("SITEPULSE_SHUTDOWN_TIMEOUT", 20*time.Second),
		StreamMode:             StreamMode(strings.ToLower(env("SITEPULSE_STREAM_MODE", string(StreamModeNone)))),
		BackendGRPCAddr:        env("SITEPULSE_BACKEND_GRPC_ADDR", "127.0.0.1:3001"),
		BackendWSURL:           env("SITEPULSE_BACKEND_WS_URL", "ws://127.0.0.1:3001/ws/widgets"),
		BackendToken:           env("SITEPULSE_BACKEND_TOKEN", ""),
		GRPCWidgetStreamMethod: env("SITEPULSE_GRPC_WIDGET_STREAM_METHOD", "/sitepulse.widgets.v1.WidgetService/StreamWidgets"),
		WebSocketWriteTimeout:  envDuration("SITEPULSE_WS_WRITE_TIMEOUT", 5*time.Second),
		WebSocketPingInterval:  envDuration("SITEPULSE_WS_PING_INTERVAL", 10*time.Second),
		AgentVersion:           Version,
		TLSEnabled:             envBool("SITEPULSE_TLS_ENABLED", false),
		TLSSkipVerify:          envBool("SITEPULSE_TLS_SKIP_VERIFY", false),
		TLSCAPath:              env("SITEPULSE_TLS_CA_PATH", ""),
		TLSCertPath:            env("SITEPULSE_TLS_CERT_PATH", ""),
		TLSKeyPath:             env("SITEPULSE_TLS_KEY_PATH", ""),
		LogJSON:                envBool("SITEPULSE_LOG_JSON", false),
		LogLevel:               strings.ToLower(env("SITEPULSE_LOG_LEVEL", "info")),
		GeoLookupURL:           env("SITEPULSE_GEO_URL", "https://ipapi.co/{ip}/json/"),
		VisitDelay:             envDuration("SITEPULSE_VISIT_DELAY", time.Second),
		SessionDir:             env("SITEPULSE_SESSION_DIR", ""),
		SessionCookie:          env("SITEPULSE_SESSION_COOKIE", "sitepulse_session"),
		ReviewsPageSize:        envInt("SITEPULSE_REVIEWS_PAGE_SIZE", 6),
	}

	if cfg.TargetsFile != "" {
		targets, err := LoadTargets(cfg.TargetsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Targets = targets
	} else {
		cfg.Targets = DefaultTargets(cfg.BackendBaseURL, cfg.PollInterval)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return errors.New("SITEPULSE_SERVICE_NAME is required")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("SITEPULSE_LISTEN_ADDR is required")
	}
	if strings.TrimSpace(c.ProbeListenAddr) == "" {
		return errors.New("SITEPULSE_PROBE_ADDR is required")
	}
	if _, err := url.ParseRequestURI(c.BackendBaseURL); err != nil {
		return fmt.Errorf("SITEPULSE_BACKEND_URL: %w", err)
	}
	if c.PollInterval <= 0 {
		return errors.New("SITEPULSE_POLL_INTERVAL must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("SITEPULSE_REQUEST_TIMEOUT must be > 0")
	}
	if c.HealthInterval <= 0 {
		return errors.New("SITEPULSE_HEALTH_INTERVAL must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SITEPULSE_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.VisitDelay < 0 {
		return errors.New("SITEPULSE_VISIT_DELAY must be >= 0")
	}
	if strings.TrimSpace(c.SessionCookie) == "" {
		return errors.New("SITEPULSE_SESSION_COOKIE is required")
	}
	switch c.StreamMode {
	case StreamModeNone:
	case StreamModeGRPC:
		if c.BackendGRPCAddr == "" {
			return errors.New("SITEPULSE_BACKEND_GRPC_ADDR is required for grpc mode")
		}
		if strings.TrimSpace(c.GRPCWidgetStreamMethod) == "" {
			return errors.New("SITEPULSE_GRPC_WIDGET_STREAM_METHOD is required for grpc mode")
		}
	case StreamModeWebSocket:
		if c.BackendWSURL == "" {
			return errors.New("SITEPULSE_BACKEND_WS_URL is required for websocket mode")
		}
	default:
		return fmt.Errorf("unsupported stream mode %q", c.StreamMode)
	}
	if len(c.Targets) == 0 {
		return errors.New("at least one poll target is required")
	}
	seen := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ID] {
			return fmt.Errorf("duplicate target id %q", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// ReviewsTarget returns the first reviews target, which also feeds the paginator.
func (c Config) ReviewsTarget() (TargetSpec, bool) {
	for _, t := range c.Targets {
		if t.Kind == "reviews" {
			return t, true
		}
	}
	return TargetSpec{}, false
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
