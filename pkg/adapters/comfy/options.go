package comfy

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/comfyctl/pkg/observability"
)

// Default timeouts per request class.
const (
	DefaultServer          = "127.0.0.1:8188"
	DefaultTimeout         = 30 * time.Second
	DefaultProbeTimeout    = 10 * time.Second
	DefaultUploadTimeout   = 60 * time.Second
	DefaultDownloadTimeout = 120 * time.Second
)

// RetryPolicy bounds the retries of transient failures.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int
	// InitialInterval is the wait before the second attempt.
	InitialInterval time.Duration
	// MaxInterval caps a single wait.
	MaxInterval time.Duration
	// Multiplier grows the wait between attempts.
	Multiplier float64
}

// DefaultRetryPolicy mirrors a backoff factor of one second over three attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = def.MaxInterval
	}
	if p.MaxInterval < p.InitialInterval {
		p.MaxInterval = p.InitialInterval
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Options configures a Client. Zero values fall back to the defaults above.
type Options struct {
	// Server is host:port or a full http(s) URL.
	Server string

	Timeout         time.Duration
	ProbeTimeout    time.Duration
	UploadTimeout   time.Duration
	DownloadTimeout time.Duration

	// InsecureSkipVerify disables TLS certificate checks for https servers.
	// It only applies when HTTPClient is nil.
	InsecureSkipVerify bool

	Retry RetryPolicy

	// HTTPClient replaces the pooled client built by New.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *observability.Metrics
}
