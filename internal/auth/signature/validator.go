// Package signature implements HMAC webhook signature validation with
// replay protection, including presets for common webhook providers.
package signature

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ensembleai/agentgate/internal/auth"
	"github.com/ensembleai/agentgate/internal/observability"
	"github.com/ensembleai/agentgate/internal/security"
)

// Payload format strategies.
const (
	// PayloadBody signs the raw request body.
	PayloadBody = "body"
	// PayloadTimestampBody signs "<timestamp>.<body>".
	PayloadTimestampBody = "timestamp.body"
)

// PayloadBuilder constructs the signed payload for providers whose format
// neither built-in strategy covers.
type PayloadBuilder func(timestamp string, body []byte) []byte

// Config holds signature validator configuration.
type Config struct {
	Secret          string `yaml:"secret"`
	Algorithm       string `yaml:"algorithm"`
	SignatureHeader string `yaml:"signatureHeader"`
	TimestampHeader string `yaml:"timestampHeader"`
	// Tolerance is the replay window in seconds. Zero disables the
	// timestamp check for providers that do not send one.
	Tolerance int64 `yaml:"tolerance"`
	// Prefix is stripped from the header value, for example "sha256=".
	Prefix        string `yaml:"prefix"`
	PayloadFormat string `yaml:"payloadFormat"`
	// Preset fills the fields above with a known provider profile.
	Preset string `yaml:"preset"`
}

// Validate checks the configuration at construction time.
func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("signature auth requires a secret")
	}
	if c.Algorithm != "" && !security.IsSupportedAlgorithm(c.Algorithm) {
		return fmt.Errorf("unsupported signature algorithm %q", c.Algorithm)
	}
	switch c.PayloadFormat {
	case "", PayloadBody, PayloadTimestampBody:
	default:
		return fmt.Errorf("unknown payload format %q", c.PayloadFormat)
	}
	if c.Tolerance < 0 {
		return errors.New("tolerance must not be negative")
	}
	return nil
}

// Preset profiles for common webhook providers.
var presets = map[string]Config{
	"github": {
		SignatureHeader: "X-Hub-Signature-256",
		Prefix:          "sha256=",
		Algorithm:       security.AlgSHA256,
		PayloadFormat:   PayloadBody,
	},
	"stripe": {
		SignatureHeader: "Stripe-Signature",
		Algorithm:       security.AlgSHA256,
		Tolerance:       300,
		PayloadFormat:   PayloadTimestampBody,
	},
	"slack": {
		SignatureHeader: "X-Slack-Signature",
		TimestampHeader: "X-Slack-Request-Timestamp",
		Prefix:          "v0=",
		Algorithm:       security.AlgSHA256,
		Tolerance:       300,
	},
}

// stripe packs timestamp and signature into one header:
// "t=<unix>,v1=<hex>[,v1=<hex>...]". Multiple v1 entries appear while a
// signing secret is being rolled; any matching one authenticates. Unknown
// schemes (v0) are ignored.
func parseCompositeSignature(value string) (timestamp string, signatures []string) {
	for _, part := range strings.Split(value, ",") {
		scheme, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || val == "" {
			continue
		}
		switch scheme {
		case "t":
			timestamp = val
		case "v1":
			signatures = append(signatures, val)
		}
	}
	return timestamp, signatures
}

// slack signs "v0:<timestamp>:<body>".
func slackPayload(timestamp string, body []byte) []byte {
	payload := make([]byte, 0, len("v0:")+len(timestamp)+1+len(body))
	payload = append(payload, "v0:"...)
	payload = append(payload, timestamp...)
	payload = append(payload, ':')
	return append(payload, body...)
}

// Presets lists the known preset names.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	return names
}

// IsKnownPreset reports whether name is a known provider preset.
func IsKnownPreset(name string) bool {
	_, ok := presets[name]
	return ok
}

// ApplyPreset fills unset config fields from the named preset.
func (c *Config) ApplyPreset() error {
	if c.Preset == "" {
		return nil
	}
	p, ok := presets[c.Preset]
	if !ok {
		return fmt.Errorf("unknown signature preset %q", c.Preset)
	}
	if c.SignatureHeader == "" {
		c.SignatureHeader = p.SignatureHeader
	}
	if c.TimestampHeader == "" {
		c.TimestampHeader = p.TimestampHeader
	}
	if c.Prefix == "" {
		c.Prefix = p.Prefix
	}
	if c.Algorithm == "" {
		c.Algorithm = p.Algorithm
	}
	if c.Tolerance == 0 {
		c.Tolerance = p.Tolerance
	}
	if c.PayloadFormat == "" {
		c.PayloadFormat = p.PayloadFormat
	}
	return nil
}

// Validator validates HMAC webhook signatures.
type Validator struct {
	config    *Config
	builder   PayloadBuilder
	composite bool
	logger    observability.Logger
	metrics   *auth.Metrics
	now       func() time.Time
}

// Option is a functional option for the validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithMetrics sets the metrics.
func WithMetrics(metrics *auth.Metrics) Option {
	return func(v *Validator) { v.metrics = metrics }
}

// WithPayloadBuilder sets a custom signed-payload builder, overriding the
// configured payload format.
func WithPayloadBuilder(builder PayloadBuilder) Option {
	return func(v *Validator) { v.builder = builder }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// NewValidator creates a signature validator.
func NewValidator(config *Config, opts ...Option) (*Validator, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	cfg := *config
	if err := cfg.ApplyPreset(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = security.AlgSHA256
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Signature"
	}

	v := &Validator{
		config: &cfg,
		logger: observability.NopLogger(),
		now:    time.Now,
	}
	switch cfg.Preset {
	case "slack":
		v.builder = slackPayload
	case "stripe":
		v.composite = true
	}
	for _, opt := range opts {
		opt(v)
	}

	return v, nil
}

// Method implements auth.Validator.
func (v *Validator) Method() auth.Method {
	return auth.MethodSignature
}

// ExtractToken implements auth.Validator. The token is the signature header
// value with its prefix stripped, or the first v1 entry of a composite
// header.
func (v *Validator) ExtractToken(r *http.Request) (string, bool) {
	_, signatures, ok := v.credentials(r)
	if !ok {
		return "", false
	}
	return signatures[0], true
}

// credentials extracts the timestamp and the candidate signatures from the
// request. Composite headers may carry several signatures; plain headers
// carry exactly one, with the timestamp in its own header.
func (v *Validator) credentials(r *http.Request) (timestamp string, signatures []string, ok bool) {
	value := r.Header.Get(v.config.SignatureHeader)
	if value == "" {
		return "", nil, false
	}

	if v.composite {
		timestamp, signatures = parseCompositeSignature(value)
		return timestamp, signatures, len(signatures) > 0
	}

	if v.config.Prefix != "" {
		if !strings.HasPrefix(value, v.config.Prefix) {
			return "", nil, false
		}
		value = value[len(v.config.Prefix):]
	}
	if value == "" {
		return "", nil, false
	}
	if v.config.TimestampHeader != "" {
		timestamp = r.Header.Get(v.config.TimestampHeader)
	}
	return timestamp, []string{value}, true
}

// Validate implements auth.Validator. The request body is restored after
// reading so downstream handlers see it intact.
func (v *Validator) Validate(_ context.Context, r *http.Request) (*auth.Context, error) {
	start := time.Now()

	timestamp, presented, ok := v.credentials(r)
	if !ok {
		v.metrics.RecordValidation(auth.MethodSignature, "no_credentials", time.Since(start))
		return nil, auth.ErrNoCredentials
	}

	if v.config.Tolerance > 0 {
		if err := v.checkTimestamp(timestamp); err != nil {
			v.metrics.RecordValidation(auth.MethodSignature, "stale_timestamp", time.Since(start))
			return nil, err
		}
	}

	body, err := readBody(r)
	if err != nil {
		v.metrics.RecordValidation(auth.MethodSignature, "body_error", time.Since(start))
		return nil, auth.WrapError(auth.ErrorKindUnknown, auth.MethodSignature, "reading request body", err)
	}

	expected, err := security.ComputeHMAC(v.payload(timestamp, body), []byte(v.config.Secret), v.config.Algorithm)
	if err != nil {
		v.metrics.RecordValidation(auth.MethodSignature, "hmac_error", time.Since(start))
		return nil, auth.WrapError(auth.ErrorKindUnknown, auth.MethodSignature, "computing signature", err)
	}

	// Hex digests compare case-insensitively; both sides are lowercased
	// before the constant-time comparison. Every candidate is checked.
	matched := false
	for _, candidate := range presented {
		if security.ConstantTimeEqual(strings.ToLower(candidate), expected) {
			matched = true
		}
	}
	if !matched {
		v.metrics.RecordValidation(auth.MethodSignature, "mismatch", time.Since(start))
		return nil, auth.NewError(auth.ErrorKindInvalidToken, auth.MethodSignature, "signature mismatch")
	}

	v.metrics.RecordValidation(auth.MethodSignature, "success", time.Since(start))
	return &auth.Context{
		Authenticated: true,
		Method:        auth.MethodSignature,
	}, nil
}

// checkTimestamp enforces the replay window. A timestamp exactly tolerance
// seconds old is still accepted.
func (v *Validator) checkTimestamp(timestamp string) error {
	if timestamp == "" {
		return auth.NewError(auth.ErrorKindInvalidToken, auth.MethodSignature, "missing timestamp header")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return auth.WrapError(auth.ErrorKindInvalidToken, auth.MethodSignature, "malformed timestamp", err)
	}

	age := v.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > v.config.Tolerance {
		return auth.NewError(auth.ErrorKindExpired, auth.MethodSignature, "timestamp outside replay window")
	}
	return nil
}

func (v *Validator) payload(timestamp string, body []byte) []byte {
	if v.builder != nil {
		return v.builder(timestamp, body)
	}
	if v.config.PayloadFormat == PayloadTimestampBody {
		payload := make([]byte, 0, len(timestamp)+1+len(body))
		payload = append(payload, timestamp...)
		payload = append(payload, '.')
		return append(payload, body...)
	}
	return body
}

// readBody drains the request body and replaces it with a re-readable copy.
func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// Ensure Validator implements auth.Validator.
var _ auth.Validator = (*Validator)(nil)
