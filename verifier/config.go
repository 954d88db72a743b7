package verifier

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier/security"
)

// ConfirmationChain selects which chain the confirmation gate polls.
type ConfirmationChain string

const (
	ConfirmationChainDestination ConfirmationChain = "destination"
	ConfirmationChainSource      ConfirmationChain = "source"
)

const (
	PacketStoreMemory   = "memory"
	PacketStoreSQLite   = "sqlite"
	PacketStorePostgres = "postgres"
)

// Config is the node configuration, decoded from TOML at startup and
// constant for the life of the process.
type Config struct {
	VerifierID string `toml:"verifier_id"`
	// NodeAddress is this DVN's on-chain identity. It must be the address of
	// the configured private key, which submits the verifications; leave it
	// empty to use that address.
	NodeAddress string `toml:"node_address"`
	// KeystoreFile is an encrypted key file used when PrivateKeyEnvVar is unset.
	KeystoreFile string `toml:"keystore_file"`

	PyroscopeURL      string `toml:"pyroscope_url"`
	InfoServerAddress string `toml:"info_server_address"`

	// RequiredConfirmations is the minimum depth; an assignment may ask for more.
	RequiredConfirmations    uint64            `toml:"required_confirmations"`
	ConfirmationChain        ConfirmationChain `toml:"confirmation_chain"`
	ConfirmationInitialDelay string            `toml:"confirmation_initial_delay"`
	ConfirmationMaxAttempts  int               `toml:"confirmation_max_attempts"`

	VerifiedCacheSize int    `toml:"verified_cache_size"`
	VerifiedCacheTTL  string `toml:"verified_cache_ttl"`

	PollInterval       string `toml:"poll_interval"`
	MaxConcurrentJobs  int    `toml:"max_concurrent_jobs"`
	MaxRequeueAttempts int    `toml:"max_requeue_attempts"`

	// Chains is keyed by endpoint id.
	Chains      map[string]ChainConfig  `toml:"chains"`
	Security    security.StrategyConfig `toml:"security"`
	PacketStore PacketStoreConfig       `toml:"packet_store"`
	Evidence    EvidenceConfig          `toml:"evidence"`
	Monitoring  MonitoringConfig        `toml:"monitoring"`
}

// ChainConfig holds the RPC endpoint and LayerZero contract addresses of one chain.
type ChainConfig struct {
	RPCURL                string `toml:"rpc_url"`
	EndpointAddress       string `toml:"endpoint_address"`
	SendLibraryAddress    string `toml:"send_library_address"`
	ReceiveLibraryAddress string `toml:"receive_library_address"`
	// StartBlock is where the listener begins scanning. Zero means the current head.
	StartBlock    uint64 `toml:"start_block"`
	MaxBlockRange uint64 `toml:"max_block_range"`
	// Listen enables the event listener for this chain as a source.
	Listen bool `toml:"listen"`
}

// PacketStoreConfig selects the packet store backend.
type PacketStoreConfig struct {
	// Type is one of memory, sqlite, postgres.
	Type string `toml:"type"`
	// Path is the SQLite database file.
	Path string `toml:"path"`
	// URL is the Postgres connection string.
	URL string `toml:"url"`
}

// EvidenceConfig configures where evidence for the security strategy comes from.
type EvidenceConfig struct {
	// URL of the evidence service. Empty disables evidence fetching.
	URL               string `toml:"url"`
	RequestTimeout    string `toml:"request_timeout"`
	RequestsPerSecond int    `toml:"requests_per_second"`
	CoolDown          string `toml:"cool_down"`
}

// MonitoringConfig provides monitoring configuration for the node.
type MonitoringConfig struct {
	// Enabled enables the monitoring system.
	Enabled bool `toml:"Enabled"`
	// Type is the type of monitoring system to use (beholder, noop).
	Type string `toml:"Type"`
	// Beholder is the configuration for the beholder client (Not required if type is noop).
	Beholder BeholderConfig `toml:"Beholder"`
}

// BeholderConfig wraps OpenTelemetry configuration for the beholder client.
type BeholderConfig struct {
	// InsecureConnection disables TLS for the beholder client.
	InsecureConnection bool `toml:"InsecureConnection"`
	// CACertFile is the path to the CA certificate file for the beholder client.
	CACertFile string `toml:"CACertFile"`
	// OtelExporterGRPCEndpoint is the endpoint for the beholder client to export to the collector.
	OtelExporterGRPCEndpoint string `toml:"OtelExporterGRPCEndpoint"`
	// OtelExporterHTTPEndpoint is the endpoint for the beholder client to export to the collector.
	OtelExporterHTTPEndpoint string `toml:"OtelExporterHTTPEndpoint"`
	// MetricReaderInterval is the interval to scrape metrics (in seconds).
	MetricReaderInterval int64 `toml:"MetricReaderInterval"`
	// TraceSampleRatio is the ratio of traces to sample.
	TraceSampleRatio float64 `toml:"TraceSampleRatio"`
	// TraceBatchTimeout is the timeout for a batch of traces.
	TraceBatchTimeout int64 `toml:"TraceBatchTimeout"`
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.ConfirmationChain == "" {
		c.ConfirmationChain = ConfirmationChainDestination
	}
	if c.ConfirmationInitialDelay == "" {
		c.ConfirmationInitialDelay = DefaultConfirmationInitialDelay.String()
	}
	if c.ConfirmationMaxAttempts == 0 {
		c.ConfirmationMaxAttempts = MaxConfirmationAttempts
	}
	if c.VerifiedCacheSize == 0 {
		c.VerifiedCacheSize = DefaultVerifiedCacheSize
	}
	if c.VerifiedCacheTTL == "" {
		c.VerifiedCacheTTL = DefaultVerifiedCacheTTL.String()
	}
	if c.PollInterval == "" {
		c.PollInterval = DefaultPollInterval.String()
	}
	if c.MaxConcurrentJobs == 0 {
		c.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if c.MaxRequeueAttempts == 0 {
		c.MaxRequeueAttempts = DefaultMaxRequeueAttempts
	}
	if c.InfoServerAddress == "" {
		c.InfoServerAddress = DefaultInfoServerAddress
	}
	if c.PacketStore.Type == "" {
		c.PacketStore.Type = PacketStoreSQLite
	}
	if c.PacketStore.Type == PacketStoreSQLite && c.PacketStore.Path == "" {
		c.PacketStore.Path = "dvn_packets.db"
	}
	for eid, chain := range c.Chains {
		if chain.MaxBlockRange == 0 {
			chain.MaxBlockRange = DefaultMaxBlockRange
			c.Chains[eid] = chain
		}
	}
}

// ResolveIdentity returns the address this node verifies as given the
// address of its signing key. A configured NodeAddress must match signer.
func (c *Config) ResolveIdentity(signer common.Address) (common.Address, error) {
	if c.NodeAddress == "" {
		return signer, nil
	}
	if !common.IsHexAddress(c.NodeAddress) {
		return common.Address{}, fmt.Errorf("node_address %q is not a hex address", c.NodeAddress)
	}
	configured := common.HexToAddress(c.NodeAddress)
	if signer != (common.Address{}) && configured != signer {
		return common.Address{}, fmt.Errorf("node_address %s differs from signing key address %s", configured.Hex(), signer.Hex())
	}
	return configured, nil
}

// Validate checks the configuration and returns every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.NodeAddress != "" && !common.IsHexAddress(c.NodeAddress) {
		errs = append(errs, fmt.Errorf("node_address %q is not a hex address", c.NodeAddress))
	}

	switch c.ConfirmationChain {
	case ConfirmationChainDestination, ConfirmationChainSource:
	default:
		errs = append(errs, fmt.Errorf("confirmation_chain must be %q or %q, got %q",
			ConfirmationChainDestination, ConfirmationChainSource, c.ConfirmationChain))
	}
	if c.ConfirmationMaxAttempts < 1 || c.ConfirmationMaxAttempts > MaxConfirmationAttempts {
		errs = append(errs, fmt.Errorf("confirmation_max_attempts must be between 1 and %d, got %d",
			MaxConfirmationAttempts, c.ConfirmationMaxAttempts))
	}
	for name, value := range map[string]string{
		"confirmation_initial_delay": c.ConfirmationInitialDelay,
		"verified_cache_ttl":         c.VerifiedCacheTTL,
		"poll_interval":              c.PollInterval,
	} {
		if _, err := parsePositiveDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.MaxConcurrentJobs < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_jobs must be positive, got %d", c.MaxConcurrentJobs))
	}

	if len(c.Chains) == 0 {
		errs = append(errs, errors.New("at least one chain must be configured"))
	}
	for eid, chain := range c.Chains {
		if _, err := ParseChainID(eid); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := chain.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("chain %s: %w", eid, err))
		}
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("security: %w", err))
	}
	if err := c.PacketStore.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("packet_store: %w", err))
	}
	if err := c.Evidence.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("evidence: %w", err))
	}
	if err := c.Monitoring.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("monitoring: %w", err))
	}

	return errors.Join(errs...)
}

// ConfirmationDelay returns the parsed confirmation backoff unit.
func (c *Config) ConfirmationDelay() time.Duration {
	d, err := parsePositiveDuration(c.ConfirmationInitialDelay)
	if err != nil {
		return DefaultConfirmationInitialDelay
	}
	return d
}

// VerifiedCacheTTLDuration returns the parsed cache TTL.
func (c *Config) VerifiedCacheTTLDuration() time.Duration {
	d, err := parsePositiveDuration(c.VerifiedCacheTTL)
	if err != nil {
		return DefaultVerifiedCacheTTL
	}
	return d
}

// PollIntervalDuration returns the parsed listener poll interval.
func (c *Config) PollIntervalDuration() time.Duration {
	d, err := parsePositiveDuration(c.PollInterval)
	if err != nil {
		return DefaultPollInterval
	}
	return d
}

// Validate checks that all configured addresses are well formed.
func (c *ChainConfig) Validate() error {
	var errs []error
	if c.RPCURL == "" {
		errs = append(errs, errors.New("rpc_url is required"))
	}
	for name, addr := range map[string]string{
		"endpoint_address":        c.EndpointAddress,
		"send_library_address":    c.SendLibraryAddress,
		"receive_library_address": c.ReceiveLibraryAddress,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("%s %q is not a hex address", name, addr))
		}
	}
	if c.Listen && (c.EndpointAddress == "" || c.SendLibraryAddress == "") {
		errs = append(errs, errors.New("listening requires endpoint_address and send_library_address"))
	}
	return errors.Join(errs...)
}

// Validate checks that the selected backend has what it needs.
func (p *PacketStoreConfig) Validate() error {
	switch p.Type {
	case PacketStoreMemory:
		return nil
	case PacketStoreSQLite:
		if p.Path == "" {
			return errors.New("path is required for sqlite")
		}
		return nil
	case PacketStorePostgres:
		if p.URL == "" {
			return errors.New("url is required for postgres")
		}
		return nil
	default:
		return fmt.Errorf("unknown type %q", p.Type)
	}
}

// Validate checks optional durations and rates.
func (e *EvidenceConfig) Validate() error {
	var errs []error
	if e.RequestTimeout != "" {
		if _, err := parsePositiveDuration(e.RequestTimeout); err != nil {
			errs = append(errs, fmt.Errorf("request_timeout: %w", err))
		}
	}
	if e.CoolDown != "" {
		if _, err := parsePositiveDuration(e.CoolDown); err != nil {
			errs = append(errs, fmt.Errorf("cool_down: %w", err))
		}
	}
	if e.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second must not be negative, got %d", e.RequestsPerSecond))
	}
	return errors.Join(errs...)
}

// Validate performs validation on the monitoring configuration.
func (m *MonitoringConfig) Validate() error {
	if m.Enabled && m.Type == "" {
		return fmt.Errorf("monitoring type is required when monitoring is enabled")
	}

	if m.Enabled && m.Type == "beholder" {
		if err := m.Beholder.Validate(); err != nil {
			return fmt.Errorf("beholder config validation failed: %w", err)
		}
	}

	return nil
}

// Validate performs validation on the beholder configuration.
func (b *BeholderConfig) Validate() error {
	if b.MetricReaderInterval <= 0 {
		return fmt.Errorf("metric_reader_interval must be positive, got %d", b.MetricReaderInterval)
	}

	if b.TraceSampleRatio < 0 || b.TraceSampleRatio > 1 {
		return fmt.Errorf("trace_sample_ratio must be between 0 and 1, got %f", b.TraceSampleRatio)
	}

	if b.TraceBatchTimeout <= 0 {
		return fmt.Errorf("trace_batch_timeout must be positive, got %d", b.TraceBatchTimeout)
	}

	return nil
}

// ParseChainID parses a decimal endpoint id used as a TOML table key.
func ParseChainID(s string) (protocol.ChainID, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	return protocol.ChainID(v), nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}
