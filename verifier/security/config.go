package security

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

// StrategyConfig selects and parameterizes the node's security strategy.
type StrategyConfig struct {
	Type      StrategyKind `toml:"type"`
	Threshold int          `toml:"threshold"`

	// Signature
	RequiredSigners []string `toml:"required_signers"`

	// Oracle
	Providers       []string `toml:"providers"`
	FreshnessWindow string   `toml:"freshness_window"`
	MaxClockSkew    string   `toml:"max_clock_skew"`

	// MPC
	Participants []MPCParticipantConfig `toml:"participants"`

	// ZK proof
	ProofSystem string `toml:"proof_system"`
	// VerificationKey is hex encoded; VerificationKeyFile points at the raw key instead.
	VerificationKey     string `toml:"verification_key"`
	VerificationKeyFile string `toml:"verification_key_file"`
	// BindData requires the first public input to commit to the attested data. Defaults to true.
	BindData *bool `toml:"bind_data"`
}

// MPCParticipantConfig is one MPC committee member.
type MPCParticipantConfig struct {
	Address string `toml:"address"`
	// BLSPublicKey is a hex encoded compressed BN254 G2 point.
	BLSPublicKey string `toml:"bls_public_key"`
	// BLSProofOfPossession is a hex encoded compressed BN254 G1 signature of
	// the public key under MPCPossessionDST.
	BLSProofOfPossession string `toml:"bls_pop"`
}

// Validate checks the configuration by building the verifier it describes.
func (c StrategyConfig) Validate() error {
	_, err := NewSecurityVerifier(c)
	return err
}

// Option customizes NewSecurityVerifier.
type Option func(*options)

type options struct {
	clock    func() time.Time
	backends ProofBackends
}

// WithClock replaces the wall clock of time sensitive strategies.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// WithProofBackends replaces the ZK backend registry.
func WithProofBackends(b ProofBackends) Option {
	return func(o *options) { o.backends = b }
}

// NewSecurityVerifier builds the verifier described by cfg. Invalid
// configuration, such as a threshold larger than the configured set, is rejected.
func NewSecurityVerifier(cfg StrategyConfig, opts ...Option) (SecurityVerifier, error) {
	o := options{clock: time.Now, backends: DefaultProofBackends()}
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Type {
	case KindSignature:
		signers, err := parseAddresses(cfg.RequiredSigners, "required_signers")
		if err != nil {
			return nil, err
		}
		return NewSignatureVerifier(signers, cfg.Threshold)

	case KindOracle:
		providers, err := parseAddresses(cfg.Providers, "providers")
		if err != nil {
			return nil, err
		}
		oracleOpts := []OracleOption{WithOracleClock(o.clock)}
		if cfg.FreshnessWindow != "" {
			d, err := time.ParseDuration(cfg.FreshnessWindow)
			if err != nil {
				return nil, fmt.Errorf("freshness_window: %w", err)
			}
			oracleOpts = append(oracleOpts, WithFreshnessWindow(d))
		}
		if cfg.MaxClockSkew != "" {
			d, err := time.ParseDuration(cfg.MaxClockSkew)
			if err != nil {
				return nil, fmt.Errorf("max_clock_skew: %w", err)
			}
			oracleOpts = append(oracleOpts, WithMaxClockSkew(d))
		}
		return NewOracleVerifier(providers, cfg.Threshold, oracleOpts...)

	case KindMPC:
		participants, err := parseParticipants(cfg.Participants)
		if err != nil {
			return nil, err
		}
		return NewMPCVerifier(participants, cfg.Threshold)

	case KindZKProof:
		vk, err := cfg.verificationKey()
		if err != nil {
			return nil, err
		}
		bind := true
		if cfg.BindData != nil {
			bind = *cfg.BindData
		}
		return NewZKProofVerifier(ParseProofSystem(cfg.ProofSystem), vk, o.backends, bind)

	case "":
		return nil, errors.New("security strategy type is required")
	default:
		return nil, fmt.Errorf("unknown security strategy %q", cfg.Type)
	}
}

func (c StrategyConfig) verificationKey() ([]byte, error) {
	switch {
	case c.VerificationKey != "" && c.VerificationKeyFile != "":
		return nil, errors.New("set only one of verification_key and verification_key_file")
	case c.VerificationKey != "":
		vk, err := protocol.NewByteSliceFromHex(c.VerificationKey)
		if err != nil {
			return nil, fmt.Errorf("verification_key: %w", err)
		}
		return vk, nil
	case c.VerificationKeyFile != "":
		vk, err := os.ReadFile(c.VerificationKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read verification key file: %w", err)
		}
		return vk, nil
	default:
		return nil, errors.New("a verification key is required for the zk_proof strategy")
	}
}

func parseParticipants(cfgs []MPCParticipantConfig) ([]MPCParticipant, error) {
	out := make([]MPCParticipant, 0, len(cfgs))
	for i, pc := range cfgs {
		if !common.IsHexAddress(pc.Address) {
			return nil, fmt.Errorf("participant %d: address %q is not a hex address", i, pc.Address)
		}
		raw, err := protocol.NewByteSliceFromHex(pc.BLSPublicKey)
		if err != nil {
			return nil, fmt.Errorf("participant %d: bls_public_key: %w", i, err)
		}
		var pk bn254.G2Affine
		if _, err := pk.SetBytes(raw); err != nil {
			return nil, fmt.Errorf("participant %d: invalid bls_public_key: %w", i, err)
		}
		rawPoP, err := protocol.NewByteSliceFromHex(pc.BLSProofOfPossession)
		if err != nil {
			return nil, fmt.Errorf("participant %d: bls_pop: %w", i, err)
		}
		var pop bn254.G1Affine
		if _, err := pop.SetBytes(rawPoP); err != nil {
			return nil, fmt.Errorf("participant %d: invalid bls_pop: %w", i, err)
		}
		out = append(out, MPCParticipant{
			Address:           common.HexToAddress(pc.Address),
			PublicKey:         pk,
			ProofOfPossession: pop,
		})
	}
	return out, nil
}
