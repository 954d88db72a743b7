package security

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

const (
	DefaultOracleFreshnessWindow = time.Hour
	DefaultOracleMaxClockSkew    = time.Minute
)

var _ SecurityVerifier = (*OracleVerifier)(nil)

// OracleResponse is one oracle provider's report.
type OracleResponse struct {
	Provider  common.Address     `json:"provider"`
	Timestamp uint64             `json:"timestamp"`
	Data      protocol.ByteSlice `json:"data"`
	Signature protocol.ByteSlice `json:"signature"`
}

// Digest is what a provider signs: Keccak256(provider ‖ timestamp ‖ Keccak256(data)).
func (r OracleResponse) Digest() protocol.Bytes32 {
	ts := binary.BigEndian.AppendUint64(nil, r.Timestamp)
	dataHash := protocol.Keccak256(r.Data)
	return protocol.Keccak256(r.Provider.Bytes(), ts, dataHash[:])
}

// SignOracleResponse fills in the provider and signature of r using key.
func SignOracleResponse(r *OracleResponse, key *ecdsa.PrivateKey) error {
	r.Provider = addressOf(key)
	sig, err := protocol.Sign(r.Digest(), key)
	if err != nil {
		return fmt.Errorf("failed to sign oracle response: %w", err)
	}
	r.Signature = sig
	return nil
}

// OracleOption customizes an OracleVerifier.
type OracleOption func(*OracleVerifier)

// WithOracleClock replaces the wall clock used for freshness checks.
func WithOracleClock(now func() time.Time) OracleOption {
	return func(v *OracleVerifier) { v.now = now }
}

// WithFreshnessWindow overrides how old a report may be.
func WithFreshnessWindow(d time.Duration) OracleOption {
	return func(v *OracleVerifier) { v.freshness = d }
}

// WithMaxClockSkew overrides how far in the future a report timestamp may be.
func WithMaxClockSkew(d time.Duration) OracleOption {
	return func(v *OracleVerifier) { v.skew = d }
}

// OracleVerifier accepts data once threshold distinct providers report
// exactly data within the freshness window, each with a valid signature.
type OracleVerifier struct {
	providers map[common.Address]struct{}
	threshold int
	freshness time.Duration
	skew      time.Duration
	now       func() time.Time
}

func NewOracleVerifier(providers []common.Address, threshold int, opts ...OracleOption) (*OracleVerifier, error) {
	set, err := addressSet(providers, threshold, "oracle providers")
	if err != nil {
		return nil, err
	}
	v := &OracleVerifier{
		providers: set,
		threshold: threshold,
		freshness: DefaultOracleFreshnessWindow,
		skew:      DefaultOracleMaxClockSkew,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.freshness <= 0 {
		return nil, fmt.Errorf("freshness window must be positive, got %s", v.freshness)
	}
	if v.skew < 0 {
		return nil, fmt.Errorf("max clock skew must not be negative, got %s", v.skew)
	}
	return v, nil
}

func (v *OracleVerifier) Kind() StrategyKind {
	return KindOracle
}

func (v *OracleVerifier) Verify(_ context.Context, data []byte, vc VerificationContext) (bool, error) {
	var responses []OracleResponse
	if err := json.Unmarshal(vc.Evidence, &responses); err != nil {
		return false, verificationErr("failed to decode oracle responses: %v", err)
	}
	for i, r := range responses {
		if len(r.Signature) != protocol.SignatureLength {
			return false, verificationErr("response %d: signature must be %d bytes, got %d",
				i, protocol.SignatureLength, len(r.Signature))
		}
	}

	now := v.now().Unix()
	valid := make(map[common.Address]struct{})
	for i, r := range responses {
		if _, ok := v.providers[r.Provider]; !ok {
			continue
		}
		if !v.fresh(r.Timestamp, now) {
			continue
		}
		if !bytes.Equal(r.Data, data) {
			continue
		}
		signer, err := protocol.RecoverSignature(r.Digest(), r.Signature)
		if err != nil {
			return false, verificationErr("response %d: %v", i, err)
		}
		if signer != r.Provider {
			continue
		}
		valid[r.Provider] = struct{}{}
	}

	return len(valid) >= v.threshold, nil
}

func (v *OracleVerifier) fresh(timestamp uint64, now int64) bool {
	if now < 0 {
		return false
	}
	current := uint64(now)
	if timestamp > current {
		return timestamp-current <= uint64(v.skew/time.Second)
	}
	return current-timestamp <= uint64(v.freshness/time.Second)
}
