// Package verifiedstate answers whether a message was already verified at
// its destination, caching positive answers.
package verifiedstate

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ protocol.VerifiedStateReader = (*Cached)(nil)

// Cached fronts a chain reader with an expirable LRU of message ids known to
// be verified. Only positive answers are cached: a verified message never
// becomes unverified, while an unverified one may be verified by another
// node at any time.
type Cached struct {
	lggr     logger.Logger
	reader   protocol.VerifiedStateReader
	verified *expirable.LRU[protocol.MessageID, struct{}]
}

func NewCached(reader protocol.VerifiedStateReader, size int, ttl time.Duration, lggr logger.Logger) *Cached {
	return &Cached{
		lggr:     logger.With(lggr, "component", "VerifiedStateCache"),
		reader:   reader,
		verified: expirable.NewLRU[protocol.MessageID, struct{}](size, nil, ttl),
	}
}

// IsVerified returns true from the cache or asks the underlying reader.
func (c *Cached) IsVerified(ctx context.Context, req protocol.VerificationRequest) (bool, error) {
	// Peek does not refresh the entry.
	if _, ok := c.verified.Peek(req.MessageID); ok {
		c.lggr.Debugw("Verified state served from cache", "messageID", req.MessageID)
		return true, nil
	}
	if c.reader == nil {
		return false, nil
	}

	verified, err := c.reader.IsVerified(ctx, req)
	if err != nil {
		return false, err
	}
	if verified {
		c.verified.Add(req.MessageID, struct{}{})
	}
	return verified, nil
}

// MarkVerified records a successful submission.
func (c *Cached) MarkVerified(id protocol.MessageID) {
	c.verified.Add(id, struct{}{})
}

// Len is the number of cached entries.
func (c *Cached) Len() int {
	return c.verified.Len()
}
