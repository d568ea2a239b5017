package orders

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// fallbackCounter ensures unique fallback IDs even if crypto/rand fails
// and multiple goroutines call at the same nanosecond.
var fallbackCounter uint64

const (
	// MaxClientOrderIDLength matches the tightest of Kraken/RevolutX limits.
	MaxClientOrderIDLength = 32

	// clientOrderIDPrefix tags every ID minted by this bot, distinguishing
	// them from any order placed manually on the exchange account.
	clientOrderIDPrefix = "ka"

	// submissionClaimTTL bounds how long a clientOrderId stays claimed —
	// long enough to cover the default order timeout (spec.md §4.6, 120s)
	// plus the reconciliation sweep margin.
	submissionClaimTTL = 10 * time.Minute
)

var (
	ErrInvalidClientOrderID = errors.New("invalid client order ID format")
	ErrDuplicateSubmission  = errors.New("clientOrderId already submitted")
)

// SubmissionStore claims a clientOrderId exactly once, rejecting duplicate
// submissions per spec.md §4.6 ("duplicate clientOrderIds must be rejected
// by idempotent submission"). Backed by Redis (SETNX-style) in production;
// this interface breaks the import cycle with internal/cache.
type SubmissionStore interface {
	// Claim atomically reserves clientOrderID for ttl, returning false if
	// it was already claimed (a duplicate submission attempt).
	Claim(ctx context.Context, clientOrderID string, ttl time.Duration) (bool, error)
	// IsHealthy reports whether the store is reachable. When it is not,
	// the generator still mints IDs but cannot guarantee idempotency —
	// callers should treat this as a degraded-mode warning.
	IsHealthy() bool
}

// Generator mints clientOrderIds deterministically from {pair, side,
// tickId} and claims them against a SubmissionStore before a caller is
// allowed to submit to the exchange.
type Generator struct {
	store  SubmissionStore
	logger zerolog.Logger
}

// NewGenerator creates a Generator. store may be nil, in which case
// Generate still produces IDs but ClaimForSubmission always succeeds
// (no duplicate protection — acceptable only in dry-run/tests). logger is
// the zerolog.Logger to attribute duplicate-submission and degraded-mode
// events to; the zero value writes nothing, matching zerolog's own default.
func NewGenerator(store SubmissionStore, logger zerolog.Logger) *Generator {
	return &Generator{store: store, logger: logger.With().Str("component", "orders").Logger()}
}

// Generate derives a deterministic clientOrderId from {pair, side, tickId}.
// Same inputs always produce the same ID, which is what lets
// ClaimForSubmission detect a duplicate submission of the same intent.
func Generate(pair string, side Side, tickID int64) string {
	raw := fmt.Sprintf("%s|%s|%d", pair, side, tickID)
	sum := sha256.Sum256([]byte(raw))
	id := fmt.Sprintf("%s-%s", clientOrderIDPrefix, hex.EncodeToString(sum[:])[:24])
	if len(id) > MaxClientOrderIDLength {
		id = id[:MaxClientOrderIDLength]
	}
	return id
}

// ClaimForSubmission reserves clientOrderID for submission. Returns
// ErrDuplicateSubmission if it was already claimed within the TTL window.
func (g *Generator) ClaimForSubmission(ctx context.Context, clientOrderID string) error {
	if g.store == nil {
		return nil
	}
	if !g.store.IsHealthy() {
		g.logger.Warn().Str("client_order_id", clientOrderID).Msg("submission store unhealthy, proceeding without duplicate protection")
		return nil
	}

	claimed, err := g.store.Claim(ctx, clientOrderID, submissionClaimTTL)
	if err != nil {
		return fmt.Errorf("claim clientOrderId %s: %w", clientOrderID, err)
	}
	if !claimed {
		g.logger.Warn().Str("client_order_id", clientOrderID).Msg("rejected duplicate submission")
		return fmt.Errorf("%w: %s", ErrDuplicateSubmission, clientOrderID)
	}
	return nil
}

// ValidateClientOrderID checks basic shape constraints before submission.
func ValidateClientOrderID(id string) error {
	if id == "" {
		return ErrInvalidClientOrderID
	}
	if len(id) > MaxClientOrderIDLength {
		return fmt.Errorf("%w: '%s' is %d characters (max %d)", ErrInvalidClientOrderID, id, len(id), MaxClientOrderIDLength)
	}
	return nil
}

// GenerateFallback mints a random clientOrderId when the deterministic
// {pair, side, tickId} triple is unavailable (e.g. a manual operator
// retry). Uses crypto/rand, falling back to a timestamp+counter if the
// CSPRNG is unavailable.
func GenerateFallback() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		counter := atomic.AddUint64(&fallbackCounter, 1)
		combined := (uint64(time.Now().UnixNano()) << 16) | (counter & 0xFFFF)
		return fmt.Sprintf("%s-fb-%016x", clientOrderIDPrefix, combined)
	}
	return fmt.Sprintf("%s-fb-%s", clientOrderIDPrefix, hex.EncodeToString(b))
}
