package aggregate

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Checksum is the hex SHA-256 of "symbol|price|sorted,sources|computed_at",
// with computed_at in RFC 3339 (nanoseconds, UTC).
func Checksum(symbol string, price decimal.Decimal, sources []string, computedAt time.Time) string {
	sorted := slices.Clone(sources)
	slices.Sort(sorted)

	h := sha256.New()
	h.Write([]byte(strings.Join([]string{
		symbol,
		price.String(),
		strings.Join(sorted, ","),
		computedAt.UTC().Format(time.RFC3339Nano),
	}, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChecksum recomputes the digest of cp and compares it to cp.Checksum.
func VerifyChecksum(cp CanonicalPrice) bool {
	want := Checksum(cp.Symbol, cp.Price, cp.SourcesUsed, cp.ComputedAt)
	return subtle.ConstantTimeCompare([]byte(want), []byte(cp.Checksum)) == 1
}
