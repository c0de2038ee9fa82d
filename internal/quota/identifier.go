package quota

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Identifier derives the quota subject. Authenticated callers are keyed by user id;
// anonymous callers by a truncated hash of their address and user agent.
func Identifier(userID, remoteAddr, userAgent string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return "user:" + id
	}
	sum := sha256.Sum256([]byte(strings.TrimSpace(remoteAddr) + "|" + strings.TrimSpace(userAgent)))
	return "anon:" + hex.EncodeToString(sum[:8])
}
