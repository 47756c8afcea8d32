package security

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lac-hong-legacy/lms_api/shared"
	"golang.org/x/crypto/blake2b"
)

const (
	rateLimitPrefix       = "rate_limit:"
	rateLimitIndexKey     = "rate_limit_index"
	rateLimitFamilyPrefix = "rate_limit_family:"

	blockPrefix        = "blocked:"
	blockIndexKey      = "blocked_index"
	blockHistoryPrefix = "block_history:"

	activitySeriesPrefix = "activity:"

	ddosGlobalKey     = "ddos:global"
	ddosIPPrefix      = "ddos:ip:"
	ddosUAPrefix      = "ddos:ua:"
	ddosPatternKey    = "ddos:pattern"
	ddosAttackMarker  = "ddos:attack_active"
	attackPatternsKey = "ddos:attacks"

	suspiciousPrefix   = "suspicious:"
	suspiciousIndexKey = "suspicious_index"
	alertPrefix        = "security_alert:"
	alertIndexKey      = "security_alerts"
	ruleCooldownPrefix = "rule_cooldown:"
)

// indexTTL bounds how long an auxiliary index survives without new hits.
const indexTTL = 24 * time.Hour

func rateLimitKey(action, identifier string) string {
	return rateLimitPrefix + action + ":" + identifier
}

func rateLimitFamilyKey(family string) string {
	return rateLimitFamilyPrefix + family
}

func blockKey(identifier string) string {
	return blockPrefix + identifier
}

func blockHistoryKey(identifier string) string {
	return blockHistoryPrefix + identifier
}

func activitySeriesKey(series, identifier string) string {
	return activitySeriesPrefix + series + ":" + identifier
}

func ddosIPKey(ip string) string {
	return ddosIPPrefix + ip
}

func ddosUAKey(ip string) string {
	return ddosUAPrefix + ip
}

func suspiciousKey(identifier, activityType string) string {
	return suspiciousPrefix + identifier + ":" + activityType
}

func alertKey(id string) string {
	return alertPrefix + id
}

func ruleCooldownKey(ruleID, identifier string) string {
	return ruleCooldownPrefix + ruleID + ":" + identifier
}

// newToken builds a sorted-set member that stays unique for concurrent hits in the same millisecond.
func newToken(now time.Time) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString())
	}
	return fmt.Sprintf("%d-%s", now.UnixMilli(), id.String())
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// identifierFamily groups ip: identifiers by network (/24 for IPv4, /64 for IPv6).
// User identifiers have no family.
func identifierFamily(identifier string) (string, bool) {
	addr, ok := shared.IdentifierIP(identifier)
	if !ok {
		return "", false
	}
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return "", false
	}
	ip = ip.Unmap()
	bits := 24
	if ip.Is6() {
		bits = 64
	}
	prefix, err := ip.Prefix(bits)
	if err != nil {
		return "", false
	}
	return prefix.String(), true
}

func userAgentFingerprint(userAgent string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(userAgent)))
	return hex.EncodeToString(sum[:16])
}
