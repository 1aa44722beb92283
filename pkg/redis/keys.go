package redis

import (
	"fmt"
	"strings"
)

// Redis key patterns for the application
// Following the pattern: prefix:entity:id or prefix:entity:id:attribute

var keyPrefix = "wc"

// InitKeys sets the namespace prepended to every key. Empty keeps the default.
func InitKeys(prefix string) {
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		keyPrefix = prefix
	}
}

func key(format string, args ...interface{}) string {
	return keyPrefix + ":" + fmt.Sprintf(format, args...)
}

// User keys
func UserKey(userID string) string {
	return key("user:%s", userID)
}

func UserByTelegramKey(telegramUsername string) string {
	return key("user:telegram:%s", strings.ToLower(strings.TrimPrefix(telegramUsername, "@")))
}

func UsersIndexKey() string {
	return key("users:all")
}

// Session keys
func SessionKey(sessionID string) string {
	return key("session:%s", sessionID)
}

func UserSessionsKey(userID string) string {
	return key("user_sessions:%s", userID)
}

// Token blacklist, keyed by token ID
func TokenBlacklistKey(tokenID string) string {
	return key("token_blacklist:%s", tokenID)
}

// SessionRevokedKey holds the unix time before which a user's tokens are invalid
func SessionRevokedKey(userID string) string {
	return key("session_revoked:%s", userID)
}

// Account and progress keys
func AccountKey(userID string) string {
	return key("account:%s", userID)
}

func ProgressKey(userID string) string {
	return key("progress:%s", userID)
}

// Cycle keys
func CycleKey(cycleID string) string {
	return key("cycle:%s", cycleID)
}

func UserCyclesKey(userID string) string {
	return key("user_cycles:%s", userID)
}

// ActiveChanceKey holds the ID of the single active cycle on a user's chance slot
func ActiveChanceKey(userID string, chance int) string {
	return key("active_cycle:%s:%d", userID, chance)
}

func CyclesByStatusKey(status string) string {
	return key("cycles_by_status:%s", status)
}

func AllCyclesKey() string {
	return key("cycles:all")
}

// ActiveByEndKey indexes active cycle IDs by end date (unix ms)
func ActiveByEndKey() string {
	return key("cycles:active_by_end")
}

// Audit log
func AuditLogKey() string {
	return key("audit_log")
}

// Rate limiting keys
func RateLimitKey(identifier, action string) string {
	return key("rate_limit:%s:%s", action, identifier)
}

// Login lockout keys
func LoginAttemptsKey(telegramUsername string) string {
	return key("login_attempts:%s", strings.ToLower(telegramUsername))
}

func LoginLockKey(telegramUsername string) string {
	return key("login_lock:%s", strings.ToLower(telegramUsername))
}

// Whale market data keys
func CacheWhalePositionsKey(address string) string {
	return key("cache:whale_positions:%s", strings.ToLower(address))
}

func CacheWhaleAlertsKey(address string) string {
	return key("cache:whale_alerts:%s", strings.ToLower(address))
}

func WhaleSnapshotsKey(address string) string {
	return key("whale_snapshots:%s", strings.ToLower(address))
}

// Locks
func MaturityLockKey() string {
	return key("lock:maturity_worker")
}

// Pub/Sub channels

// UserEventsChannel carries cycle events for one user
func UserEventsChannel(userID string) string {
	return key("channel:user:%s", userID)
}

// UserEventsPattern matches every user events channel
func UserEventsPattern() string {
	return key("channel:user:*")
}

// UserIDFromChannel extracts the user ID from a UserEventsChannel name
func UserIDFromChannel(channel string) (string, bool) {
	prefix := key("channel:user:")
	if !strings.HasPrefix(channel, prefix) || len(channel) == len(prefix) {
		return "", false
	}
	return channel[len(prefix):], true
}
