package rediskey

import "fmt"

// Check-in keys (global convention across services)
const (
	CheckinDedupPrefix = "checkin:dedup"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildCheckinDedupKey returns "checkin:dedup:{phone}:{unixSeconds}"
func BuildCheckinDedupKey(phone string, unixSeconds int64) string {
	return NamespaceKey(CheckinDedupPrefix, fmt.Sprintf("%s:%d", phone, unixSeconds))
}
