package rediskey

import "fmt"

const (
	TenantPrefix         = "tenant"
	MessagingStatePrefix = "messaging:state"
	DeliveryLockPrefix   = "delivery:lock"
	SequencePrefix       = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildTenantIDKey returns "tenant:{tenantID}"
func BuildTenantIDKey(tenantID string) string {
	return NamespaceKey(TenantPrefix, tenantID)
}

// BuildMessagingStateKey returns "messaging:state:{session}"
func BuildMessagingStateKey(session string) string {
	return NamespaceKey(MessagingStatePrefix, session)
}

// BuildDeliveryLockKey returns "delivery:lock:{tenantID}:{assignmentID}"
func BuildDeliveryLockKey(tenantID, assignmentID string) string {
	return NamespaceKey(DeliveryLockPrefix, tenantID+":"+assignmentID)
}
