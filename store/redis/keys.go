package redis

// Key prefixes for primary entity storage.
const (
	prefixEvent       = "notify:evt:"
	prefixWebhook     = "notify:wh:"
	prefixDeliveryLog = "notify:dlog:"
)

// Key prefixes for sorted set indexes, scored by creation time.
const (
	zEventOrg      = "notify:z:evt:org:" // + organization ID
	zWebhookOrg    = "notify:z:wh:org:"   // + organization ID
	zDeliveryLogWH = "notify:z:dlog:wh:" // + webhook ID
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
