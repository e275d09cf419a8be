package kafka

import "fmt"

// TopicPrefix namespaces every topic this service writes.
const TopicPrefix = "auth"

// Topic builds "<prefix>.<aggregate>.<action>", e.g. auth.user.registered.
func Topic(aggregate, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, aggregate, action)
}
