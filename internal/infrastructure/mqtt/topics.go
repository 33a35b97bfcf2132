package mqtt

import "fmt"

// DefaultTopicPrefix is the shadow topic namespace used when none is
// configured.
const DefaultTopicPrefix = "shadowbridge/things"

// TopicPrefixSystem is the base for bridge system topics.
const TopicPrefixSystem = "shadowbridge/system"

// Topics builds shadow topic names for one namespace prefix. Using these
// helpers keeps topic naming consistent between the bridge and the remote
// state service.
//
//	topics := mqtt.NewTopics("", "cinema")
//	topics.ShadowUpdate() // "shadowbridge/things/cinema/shadow/update"
type Topics struct {
	prefix string
	thing  string
}

// NewTopics creates a topic builder for one thing. An empty prefix selects
// DefaultTopicPrefix.
func NewTopics(prefix, thing string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix, thing: thing}
}

// ShadowUpdate returns the topic reported-state fragments are published to.
//
// Example: shadowbridge/things/cinema/shadow/update
func (t Topics) ShadowUpdate() string {
	return fmt.Sprintf("%s/%s/shadow/update", t.prefix, t.thing)
}

// ShadowDelta returns the topic the service pushes desired-state deltas on.
//
// Example: shadowbridge/things/cinema/shadow/delta
func (t Topics) ShadowDelta() string {
	return fmt.Sprintf("%s/%s/shadow/delta", t.prefix, t.thing)
}

// ShadowGet returns the topic used to request the full shadow document.
//
// Example: shadowbridge/things/cinema/shadow/get
func (t Topics) ShadowGet() string {
	return fmt.Sprintf("%s/%s/shadow/get", t.prefix, t.thing)
}

// ShadowGetAccepted returns the topic the full document arrives on after a
// get request.
//
// Example: shadowbridge/things/cinema/shadow/get/accepted
func (t Topics) ShadowGetAccepted() string {
	return fmt.Sprintf("%s/%s/shadow/get/accepted", t.prefix, t.thing)
}

// SystemStatus returns the bridge online/offline status topic.
//
// Example: shadowbridge/system/status
func SystemStatus() string {
	return TopicPrefixSystem + "/status"
}
