package federation

import "time"

// Cache keys shared with existing deployments. A peer's fetched records are
// cached under the peer URI itself.
const (
	typeKeyPrefix = "registry_add_"

	PluginKey = typeKeyPrefix + "plugin"
	ThemeKey  = typeKeyPrefix + "theme"
)

// DefaultPeerTTL is how long a peer's fetched records stay fresh.
const DefaultPeerTTL = 72 * time.Hour

// TypeKey returns the key a filtered set for typ is republished under.
func TypeKey(typ string) string {
	return typeKeyPrefix + typ
}
