package cache

import (
	"strings"

	"serverstf/internal/domain/server"
)

// Redis key layout. Everything lives under one namespace prefix;
// addresses are canonicalised to "<ip>:<port>" and tags are used
// verbatim.
//
//	servers                   SET    all known addresses
//	servers/<addr>            HASH   name, map, application_id, players
//	servers/<addr>/tags       SET    tags applied to the server
//	servers/<addr>/interest   INT    monotonic interest counter
//	tags/<tag>                SET    addresses carrying the tag
//	interesting               LIST   interest queue items
//	channels/servers/<addr>   PUBSUB per-server notifications
//	channels/tags/<tag>       PUBSUB per-tag notifications
const keyPrefix = "serverstf/"

const (
	keyServers     = keyPrefix + "servers"
	keyInteresting = keyPrefix + "interesting"

	channelServerPrefix = keyPrefix + "channels/servers/"
	channelTagPrefix    = keyPrefix + "channels/tags/"
)

const (
	fieldName          = "name"
	fieldMap           = "map"
	fieldApplicationID = "application_id"
	fieldPlayers       = "players"
)

func keyServer(addr server.Address) string {
	return keyPrefix + "servers/" + addr.String()
}

func keyServerTags(addr server.Address) string {
	return keyServer(addr) + "/tags"
}

func keyServerInterest(addr server.Address) string {
	return keyServer(addr) + "/interest"
}

func keyTag(tag string) string {
	return keyPrefix + "tags/" + tag
}

func channelServer(addr server.Address) string {
	return channelServerPrefix + addr.String()
}

func channelTag(tag string) string {
	return channelTagPrefix + tag
}

// parseChannel recovers the event kind and subject from a pub/sub
// channel name. ok is false for channels outside the namespace.
func parseChannel(channel string) (kind EventKind, subject string, ok bool) {
	switch {
	case strings.HasPrefix(channel, channelServerPrefix):
		return EventServer, strings.TrimPrefix(channel, channelServerPrefix), true
	case strings.HasPrefix(channel, channelTagPrefix):
		return EventTag, strings.TrimPrefix(channel, channelTagPrefix), true
	default:
		return 0, "", false
	}
}
