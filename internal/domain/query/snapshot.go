// Package query holds the snapshots produced by one round of A2S
// queries against a game server. The wire protocol returns loosely
// typed maps; these structs pin down the fields the rest of the
// system consumes and keep everything else in an overflow map so tag
// predicates stay pure.
package query

import "time"

// Info is the INFO response snapshot.
type Info struct {
	ServerName  string
	Map         string
	AppID       int64
	PlayerCount int
	MaxPlayers  int
	BotCount    int

	// Extra carries response fields with no dedicated accessor, for
	// example the game folder or server version.
	Extra map[string]string
}

// Field returns a named overflow field. Unknown fields report ok as
// false rather than failing.
func (i *Info) Field(name string) (value string, ok bool) {
	if i == nil || i.Extra == nil {
		return "", false
	}
	value, ok = i.Extra[name]
	return value, ok
}

// Player is one entry of the PLAYERS response.
type Player struct {
	Name     string
	Score    int
	Duration time.Duration
}

// PlayerList is the PLAYERS response snapshot.
type PlayerList struct {
	Players []Player
}

// Rules is the RULES response snapshot: the server's configuration
// variables as a string map, e.g. "tf_gamemode_ctf" -> "1".
type Rules struct {
	Rules map[string]string
}

// Value returns a rule value, or the empty string when the rule is
// missing.
func (r *Rules) Value(name string) string {
	if r == nil {
		return ""
	}
	return r.Rules[name]
}
