// Package rules holds the builtin tag rule set: games, game modes and
// server population.
package rules

import (
	"math"
	"strings"

	"serverstf/internal/domain/query"
	"serverstf/internal/domain/server"
	"serverstf/internal/domain/tagging"
)

const (
	appIDTF2  = 440
	appIDCSGO = 730
)

// Default returns the builtin rule set.
func Default() []tagging.Rule {
	all := games()
	all = append(all, modes()...)
	all = append(all, population()...)
	return all
}

func games() []tagging.Rule {
	return []tagging.Rule{
		{
			Tag: "tf2",
			Predicate: func(info *query.Info, _ *query.PlayerList, _ *query.Rules, _ server.Tags) bool {
				return info.AppID == appIDTF2
			},
		},
		{
			Tag: "csgo",
			Predicate: func(info *query.Info, _ *query.PlayerList, _ *query.Rules, _ server.Tags) bool {
				return info.AppID == appIDCSGO
			},
		},
	}
}

// gamemodeRule tags TF2 servers whose named gamemode cvar is set.
func gamemodeRule(tag string, cvar string) tagging.Rule {
	return tagging.Rule{
		Tag:      tag,
		Requires: []string{"tf2"},
		Predicate: func(_ *query.Info, _ *query.PlayerList, rules *query.Rules, applied server.Tags) bool {
			return applied.Has("tf2") && rules.Value(cvar) == "1"
		},
	}
}

// mapPrefixRule tags TF2 servers by map name prefix.
func mapPrefixRule(tag string, prefix string, requires ...string) tagging.Rule {
	requires = append([]string{"tf2"}, requires...)
	return tagging.Rule{
		Tag:      tag,
		Requires: requires,
		Predicate: func(info *query.Info, _ *query.PlayerList, _ *query.Rules, applied server.Tags) bool {
			for _, dep := range requires {
				if !applied.Has(dep) {
					return false
				}
			}
			return strings.HasPrefix(strings.ToLower(info.Map), prefix)
		},
	}
}

func modes() []tagging.Rule {
	return []tagging.Rule{
		gamemodeRule("mode:arena", "tf_gamemode_arena"),
		gamemodeRule("mode:cp", "tf_gamemode_cp"),
		gamemodeRule("mode:ctf", "tf_gamemode_ctf"),
		gamemodeRule("mode:mvm", "tf_gamemode_mvm"),
		gamemodeRule("mode:payload", "tf_gamemode_payload"),
		gamemodeRule("mode:sd", "tf_gamemode_sd"),
		gamemodeRule("mode:rd", "tf_gamemode_rd"),
		gamemodeRule("mode:medieval", "tf_medieval"),
		mapPrefixRule("mode:koth", "koth_", "mode:cp"),
		mapPrefixRule("mode:sb", "sb_", "mode:arena"),
		mapPrefixRule("mode:mge", "mge_"),
	}
}

func population() []tagging.Rule {
	humans := func(info *query.Info) int {
		return info.PlayerCount - info.BotCount
	}
	return []tagging.Rule{
		{
			// Player count can exceed max_players on servers with
			// reserved slots.
			Tag: "population:full",
			Predicate: func(info *query.Info, _ *query.PlayerList, _ *query.Rules, _ server.Tags) bool {
				return humans(info) >= info.MaxPlayers
			},
		},
		{
			Tag: "population:empty",
			Predicate: func(info *query.Info, _ *query.PlayerList, _ *query.Rules, _ server.Tags) bool {
				return humans(info) == 0
			},
		},
		{
			// At least 60% of player slots are filled.
			Tag: "population:active",
			Predicate: func(info *query.Info, _ *query.PlayerList, _ *query.Rules, _ server.Tags) bool {
				return humans(info) >= int(math.Floor(float64(info.MaxPlayers)*0.6))
			},
		},
	}
}
