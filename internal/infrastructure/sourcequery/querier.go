// Package sourcequery adapts the Source engine A2S query protocol to
// the domain snapshot types.
package sourcequery

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rumblefrog/go-a2s"

	"serverstf/internal/domain/query"
	"serverstf/internal/domain/server"
)

// QueryError wraps any transport or decoding failure of an A2S
// exchange. All such failures are transient from the caller's
// perspective: the server may simply be down or unreachable.
type QueryError struct {
	Address server.Address
	Err     error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Address, e.Err)
}

// Unwrap supports errors.Is and errors.As.
func (e *QueryError) Unwrap() error { return e.Err }

// Querier issues A2S_INFO, A2S_PLAYER and A2S_RULES requests over
// UDP. Queriers are stateless and safe for concurrent use; each query
// opens its own socket.
type Querier struct {
	timeout time.Duration
}

// New creates a querier. A non-positive timeout falls back to 5s, the
// conventional ceiling for a full A2S exchange.
func New(timeout time.Duration) *Querier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Querier{timeout: timeout}
}

// Query performs the three A2S exchanges against one server. All
// failures, including partial ones after a successful INFO reply,
// surface as a QueryError.
func (q *Querier) Query(addr server.Address) (*query.Info, *query.PlayerList, *query.Rules, error) {
	client, err := a2s.NewClient(addr.String(), a2s.TimeoutOption(q.timeout))
	if err != nil {
		return nil, nil, nil, &QueryError{Address: addr, Err: err}
	}
	defer client.Close()

	rawInfo, err := client.QueryInfo()
	if err != nil {
		return nil, nil, nil, &QueryError{Address: addr, Err: err}
	}
	rawPlayers, err := client.QueryPlayer()
	if err != nil {
		return nil, nil, nil, &QueryError{Address: addr, Err: err}
	}
	rawRules, err := client.QueryRules()
	if err != nil {
		return nil, nil, nil, &QueryError{Address: addr, Err: err}
	}

	return convertInfo(rawInfo), convertPlayers(rawPlayers), convertRules(rawRules), nil
}

func convertInfo(raw *a2s.ServerInfo) *query.Info {
	info := &query.Info{
		ServerName:  raw.Name,
		Map:         raw.Map,
		AppID:       int64(raw.ID),
		PlayerCount: int(raw.Players),
		MaxPlayers:  int(raw.MaxPlayers),
		BotCount:    int(raw.Bots),
		Extra:       map[string]string{},
	}
	if raw.Folder != "" {
		info.Extra["folder"] = raw.Folder
	}
	if raw.Game != "" {
		info.Extra["game"] = raw.Game
	}
	if raw.Version != "" {
		info.Extra["version"] = raw.Version
	}
	if raw.ExtendedServerInfo != nil {
		// Application IDs above 16 bits only appear in the extended
		// reply.
		if raw.ExtendedServerInfo.GameID != 0 {
			info.AppID = int64(raw.ExtendedServerInfo.GameID)
		}
		if raw.ExtendedServerInfo.Keywords != "" {
			info.Extra["keywords"] = raw.ExtendedServerInfo.Keywords
		}
		if raw.ExtendedServerInfo.Port != 0 {
			info.Extra["port"] = strconv.Itoa(int(raw.ExtendedServerInfo.Port))
		}
	}
	return info
}

func convertPlayers(raw *a2s.PlayerInfo) *query.PlayerList {
	list := &query.PlayerList{}
	if raw == nil {
		return list
	}
	for _, p := range raw.Players {
		if p == nil {
			continue
		}
		list.Players = append(list.Players, query.Player{
			Name:     p.Name,
			Score:    int(p.Score),
			Duration: time.Duration(float64(p.Duration) * float64(time.Second)),
		})
	}
	return list
}

func convertRules(raw *a2s.RulesInfo) *query.Rules {
	rules := &query.Rules{Rules: map[string]string{}}
	if raw == nil {
		return rules
	}
	for name, value := range raw.Rules {
		rules.Rules[name] = value
	}
	return rules
}
