package websocket

import (
	"encoding/json"
	"fmt"

	"serverstf/internal/domain/server"
)

// Message types accepted from and sent to clients.
const (
	typeSubscribe   = "subscribe"
	typeUnsubscribe = "unsubscribe"
	typeQuery       = "query"
	typeStatus      = "status"
	typeMatch       = "match"
	typeError       = "error"
)

// MessageError marks a malformed client message. It is reported back
// on the connection as an error message; the connection continues.
type MessageError struct {
	Reason string
}

// Error implements the error interface.
func (e *MessageError) Error() string {
	return "bad message: " + e.Reason
}

func messageErrorf(format string, args ...any) *MessageError {
	return &MessageError{Reason: fmt.Sprintf(format, args...)}
}

// envelope is the wire framing of every message: a type tag and a
// type-dependent entity.
type envelope struct {
	Type   string          `json:"type"`
	Entity json.RawMessage `json:"entity"`
}

// outbound is an envelope with a concrete entity, ready to send.
type outbound struct {
	Type   string `json:"type"`
	Entity any    `json:"entity"`
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, messageErrorf("malformed JSON: %v", err)
	}
	if env.Type == "" {
		return envelope{}, messageErrorf("missing message type")
	}
	if len(env.Entity) == 0 {
		return envelope{}, messageErrorf("missing message entity")
	}
	return env, nil
}

// addressEntity is the subscribe/unsubscribe payload. Pointer fields
// distinguish absent from zero.
type addressEntity struct {
	IP   *string `json:"ip"`
	Port *int    `json:"port"`
}

func decodeAddress(entity json.RawMessage) (server.Address, error) {
	var e addressEntity
	if err := json.Unmarshal(entity, &e); err != nil {
		return server.Address{}, messageErrorf("malformed address entity: %v", err)
	}
	if e.IP == nil || e.Port == nil {
		return server.Address{}, messageErrorf("address entity requires ip and port")
	}
	if *e.Port < 0 || *e.Port > 65535 {
		return server.Address{}, messageErrorf("port %d out of range", *e.Port)
	}
	addr, err := server.ParseAddress(fmt.Sprintf("%s:%d", *e.IP, *e.Port))
	if err != nil {
		return server.Address{}, messageErrorf("invalid address: %v", err)
	}
	return addr, nil
}

// queryEntity is the query payload. Absent tag lists are treated as
// empty.
type queryEntity struct {
	Include []string `json:"include"`
	Exclude []string `json:"exclude"`
}

func decodeQuery(entity json.RawMessage) (queryEntity, error) {
	var e queryEntity
	if err := json.Unmarshal(entity, &e); err != nil {
		return queryEntity{}, messageErrorf("malformed query entity: %v", err)
	}
	if e.Include == nil {
		e.Include = []string{}
	}
	if e.Exclude == nil {
		e.Exclude = []string{}
	}
	return e, nil
}

// statusEntity is the outgoing status payload. Unknown name and map
// degrade to empty strings; location fields stay null unless the
// lookup was conclusive.
type statusEntity struct {
	IP        string         `json:"ip"`
	Port      uint16         `json:"port"`
	Name      string         `json:"name"`
	Map       string         `json:"map"`
	Tags      []string       `json:"tags"`
	Players   server.Players `json:"players"`
	Country   *string        `json:"country"`
	Latitude  *float64       `json:"latitude"`
	Longitude *float64       `json:"longitude"`
}

func newStatusEntity(status server.Status, locator server.Locator) statusEntity {
	e := statusEntity{
		IP:      status.Address.IP().String(),
		Port:    status.Address.Port(),
		Tags:    status.Tags.List(),
		Players: status.Players,
	}
	if status.Name != nil {
		e.Name = *status.Name
	}
	if status.Map != nil {
		e.Map = *status.Map
	}
	if locator != nil {
		if loc, ok := locator.Locate(status.Address); ok {
			e.Country = &loc.Country
			e.Latitude = &loc.Latitude
			e.Longitude = &loc.Longitude
		}
	}
	return e
}

// matchEntity is the outgoing match payload.
type matchEntity struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
}

func newMatchEntity(addr server.Address) matchEntity {
	return matchEntity{IP: addr.IP().String(), Port: addr.Port()}
}
