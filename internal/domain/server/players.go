package server

import (
	"encoding/json"
	"fmt"
	"time"
)

// Score is a single entry in a server's player roster.
type Score struct {
	Name     string
	Score    int
	Duration time.Duration
}

// Players is a snapshot of a server's player roster. The length of
// Scores may diverge from Current: players who have connected but not
// yet published a name are counted but carry no roster entry.
type Players struct {
	Current int
	Max     int
	Bots    int
	Scores  []Score
}

// Equal reports whether two snapshots describe the same roster.
func (p Players) Equal(other Players) bool {
	if p.Current != other.Current || p.Max != other.Max || p.Bots != other.Bots {
		return false
	}
	if len(p.Scores) != len(other.Scores) {
		return false
	}
	for i, s := range p.Scores {
		if s != other.Scores[i] {
			return false
		}
	}
	return true
}

// playersJSON is the wire form of Players. Scores are encoded as
// three-element arrays [name, score, duration-seconds].
type playersJSON struct {
	Current int               `json:"current"`
	Max     int               `json:"max"`
	Bots    int               `json:"bots"`
	Scores  []json.RawMessage `json:"scores"`
}

// MarshalJSON implements json.Marshaler.
func (p Players) MarshalJSON() ([]byte, error) {
	out := playersJSON{
		Current: p.Current,
		Max:     p.Max,
		Bots:    p.Bots,
		Scores:  make([]json.RawMessage, 0, len(p.Scores)),
	}
	for _, s := range p.Scores {
		entry, err := json.Marshal([3]any{s.Name, s.Score, s.Duration.Seconds()})
		if err != nil {
			return nil, err
		}
		out.Scores = append(out.Scores, entry)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Players) UnmarshalJSON(data []byte) error {
	var in playersJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	scores := make([]Score, 0, len(in.Scores))
	for _, raw := range in.Scores {
		var entry []json.RawMessage
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		if len(entry) != 3 {
			return fmt.Errorf("score entry must have 3 elements, got %d", len(entry))
		}
		var s Score
		if err := json.Unmarshal(entry[0], &s.Name); err != nil {
			return fmt.Errorf("score name: %w", err)
		}
		if err := json.Unmarshal(entry[1], &s.Score); err != nil {
			return fmt.Errorf("score value: %w", err)
		}
		var seconds float64
		if err := json.Unmarshal(entry[2], &seconds); err != nil {
			return fmt.Errorf("score duration: %w", err)
		}
		s.Duration = time.Duration(seconds * float64(time.Second))
		scores = append(scores, s)
	}
	p.Current = in.Current
	p.Max = in.Max
	p.Bots = in.Bots
	if len(scores) == 0 {
		p.Scores = nil
	} else {
		p.Scores = scores
	}
	return nil
}
