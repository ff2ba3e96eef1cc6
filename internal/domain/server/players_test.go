package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayersJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		players Players
	}{
		{
			name:    "empty roster",
			players: Players{},
		},
		{
			name:    "counts without scores",
			players: Players{Current: 3, Max: 24, Bots: 1},
		},
		{
			name: "full roster",
			players: Players{
				Current: 2,
				Max:     32,
				Bots:    0,
				Scores: []Score{
					{Name: "alyx", Score: 17, Duration: 90 * time.Second},
					{Name: "barney", Score: -2, Duration: 1500 * time.Millisecond},
				},
			},
		},
		{
			name: "roster shorter than current",
			players: Players{
				Current: 5,
				Max:     24,
				Scores:  []Score{{Name: "gman", Score: 0, Duration: time.Minute}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.players)
			require.NoError(t, err)

			var decoded Players
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.True(t, tt.players.Equal(decoded), "round trip mismatch: %+v != %+v", tt.players, decoded)
		})
	}
}

func TestPlayersJSONShape(t *testing.T) {
	p := Players{
		Current: 1,
		Max:     16,
		Bots:    0,
		Scores:  []Score{{Name: "chell", Score: 4, Duration: 30 * time.Second}},
	}

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"current":1,"max":16,"bots":0,"scores":[["chell",4,30]]}`, string(data))
}

func TestPlayersUnmarshalRejectsMalformedScores(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "wrong arity", input: `{"current":0,"max":0,"bots":0,"scores":[["a",1]]}`},
		{name: "wrong name type", input: `{"current":0,"max":0,"bots":0,"scores":[[1,2,3]]}`},
		{name: "not an array", input: `{"current":0,"max":0,"bots":0,"scores":[{"name":"a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Players
			assert.Error(t, json.Unmarshal([]byte(tt.input), &p))
		})
	}
}

func TestTagsSetOperations(t *testing.T) {
	tags := NewTags("tf2", "mode:cp")

	assert.True(t, tags.Has("tf2"))
	assert.False(t, tags.Has("csgo"))
	assert.True(t, tags.ContainsAll(NewTags("tf2")))
	assert.False(t, tags.ContainsAll(NewTags("tf2", "mode:koth")))
	assert.True(t, tags.Disjoint(NewTags("csgo")))
	assert.False(t, tags.Disjoint(NewTags("mode:cp")))
	assert.True(t, tags.ContainsAll(NewTags()))
	assert.Equal(t, []string{"mode:cp", "tf2"}, tags.List())
}
