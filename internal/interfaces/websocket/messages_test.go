package websocket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverstf/internal/domain/server"
)

// fixedLocator resolves every address to one location.
type fixedLocator struct {
	location server.Location
	ok       bool
}

func (l fixedLocator) Locate(server.Address) (server.Location, bool) {
	return l.location, l.ok
}

func TestDecodeAddress(t *testing.T) {
	tests := []struct {
		name    string
		entity  string
		want    string
		wantErr bool
	}{
		{
			name:   "valid",
			entity: `{"ip": "192.0.2.1", "port": 27015}`,
			want:   "192.0.2.1:27015",
		},
		{
			name:    "missing ip",
			entity:  `{"port": 27015}`,
			wantErr: true,
		},
		{
			name:    "missing port",
			entity:  `{"ip": "192.0.2.1"}`,
			wantErr: true,
		},
		{
			name:    "port zero",
			entity:  `{"ip": "192.0.2.1", "port": 0}`,
			wantErr: true,
		},
		{
			name:    "port too large",
			entity:  `{"ip": "192.0.2.1", "port": 65536}`,
			wantErr: true,
		},
		{
			name:    "hostname instead of ip",
			entity:  `{"ip": "example.com", "port": 27015}`,
			wantErr: true,
		},
		{
			name:    "ipv6",
			entity:  `{"ip": "2001:db8::1", "port": 27015}`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := decodeAddress(json.RawMessage(tt.entity))
			if tt.wantErr {
				var msgErr *MessageError
				assert.ErrorAs(t, err, &msgErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, addr.String())
		})
	}
}

func TestDecodeQueryDefaults(t *testing.T) {
	q, err := decodeQuery(json.RawMessage(`{"include": ["tf2"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"tf2"}, q.Include)
	assert.NotNil(t, q.Exclude)
	assert.Empty(t, q.Exclude)
}

func TestStatusEntityWithLocation(t *testing.T) {
	addr := server.MustParseAddress("192.0.2.1:27015")
	name := "Example"
	status := server.Status{
		Address: addr,
		Name:    &name,
		Tags:    server.NewTags("tf2"),
	}

	locator := fixedLocator{
		location: server.Location{Country: "DE", Latitude: 52.52, Longitude: 13.405},
		ok:       true,
	}
	entity := newStatusEntity(status, locator)
	data, err := json.Marshal(entity)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"ip": "192.0.2.1",
		"port": 27015,
		"name": "Example",
		"map": "",
		"tags": ["tf2"],
		"players": {"current": 0, "max": 0, "bots": 0, "scores": []},
		"country": "DE",
		"latitude": 52.52,
		"longitude": 13.405
	}`, string(data))
}

func TestStatusEntityInconclusiveLocation(t *testing.T) {
	addr := server.MustParseAddress("192.0.2.1:27015")
	entity := newStatusEntity(server.Status{Address: addr, Tags: server.NewTags()}, fixedLocator{})

	assert.Nil(t, entity.Country)
	assert.Nil(t, entity.Latitude)
	assert.Nil(t, entity.Longitude)
}
