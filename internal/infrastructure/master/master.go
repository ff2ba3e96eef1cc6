// Package master speaks the Steam master-server query protocol: UDP
// requests carrying a region code, a cursor address and a filter
// string, answered with batches of 6-byte packed addresses. The
// protocol has no Go library, so the wire format is implemented here.
package master

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"time"

	"serverstf/internal/domain/server"
	"serverstf/internal/shared/logger"
)

// Region is a master-server region code.
type Region byte

const (
	RegionNAEast     Region = 0x00
	RegionNAWest     Region = 0x01
	RegionSA         Region = 0x02
	RegionEU         Region = 0x03
	RegionAS         Region = 0x04
	RegionOC         Region = 0x05
	RegionMiddleEast Region = 0x06
	RegionAF         Region = 0x07
	RegionRest       Region = 0xFF
)

// regionNames maps user-facing region names to the codes they cover.
// Compound names expand to multiple codes.
var regionNames = map[string][]Region{
	"na-east": {RegionNAEast},
	"na-west": {RegionNAWest},
	"na":      {RegionNAEast, RegionNAWest},
	"sa":      {RegionSA},
	"eu":      {RegionEU},
	"as":      {RegionAS},
	"oc":      {RegionOC},
	"me":      {RegionMiddleEast},
	"af":      {RegionAF},
	"rest":    {RegionRest},
	"all": {
		RegionNAEast, RegionNAWest, RegionSA, RegionEU,
		RegionAS, RegionOC, RegionMiddleEast, RegionAF, RegionRest,
	},
}

// ParseRegions expands region names into a deduplicated code set.
func ParseRegions(names []string) ([]Region, error) {
	seen := make(map[Region]struct{})
	for _, name := range names {
		codes, ok := regionNames[name]
		if !ok {
			return nil, fmt.Errorf("unknown region %q", name)
		}
		for _, code := range codes {
			seen[code] = struct{}{}
		}
	}
	regions := make([]Region, 0, len(seen))
	for code := range seen {
		regions = append(regions, code)
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i] < regions[j] })
	return regions, nil
}

// RegionNames lists the accepted region names, sorted.
func RegionNames() []string {
	names := make([]string, 0, len(regionNames))
	for name := range regionNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

const (
	requestHeader = 0x31
	gameFilter    = `\gamedir\tf`
)

var replyHeader = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x66, 0x0A}

// zeroCursor is the initial request cursor and the end-of-listing
// marker in replies.
var zeroCursor = "0.0.0.0:0"

// encodeRequest builds one request packet for a region and cursor.
func encodeRequest(region Region, cursor string) []byte {
	packet := make([]byte, 0, 3+len(cursor)+len(gameFilter)+2)
	packet = append(packet, requestHeader, byte(region))
	packet = append(packet, cursor...)
	packet = append(packet, 0x00)
	packet = append(packet, gameFilter...)
	packet = append(packet, 0x00)
	return packet
}

// decodeReply unpacks one reply packet into addresses. done reports
// that the zero terminator was seen and the listing is complete.
func decodeReply(packet []byte) (addrs []server.Address, done bool, err error) {
	if len(packet) < len(replyHeader) {
		return nil, false, fmt.Errorf("reply too short: %d bytes", len(packet))
	}
	for i, b := range replyHeader {
		if packet[i] != b {
			return nil, false, fmt.Errorf("malformed reply header % x", packet[:len(replyHeader)])
		}
	}
	body := packet[len(replyHeader):]
	if len(body)%6 != 0 {
		return nil, false, fmt.Errorf("reply body is %d bytes, not a multiple of 6", len(body))
	}
	for i := 0; i < len(body); i += 6 {
		ip := netip.AddrFrom4([4]byte(body[i : i+4]))
		port := binary.BigEndian.Uint16(body[i+4 : i+6])
		if ip.IsUnspecified() && port == 0 {
			return addrs, true, nil
		}
		addr, err := server.NewAddress(ip, port)
		if err != nil {
			return nil, false, fmt.Errorf("reply entry %d: %w", i/6, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, false, nil
}

// Client queries one master server.
type Client struct {
	master  string
	timeout time.Duration
	log     logger.Interface
}

// NewClient creates a client for the master server at the given
// host:port. timeout bounds each request/reply round trip.
func NewClient(master string, timeout time.Duration, log logger.Interface) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		master:  master,
		timeout: timeout,
		log:     log.Named("master"),
	}
}

// Servers walks the complete listing for a region, invoking fn for
// each address as reply batches arrive. A timed-out round trip ends
// the walk without error: the listing so far is simply what the
// master yielded. fn returning an error stops the walk.
func (c *Client) Servers(ctx context.Context, region Region, fn func(server.Address) error) error {
	conn, err := net.Dial("udp", c.master)
	if err != nil {
		return fmt.Errorf("failed to reach master server %s: %w", c.master, err)
	}
	defer conn.Close()

	buf := make([]byte, 64*1024)
	cursor := zeroCursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("failed to set socket deadline: %w", err)
		}
		if _, err := conn.Write(encodeRequest(region, cursor)); err != nil {
			return fmt.Errorf("failed to send master server request: %w", err)
		}
		n, err := conn.Read(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				c.log.Warnw("master server timed out",
					"master", c.master,
					"region", fmt.Sprintf("0x%02x", byte(region)),
					"cursor", cursor,
				)
				return nil
			}
			return fmt.Errorf("failed to read master server reply: %w", err)
		}

		addrs, done, err := decodeReply(buf[:n])
		if err != nil {
			return fmt.Errorf("bad master server reply: %w", err)
		}
		for _, addr := range addrs {
			if err := fn(addr); err != nil {
				return err
			}
		}
		if done {
			return nil
		}
		if len(addrs) == 0 {
			// An empty, unterminated reply cannot advance the cursor.
			return nil
		}
		cursor = addrs[len(addrs)-1].String()
	}
}
