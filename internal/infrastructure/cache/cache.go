// Package cache provides the Redis-backed authoritative store for
// server statuses: the status hashes, the tag reverse-indexes, the
// per-server interest counters and the interest queue, plus change
// notifications over pub/sub.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"serverstf/internal/domain/server"
	"serverstf/internal/shared/logger"
)

// ErrEmptyQueue is returned by Interesting when the interest queue
// holds no items. Blocking and retrying is caller policy.
var ErrEmptyQueue = errors.New("interest queue is empty")

// UsageError marks a programming error in cache usage, e.g. popping
// the interest queue twice without settling the active item.
type UsageError struct {
	Reason string
}

// Error implements the error interface.
func (e *UsageError) Error() string {
	return "cache misuse: " + e.Reason
}

// queueItem is one interest queue entry: the interest level at
// enqueue time and the enqueued address. Encoded on the wire as a
// two-element JSON array.
type queueItem struct {
	Interest int64
	Address  server.Address
}

func (i queueItem) encode() ([]byte, error) {
	return json.Marshal([2]any{i.Interest, i.Address.String()})
}

func decodeQueueItem(data []byte) (queueItem, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return queueItem{}, fmt.Errorf("queue item is not a JSON array: %w", err)
	}
	if len(parts) != 2 {
		return queueItem{}, fmt.Errorf("queue item must have 2 elements, got %d", len(parts))
	}
	var item queueItem
	if err := json.Unmarshal(parts[0], &item.Interest); err != nil {
		return queueItem{}, fmt.Errorf("queue item interest: %w", err)
	}
	var raw string
	if err := json.Unmarshal(parts[1], &raw); err != nil {
		return queueItem{}, fmt.Errorf("queue item address: %w", err)
	}
	addr, err := server.ParseAddress(raw)
	if err != nil {
		return queueItem{}, fmt.Errorf("queue item address: %w", err)
	}
	item.Address = addr
	return item, nil
}

// Cache is a handle onto the store. Handles are cheap; concurrent
// workers should each hold their own because the active interest
// queue item is per-handle state. The underlying client is shared.
type Cache struct {
	client *redis.Client
	log    logger.Interface

	// active is the interest queue item popped by Interesting and not
	// yet settled by UpdateInterestQueue.
	active *queueItem
}

// New creates a cache handle over an existing Redis client.
func New(client *redis.Client, log logger.Interface) *Cache {
	return &Cache{
		client: client,
		log:    log.Named("cache"),
	}
}

// Handle returns a new cache handle sharing this handle's client.
func (c *Cache) Handle() *Cache {
	return &Cache{client: c.client, log: c.log}
}

// Ensure adds the address to the authoritative server set. It returns
// true if the address was not previously known. Idempotent.
func (c *Cache) Ensure(ctx context.Context, addr server.Address) (bool, error) {
	added, err := c.client.SAdd(ctx, keyServers, addr.String()).Result()
	if err != nil {
		return false, fmt.Errorf("failed to ensure %s: %w", addr, err)
	}
	return added == 1, nil
}

// Get reconstructs the status of a server from the hash, tag set and
// interest counter in one atomic read. Unknown addresses yield a
// status with all-nil fields, empty tags and zero interest; a
// malformed players field is logged and degraded to an empty roster.
func (c *Cache) Get(ctx context.Context, addr server.Address) (server.Status, error) {
	var (
		hashCmd     *redis.MapStringStringCmd
		tagsCmd     *redis.StringSliceCmd
		interestCmd *redis.StringCmd
	)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hashCmd = pipe.HGetAll(ctx, keyServer(addr))
		tagsCmd = pipe.SMembers(ctx, keyServerTags(addr))
		interestCmd = pipe.Get(ctx, keyServerInterest(addr))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return server.Status{}, fmt.Errorf("failed to get %s: %w", addr, err)
	}

	status := server.Status{Address: addr, Tags: server.NewTags()}

	fields := hashCmd.Val()
	if v, ok := fields[fieldName]; ok {
		status.Name = &v
	}
	if v, ok := fields[fieldMap]; ok {
		status.Map = &v
	}
	if v, ok := fields[fieldApplicationID]; ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.log.Warnw("malformed application_id field",
				"address", addr.String(),
				"value", v,
			)
		} else {
			status.ApplicationID = &id
		}
	}
	if v, ok := fields[fieldPlayers]; ok {
		if err := json.Unmarshal([]byte(v), &status.Players); err != nil {
			c.log.Warnw("malformed players field",
				"address", addr.String(),
				"error", err,
			)
			status.Players = server.Players{}
		}
	}

	for _, tag := range tagsCmd.Val() {
		status.Tags.Add(tag)
	}

	if raw, err := interestCmd.Result(); err == nil {
		interest, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.log.Warnw("malformed interest counter",
				"address", addr.String(),
				"value", raw,
			)
		} else {
			status.Interest = interest
		}
	}

	return status, nil
}

// Set overwrites a server's status and reconciles the tag
// reverse-indexes. The status hash, tag set and new-tag index entries
// commit in one transaction; dropped-tag index cleanup runs after and
// is idempotent. One notification is published for the server and one
// per newly applied tag. The Interest field of the input is ignored:
// interest is owned by Subscribe.
func (c *Cache) Set(ctx context.Context, status server.Status) error {
	addr := status.Address
	addrStr := addr.String()

	current, err := c.client.SMembers(ctx, keyServerTags(addr)).Result()
	if err != nil {
		return fmt.Errorf("failed to read current tags for %s: %w", addr, err)
	}
	currentTags := server.NewTags(current...)

	var added, dropped []string
	for tag := range status.Tags {
		if !currentTags.Has(tag) {
			added = append(added, tag)
		}
	}
	for tag := range currentTags {
		if !status.Tags.Has(tag) {
			dropped = append(dropped, tag)
		}
	}

	fields, err := statusFields(status)
	if err != nil {
		return fmt.Errorf("failed to encode status for %s: %w", addr, err)
	}

	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, keyServers, addrStr)
		pipe.Del(ctx, keyServer(addr))
		if len(fields) > 0 {
			pipe.HSet(ctx, keyServer(addr), fields)
		}
		pipe.Del(ctx, keyServerTags(addr))
		if len(status.Tags) > 0 {
			pipe.SAdd(ctx, keyServerTags(addr), toMembers(status.Tags.List())...)
		}
		for _, tag := range added {
			pipe.SAdd(ctx, keyTag(tag), addrStr)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", addr, err)
	}

	// Dropped-tag cleanup happens outside the transaction; a reader
	// may briefly observe the address in a stale reverse-index.
	for _, tag := range dropped {
		if err := c.client.SRem(ctx, keyTag(tag), addrStr).Err(); err != nil {
			return fmt.Errorf("failed to clean up tag index %q for %s: %w", tag, addr, err)
		}
	}

	if err := c.client.Publish(ctx, channelServer(addr), addrStr).Err(); err != nil {
		return fmt.Errorf("failed to publish server notification for %s: %w", addr, err)
	}
	for _, tag := range added {
		if err := c.client.Publish(ctx, channelTag(tag), addrStr).Err(); err != nil {
			return fmt.Errorf("failed to publish tag notification %q for %s: %w", tag, addr, err)
		}
	}

	c.log.Debugw("status committed",
		"address", addrStr,
		"tags", status.Tags.List(),
		"tags_added", added,
		"tags_dropped", dropped,
	)
	return nil
}

func statusFields(status server.Status) (map[string]string, error) {
	fields := make(map[string]string, 4)
	if status.Name != nil {
		fields[fieldName] = *status.Name
	}
	if status.Map != nil {
		fields[fieldMap] = *status.Map
	}
	if status.ApplicationID != nil {
		fields[fieldApplicationID] = strconv.FormatInt(*status.ApplicationID, 10)
	}
	players, err := json.Marshal(status.Players)
	if err != nil {
		return nil, err
	}
	fields[fieldPlayers] = string(players)
	return fields, nil
}

func toMembers(values []string) []any {
	members := make([]any, len(values))
	for i, v := range values {
		members[i] = v
	}
	return members
}

// Subscribe records one unit of client interest in an address: the
// interest counter is incremented atomically and one queue item
// carrying the new value is pushed. The INCR happens server-side so
// concurrent subscribers never observe a stale counter.
func (c *Cache) Subscribe(ctx context.Context, addr server.Address) error {
	interest, err := c.client.Incr(ctx, keyServerInterest(addr)).Result()
	if err != nil {
		return fmt.Errorf("failed to increment interest for %s: %w", addr, err)
	}
	item := queueItem{Interest: interest, Address: addr}
	data, err := item.encode()
	if err != nil {
		return fmt.Errorf("failed to encode queue item for %s: %w", addr, err)
	}
	if err := c.client.LPush(ctx, keyInteresting, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", addr, err)
	}
	c.log.Debugw("interest recorded", "address", addr.String(), "interest", interest)
	return nil
}

// Interesting pops the head of the interest queue and marks it active
// on this handle. ErrEmptyQueue is returned when the queue is empty.
// Every successful pop must be settled with UpdateInterestQueue
// before the next call; anything else is a UsageError.
func (c *Cache) Interesting(ctx context.Context) (server.Address, error) {
	if c.active != nil {
		return server.Address{}, &UsageError{
			Reason: "Interesting called with an unsettled active item",
		}
	}
	data, err := c.client.RPop(ctx, keyInteresting).Bytes()
	if errors.Is(err, redis.Nil) {
		return server.Address{}, ErrEmptyQueue
	}
	if err != nil {
		return server.Address{}, fmt.Errorf("failed to pop interest queue: %w", err)
	}
	item, err := decodeQueueItem(data)
	if err != nil {
		return server.Address{}, fmt.Errorf("failed to decode interest queue item: %w", err)
	}
	c.active = &item
	return item.Address, nil
}

// UpdateInterestQueue settles the active item popped by Interesting:
// if the address's current interest is at least the level recorded at
// enqueue the item is pushed back, otherwise it is discarded. It
// returns whether the item was re-enqueued.
func (c *Cache) UpdateInterestQueue(ctx context.Context) (bool, error) {
	if c.active == nil {
		return false, &UsageError{
			Reason: "UpdateInterestQueue called without an active item",
		}
	}
	item := *c.active
	c.active = nil

	var current int64
	raw, err := c.client.Get(ctx, keyServerInterest(item.Address)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		current = 0
	case err != nil:
		// Settling failed; the item stays active so the caller can
		// retry.
		c.active = &item
		return false, fmt.Errorf("failed to read interest for %s: %w", item.Address, err)
	default:
		current, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false, fmt.Errorf("malformed interest counter for %s: %w", item.Address, err)
		}
	}

	if current < item.Interest {
		c.log.Debugw("interest queue item decayed",
			"address", item.Address.String(),
			"enqueued", item.Interest,
			"current", current,
		)
		return false, nil
	}

	data, err := item.encode()
	if err != nil {
		return false, fmt.Errorf("failed to encode queue item for %s: %w", item.Address, err)
	}
	if err := c.client.LPush(ctx, keyInteresting, data).Err(); err != nil {
		return false, fmt.Errorf("failed to re-enqueue %s: %w", item.Address, err)
	}
	return true, nil
}

// InterestQueueLen returns the current number of interest queue
// items.
func (c *Cache) InterestQueueLen(ctx context.Context) (int64, error) {
	n, err := c.client.LLen(ctx, keyInteresting).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read interest queue length: %w", err)
	}
	return n, nil
}

// All lazily enumerates the authoritative server set, invoking fn for
// each address. Iteration is safe against concurrent writes: inserts
// made while iterating may or may not be observed, but no spurious
// address is produced. fn returning an error stops the walk.
func (c *Cache) All(ctx context.Context, fn func(server.Address) error) error {
	iter := c.client.SScan(ctx, keyServers, 0, "", 0).Iterator()
	for iter.Next(ctx) {
		addr, err := server.ParseAddress(iter.Val())
		if err != nil {
			c.log.Warnw("skipping malformed member of server set", "member", iter.Val())
			continue
		}
		if err := fn(addr); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan server set: %w", err)
	}
	return nil
}

// Search returns the addresses carrying every include tag and none of
// the exclude tags. An empty include always yields the empty set. The
// intersection is staged under a temporary key that is deleted before
// returning.
func (c *Cache) Search(ctx context.Context, include, exclude []string) (map[server.Address]struct{}, error) {
	results := make(map[server.Address]struct{})
	if len(include) == 0 {
		return results, nil
	}

	includeKeys := make([]string, len(include))
	for i, tag := range include {
		includeKeys[i] = keyTag(tag)
	}

	tmp := keyPrefix + "search/" + uuid.NewString()
	defer func() {
		if err := c.client.Del(context.WithoutCancel(ctx), tmp).Err(); err != nil {
			c.log.Warnw("failed to delete temporary search key", "key", tmp, "error", err)
		}
	}()

	if err := c.client.SInterStore(ctx, tmp, includeKeys...).Err(); err != nil {
		return nil, fmt.Errorf("failed to intersect tag indexes: %w", err)
	}

	diffKeys := make([]string, 0, len(exclude)+1)
	diffKeys = append(diffKeys, tmp)
	for _, tag := range exclude {
		diffKeys = append(diffKeys, keyTag(tag))
	}
	members, err := c.client.SDiff(ctx, diffKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to subtract tag indexes: %w", err)
	}

	for _, member := range members {
		addr, err := server.ParseAddress(member)
		if err != nil {
			c.log.Warnw("skipping malformed member of tag index", "member", member)
			continue
		}
		results[addr] = struct{}{}
	}
	return results, nil
}

// Notifier opens a notifier backed by a dedicated Redis connection.
// Pub/sub pins a connection into subscription mode, so the notifier
// cannot share the cache's client. Callers own the returned notifier
// and must close it.
func (c *Cache) Notifier() *Notifier {
	return newNotifier(redis.NewClient(c.client.Options()), c.log)
}
