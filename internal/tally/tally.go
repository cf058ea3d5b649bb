package tally

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "attendance:tally:"
	namesKey   = "attendance:supervisor-names"
	retention  = 8 * 24 * time.Hour
	slotField  = "slot:"
	superField = "supervisor:"
	totalField = "total"
)

// Entry is one accepted scan to count.
type Entry struct {
	ID             string
	DateKey        string
	Slot           string
	SupervisorID   string
	SupervisorName string
}

// SupervisorCount is the number of scans one supervisor recorded on a day.
type SupervisorCount struct {
	SupervisorID   string `json:"supervisorId"`
	SupervisorName string `json:"supervisorName"`
	Count          int64  `json:"count"`
}

// Day is the live dashboard tally for one date.
type Day struct {
	Date        string            `json:"date"`
	Total       int64             `json:"total"`
	Slots       map[string]int64  `json:"slots"`
	Supervisors []SupervisorCount `json:"supervisors"`
}

// Tally keeps per-day counters in Redis hashes.
type Tally struct {
	client *redis.Client
}

// New creates a Tally.
func New(client *redis.Client) *Tally {
	return &Tally{client: client}
}

// applyScript marks the record id seen and bumps the counters in one atomic step,
// A failed apply writes nothing.
var applyScript = redis.NewScript(`
if redis.call('SADD', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('HINCRBY', KEYS[2], ARGV[2], 1)
redis.call('HINCRBY', KEYS[2], ARGV[3], 1)
redis.call('HINCRBY', KEYS[2], ARGV[4], 1)
if ARGV[6] ~= '' then
	redis.call('HSET', KEYS[3], ARGV[5], ARGV[6])
end
redis.call('EXPIRE', KEYS[2], ARGV[7])
redis.call('EXPIRE', KEYS[1], ARGV[7])
return 1
`)

// Apply counts e once; replays of the same record id are ignored.
// It reports whether the counters changed.
func (t *Tally) Apply(ctx context.Context, e Entry) (bool, error) {
	if e.ID == "" || e.DateKey == "" {
		return false, fmt.Errorf("tally entry missing id or date")
	}
	key := keyPrefix + e.DateKey
	keys := []string{key + ":seen", key, namesKey}
	n, err := applyScript.Run(ctx, t.client, keys,
		e.ID, totalField, slotField+e.Slot, superField+e.SupervisorID,
		e.SupervisorID, e.SupervisorName, int64(retention/time.Second)).Int64()
	if err != nil {
		return false, fmt.Errorf("apply tally: %w", err)
	}
	return n == 1, nil
}

// Day reads the tally for dateKey.
func (t *Tally) Day(ctx context.Context, dateKey string) (Day, error) {
	fields, err := t.client.HGetAll(ctx, keyPrefix+dateKey).Result()
	if err != nil {
		return Day{}, fmt.Errorf("read tally: %w", err)
	}
	names, err := t.client.HGetAll(ctx, namesKey).Result()
	if err != nil {
		return Day{}, fmt.Errorf("read supervisor names: %w", err)
	}
	return parseDay(dateKey, fields, names), nil
}

func parseDay(dateKey string, fields, names map[string]string) Day {
	day := Day{Date: dateKey, Slots: map[string]int64{}, Supervisors: []SupervisorCount{}}
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		switch {
		case field == totalField:
			day.Total = n
		case strings.HasPrefix(field, slotField):
			day.Slots[strings.TrimPrefix(field, slotField)] = n
		case strings.HasPrefix(field, superField):
			id := strings.TrimPrefix(field, superField)
			day.Supervisors = append(day.Supervisors, SupervisorCount{SupervisorID: id, SupervisorName: names[id], Count: n})
		}
	}
	sort.Slice(day.Supervisors, func(i, j int) bool {
		if day.Supervisors[i].Count != day.Supervisors[j].Count {
			return day.Supervisors[i].Count > day.Supervisors[j].Count
		}
		return day.Supervisors[i].SupervisorID < day.Supervisors[j].SupervisorID
	})
	return day
}
