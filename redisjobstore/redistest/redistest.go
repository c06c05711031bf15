// Package redistest is an in-memory stand-in for the subset of Redis
// commands this store issues, implementing rconn.KV so the storage and lock
// packages can be tested without a live server. It mirrors the role
// huaban-periodic's own driver.MemStoreDriver plays for driver/redis in the
// teacher's test suite, generalized to raw Redis commands (GET/SET/DEL,
// HSET/HGETALL/HDEL, SADD/SREM/SMEMBERS/SISMEMBER/SCARD,
// ZADD/ZREM/ZRANGE/ZRANGEBYSCORE/ZSCORE/ZCARD, INCRBY, EVAL for the mutex's
// compare-and-delete script) since this store speaks Redis commands
// directly rather than through a job-shaped driver interface.
package redistest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

type zmember struct {
	member string
	score  float64
}

// Fake is a single-node, single-database in-memory Redis emulator.
type Fake struct {
	mu       sync.Mutex
	strings  map[string]string
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	zsets    map[string][]zmember
	expireAt map[string]int64 // unix millis; compared against now by expired/evictIfExpired
	now      func() int64
}

// New returns an empty Fake. nowMillis supplies the current time in epoch
// milliseconds for TTL bookkeeping; pass a fixed function in tests that need
// determinism.
func New(nowMillis func() int64) *Fake {
	return &Fake{
		strings:  make(map[string]string),
		hashes:   make(map[string]map[string]string),
		sets:     make(map[string]map[string]struct{}),
		zsets:    make(map[string][]zmember),
		expireAt: make(map[string]int64),
		now:      nowMillis,
	}
}

// Do executes a single Redis command, matching the reply shapes redigo's
// helper functions (redis.Bytes, redis.Int64, redis.Values, ...) expect.
func (f *Fake) Do(_ context.Context, cmd string, args ...any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	strs := make([]string, len(args))
	for i, a := range args {
		strs[i] = toStr(a)
	}

	switch strings.ToUpper(cmd) {
	case "PING":
		return "PONG", nil
	case "GET":
		return f.get(strs[0])
	case "SET":
		return f.set(strs)
	case "DEL":
		return f.del(strs)
	case "INCRBY":
		return f.incrBy(strs[0], strs[1])
	case "HSET":
		return f.hset(strs)
	case "HGET":
		return f.hget(strs[0], strs[1])
	case "HGETALL":
		return f.hgetall(strs[0])
	case "HDEL":
		return f.hdel(strs)
	case "SADD":
		return f.sadd(strs)
	case "SREM":
		return f.srem(strs)
	case "SMEMBERS":
		return f.smembers(strs[0])
	case "SISMEMBER":
		return f.sismember(strs[0], strs[1])
	case "SCARD":
		return f.scard(strs[0])
	case "ZADD":
		return f.zadd(strs)
	case "ZREM":
		return f.zrem(strs)
	case "ZSCORE":
		return f.zscore(strs[0], strs[1])
	case "ZCARD":
		return f.zcard(strs[0])
	case "ZRANGE":
		return f.zrange(strs, false)
	case "ZRANGEBYSCORE":
		return f.zrangeByScore(strs)
	case "EVAL":
		return f.eval(strs)
	default:
		return nil, fmt.Errorf("redistest: unsupported command %q", cmd)
	}
}

func toStr(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (f *Fake) expired(key string) bool {
	deadline, ok := f.expireAt[key]
	if !ok {
		return false
	}
	return f.now() >= deadline
}

func (f *Fake) evictIfExpired(key string) {
	if f.expired(key) {
		delete(f.strings, key)
		delete(f.expireAt, key)
	}
}

func (f *Fake) get(key string) (any, error) {
	f.evictIfExpired(key)
	v, ok := f.strings[key]
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

// set implements SET key value [NX] [PX millis].
func (f *Fake) set(args []string) (any, error) {
	key, value := args[0], args[1]
	nx := false
	var pxMillis int64 = -1
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "NX":
			nx = true
		case "PX":
			i++
			ms, err := strconv.ParseInt(args[i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("redistest: bad PX value %q", args[i])
			}
			pxMillis = ms
		}
	}
	f.evictIfExpired(key)
	if nx {
		if _, exists := f.strings[key]; exists {
			return nil, nil
		}
	}
	f.strings[key] = value
	if pxMillis >= 0 {
		f.expireAt[key] = f.now() + pxMillis
	} else {
		delete(f.expireAt, key)
	}
	return "OK", nil
}

func (f *Fake) del(keys []string) (any, error) {
	var n int64
	for _, k := range keys {
		if _, ok := f.strings[k]; ok {
			delete(f.strings, k)
			n++
		}
		if _, ok := f.hashes[k]; ok {
			delete(f.hashes, k)
			n++
		}
		if _, ok := f.sets[k]; ok {
			delete(f.sets, k)
			n++
		}
		if _, ok := f.zsets[k]; ok {
			delete(f.zsets, k)
			n++
		}
		delete(f.expireAt, k)
	}
	return n, nil
}

func (f *Fake) incrBy(key, byStr string) (any, error) {
	by, err := strconv.ParseInt(byStr, 10, 64)
	if err != nil {
		return nil, err
	}
	cur, _ := strconv.ParseInt(f.strings[key], 10, 64)
	cur += by
	f.strings[key] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (f *Fake) hset(args []string) (any, error) {
	key := args[0]
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	var added int64
	for i := 1; i+1 < len(args); i += 2 {
		if _, exists := h[args[i]]; !exists {
			added++
		}
		h[args[i]] = args[i+1]
	}
	return added, nil
}

func (f *Fake) hget(key, field string) (any, error) {
	v, ok := f.hashes[key][field]
	if !ok {
		return nil, nil
	}
	return []byte(v), nil
}

func (f *Fake) hgetall(key string) (any, error) {
	h := f.hashes[key]
	reply := make([]any, 0, len(h)*2)
	for k, v := range h {
		reply = append(reply, []byte(k), []byte(v))
	}
	return reply, nil
}

func (f *Fake) hdel(args []string) (any, error) {
	key := args[0]
	h, ok := f.hashes[key]
	if !ok {
		return int64(0), nil
	}
	var n int64
	for _, field := range args[1:] {
		if _, exists := h[field]; exists {
			delete(h, field)
			n++
		}
	}
	if len(h) == 0 {
		delete(f.hashes, key)
	}
	return n, nil
}

func (f *Fake) sadd(args []string) (any, error) {
	key := args[0]
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]struct{})
		f.sets[key] = s
	}
	var n int64
	for _, m := range args[1:] {
		if _, exists := s[m]; !exists {
			s[m] = struct{}{}
			n++
		}
	}
	return n, nil
}

func (f *Fake) srem(args []string) (any, error) {
	key := args[0]
	s, ok := f.sets[key]
	if !ok {
		return int64(0), nil
	}
	var n int64
	for _, m := range args[1:] {
		if _, exists := s[m]; exists {
			delete(s, m)
			n++
		}
	}
	if len(s) == 0 {
		delete(f.sets, key)
	}
	return n, nil
}

func (f *Fake) smembers(key string) (any, error) {
	s := f.sets[key]
	reply := make([]any, 0, len(s))
	for m := range s {
		reply = append(reply, []byte(m))
	}
	return reply, nil
}

func (f *Fake) sismember(key, member string) (any, error) {
	if _, ok := f.sets[key][member]; ok {
		return int64(1), nil
	}
	return int64(0), nil
}

func (f *Fake) scard(key string) (any, error) {
	return int64(len(f.sets[key])), nil
}

func (f *Fake) zadd(args []string) (any, error) {
	key := args[0]
	zs := f.zsets[key]
	var added int64
	for i := 1; i+1 < len(args); i += 2 {
		score, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, fmt.Errorf("redistest: bad score %q", args[i])
		}
		member := args[i+1]
		found := false
		for j := range zs {
			if zs[j].member == member {
				zs[j].score = score
				found = true
				break
			}
		}
		if !found {
			zs = append(zs, zmember{member: member, score: score})
			added++
		}
	}
	sort.Slice(zs, func(i, j int) bool { return zs[i].score < zs[j].score })
	f.zsets[key] = zs
	return added, nil
}

func (f *Fake) zrem(args []string) (any, error) {
	key := args[0]
	zs := f.zsets[key]
	var n int64
	remove := make(map[string]struct{}, len(args)-1)
	for _, m := range args[1:] {
		remove[m] = struct{}{}
	}
	out := zs[:0]
	for _, z := range zs {
		if _, ok := remove[z.member]; ok {
			n++
			continue
		}
		out = append(out, z)
	}
	if len(out) == 0 {
		delete(f.zsets, key)
	} else {
		f.zsets[key] = out
	}
	return n, nil
}

func (f *Fake) zscore(key, member string) (any, error) {
	for _, z := range f.zsets[key] {
		if z.member == member {
			return []byte(strconv.FormatFloat(z.score, 'f', -1, 64)), nil
		}
	}
	return nil, nil
}

func (f *Fake) zcard(key string) (any, error) {
	return int64(len(f.zsets[key])), nil
}

// zrange implements ZRANGE key start stop [WITHSCORES].
func (f *Fake) zrange(args []string, _ bool) (any, error) {
	key := args[0]
	zs := f.zsets[key]
	start, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, err
	}
	stop, err := strconv.Atoi(args[2])
	if err != nil {
		return nil, err
	}
	withScores := len(args) > 3 && strings.EqualFold(args[3], "WITHSCORES")

	n := len(zs)
	start = normalizeIndex(start, n)
	stop = normalizeIndex(stop, n)
	if start > stop || start >= n {
		return []any{}, nil
	}
	if stop >= n {
		stop = n - 1
	}
	return renderRange(zs[start:stop+1], withScores), nil
}

// zrangeByScore implements ZRANGEBYSCORE key min max [WITHSCORES] [LIMIT offset count].
func (f *Fake) zrangeByScore(args []string) (any, error) {
	key := args[0]
	minV, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return nil, err
	}
	maxV, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return nil, err
	}
	withScores := false
	offset, count := 0, -1
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(args[i]) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			offset, _ = strconv.Atoi(args[i+1])
			count, _ = strconv.Atoi(args[i+2])
			i += 2
		}
	}

	zs := f.zsets[key]
	matched := make([]zmember, 0, len(zs))
	for _, z := range zs {
		if z.score >= minV && z.score <= maxV {
			matched = append(matched, z)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].score != matched[j].score {
			return matched[i].score < matched[j].score
		}
		return matched[i].member < matched[j].member
	})
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if count >= 0 && count < len(matched) {
		matched = matched[:count]
	}
	return renderRange(matched, withScores), nil
}

func renderRange(zs []zmember, withScores bool) []any {
	reply := make([]any, 0, len(zs)*2)
	for _, z := range zs {
		reply = append(reply, []byte(z.member))
		if withScores {
			reply = append(reply, []byte(strconv.FormatFloat(z.score, 'f', -1, 64)))
		}
	}
	return reply
}

func normalizeIndex(i, n int) int {
	if i < 0 {
		i = n + i
	}
	if i < 0 {
		i = 0
	}
	return i
}

// eval supports exactly the compare-and-delete script the lock package uses:
// GET KEYS[1] == ARGV[1] -> DEL KEYS[1], else 0. This is a test double, not a
// Lua interpreter.
func (f *Fake) eval(args []string) (any, error) {
	// args: [script, numkeys, key..., argv...]
	if len(args) < 4 {
		return nil, fmt.Errorf("redistest: EVAL requires script numkeys key argv")
	}
	numKeys, err := strconv.Atoi(args[1])
	if err != nil || numKeys != 1 {
		return nil, fmt.Errorf("redistest: only single-key EVAL scripts are supported")
	}
	key := args[2]
	token := args[3]
	f.evictIfExpired(key)
	if f.strings[key] == token {
		delete(f.strings, key)
		delete(f.expireAt, key)
		return int64(1), nil
	}
	return int64(0), nil
}
