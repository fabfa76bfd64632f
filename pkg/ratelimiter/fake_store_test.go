package ratelimiter

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// fakeStore is an in-memory stand-in for the coordination store, giving
// unit tests the same {incrBy, expire, get, pipeline} capability set
// RedisStore provides without a live Redis.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]int64

	failExec bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]int64)}
}

func (f *fakeStore) Pipeline() Pipeliner {
	return &fakePipeline{store: f}
}

func (f *fakeStore) set(key string, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = v
}

type fakeOp struct {
	kind string // "incrby" or "get"
	key  string
	n    int64
}

type fakePipeline struct {
	store *fakeStore
	ops   []fakeOp

	incrResults []*fakeIncrResult
	getResults  []*fakeGetResult
}

func (p *fakePipeline) IncrBy(ctx context.Context, key string, value int64) IncrResult {
	r := &fakeIncrResult{}
	p.ops = append(p.ops, fakeOp{kind: "incrby", key: key, n: value})
	p.incrResults = append(p.incrResults, r)
	return r
}

func (p *fakePipeline) Expire(ctx context.Context, key string, ttl time.Duration) {
	// No eviction modeled; the fake store never expires keys within a test's
	// lifetime.
}

func (p *fakePipeline) Get(ctx context.Context, key string) GetResult {
	r := &fakeGetResult{key: key}
	p.ops = append(p.ops, fakeOp{kind: "get", key: key})
	p.getResults = append(p.getResults, r)
	return r
}

func (p *fakePipeline) Exec(ctx context.Context) error {
	if p.store.failExec {
		return errFakeExecFailed
	}

	p.store.mu.Lock()
	defer p.store.mu.Unlock()

	incrIdx, getIdx := 0, 0
	for _, op := range p.ops {
		switch op.kind {
		case "incrby":
			p.store.data[op.key] += op.n
			p.incrResults[incrIdx].val = p.store.data[op.key]
			incrIdx++
		case "get":
			v, ok := p.store.data[op.key]
			p.getResults[getIdx].val = v
			p.getResults[getIdx].found = ok
			getIdx++
		}
	}
	return nil
}

type fakeIncrResult struct {
	val int64
}

func (r *fakeIncrResult) Result() (int64, error) { return r.val, nil }

type fakeGetResult struct {
	key   string
	val   int64
	found bool
}

func (r *fakeGetResult) Result() (string, error) {
	if !r.found {
		return "", ErrNotFound
	}
	return strconv.FormatInt(r.val, 10), nil
}

type fakeExecErr struct{}

func (fakeExecErr) Error() string { return "fake: exec failed" }

var errFakeExecFailed error = fakeExecErr{}
