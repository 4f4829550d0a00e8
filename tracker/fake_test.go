package tracker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/netactivity/activity"
	"github.com/nomis52/netactivity/network"
)

// reply is what the gated network answers a request with.
type reply struct {
	value any
	err   error
}

// gatedNetwork is a network.Client whose requests block until the test
// answers them with finish. When ignoreCancel is set, requests also ignore
// context cancellation, like a transport that reports late.
type gatedNetwork struct {
	mu           sync.Mutex
	gates        map[uuid.UUID]chan reply
	ignoreCancel bool
}

func newGatedNetwork() *gatedNetwork {
	return &gatedNetwork{gates: make(map[uuid.UUID]chan reply)}
}

func (n *gatedNetwork) gate(id uuid.UUID) chan reply {
	n.mu.Lock()
	defer n.mu.Unlock()
	g, ok := n.gates[id]
	if !ok {
		g = make(chan reply, 1)
		n.gates[id] = g
	}
	return g
}

func (n *gatedNetwork) finish(req *network.Request, value any, err error) {
	n.gate(req.ID) <- reply{value: value, err: err}
}

func (n *gatedNetwork) wait(ctx context.Context, req *network.Request) reply {
	g := n.gate(req.ID)
	if n.ignoreCancel {
		return <-g
	}
	select {
	case r := <-g:
		return r
	case <-ctx.Done():
		return reply{err: ctx.Err()}
	}
}

func (n *gatedNetwork) RequestData(ctx context.Context, req *network.Request) ([]byte, error) {
	r := n.wait(ctx, req)
	if r.err != nil {
		return nil, r.err
	}
	return r.value.([]byte), nil
}

func (n *gatedNetwork) RequestJSONObject(ctx context.Context, req *network.Request) (map[string]any, error) {
	r := n.wait(ctx, req)
	if r.err != nil {
		return nil, r.err
	}
	return r.value.(map[string]any), nil
}

func (n *gatedNetwork) RequestJSONArray(ctx context.Context, req *network.Request) ([]any, error) {
	r := n.wait(ctx, req)
	if r.err != nil {
		return nil, r.err
	}
	return r.value.([]any), nil
}

func (n *gatedNetwork) RequestDecodable(ctx context.Context, req *network.Request, v any) error {
	r := n.wait(ctx, req)
	if r.err != nil {
		return r.err
	}
	return json.Unmarshal(r.value.([]byte), v)
}

type callResult struct {
	data []byte
	err  error
}

// startData issues a data request in the background and waits until the
// tracker has registered it.
func startData(t *testing.T, ctx context.Context, c *Client, req *network.Request) <-chan callResult {
	t.Helper()
	before := c.InFlight()
	done := make(chan callResult, 1)
	go func() {
		data, err := c.RequestData(ctx, req)
		done <- callResult{data: data, err: err}
	}()
	require.Eventually(t, func() bool { return c.InFlight() == before+1 },
		5*time.Second, time.Millisecond, "request was not registered")
	return done
}

func await(t *testing.T, done <-chan callResult) callResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("request did not return")
		return callResult{}
	}
}

func collect(t *testing.T, sub *activity.Subscription, n int) []activity.Status {
	t.Helper()
	got := make([]activity.Status, 0, n)
	for len(got) < n {
		select {
		case s, ok := <-sub.Updates():
			require.True(t, ok, "subscription closed after %d values", len(got))
			got = append(got, s)
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout after %d of %d values: %v", len(got), n, got)
		}
	}
	return got
}

func assertQuiet(t *testing.T, sub *activity.Subscription) {
	t.Helper()
	select {
	case s := <-sub.Updates():
		t.Fatalf("unexpected extra status %v", s)
	case <-time.After(50 * time.Millisecond):
	}
}

// panickingNetwork is a network.Client whose every call panics.
type panickingNetwork struct{}

func (panickingNetwork) RequestData(context.Context, *network.Request) ([]byte, error) {
	panic("transport bug")
}

func (panickingNetwork) RequestJSONObject(context.Context, *network.Request) (map[string]any, error) {
	panic("transport bug")
}

func (panickingNetwork) RequestJSONArray(context.Context, *network.Request) ([]any, error) {
	panic("transport bug")
}

func (panickingNetwork) RequestDecodable(context.Context, *network.Request, any) error {
	panic("transport bug")
}
