package peer

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/parasync/pkg/errors"
)

// mockDialer accepts connections to `listening` immediately, and simulates
// hosts that silently drop packets for every other address by blocking
// until the attempt is cancelled.
type mockDialer struct {
	listening map[string]bool
	attempts  int32
}

func (d *mockDialer) DialContext(ctx context.Context, _, address string) (net.Conn, error) {
	atomic.AddInt32(&d.attempts, 1)
	if d.listening[address] {
		client, server := net.Pipe()
		server.Close()
		return client, nil
	}

	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestFinder(dialer Dialer) Finder {
	return Finder{
		Dialer:         dialer,
		Clock:          clockwork.NewFakeClockAt(time.Unix(1000, 0)),
		ConnectTimeout: 100 * time.Millisecond,
		Workers:        DefaultWorkers,
	}
}

func TestCandidates(t *testing.T) {
	addrs, err := Candidates("10.211.55")
	assert.NoError(t, err)
	assert.Len(t, addrs, 254)
	assert.Equal(t, "10.211.55.1", addrs[0])
	assert.Equal(t, "10.211.55.254", addrs[253])

	addrs, err = Candidates("192.168.1.")
	assert.NoError(t, err)
	assert.Equal(t, "192.168.1.2", addrs[1])

	_, err = Candidates("10.211")
	assert.Error(t, err)

	_, err = Candidates("not-an-ip")
	assert.Error(t, err)
}

func TestFindPeerOnlyOneListening(t *testing.T) {
	dialer := &mockDialer{listening: map[string]bool{"10.211.55.2:22": true}}
	finder := newTestFinder(dialer)

	start := time.Now()
	host, err := finder.FindPeer(context.Background(), "10.211.55", 22, 3*time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, RemoteHost{
		Address:       "10.211.55.2",
		Port:          22,
		Reachable:     true,
		LastCheckedAt: time.Unix(1000, 0),
	}, host)
	assert.True(t, elapsed < 3*time.Second, "discovery took %s", elapsed)
}

func TestFindPeerLowestAddressWins(t *testing.T) {
	dialer := &mockDialer{listening: map[string]bool{
		"10.211.55.9:22":   true,
		"10.211.55.5:22":   true,
		"10.211.55.200:22": true,
	}}

	for i := 0; i < 5; i++ {
		host, err := newTestFinder(dialer).FindPeer(context.Background(), "10.211.55", 22, 3*time.Second)
		require.NoError(t, err)
		assert.Equal(t, "10.211.55.5", host.Address)
	}
}

func TestFindPeerNotFound(t *testing.T) {
	dialer := &mockDialer{}
	finder := newTestFinder(dialer)
	finder.ConnectTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := finder.FindPeer(context.Background(), "10.211.55", 2222, 2*time.Second)
	elapsed := time.Since(start)

	var notFound errors.NotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, errors.NotFound{Subnet: "10.211.55", Port: 2222}, notFound)
	assert.Equal(t, int32(254), atomic.LoadInt32(&dialer.attempts))
	assert.True(t, elapsed < 2*time.Second, "discovery took %s", elapsed)
}

func TestFindPeerHonorsOverallTimeout(t *testing.T) {
	finder := newTestFinder(&mockDialer{})
	finder.ConnectTimeout = time.Minute
	finder.Workers = 1

	start := time.Now()
	_, err := finder.FindPeer(context.Background(), "10.211.55", 22, 200*time.Millisecond)
	elapsed := time.Since(start)

	assert.IsType(t, errors.NotFound{}, err)
	assert.True(t, elapsed < 2*time.Second, "discovery took %s", elapsed)
}

func TestProbe(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(50, 0))
	finder := newTestFinder(&mockDialer{listening: map[string]bool{"10.0.0.2:22": true}})
	finder.Clock = clock

	host := finder.Probe(context.Background(), RemoteHost{Address: "10.0.0.2", Port: 22})
	assert.True(t, host.Reachable)
	assert.Equal(t, time.Unix(50, 0), host.LastCheckedAt)

	host = finder.Probe(context.Background(), RemoteHost{Address: "10.0.0.3", Port: 22, Reachable: true})
	assert.False(t, host.Reachable)
}

func TestRemoteHostAddr(t *testing.T) {
	assert.Equal(t, "10.211.55.2:22", RemoteHost{Address: "10.211.55.2", Port: 22}.Addr())
}
