// Package peer locates the remote machine on the private VM network.
package peer

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sidkik/parasync/pkg/errors"
)

const (
	// DefaultConnectTimeout bounds each individual connection attempt. It's
	// much shorter than DefaultTimeout so that hosts that silently drop
	// packets can't stall discovery.
	DefaultConnectTimeout = 500 * time.Millisecond

	// DefaultTimeout bounds the whole scan.
	DefaultTimeout = 5 * time.Second

	// DefaultWorkers is the maximum number of concurrent connection attempts.
	DefaultWorkers = 64
)

// RemoteHost is the peer that files are synced with. It's passed explicitly
// to every operation that talks to the peer.
type RemoteHost struct {
	Address       string
	Port          int
	Reachable     bool
	LastCheckedAt time.Time
}

// Addr returns the host:port dial string.
func (h RemoteHost) Addr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

func (h RemoteHost) String() string {
	return h.Addr()
}

// Dialer opens TCP connections. It's satisfied by *net.Dialer.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Finder scans subnets for a host accepting connections.
type Finder struct {
	Dialer         Dialer
	Clock          clockwork.Clock
	ConnectTimeout time.Duration
	Workers        int
}

// NewFinder returns a Finder that uses real network connections.
func NewFinder() Finder {
	return Finder{
		Dialer:         &net.Dialer{},
		Clock:          clockwork.NewRealClock(),
		ConnectTimeout: DefaultConnectTimeout,
		Workers:        DefaultWorkers,
	}
}

// Candidates returns every host address in the /24 network named by
// `subnetPrefix`, e.g. "10.211.55". The network and broadcast addresses are
// excluded.
func Candidates(subnetPrefix string) ([]string, error) {
	prefix := strings.TrimSuffix(strings.TrimSpace(subnetPrefix), ".")
	if ip := net.ParseIP(prefix + ".0"); ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("invalid subnet prefix %q: expected three octets", subnetPrefix)
	}

	var addrs []string
	for i := 1; i <= 254; i++ {
		addrs = append(addrs, fmt.Sprintf("%s.%d", prefix, i))
	}
	return addrs, nil
}

// FindPeer tries to connect to `port` on every host in the subnet, and
// returns the lowest-numbered host that accepted. It returns a NotFound
// error if nothing answered before `timeout`.
func (f Finder) FindPeer(ctx context.Context, subnetPrefix string, port int,
	timeout time.Duration) (RemoteHost, error) {

	candidates, err := Candidates(subnetPrefix)
	if err != nil {
		return RemoteHost{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// `best` is the index of the lowest responder so far. Once an address has
	// responded, attempts on higher addresses are pointless: they're skipped
	// if they haven't started, and cancelled if they have.
	var (
		lock     sync.Mutex
		best     = len(candidates)
		cancels  = make([]context.CancelFunc, len(candidates))
		attempts errgroup.Group
	)
	attempts.SetLimit(f.workers())

	for i, addr := range candidates {
		i, addr := i, addr

		lock.Lock()
		done := best < i || ctx.Err() != nil
		lock.Unlock()
		if done {
			break
		}

		attempts.Go(func() error {
			lock.Lock()
			if best < i || ctx.Err() != nil {
				lock.Unlock()
				return nil
			}
			attemptCtx, attemptCancel := context.WithTimeout(ctx, f.connectTimeout())
			cancels[i] = attemptCancel
			lock.Unlock()
			defer attemptCancel()

			if !f.accepts(attemptCtx, addr, port) {
				return nil
			}

			lock.Lock()
			defer lock.Unlock()
			if i < best {
				best = i
				for j := i + 1; j < len(cancels); j++ {
					if cancels[j] != nil {
						cancels[j]()
					}
				}
			}
			return nil
		})
	}
	_ = attempts.Wait()

	if best == len(candidates) {
		return RemoteHost{}, errors.NotFound{Subnet: subnetPrefix, Port: port}
	}

	host := RemoteHost{
		Address:       candidates[best],
		Port:          port,
		Reachable:     true,
		LastCheckedAt: f.clock().Now(),
	}
	log.WithField("host", host.Addr()).Debug("Found peer")
	return host, nil
}

// Probe checks whether the host still accepts connections, and returns it
// with an updated reachability status.
func (f Finder) Probe(ctx context.Context, host RemoteHost) RemoteHost {
	ctx, cancel := context.WithTimeout(ctx, f.connectTimeout())
	defer cancel()

	host.Reachable = f.accepts(ctx, host.Address, host.Port)
	host.LastCheckedAt = f.clock().Now()
	return host
}

func (f Finder) accepts(ctx context.Context, addr string, port int) bool {
	conn, err := f.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return false
	}

	if err := conn.Close(); err != nil {
		log.WithError(err).WithField("addr", addr).Debug("Failed to close probe connection")
	}
	return true
}

func (f Finder) connectTimeout() time.Duration {
	if f.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return f.ConnectTimeout
}

func (f Finder) workers() int {
	if f.Workers <= 0 {
		return DefaultWorkers
	}
	return f.Workers
}

func (f Finder) clock() clockwork.Clock {
	if f.Clock == nil {
		return clockwork.NewRealClock()
	}
	return f.Clock
}
