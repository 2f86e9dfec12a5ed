package capture

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/grandcat/zeroconf"
)

// NetworkHost is a discovered networked capture source advertising the
// _ltescan-capture._tcp mDNS service (a remote RTL-SDR or file replay
// endpoint reachable over the network rather than attached locally).
type NetworkHost struct {
	Instance  string
	Hostname  string
	Addresses []net.IP
	Port      int
	TXT       []string
}

// DiscoverSources performs a blocking mDNS browse for capture endpoints,
// retrying resolver construction with backoff since multicast sockets can
// transiently fail to bind right after network interface changes.
func DiscoverSources(ctx context.Context, timeout time.Duration) ([]NetworkHost, error) {
	var resolver *zeroconf.Resolver
	op := func() error {
		r, err := zeroconf.NewResolver(nil)
		if err != nil {
			return err
		}
		resolver = r
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("capture: resolver: %w", err)
	}

	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	resultMap := make(map[string]NetworkHost)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case e, ok := <-entries:
				if !ok {
					close(done)
					return
				}
				if e == nil {
					continue
				}
				addrs := make([]net.IP, 0, len(e.AddrIPv4)+len(e.AddrIPv6))
				addrs = append(addrs, e.AddrIPv4...)
				addrs = append(addrs, e.AddrIPv6...)
				key := fmt.Sprintf("%s|%d", e.HostName, e.Port)
				resultMap[key] = NetworkHost{
					Instance:  cleanInstance(e.Instance),
					Hostname:  e.HostName,
					Addresses: addrs,
					Port:      e.Port,
					TXT:       append([]string{}, e.Text...),
				}
			case <-browseCtx.Done():
				close(done)
				return
			}
		}
	}()

	if err := resolver.Browse(browseCtx, "_ltescan-capture._tcp", "local.", entries); err != nil {
		return nil, fmt.Errorf("capture: browse: %w", err)
	}

	<-done

	out := make([]NetworkHost, 0, len(resultMap))
	for _, h := range resultMap {
		out = append(out, h)
	}
	return out, nil
}

func cleanInstance(s string) string {
	return strings.ReplaceAll(s, `\ `, " ")
}
