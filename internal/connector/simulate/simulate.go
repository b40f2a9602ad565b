// Package simulate generates synthetic attack traffic for demos and
// end-to-end tests.
package simulate

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/netip"
	"time"

	"github.com/crimson-sun/netsentry/internal/connector"
	"github.com/crimson-sun/netsentry/internal/model"
)

// Scenarios lists the traffic shapes the generator knows.
var Scenarios = []string{"dos", "probe", "portscan", "normal", "mixed"}

const (
	defaultRate  = 50
	defaultBatch = 300
)

var (
	defaultTarget = netip.MustParseAddr("10.0.0.5")
	dosSource     = netip.MustParseAddr("203.0.113.7")
	probeSource   = netip.MustParseAddr("198.51.100.23")
	scanSource    = netip.MustParseAddr("198.51.100.5")
	clientNet     = netip.MustParsePrefix("192.0.2.0/24")
)

func init() {
	connector.Register("simulate", func() connector.Connector {
		return &Connector{}
	})
}

// Connector emits synthetic observations.
//
// Extra keys:
//
//	scenario  one of Scenarios (default mixed)
//	rate      observations per second when streaming (default 50)
//	count     stop after this many observations, 0 = unbounded when streaming
//	target    destination address (default 10.0.0.5)
//	seed      PRNG seed for reproducible runs
type Connector struct{}

// generator produces one scenario's observations.
type generator struct {
	scenario string
	target   netip.Addr
	rng      *rand.Rand
	n        int
}

func newGenerator(cfg connector.Config) (*generator, error) {
	scenario := cfg.Value("scenario", "mixed")
	known := false
	for _, s := range Scenarios {
		known = known || s == scenario
	}
	if !known {
		return nil, fmt.Errorf("simulate connector: unknown scenario %q (want one of %v)", scenario, Scenarios)
	}
	target := defaultTarget
	if raw := cfg.Value("target", ""); raw != "" {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("simulate connector: target: %w", err)
		}
		target = addr
	}
	seed := uint64(cfg.Int("seed", int(time.Now().UnixNano())))
	return &generator{
		scenario: scenario,
		target:   target,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// next returns the following observation, stamped with ts.
func (g *generator) next(ts time.Time) model.ConnectionObservation {
	scenario := g.scenario
	if scenario == "mixed" {
		// Mostly background traffic with interleaved attacks.
		switch r := g.rng.IntN(10); {
		case r < 4:
			scenario = "normal"
		case r < 7:
			scenario = "dos"
		case r < 9:
			scenario = "portscan"
		default:
			scenario = "probe"
		}
	}
	g.n++

	obs := model.ConnectionObservation{
		Destination: g.target,
		SourcePort:  uint16(32768 + g.rng.IntN(28000)),
		Protocol:    "tcp",
		Timestamp:   ts,
	}
	switch scenario {
	case "dos":
		obs.Source = dosSource
		obs.DestPort = 80
		obs.Flag = "S0"
		obs.State = "SYN_SENT"
		obs.BytesSent = 60
	case "probe":
		obs.Source = probeSource
		obs.DestPort = 22
		obs.Flag = "REJ"
		obs.BytesSent = 74
	case "portscan":
		obs.Source = scanSource
		obs.DestPort = uint16(1 + g.n%1024)
		if g.rng.IntN(4) == 0 {
			obs.Flag = "REJ"
		} else {
			obs.Flag = "S0"
		}
		obs.BytesSent = 44
	default:
		obs.Source = clientAddr(g.rng.IntN(20))
		obs.DestPort = 443
		obs.Flag = "SF"
		obs.State = "ESTABLISHED"
		obs.BytesSent = int64(400 + g.rng.IntN(4000))
		obs.BytesRecv = int64(1000 + g.rng.IntN(60000))
		obs.Duration = time.Duration(50+g.rng.IntN(2000)) * time.Millisecond
	}
	return obs
}

func clientAddr(i int) netip.Addr {
	a := clientNet.Addr().As4()
	a[3] = byte(10 + i)
	return netip.AddrFrom4(a)
}

// Query returns a batch spaced 10ms apart ending now. Limit defaults to
// count, then to 300.
func (c *Connector) Query(ctx context.Context, cfg connector.Config, params connector.QueryParams) ([]model.ConnectionObservation, error) {
	g, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	n := params.Limit
	if n <= 0 {
		n = cfg.Int("count", defaultBatch)
	}
	start := time.Now().Add(-time.Duration(n) * 10 * time.Millisecond)
	out := make([]model.ConnectionObservation, 0, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, g.next(start.Add(time.Duration(i)*10*time.Millisecond)))
	}
	return out, nil
}

// Stream emits observations at the configured rate.
func (c *Connector) Stream(ctx context.Context, cfg connector.Config) (<-chan model.ConnectionObservation, error) {
	g, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	rate := cfg.Int("rate", defaultRate)
	if rate <= 0 {
		rate = defaultRate
	}
	limit := cfg.Int("count", 0)

	ch := make(chan model.ConnectionObservation, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
		for sent := 0; limit <= 0 || sent < limit; sent++ {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case ch <- g.next(now):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
