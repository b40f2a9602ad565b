// Package replay reads connection observations from NDJSON captures.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crimson-sun/netsentry/internal/connector"
	"github.com/crimson-sun/netsentry/internal/model"
)

const maxLine = 1 << 20

func init() {
	connector.Register("replay", func() connector.Connector {
		return &Connector{open: openPath}
	})
}

// Connector replays an NDJSON file, one connector.Record per line.
// Path "-" reads standard input.
//
// Extra keys:
//
//	rate     records per second when streaming, 0 = as fast as possible
//	restamp  replace record timestamps with the time of emission (default true when streaming)
//	loop     restart from the top at EOF when streaming
type Connector struct {
	open func(path string) (io.ReadCloser, error)
}

func openPath(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// Query decodes the whole file and returns the records matching params.
// Malformed lines are skipped and logged.
func (c *Connector) Query(ctx context.Context, cfg connector.Config, params connector.QueryParams) ([]model.ConnectionObservation, error) {
	rc, err := c.reader(cfg)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var out []model.ConnectionObservation
	err = scan(ctx, rc, func(obs model.ConnectionObservation) bool {
		if !params.Match(obs.Timestamp) {
			return true
		}
		out = append(out, obs)
		return params.Limit <= 0 || len(out) < params.Limit
	})
	if err != nil {
		return nil, fmt.Errorf("replay connector: %w", err)
	}
	return out, nil
}

// Stream emits records at the configured rate until EOF (or forever with
// loop), then closes the channel.
func (c *Connector) Stream(ctx context.Context, cfg connector.Config) (<-chan model.ConnectionObservation, error) {
	rc, err := c.reader(cfg)
	if err != nil {
		return nil, err
	}
	rate := cfg.Int("rate", 0)
	restamp := cfg.Bool("restamp", true)
	loop := cfg.Bool("loop", false) && cfg.Path != "-"

	ch := make(chan model.ConnectionObservation, 64)
	go func() {
		defer close(ch)

		var tick <-chan time.Time
		if rate > 0 {
			t := time.NewTicker(time.Second / time.Duration(rate))
			defer t.Stop()
			tick = t.C
		}
		emit := func(obs model.ConnectionObservation) bool {
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return false
				}
			}
			if restamp {
				obs.Timestamp = time.Now()
			}
			select {
			case ch <- obs:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			err := scan(ctx, rc, emit)
			rc.Close()
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("path", cfg.Path).Msg("replay stopped")
				return
			}
			if !loop || ctx.Err() != nil {
				return
			}
			if rc, err = c.reader(cfg); err != nil {
				log.Warn().Err(err).Str("path", cfg.Path).Msg("replay reopen failed")
				return
			}
		}
	}()
	return ch, nil
}

func (c *Connector) reader(cfg connector.Config) (io.ReadCloser, error) {
	if cfg.Path == "" {
		return nil, errors.New("replay connector: path is required")
	}
	rc, err := c.open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("replay connector: %w", err)
	}
	return rc, nil
}

// scan decodes r line by line and calls fn for each valid record until fn
// returns false. Returns ctx.Err() when cancelled.
func scan(ctx context.Context, r io.Reader, fn func(model.ConnectionObservation) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec connector.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			log.Warn().Err(err).Int("line", line).Msg("replay: skipping malformed record")
			continue
		}
		obs, err := rec.Observation()
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("replay: skipping invalid record")
			continue
		}
		if !fn(obs) {
			return ctx.Err()
		}
	}
	return sc.Err()
}
