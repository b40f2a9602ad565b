// Package poll reads connection observations from an HTTP endpoint that
// exports a host's socket table, such as a sensor agent.
package poll

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/crimson-sun/netsentry/internal/connector"
	"github.com/crimson-sun/netsentry/internal/connector/httpclient"
	"github.com/crimson-sun/netsentry/internal/model"
)

const (
	defaultPath         = "/v1/connections"
	defaultPollInterval = 3 * time.Second
)

func init() {
	connector.Register("poll", func() connector.Connector {
		return &Connector{}
	})
}

// Connector polls cfg.Endpoint for connection records.
//
// The endpoint answers GET <path>?cursor=<c> with
//
//	{"data": [<connector.Record>...], "next_cursor": "...", "has_more": false}
//
// where next_cursor marks the position after the returned records.
//
// Extra keys:
//
//	path           request path (default /v1/connections)
//	poll_interval  time between polls when streaming (default 3s)
//	timeout        per-request timeout (default 30s)
type Connector struct{}

type page struct {
	Data       []connector.Record `json:"data"`
	NextCursor string             `json:"next_cursor"`
	HasMore    bool               `json:"has_more"`
}

func client(cfg connector.Config) (*httpclient.Client, string, error) {
	if cfg.Endpoint == "" {
		return nil, "", errors.New("poll connector: endpoint is required")
	}
	c := httpclient.New(cfg.Endpoint, cfg.APIKey, httpclient.WithTimeout(cfg.Duration("timeout", 0)))
	return c, cfg.Value("path", defaultPath), nil
}

// Query drains every page and returns the observations matching params.
func (c *Connector) Query(ctx context.Context, cfg connector.Config, params connector.QueryParams) ([]model.ConnectionObservation, error) {
	cl, path, err := client(cfg)
	if err != nil {
		return nil, err
	}

	var results []model.ConnectionObservation
	cursor := ""
	for {
		var p page
		if err := cl.GetJSON(ctx, path, query(cursor), &p); err != nil {
			return nil, fmt.Errorf("poll connector: %w", err)
		}
		for _, obs := range observations(p.Data) {
			if !params.Match(obs.Timestamp) {
				continue
			}
			results = append(results, obs)
			if params.Limit > 0 && len(results) >= params.Limit {
				return results, nil
			}
		}
		if !advance(&cursor, p) {
			return results, nil
		}
	}
}

// Stream polls on an interval until ctx is done. Poll failures are logged
// and retried on the next tick with the same cursor.
func (c *Connector) Stream(ctx context.Context, cfg connector.Config) (<-chan model.ConnectionObservation, error) {
	cl, path, err := client(cfg)
	if err != nil {
		return nil, err
	}
	interval := cfg.Duration("poll_interval", defaultPollInterval)

	ch := make(chan model.ConnectionObservation, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cursor := pollOnce(ctx, cl, path, "", ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cursor = pollOnce(ctx, cl, path, cursor, ch)
			}
		}
	}()
	return ch, nil
}

// pollOnce follows the endpoint's pages until it has nothing newer and
// returns the cursor to resume from.
func pollOnce(ctx context.Context, cl *httpclient.Client, path, cursor string, ch chan<- model.ConnectionObservation) string {
	for {
		var p page
		if err := cl.GetJSON(ctx, path, query(cursor), &p); err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("connector", "poll").Msg("poll error")
			}
			return cursor
		}
		for _, obs := range observations(p.Data) {
			select {
			case ch <- obs:
			case <-ctx.Done():
				return cursor
			}
		}
		if !advance(&cursor, p) {
			return cursor
		}
	}
}

// advance moves cursor past p and reports whether another page follows.
// A page that does not move the cursor ends the walk.
func advance(cursor *string, p page) bool {
	if p.NextCursor == "" || p.NextCursor == *cursor {
		return false
	}
	*cursor = p.NextCursor
	return p.HasMore
}

func query(cursor string) url.Values {
	if cursor == "" {
		return nil
	}
	return url.Values{"cursor": []string{cursor}}
}

func observations(recs []connector.Record) []model.ConnectionObservation {
	out := make([]model.ConnectionObservation, 0, len(recs))
	for i, r := range recs {
		obs, err := r.Observation()
		if err != nil {
			log.Debug().Err(err).Int("index", i).Msg("poll: skipping invalid record")
			continue
		}
		if obs.Timestamp.IsZero() {
			obs.Timestamp = time.Now()
		}
		out = append(out, obs)
	}
	return out
}
