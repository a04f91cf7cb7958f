package datacenter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/smartpixl/smartpixl/internal/metrics"
	"go.uber.org/zap"
)

// Refresher rebuilds the matcher's list from the published AWS and GCP range
// feeds on a weekly cadence. A refresh that yields zero entries (both feeds
// down) keeps the previous list.
type Refresher struct {
	matcher  *Matcher
	awsURL   string
	gcpURL   string
	interval time.Duration
	client   *http.Client
	logger   *zap.Logger
}

func NewRefresher(matcher *Matcher, awsURL, gcpURL string, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		matcher:  matcher,
		awsURL:   awsURL,
		gcpURL:   gcpURL,
		interval: interval,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// Run refreshes immediately, then on every interval tick until ctx ends.
func (r *Refresher) Run(ctx context.Context) {
	r.refresh(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	var entries []Entry

	aws, err := r.fetchAWS(ctx)
	if err != nil {
		r.logger.Warn("aws range feed fetch failed", zap.Error(err))
	} else {
		entries = append(entries, aws...)
	}

	gcp, err := r.fetchGCP(ctx)
	if err != nil {
		r.logger.Warn("gcp range feed fetch failed", zap.Error(err))
	} else {
		entries = append(entries, gcp...)
	}

	if len(entries) == 0 {
		metrics.CidrRefreshTotal.WithLabelValues("empty").Inc()
		r.logger.Warn("cidr refresh produced no entries, keeping previous list",
			zap.Int("previous_entries", r.matcher.Len()))
		return
	}

	r.matcher.Swap(entries)
	metrics.CidrRefreshTotal.WithLabelValues("ok").Inc()
	metrics.CidrEntries.Set(float64(len(entries)))
	r.logger.Info("cidr list refreshed",
		zap.Int("aws_entries", len(aws)),
		zap.Int("gcp_entries", len(gcp)),
	)
}

type awsRanges struct {
	Prefixes []struct {
		IPPrefix string `json:"ip_prefix"`
	} `json:"prefixes"`
	IPv6Prefixes []struct {
		IPv6Prefix string `json:"ipv6_prefix"`
	} `json:"ipv6_prefixes"`
}

func (r *Refresher) fetchAWS(ctx context.Context) ([]Entry, error) {
	var doc awsRanges
	if err := r.fetchJSON(ctx, r.awsURL, &doc); err != nil {
		return nil, err
	}
	var entries []Entry
	for _, p := range doc.Prefixes {
		if e, ok := ParseEntry(p.IPPrefix, "AWS"); ok {
			entries = append(entries, e)
		}
	}
	for _, p := range doc.IPv6Prefixes {
		if e, ok := ParseEntry(p.IPv6Prefix, "AWS"); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

type gcpRanges struct {
	Prefixes []struct {
		IPv4Prefix string `json:"ipv4Prefix"`
		IPv6Prefix string `json:"ipv6Prefix"`
	} `json:"prefixes"`
}

func (r *Refresher) fetchGCP(ctx context.Context) ([]Entry, error) {
	var doc gcpRanges
	if err := r.fetchJSON(ctx, r.gcpURL, &doc); err != nil {
		return nil, err
	}
	var entries []Entry
	for _, p := range doc.Prefixes {
		cidr := p.IPv4Prefix
		if cidr == "" {
			cidr = p.IPv6Prefix
		}
		if e, ok := ParseEntry(cidr, "GCP"); ok {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (r *Refresher) fetchJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
