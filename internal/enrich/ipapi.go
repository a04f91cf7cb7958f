package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/smartpixl/smartpixl/internal/geo"
	"github.com/smartpixl/smartpixl/internal/metrics"
)

// OnlineGeo issues rate-limited lookups against the upstream geo provider
// for addresses the store has never seen or has not refreshed within the
// staleness bound. Step 5 of tier 1. Every address is queried at most once
// per staleness window regardless of hit volume; over-budget hits simply
// skip the step and try again on a later hit.
type OnlineGeo struct {
	store     *geo.Store
	baseURL   string
	maxStale  time.Duration
	known     *xsync.MapOf[string, time.Time]
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
	client    *http.Client
	logger    *zap.Logger
}

func NewOnlineGeo(store *geo.Store, baseURL string, maxStaleDays, rpm int, logger *zap.Logger) *OnlineGeo {
	interval := time.Minute / time.Duration(rpm)
	return &OnlineGeo{
		store:    store,
		baseURL:  baseURL,
		maxStale: time.Duration(maxStaleDays) * 24 * time.Hour,
		known:    xsync.NewMapOf[string, time.Time](),
		sem:      semaphore.NewWeighted(1),
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logger,
	}
}

// Warm populates the known-address set from the store. Called once at
// startup; a failure leaves the set empty, which only means extra upstream
// calls until it repopulates.
func (o *OnlineGeo) Warm(ctx context.Context) {
	known, err := o.store.KnownAddresses(ctx)
	if err != nil {
		o.logger.Warn("known-address warm failed", zap.Error(err))
		return
	}
	for addr, checked := range known {
		o.known.Store(addr, checked)
	}
	o.logger.Info("known-address set warmed", zap.Int("addresses", len(known)))
}

func (o *OnlineGeo) Enrich(ctx context.Context, ec *Ctx) error {
	addr := ec.Hit.Address
	if addr == "" {
		return nil
	}

	if checked, ok := o.known.Load(addr); ok && time.Since(checked) < o.maxStale {
		return nil
	}

	// One call per miss, inside the rate budget. Losing the race just means
	// this hit skips the stamps; the address is retried on a later hit.
	if !o.sem.TryAcquire(1) {
		metrics.OnlineGeoCallsTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	defer o.sem.Release(1)
	if !o.limiter.Allow() {
		metrics.OnlineGeoCallsTotal.WithLabelValues("throttled").Inc()
		return nil
	}

	doc, err := o.fetch(ctx, addr)
	if err != nil {
		metrics.OnlineGeoCallsTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.OnlineGeoCallsTotal.WithLabelValues("ok").Inc()

	rec := doc.toRecord(addr)
	ec.APICountry = rec.CountryCode
	ec.APIISP = rec.ISP
	ec.APIProxy = rec.Proxy
	ec.APIMobile = rec.Mobile
	ec.APIReverse = doc.Reverse
	ec.APIASN = rec.ASN

	ec.Hit.Stamp("_srv_ipapiCC", rec.CountryCode)
	ec.Hit.Stamp("_srv_ipapiISP", rec.ISP)
	if rec.Proxy {
		ec.Hit.StampFlag("_srv_ipapiProxy")
	}
	if rec.Mobile {
		ec.Hit.StampFlag("_srv_ipapiMobile")
	}
	if ec.APIReverse != "" {
		ec.Hit.Stamp("_srv_ipapiReverse", ec.APIReverse)
	}
	if rec.ASN != "" {
		ec.Hit.Stamp("_srv_ipapiASN", rec.ASN)
	}

	// Persist, then refresh the freshness set so the edge geo cache can
	// serve this address from the store on its next refill.
	if err := o.store.Upsert(ctx, rec); err != nil {
		o.logger.Warn("geo persist failed", zap.String("address", addr), zap.Error(err))
		return nil
	}
	o.known.Store(addr, time.Now())
	return nil
}

// ipapiResponse mirrors the upstream provider's JSON document.
type ipapiResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
	Org         string  `json:"org"`
	AS          string  `json:"as"`
	Reverse     string  `json:"reverse"`
	Mobile      bool    `json:"mobile"`
	Proxy       bool    `json:"proxy"`
}

func (r *ipapiResponse) toRecord(addr string) *geo.Record {
	return &geo.Record{
		Address:     addr,
		Country:     r.Country,
		CountryCode: r.CountryCode,
		Region:      r.RegionName,
		City:        r.City,
		Postal:      r.Zip,
		Latitude:    r.Lat,
		Longitude:   r.Lon,
		Timezone:    r.Timezone,
		ISP:         r.ISP,
		Org:         r.Org,
		ASN:         r.AS,
		Proxy:       r.Proxy,
		Mobile:      r.Mobile,
	}
}

func (o *OnlineGeo) fetch(ctx context.Context, addr string) (*ipapiResponse, error) {
	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,regionName,city,zip,lat,lon,timezone,isp,org,as,reverse,mobile,proxy", o.baseURL, addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("online geo: status %d", resp.StatusCode)
	}

	var doc ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}
	if doc.Status != "success" {
		return nil, fmt.Errorf("online geo: %s", doc.Message)
	}
	return &doc, nil
}
