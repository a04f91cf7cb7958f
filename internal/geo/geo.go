// Package geo holds the per-address geo snapshot shared by the edge geo
// cache and the forge's online-geo enricher, plus its relational store.
package geo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one address's geo snapshot. NotFound marks the negative-cache
// sentinel: the store was asked and had nothing.
type Record struct {
	Address     string
	Country     string
	CountryCode string
	Region      string
	City        string
	Postal      string
	Latitude    float64
	Longitude   float64
	Timezone    string
	ISP         string
	Org         string
	ASN         string
	Proxy       bool
	Mobile      bool
	NotFound    bool
	CheckedAt   time.Time
}

// Store reads and writes pixl_geo_ip. The edge only reads; the forge's
// online-geo enricher writes.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Lookup fetches the geo row for addr. A missing row returns (nil, nil).
func (s *Store) Lookup(ctx context.Context, addr string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT ip_address, country, country_code, region, city, postal,
		       latitude, longitude, timezone, isp, org, asn, proxy, mobile, checked_at
		FROM pixl_geo_ip WHERE ip_address = $1`, addr)

	var r Record
	err := row.Scan(&r.Address, &r.Country, &r.CountryCode, &r.Region, &r.City,
		&r.Postal, &r.Latitude, &r.Longitude, &r.Timezone, &r.ISP, &r.Org,
		&r.ASN, &r.Proxy, &r.Mobile, &r.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Upsert writes addr's geo snapshot, refreshing checked_at.
func (s *Store) Upsert(ctx context.Context, r *Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pixl_geo_ip (ip_address, country, country_code, region, city, postal,
			latitude, longitude, timezone, isp, org, asn, proxy, mobile, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now())
		ON CONFLICT (ip_address) DO UPDATE SET
			country = EXCLUDED.country,
			country_code = EXCLUDED.country_code,
			region = EXCLUDED.region,
			city = EXCLUDED.city,
			postal = EXCLUDED.postal,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			timezone = EXCLUDED.timezone,
			isp = EXCLUDED.isp,
			org = EXCLUDED.org,
			asn = EXCLUDED.asn,
			proxy = EXCLUDED.proxy,
			mobile = EXCLUDED.mobile,
			checked_at = now()`,
		r.Address, r.Country, r.CountryCode, r.Region, r.City, r.Postal,
		r.Latitude, r.Longitude, r.Timezone, r.ISP, r.Org, r.ASN, r.Proxy, r.Mobile,
	)
	return err
}

// KnownAddresses returns every stored address with its checked_at, feeding
// the online-geo enricher's freshness set at startup.
func (s *Store) KnownAddresses(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx, `SELECT ip_address, checked_at FROM pixl_geo_ip`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]time.Time)
	for rows.Next() {
		var addr string
		var checked time.Time
		if err := rows.Scan(&addr, &checked); err != nil {
			return nil, err
		}
		known[addr] = checked
	}
	return known, rows.Err()
}
