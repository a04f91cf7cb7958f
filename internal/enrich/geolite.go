package enrich

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// OfflineGeo looks the address up in the local MaxMind databases loaded at
// startup. Step 4 of tier 1. Missing database files are a warning at
// construction; lookups then return empty.
type OfflineGeo struct {
	city *geoip2.Reader
	asn  *geoip2.Reader
}

func NewOfflineGeo(cityPath, asnPath string, logger *zap.Logger) *OfflineGeo {
	g := &OfflineGeo{}
	if cityPath != "" {
		r, err := geoip2.Open(cityPath)
		if err != nil {
			logger.Warn("geoip city database unavailable", zap.String("path", cityPath), zap.Error(err))
		} else {
			g.city = r
		}
	}
	if asnPath != "" {
		r, err := geoip2.Open(asnPath)
		if err != nil {
			logger.Warn("geoip asn database unavailable", zap.String("path", asnPath), zap.Error(err))
		} else {
			g.asn = r
		}
	}
	return g
}

func (g *OfflineGeo) Close() {
	if g.city != nil {
		g.city.Close()
	}
	if g.asn != nil {
		g.asn.Close()
	}
}

func (g *OfflineGeo) Enrich(_ context.Context, ec *Ctx) error {
	ip := net.ParseIP(ec.Hit.Address)
	if ip == nil {
		return nil
	}

	if g.city != nil {
		rec, err := g.city.City(ip)
		if err != nil {
			return err
		}
		if rec.Country.IsoCode != "" {
			ec.MMCountry = rec.Country.IsoCode
			ec.Hit.Stamp("_srv_mmCC", rec.Country.IsoCode)
		}
		if len(rec.Subdivisions) > 0 {
			ec.MMRegion = rec.Subdivisions[0].IsoCode
			ec.Hit.Stamp("_srv_mmReg", ec.MMRegion)
		}
		if name := rec.City.Names["en"]; name != "" {
			ec.MMCity = name
			ec.Hit.Stamp("_srv_mmCity", name)
		}
		if rec.Location.Latitude != 0 || rec.Location.Longitude != 0 {
			ec.MMLat = rec.Location.Latitude
			ec.MMLon = rec.Location.Longitude
			ec.Hit.Stamp("_srv_mmLat", strconv.FormatFloat(rec.Location.Latitude, 'f', 4, 64))
			ec.Hit.Stamp("_srv_mmLon", strconv.FormatFloat(rec.Location.Longitude, 'f', 4, 64))
		}
	}

	if g.asn != nil {
		rec, err := g.asn.ASN(ip)
		if err != nil {
			return err
		}
		if rec.AutonomousSystemNumber != 0 {
			ec.MMASN = fmt.Sprintf("AS%d", rec.AutonomousSystemNumber)
			ec.MMASNOrg = rec.AutonomousSystemOrganization
			ec.Hit.Stamp("_srv_mmASN", ec.MMASN)
			ec.Hit.Stamp("_srv_mmASNOrg", ec.MMASNOrg)
		}
	}
	return nil
}
