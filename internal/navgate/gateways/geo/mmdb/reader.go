// Package mmdb looks hostnames up in a local MaxMind DB (GeoLite2 or DB-IP
// city/country databases), for installs that must not call a remote service.
package mmdb

import (
	"context"
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"

	"github.com/haukened/navgate/internal/navgate/domain"
)

// Resolver maps a hostname to addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// lookuper is the part of *maxminddb.Reader used here.
type lookuper interface {
	Lookup(ip net.IP, result any) error
	Close() error
}

// cityResult is decoded from city or country databases; city-only fields
// stay empty for country databases.
type cityResult struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
	Subdivisions []struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"subdivisions"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	Traits struct {
		ISP          string `maxminddb:"isp"`
		Organization string `maxminddb:"organization"`
	} `maxminddb:"traits"`
}

// Reader implements assessor.Provider on a MaxMind DB file.
type Reader struct {
	db       lookuper
	resolver Resolver
}

// Open opens the database at path. A nil resolver uses net.DefaultResolver.
func Open(path string, resolver Resolver) (*Reader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return newReader(db, resolver), nil
}

func newReader(db lookuper, resolver Resolver) *Reader {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Reader{db: db, resolver: resolver}
}

func (r *Reader) Name() string { return "mmdb" }

// Lookup resolves hostname and looks its first address up in the database.
func (r *Reader) Lookup(ctx context.Context, hostname string) (domain.GeoInfo, error) {
	ip := net.ParseIP(hostname)
	if ip == nil {
		addrs, err := r.resolver.LookupIPAddr(ctx, hostname)
		if err != nil {
			return domain.GeoInfo{}, fmt.Errorf("resolving %s: %w", hostname, err)
		}
		if len(addrs) == 0 {
			return domain.GeoInfo{}, fmt.Errorf("%w: %s has no addresses", domain.ErrLookupFailed, hostname)
		}
		ip = addrs[0].IP
	}

	var res cityResult
	if err := r.db.Lookup(ip, &res); err != nil {
		return domain.GeoInfo{}, fmt.Errorf("looking up %s: %w", ip, err)
	}
	if res.Country.ISOCode == "" {
		return domain.GeoInfo{}, fmt.Errorf("%w: no country for %s", domain.ErrLookupFailed, ip)
	}
	info := domain.GeoInfo{
		Country:     res.Country.Names["en"],
		CountryCode: res.Country.ISOCode,
		City:        res.City.Names["en"],
		IP:          ip.String(),
		ISP:         res.Traits.ISP,
	}
	if info.ISP == "" {
		info.ISP = res.Traits.Organization
	}
	if len(res.Subdivisions) > 0 {
		info.Region = res.Subdivisions[0].Names["en"]
	}
	return info, nil
}

// Close releases the database.
func (r *Reader) Close() error { return r.db.Close() }
