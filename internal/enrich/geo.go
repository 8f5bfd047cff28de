package enrich

import (
	"errors"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"
)

// Location is the coarse geography of an address.
type Location struct {
	Country string
	Region  string
	City    string
}

// GeoLocator resolves an address to a Location.
type GeoLocator interface {
	Locate(ip net.IP) (Location, error)
}

// MaxMindLocator reads a GeoLite2/GeoIP2 City database.
type MaxMindLocator struct {
	reader *geoip2.Reader
}

func OpenMaxMind(path string) (*MaxMindLocator, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("geoip database path is empty")
	}
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindLocator{reader: reader}, nil
}

func (l *MaxMindLocator) Locate(ip net.IP) (Location, error) {
	record, err := l.reader.City(ip)
	if err != nil {
		return Location{}, err
	}
	loc := Location{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].IsoCode
	}
	return loc, nil
}

func (l *MaxMindLocator) Close() error {
	return l.reader.Close()
}
