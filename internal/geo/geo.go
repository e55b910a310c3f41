// Package geo resolves dam coordinates into postal addresses.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/dam-monitoring/internal/dam"
)

var errNoAddress = errors.New("no address found")

// reverse is swapped in tests.
var reverse = func(lat, lon float64) ([]geocoder.Address, error) {
	return geocoder.GeocodingReverse(geocoder.Location{Latitude: lat, Longitude: lon})
}

// Resolver reverse-geocodes through the Google Geocoding API.
type Resolver struct{}

// NewResolver sets the package-level API key used by kelvins/geocoder.
func NewResolver(apiKey string) *Resolver {
	geocoder.ApiKey = apiKey
	return &Resolver{}
}

// Reverse returns the formatted address closest to lat/lon.
func (r *Resolver) Reverse(lat, lon float64) (string, error) {
	addresses, err := reverse(lat, lon)
	if err != nil {
		return "", fmt.Errorf("reverse geocode (%f, %f): %w", lat, lon, err)
	}
	if len(addresses) == 0 {
		return "", errNoAddress
	}
	return addresses[0].FormatAddress(), nil
}

// AddressSetter is the part of dam.Service used to store resolved addresses.
type AddressSetter interface {
	List(ctx context.Context) ([]dam.Entity, error)
	SetAddress(ctx context.Context, id, address string) (dam.Entity, error)
}

// Backfill resolves an address for every dam that has none. Failures are
// logged and skipped.
func Backfill(ctx context.Context, r *Resolver, svc AddressSetter) error {
	dams, err := svc.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range dams {
		if d.Address != "" {
			continue
		}
		addr, err := r.Reverse(d.Location.Lat(), d.Location.Lon())
		if err != nil {
			log.Printf("ERROR: geocode dam %s: %v", d.ID, err)
			continue
		}
		if _, err := svc.SetAddress(ctx, d.ID, addr); err != nil {
			log.Printf("ERROR: store address for dam %s: %v", d.ID, err)
			continue
		}
		log.Printf("INFO: dam %s located at %s", d.ID, addr)
	}
	return nil
}
