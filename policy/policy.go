// Package policy decides which destinations a tunnel session may connect to.
package policy

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"slices"
	"strings"

	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
	"go4.org/netipx"
)

// ErrDestinationDenied is returned when a destination is rejected by the policy.
var ErrDestinationDenied = errors.New("destination denied by policy")

// Config is the configuration for a destination policy.
type Config struct {
	// DenyPrefixes lists destination prefixes that are rejected.
	DenyPrefixes []netip.Prefix `json:"denyPrefixes"`

	// DenyPrefixSetPaths lists text files of prefixes to reject, one prefix per line.
	// Empty lines and lines starting with '#' are ignored.
	DenyPrefixSetPaths []string `json:"denyPrefixSetPaths"`

	// DenyCountries lists ISO 3166-1 country codes whose destinations are rejected.
	// Requires GeoLite2CountryDbPath.
	DenyCountries []string `json:"denyCountries"`

	// GeoLite2CountryDbPath is the path to a GeoLite2 Country database.
	GeoLite2CountryDbPath string `json:"geoLite2CountryDbPath"`
}

// Policy returns a new policy from the configuration.
// It returns nil if the configuration rejects nothing.
func (c *Config) Policy(logger *zap.Logger) (*Policy, error) {
	if len(c.DenyPrefixes) == 0 && len(c.DenyPrefixSetPaths) == 0 && len(c.DenyCountries) == 0 {
		return nil, nil
	}

	var sb netipx.IPSetBuilder
	for _, prefix := range c.DenyPrefixes {
		sb.AddPrefix(prefix.Masked())
	}
	for _, path := range c.DenyPrefixSetPaths {
		s, err := LoadPrefixSet(path)
		if err != nil {
			return nil, err
		}
		sb.AddSet(s)
	}

	denied, err := sb.IPSet()
	if err != nil {
		return nil, fmt.Errorf("failed to build denied prefix set: %w", err)
	}

	p := Policy{
		denied:    denied,
		countries: c.DenyCountries,
		logger:    logger,
	}

	if len(c.DenyCountries) > 0 {
		if c.GeoLite2CountryDbPath == "" {
			return nil, errors.New("denyCountries requires geoLite2CountryDbPath")
		}
		p.geoip, err = geoip2.Open(c.GeoLite2CountryDbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open GeoLite2 country database: %w", err)
		}
	}

	return &p, nil
}

// LoadPrefixSet reads a prefix set file and builds an IP set from it.
func LoadPrefixSet(path string) (*netipx.IPSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load prefix set %s: %w", path, err)
	}
	return IPSetFromText(string(data))
}

// IPSetFromText parses prefixes from the text, one per line, and builds an IP set.
func IPSetFromText(text string) (*netipx.IPSet, error) {
	var sb netipx.IPSetBuilder

	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" || line[0] == '#' {
			continue
		}

		prefix, err := netip.ParsePrefix(line)
		if err != nil {
			return nil, err
		}
		sb.AddPrefix(prefix.Masked())
	}

	return sb.IPSet()
}

// Policy rejects destinations by prefix and by GeoIP country.
//
// A nil *Policy allows every destination.
type Policy struct {
	denied    *netipx.IPSet
	countries []string
	geoip     *geoip2.Reader
	logger    *zap.Logger
}

// Check returns an error wrapping [ErrDestinationDenied] if dest is rejected.
func (p *Policy) Check(dest netip.AddrPort) error {
	if p == nil {
		return nil
	}

	addr := dest.Addr().Unmap()
	if p.denied.Contains(addr) {
		return fmt.Errorf("%w: %s is in a denied prefix", ErrDestinationDenied, addr)
	}

	if p.geoip != nil {
		country, err := p.geoip.Country(addr.AsSlice())
		if err != nil {
			return fmt.Errorf("failed to look up country of %s: %w", addr, err)
		}
		if ce := p.logger.Check(zap.DebugLevel, "Matched GeoIP country"); ce != nil {
			ce.Write(
				zap.Stringer("ip", addr),
				zap.String("country", country.Country.IsoCode),
			)
		}
		if slices.Contains(p.countries, country.Country.IsoCode) {
			return fmt.Errorf("%w: %s is in denied country %s", ErrDestinationDenied, addr, country.Country.IsoCode)
		}
	}

	return nil
}

// Close releases the GeoIP database, if any.
func (p *Policy) Close() error {
	if p == nil || p.geoip == nil {
		return nil
	}
	return p.geoip.Close()
}
