// Package config implements the ambient YAML configuration wrapper and the
// network-declaration (DSL) loader described by SPEC_FULL.md §A
// "Configuration": a small set of knobs that aren't part of the
// host/subnet/group language of internal/confparse (journal path, lease
// and offer durations, ICMP timeout, DDNS zone, interface list; there is no
// journal-rewrite threshold), read from YAML the way
// internal/dhcpd/config.go's ServerConfig wraps V4ServerConf, plus the
// network section itself, loaded from the path the YAML's config_file
// names (or [DefaultConfigFile]) and parsed by internal/confparse.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/netutil"
	"github.com/AdguardTeam/golibs/validate"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the network-declaration file path used when the YAML
// configuration does not set config_file.
const DefaultConfigFile = "/etc/dhcpd/dhcpd.conf"

// DDNSConfig is the ambient DNS-update configuration (§6 "DNS update").
// Server is empty when DDNS is disabled, in which case no updates are ever
// attempted.
type DDNSConfig struct {
	Server        string `yaml:"server"`
	Net           string `yaml:"net"`
	TimeoutMS     uint32 `yaml:"timeout_msec"`
	ForwardZone   string `yaml:"forward_zone"`
	ReverseZone   string `yaml:"reverse_zone"`
	RecordTTL     uint32 `yaml:"record_ttl"`
	LocalHostname string `yaml:"local_domain_name"`
}

// Enabled reports whether the DDNS config names an update server.
func (d *DDNSConfig) Enabled() bool { return d != nil && d.Server != "" }

// type check
var _ validate.Interface = (*DDNSConfig)(nil)

// Validate implements the [validate.Interface] interface for *DDNSConfig.
func (d *DDNSConfig) Validate() (err error) {
	if d == nil || !d.Enabled() {
		return nil
	}

	errs := []error{
		validate.NotEmpty("net", d.Net),
	}

	if err = netutil.ValidateDomainName(d.ForwardZone); err != nil {
		errs = append(errs, fmt.Errorf("forward_zone: %w", err))
	}

	if d.ReverseZone != "" {
		if err = netutil.ValidateDomainName(d.ReverseZone); err != nil {
			errs = append(errs, fmt.Errorf("reverse_zone: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Config is the top-level ambient configuration, the wrapper
// internal/dhcpd/config.go's ServerConfig plays for V4ServerConf,
// generalized from a single-interface LAN-discovery server to the
// DSL-driven multi-interface/multi-network core this module implements.
// The order of YAML fields matters, since a configuration file follows it
// (per ServerConfig's own doc comment).
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Interfaces lists the network interface names the server listens on.
	// It must not be empty.
	Interfaces []string `yaml:"interfaces"`

	// ConfigFile is the path to the DSL network-declaration file
	// (host/subnet/shared-network/pool/class/group), loaded and parsed by
	// internal/confparse. It must not be empty.
	ConfigFile string `yaml:"config_file"`

	// JournalPath is the path to the append-only lease journal file (§4.6).
	// It must not be empty.
	JournalPath string `yaml:"journal_path"`

	// LeaseDurationSec is the default lease lifetime in seconds, used when
	// no fixed-address host or `default-lease-time` statement overrides it.
	LeaseDurationSec uint32 `yaml:"lease_duration"`

	// OfferTimeoutMS bounds how long a DHCPOFFER's tentative reservation is
	// held awaiting the client's DHCPREQUEST (§4.7) before it's reclaimed.
	OfferTimeoutMS uint32 `yaml:"offer_timeout_msec"`

	// ICMPTimeoutMS is the timeout for the ICMP ping-check gating reuse of
	// an abandoned lease (§4.4 "successful ping-check timeout"). Zero
	// disables the check.
	ICMPTimeoutMS uint32 `yaml:"icmp_timeout_msec"`

	// LocalDomainName is the domain DHCP clients' hostnames are resolved
	// under, mirroring internal/dhcpd/config.go's ServerConfig field of the
	// same name.
	LocalDomainName string `yaml:"local_domain_name"`

	DDNS *DDNSConfig `yaml:"ddns"`
}

// LeaseDuration returns the configured default lease lifetime as a
// [time.Duration].
func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.LeaseDurationSec) * time.Second
}

// OfferTimeout returns the configured offer-hold timeout as a
// [time.Duration].
func (c *Config) OfferTimeout() time.Duration {
	return time.Duration(c.OfferTimeoutMS) * time.Millisecond
}

// ICMPTimeout returns the configured ICMP probe timeout as a
// [time.Duration].
func (c *Config) ICMPTimeout() time.Duration {
	return time.Duration(c.ICMPTimeoutMS) * time.Millisecond
}

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config,
// mirroring internal/dhcpsvc/config.go's Config.Validate shape.
func (c *Config) Validate() (err error) {
	switch {
	case c == nil:
		return errors.ErrNoValue
	case !c.Enabled:
		return nil
	}

	errs := []error{
		validate.NotEmptySlice("interfaces", c.Interfaces),
		validate.NotEmpty("config_file", c.ConfigFile),
		validate.NotEmpty("journal_path", c.JournalPath),
		validate.NotNegative("icmp_timeout_msec", c.ICMPTimeoutMS),
	}

	if c.LocalDomainName != "" {
		if err = netutil.ValidateDomainName(c.LocalDomainName); err != nil {
			errs = append(errs, fmt.Errorf("local_domain_name: %w", err))
		}
	}

	errs = validate.Append(errs, "ddns", c.DDNS)

	return errors.Join(errs...)
}

// Load reads and validates the ambient YAML configuration at path,
// defaulting ConfigFile to [DefaultConfigFile] if unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	c := &Config{ConfigFile: DefaultConfigFile}
	if err = yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	if err = c.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %q: %w", path, err)
	}

	return c, nil
}
