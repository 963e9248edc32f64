// Package config loads relay settings from environment variables with
// koanf and validates them before anything binds a socket.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Bind is the client-facing listen address in ip:port format.
	Bind string `koanf:"bind" validate:"required,ip_port"`

	// ChinaServers are the domestic upstream resolvers in ip:port format.
	ChinaServers []string `koanf:"china_servers" validate:"required,dive,ip_port"`

	// TrustServers are the trusted upstream resolvers in ip:port format.
	TrustServers []string `koanf:"trust_servers" validate:"required,dive,ip_port"`

	// ChnRouteFiles are CIDR list files describing the designated address
	// range replies are classified against.
	ChnRouteFiles []string `koanf:"chnroute_files" validate:"required"`

	// GFWListFiles and ChnListFiles are optional domain list files; names
	// they match skip the domestic or trusted group respectively.
	GFWListFiles []string `koanf:"gfwlist_files"`
	ChnListFiles []string `koanf:"chnlist_files"`

	// TagDB is the path of the Bolt database backing the domain tag index.
	TagDB string `koanf:"tag_db" validate:"required"`

	// TagCacheSize bounds the tag decision LRU; 0 disables the cache.
	TagCacheSize int `koanf:"tag_cache_size" validate:"gte=0"`

	// DefaultTag applies to names no list matches: "none", "gfw" or "chn".
	DefaultTag string `koanf:"default_tag" validate:"required,oneof=none gfw chn"`

	// TimeoutSec is how many seconds a forwarded query may wait upstream.
	TimeoutSec int `koanf:"timeout_sec" validate:"required,gte=1,lte=60"`

	// RepeatTimes duplicates each query to every trusted server, to
	// survive lossy paths.
	RepeatTimes int `koanf:"repeat_times" validate:"required,gte=1,lte=8"`

	// AcceptNoIP accepts domestic replies that carry no address record.
	AcceptNoIP bool `koanf:"accept_no_ip"`

	// FilterAAAA answers every AAAA query locally with an empty reply.
	FilterAAAA bool `koanf:"filter_aaaa"`
}

// DEFAULT_APP_CONFIG defines the default relay configuration.
var DEFAULT_APP_CONFIG = AppConfig{
	Env:           "prod",
	LogLevel:      "info",
	Bind:          "127.0.0.1:65353",
	ChinaServers:  []string{"114.114.114.114:53"},
	TrustServers:  []string{"8.8.8.8:53"},
	ChnRouteFiles: []string{"/etc/splitdns/chnroute.txt", "/etc/splitdns/chnroute6.txt"},
	TagDB:         "/var/lib/splitdns/nametag.db",
	TagCacheSize:  4096,
	DefaultTag:    "none",
	TimeoutSec:    5,
	RepeatTimes:   1,
	AcceptNoIP:    false,
	FilterAAAA:    false,
}

// validIPPort validates an "IP:Port" field value.
func validIPPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	ip, port, err := net.SplitHostPort(addr)
	if err != nil || ip == "" || port == "" {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0 && portNum < 65536
}

// envLoader loads environment variables with the prefix "SPLITDNS_",
// lowercasing keys and splitting list values on spaces or commas. A var so
// tests can substitute it.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: "SPLITDNS_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "SPLITDNS_"))
			value = strings.TrimSpace(value)

			if value == "" {
				return key, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return key, parts
			}

			return key, value
		},
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG via the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// registerValidation registers the custom "ip_port" rule.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("ip_port", validIPPort)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
