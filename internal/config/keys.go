package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// maxKeySuggestionDistance bounds how far a typo may be from a known key.
const maxKeySuggestionDistance = 3

type keyAccessor struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

//nolint:gochecknoglobals // static lookup table of settable keys
var keyAccessors = map[string]keyAccessor{
	"home": {
		get: func(c *Config) string { return c.Home },
		set: func(c *Config, v string) error { c.Home = v; return nil },
	},
	"provider.type": {
		get: func(c *Config) string { return c.Provider.Type },
		set: func(c *Config, v string) error {
			return setOneOf(&c.Provider.Type, v, ProviderBridge, ProviderKeystore)
		},
	},
	"provider.chain": {
		get: func(c *Config) string { return c.Provider.Chain },
		set: func(c *Config, v string) error {
			return setOneOf(&c.Provider.Chain, v, ChainETH, ChainSTX)
		},
	},
	"provider.app_name": {
		get: func(c *Config) string { return c.Provider.AppName },
		set: func(c *Config, v string) error { c.Provider.AppName = v; return nil },
	},
	"bridge.url": {
		get: func(c *Config) string { return c.Bridge.URL },
		set: func(c *Config, v string) error { c.Bridge.URL = strings.TrimSpace(v); return nil },
	},
	"bridge.token": {
		get: func(c *Config) string {
			if c.Bridge.Token == "" {
				return ""
			}
			return "********"
		},
		set: func(c *Config, v string) error { c.Bridge.Token = v; return nil },
	},
	"bridge.rate_per_second": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Bridge.RatePerSecond, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f < 0 {
				return invalidValue("bridge.rate_per_second", v)
			}
			c.Bridge.RatePerSecond = f
			return nil
		},
	},
	"bridge.burst": {
		get: func(c *Config) string { return strconv.Itoa(c.Bridge.Burst) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return invalidValue("bridge.burst", v)
			}
			c.Bridge.Burst = n
			return nil
		},
	},
	"keystore.name": {
		get: func(c *Config) string { return c.Keystore.Name },
		set: func(c *Config, v string) error { c.Keystore.Name = v; return nil },
	},
	"keystore.account": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Keystore.Account), 10) },
		set: func(c *Config, v string) error { return setUint32(&c.Keystore.Account, "keystore.account", v) },
	},
	"keystore.index": {
		get: func(c *Config) string { return strconv.FormatUint(uint64(c.Keystore.Index), 10) },
		set: func(c *Config, v string) error { return setUint32(&c.Keystore.Index, "keystore.index", v) },
	},
	"output.default_format": {
		get: func(c *Config) string { return c.Output.DefaultFormat },
		set: func(c *Config, v string) error {
			return setOneOf(&c.Output.DefaultFormat, v, "auto", "json", "text")
		},
	},
	"output.color": {
		get: func(c *Config) string { return c.Output.Color },
		set: func(c *Config, v string) error {
			return setOneOf(&c.Output.Color, v, "always", "auto", "never")
		},
	},
	"output.verbose": {
		get: func(c *Config) string { return strconv.FormatBool(c.Output.Verbose) },
		set: func(c *Config, v string) error { c.Output.Verbose = parseBool(v); return nil },
	},
	"logging.level": {
		get: func(c *Config) string { return c.Logging.Level },
		set: func(c *Config, v string) error {
			return setOneOf(&c.Logging.Level, v, "debug", "error", "off")
		},
	},
	"logging.file": {
		get: func(c *Config) string { return c.Logging.File },
		set: func(c *Config, v string) error { c.Logging.File = v; return nil },
	},
}

// Keys returns every settable config key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(keyAccessors))
	for k := range keyAccessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the value of a dotted config key.
func (c *Config) Get(key string) (string, error) {
	acc, err := lookupKey(key)
	if err != nil {
		return "", err
	}
	return acc.get(c), nil
}

// Set assigns a dotted config key from its string form.
func (c *Config) Set(key, value string) error {
	acc, err := lookupKey(key)
	if err != nil {
		return err
	}
	return acc.set(c, value)
}

func lookupKey(key string) (keyAccessor, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if acc, ok := keyAccessors[key]; ok {
		return acc, nil
	}

	err := linkerr.WithDetails(linkerr.ErrUnknownConfigKey, map[string]string{"key": key})
	if s := SuggestKey(key); s != "" {
		return keyAccessor{}, linkerr.WithSuggestion(err, fmt.Sprintf("did you mean '%s'?", s))
	}
	return keyAccessor{}, linkerr.WithSuggestion(err, "run 'estatelink config show' to list keys")
}

// SuggestKey returns the closest known key to input, or "" if none is close.
func SuggestKey(input string) string {
	best := ""
	bestDist := maxKeySuggestionDistance + 1
	for _, k := range Keys() {
		if d := levenshtein.ComputeDistance(input, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}

func setOneOf(dst *string, v string, allowed ...string) error {
	v = strings.ToLower(strings.TrimSpace(v))
	for _, a := range allowed {
		if v == a {
			*dst = v
			return nil
		}
	}
	return linkerr.WithSuggestion(
		linkerr.WithDetails(linkerr.ErrInvalidInput, map[string]string{"value": v}),
		"expected one of: "+strings.Join(allowed, ", "),
	)
}

func setUint32(dst *uint32, key, v string) error {
	n, err := strconv.ParseUint(v, 10, 31)
	if err != nil {
		return invalidValue(key, v)
	}
	*dst = uint32(n)
	return nil
}

func invalidValue(key, v string) error {
	return linkerr.WithDetails(linkerr.ErrInvalidInput, map[string]string{key: v})
}
