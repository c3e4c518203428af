package cli

import (
	"context"

	"github.com/mrz1836/estatelink/internal/config"
	"github.com/mrz1836/estatelink/internal/provider"
	"github.com/mrz1836/estatelink/internal/provider/bridge"
	"github.com/mrz1836/estatelink/internal/provider/keystore"
	"github.com/mrz1836/estatelink/internal/version"
	"github.com/mrz1836/estatelink/internal/walletsession"
	linkerr "github.com/mrz1836/estatelink/pkg/errors"
)

// newProviderFn builds the configured wallet provider. Tests replace it.
//
//nolint:gochecknoglobals // swappable for tests
var newProviderFn = newProvider

func newProvider(c *config.Config) (provider.Provider, error) {
	switch c.Provider.Type {
	case config.ProviderBridge:
		return bridge.New(bridge.Options{
			URL:           c.Bridge.URL,
			Token:         c.Bridge.Token,
			RatePerSecond: c.Bridge.RatePerSecond,
			Burst:         c.Bridge.Burst,
			StatePath:     c.ProviderStatePath(bridge.Name),
			UserAgent:     version.UserAgent(),
		}), nil
	case config.ProviderKeystore:
		return keystore.New(keystore.Options{
			Dir:       c.KeystoreDir(),
			Keystore:  c.Keystore.Name,
			Account:   c.Keystore.Account,
			Index:     c.Keystore.Index,
			StatePath: c.ProviderStatePath(keystore.Name),
			Prompter:  terminalPrompter{},
		}), nil
	default:
		return nil, linkerr.WithDetails(linkerr.ErrUnknownProvider, map[string]string{
			"provider": c.Provider.Type,
		})
	}
}

// openSession builds the provider and session for cc and restores any
// existing link. The returned func releases provider resources.
func openSession(ctx context.Context, cc *CommandContext) (*walletsession.Session, func(), error) {
	if err := cc.Config.Validate(); err != nil {
		return nil, nil, err
	}

	p, err := newProviderFn(cc.Config)
	if err != nil {
		return nil, nil, err
	}

	opts := []walletsession.Option{
		walletsession.WithChain(cc.Config.Provider.Chain),
		walletsession.WithAppName(cc.Config.Provider.AppName),
		walletsession.WithMetrics(cc.Metrics),
	}
	if cc.Logger != nil {
		opts = append(opts, walletsession.WithLogger(cc.Logger))
	}

	s, err := walletsession.New(provider.Instrument(p, cc.Metrics), opts...)
	if err != nil {
		return nil, nil, err
	}

	s.Initialize(ctx)

	closeFn := func() {
		if c, ok := p.(interface{ Close() }); ok {
			c.Close()
		}
	}
	return s, closeFn, nil
}
