package config

// DefaultBridgeURL is the loopback endpoint the wallet bridge listens on.
const DefaultBridgeURL = "http://127.0.0.1:8645/rpc"

// DefaultAppName is embedded in authentication challenges.
const DefaultAppName = "Estatelink"

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.estatelink",
		Provider: ProviderConfig{
			Type:    ProviderBridge,
			Chain:   ChainSTX,
			AppName: DefaultAppName,
		},
		Bridge: BridgeConfig{
			URL:           DefaultBridgeURL,
			RatePerSecond: 5,
			Burst:         10,
		},
		Keystore: KeystoreConfig{
			Name: "default",
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
			Verbose:       false,
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.estatelink/estatelink.log",
		},
	}
}
