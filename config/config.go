package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the daemon configuration loaded from TOML.
type Config struct {
	RPCAddress   string `toml:"RPCAddress"`
	DataDir      string `toml:"DataDir"`
	Env          string `toml:"Env"`
	RPCAuthToken string `toml:"RPCAuthToken"`

	// OperatorAddress is the bech32 address allowed through the admin RPC
	// surface.
	OperatorAddress string `toml:"OperatorAddress"`
	// BridgeKeystorePath holds the endpoint signing key (Ethereum v3
	// keystore format).
	BridgeKeystorePath string `toml:"BridgeKeystorePath"`
	// BridgeKeystorePassphraseEnv names the environment variable carrying
	// the keystore passphrase.
	BridgeKeystorePassphraseEnv string `toml:"BridgeKeystorePassphraseEnv"`
	// BridgeFeeRecipient receives source-side bridge fees.
	BridgeFeeRecipient string `toml:"BridgeFeeRecipient"`
	// VaultModuleAddress is the treasury account reserves settle into.
	VaultModuleAddress string `toml:"VaultModuleAddress"`
	// FeeRecipient receives the protocol's share of accrued interest.
	FeeRecipient string `toml:"FeeRecipient"`

	Vault VaultConfig `toml:"Vault"`
}

// VaultConfig carries the vault economics. Amount fields are decimal strings
// of wei-denominated values.
type VaultConfig struct {
	BaseRateBps          uint64 `toml:"BaseRateBps"`
	TierDecrementBps     uint64 `toml:"TierDecrementBps"`
	MinimumRateBps       uint64 `toml:"MinimumRateBps"`
	TierSize             string `toml:"TierSize"`
	AccrualPeriodSeconds uint64 `toml:"AccrualPeriodSeconds"`
	MaxDailyAccrualBps   uint64 `toml:"MaxDailyAccrualBps"`
	ProtocolFeeBps       uint64 `toml:"ProtocolFeeBps"`
	MinDeposit           string `toml:"MinDeposit"`
	PerAddressCap        string `toml:"PerAddressCap"`
	GlobalCap            string `toml:"GlobalCap"`
	RequireAllowList     bool   `toml:"RequireAllowList"`
}

const defaultConfig = `# tidechaind configuration.
RPCAddress = "127.0.0.1:8643"
DataDir = "./tidedata"
Env = "dev"
RPCAuthToken = ""

OperatorAddress = ""
BridgeKeystorePath = "./tidedata/bridge.key"
BridgeKeystorePassphraseEnv = "TIDE_BRIDGE_PASSPHRASE"
BridgeFeeRecipient = ""
VaultModuleAddress = ""
FeeRecipient = ""

[Vault]
BaseRateBps = 1000
TierDecrementBps = 100
MinimumRateBps = 100
TierSize = "10000000000000000000"
AccrualPeriodSeconds = 86400
MaxDailyAccrualBps = 50
ProtocolFeeBps = 500
MinDeposit = "0"
PerAddressCap = "0"
GlobalCap = "0"
RequireAllowList = false
`

// Load reads the configuration at path, creating a commented default on
// first run.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(defaultConfig), 0o600); err != nil {
		return nil, err
	}
	cfg := &Config{}
	if _, err := toml.Decode(defaultConfig, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot start with.
func (c *Config) Validate() error {
	if c.RPCAddress == "" {
		return fmt.Errorf("config: RPCAddress required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if c.Vault.BaseRateBps > 10_000 {
		return fmt.Errorf("config: Vault.BaseRateBps exceeds 10000")
	}
	if c.Vault.ProtocolFeeBps > 10_000 {
		return fmt.Errorf("config: Vault.ProtocolFeeBps exceeds 10000")
	}
	if c.Vault.AccrualPeriodSeconds == 0 {
		return fmt.Errorf("config: Vault.AccrualPeriodSeconds required")
	}
	return nil
}
