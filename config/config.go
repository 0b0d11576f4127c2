package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"votex/crypto"

	"github.com/BurntSushi/toml"
)

// Config carries the votexd runtime settings. Bech32 strings are kept as
// written in the file; Validate decodes them once at startup.
type Config struct {
	RPCAddress     string `toml:"RPCAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	ChainID        uint64 `toml:"ChainID"`
	DomainName     string `toml:"DomainName"`
	DomainVersion  string `toml:"DomainVersion"`

	// ModuleAddress is the account the exchange settles through: operators
	// approve it as the allowance spender for their utility balance.
	ModuleAddress string `toml:"ModuleAddress"`

	Operators []string `toml:"Operators"`
	Managers  []string `toml:"Managers"`

	// GenesisUtilityMint seeds each operator's utility balance on first
	// start, expressed in base units (1e18 per whole token).
	GenesisUtilityMint string `toml:"GenesisUtilityMint"`

	// RPCTokenEnv names the environment variable holding the bearer token
	// required for privileged RPC methods.
	RPCTokenEnv string `toml:"RPCTokenEnv"`
}

// Load loads the configuration from the given path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9090"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./votex-data"
	}
	if c.ChainID == 0 {
		c.ChainID = 77001
	}
	if strings.TrimSpace(c.DomainName) == "" {
		c.DomainName = "Votex Exchange"
	}
	if strings.TrimSpace(c.DomainVersion) == "" {
		c.DomainVersion = "1"
	}
	if strings.TrimSpace(c.RPCTokenEnv) == "" {
		c.RPCTokenEnv = "VOTEX_RPC_TOKEN"
	}
	if c.Operators == nil {
		c.Operators = []string{}
	}
	if c.Managers == nil {
		c.Managers = []string{}
	}
}

// Validate checks the address fields and amounts decode cleanly.
func (c *Config) Validate() error {
	if _, err := c.Module(); err != nil {
		return err
	}
	if _, err := c.OperatorAddresses(); err != nil {
		return err
	}
	if _, err := c.ManagerAddresses(); err != nil {
		return err
	}
	if _, err := c.GenesisMint(); err != nil {
		return err
	}
	return nil
}

// Module decodes the configured module address.
func (c *Config) Module() ([20]byte, error) {
	addr, err := crypto.DecodeAddress(c.ModuleAddress)
	if err != nil {
		return [20]byte{}, fmt.Errorf("config: ModuleAddress: %w", err)
	}
	return addr.Raw(), nil
}

// OperatorAddresses decodes the configured operator accounts.
func (c *Config) OperatorAddresses() ([][20]byte, error) {
	return decodeAddressList("Operators", c.Operators)
}

// ManagerAddresses decodes the configured manager accounts.
func (c *Config) ManagerAddresses() ([][20]byte, error) {
	return decodeAddressList("Managers", c.Managers)
}

// GenesisMint parses the genesis utility amount. An empty field means no
// genesis mint.
func (c *Config) GenesisMint() (*big.Int, error) {
	raw := strings.TrimSpace(c.GenesisUtilityMint)
	if raw == "" {
		return nil, nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("config: GenesisUtilityMint %q is not a non-negative integer", raw)
	}
	return amount, nil
}

func decodeAddressList(field string, values []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(values))
	for _, value := range values {
		addr, err := crypto.DecodeAddress(value)
		if err != nil {
			return nil, fmt.Errorf("config: %s entry %q: %w", field, value, err)
		}
		out = append(out, addr.Raw())
	}
	return out, nil
}

// createDefault creates and saves a default configuration file. The module
// account is derived from a freshly generated key so every deployment gets a
// distinct settlement address.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		ModuleAddress: key.PubKey().Address().String(),
		Operators:     []string{},
		Managers:      []string{},
	}
	cfg.applyDefaults()

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
