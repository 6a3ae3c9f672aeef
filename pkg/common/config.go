package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port       string      `yaml:"port"`
	JWTSecret  string      `yaml:"jwt_secret"`
	DB         DBConfig    `yaml:"db"`
	Split      Split       `yaml:"split"`
	Oracle     Oracle      `yaml:"oracle"`
	Sweep      Sweep       `yaml:"sweep"`
	Webhooks   []Webhook   `yaml:"webhooks"`
	Vaults     []Vault     `yaml:"vaults"`
	Workspaces []Workspace `yaml:"workspaces"`
}

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// Split holds the allocation percentages in basis points. The yield share
// is implicit: whatever the other two leave behind.
type Split struct {
	TaxBPS       int64 `yaml:"tax_bps"`
	LiquidityBPS int64 `yaml:"liquidity_bps"`
}

// Duration decodes YAML strings like "30s" or "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Oracle struct {
	RPCURL       string   `yaml:"rpc_url"`
	TokenAddress string   `yaml:"token_address"`
	Timeout      Duration `yaml:"timeout"`
}

type Sweep struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
	// Accounts to reconcile even before their first ledger row exists.
	Accounts []string `yaml:"accounts"`
}

// Vault seeds the policy registry with an eligible destination vault.
type Vault struct {
	Address string `yaml:"address"`
	ChainID int64  `yaml:"chain_id"`
	Name    string `yaml:"name"`
}

// Workspace seeds the policy registry with a workspace's compliance state.
type Workspace struct {
	ID              string `yaml:"id"`
	KYCApproved     bool   `yaml:"kyc_approved"`
	InsuranceActive bool   `yaml:"insurance_active"`
}

// Webhook is one registered delivery endpoint for a workspace.
type Webhook struct {
	WorkspaceID string `yaml:"workspace_id"`
	URL         string `yaml:"url"`
	Secret      string `yaml:"secret"`
}

// LoadConfig reads the optional YAML file at path, then applies environment
// overrides and defaults. A missing file is not an error; env-only
// deployments are supported.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		Port: "8080",
		DB: DBConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			Name:     "treasury",
			SSLMode:  "disable",
		},
		Split:  Split{TaxBPS: 3000, LiquidityBPS: 2000},
		Oracle: Oracle{Timeout: Duration{10 * time.Second}},
		Sweep:  Sweep{Interval: Duration{time.Minute}},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.DB.Host = getEnv("DB_HOST", cfg.DB.Host)
	cfg.DB.Port = getEnv("DB_PORT", cfg.DB.Port)
	cfg.DB.User = getEnv("DB_USER", cfg.DB.User)
	cfg.DB.Password = getEnv("DB_PASSWORD", cfg.DB.Password)
	cfg.DB.Name = getEnv("DB_NAME", cfg.DB.Name)
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", cfg.DB.SSLMode)
	cfg.Oracle.RPCURL = getEnv("ORACLE_RPC_URL", cfg.Oracle.RPCURL)
	cfg.Oracle.TokenAddress = getEnv("ORACLE_TOKEN_ADDRESS", cfg.Oracle.TokenAddress)
	cfg.Split.TaxBPS = int64(GetEnvInt("SPLIT_TAX_BPS", int(cfg.Split.TaxBPS)))
	cfg.Split.LiquidityBPS = int64(GetEnvInt("SPLIT_LIQUIDITY_BPS", int(cfg.Split.LiquidityBPS)))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if c.Split.TaxBPS < 0 || c.Split.LiquidityBPS < 0 {
		return fmt.Errorf("split basis points must be non-negative")
	}
	if c.Split.TaxBPS+c.Split.LiquidityBPS > 10000 {
		return fmt.Errorf("tax_bps + liquidity_bps must not exceed 10000, got %d",
			c.Split.TaxBPS+c.Split.LiquidityBPS)
	}
	if c.Sweep.Enabled && c.Oracle.RPCURL == "" {
		return fmt.Errorf("sweep requires oracle.rpc_url")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func GetEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return fallback
}
