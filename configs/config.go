// Package configs loads the engine's environment-variable configuration
// surface through github.com/joho/godotenv (best-effort local .env
// loading) plus os.Getenv, with every field validated at startup.
package configs

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"arbengine/internal/util"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full validated runtime configuration for the arbitrage
// engine, assembled from environment variables.
type Config struct {
	PriceFeedURL     string
	RPCURL           string
	WalletSecret     string
	CapitalBase      *big.Int
	MaxPositionBase  *big.Int
	MinProfitMult    float64
	MinSpreadPct     float64
	MaxDailyTrades   int
	DailyLossCapBase *big.Int
	MaxConsecutiveFailures int
	EnableLive       bool
	PaperTrading     bool
	PriorityServiceURL string
	TargetTokens     []common.Address
	SkipPoolValidityCheck bool

	// Ambient fields, not required for correctness.
	MySQLDSN      string
	MetricsAddr   string
	LogLevel      string
	FeeReserveBase *big.Int
	TipAccounts   []common.Address

	// PoolRegistryAddr is the optional on-chain pool-registry contract
	// backing tier-4 short-id resolution; the zero address disables it.
	PoolRegistryAddr common.Address
}

// Load reads .env (if present, silently ignored otherwise), then the
// process environment, validating every field.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional local override; missing .env is not an error

	c := &Config{}
	var err error

	if c.PriceFeedURL, err = requireURL("PRICE_FEED_URL"); err != nil {
		return nil, err
	}
	if c.RPCURL, err = requireURL("RPC_URL"); err != nil {
		return nil, err
	}

	c.WalletSecret = os.Getenv("WALLET_SECRET")
	if encKey := os.Getenv("WALLET_SECRET_ENC_KEY"); encKey != "" {
		// At-rest encrypted secret: WALLET_SECRET holds AES-GCM ciphertext
		// and is decrypted before validation.
		key := util.Hex2Bytes(encKey)
		if key == nil {
			return nil, fmt.Errorf("configs: WALLET_SECRET_ENC_KEY is not valid hex")
		}
		plain, err := util.Decrypt(key, c.WalletSecret)
		if err != nil {
			return nil, fmt.Errorf("configs: decrypt WALLET_SECRET: %w", err)
		}
		c.WalletSecret = plain
	}
	if len(c.WalletSecret) < 80 || len(c.WalletSecret) > 90 {
		return nil, fmt.Errorf("configs: WALLET_SECRET must be 80-90 chars, got %d", len(c.WalletSecret))
	}
	if !isBase58(c.WalletSecret) {
		return nil, fmt.Errorf("configs: WALLET_SECRET is not valid base58")
	}

	if c.CapitalBase, err = requirePositiveBig("CAPITAL_BASE"); err != nil {
		return nil, err
	}
	if c.MaxPositionBase, err = requirePositiveBig("MAX_POSITION_BASE"); err != nil {
		return nil, err
	}
	if c.MaxPositionBase.Cmp(c.CapitalBase) > 0 {
		return nil, fmt.Errorf("configs: MAX_POSITION_BASE (%s) must be <= CAPITAL_BASE (%s)", c.MaxPositionBase, c.CapitalBase)
	}

	if c.MinProfitMult, err = requireFloatRange("MIN_PROFIT_MARGIN_MULT", 1.0, 10.0); err != nil {
		return nil, err
	}
	if c.MinSpreadPct, err = requireFloatMin("MIN_SPREAD_PCT", 0.0); err != nil {
		return nil, err
	}
	if c.MaxDailyTrades, err = requirePositiveInt("MAX_DAILY_TRADES"); err != nil {
		return nil, err
	}
	if c.DailyLossCapBase, err = requirePositiveBig("DAILY_LOSS_CAP_BASE"); err != nil {
		return nil, err
	}
	if c.MaxConsecutiveFailures, err = requirePositiveInt("MAX_CONSECUTIVE_FAILURES"); err != nil {
		return nil, err
	}

	c.EnableLive = parseBool(os.Getenv("ENABLE_LIVE"))
	c.PaperTrading = parseBool(os.Getenv("PAPER_TRADING"))
	if c.EnableLive && c.PaperTrading {
		return nil, fmt.Errorf("configs: ENABLE_LIVE and PAPER_TRADING cannot both be true")
	}

	c.PriorityServiceURL = os.Getenv("PRIORITY_SERVICE_URL")

	if raw := os.Getenv("TARGET_TOKENS"); raw != "" {
		for _, tok := range strings.Split(raw, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if !common.IsHexAddress(tok) {
				return nil, fmt.Errorf("configs: TARGET_TOKENS entry %q is not a valid address", tok)
			}
			c.TargetTokens = append(c.TargetTokens, common.HexToAddress(tok))
		}
	}

	c.SkipPoolValidityCheck = parseBool(os.Getenv("SKIP_POOL_VALIDITY_CHECK"))

	c.MySQLDSN = os.Getenv("MYSQL_DSN")
	c.MetricsAddr = os.Getenv("METRICS_ADDR")
	c.LogLevel = os.Getenv("LOG_LEVEL")
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	c.FeeReserveBase = big.NewInt(0)
	if raw := os.Getenv("FEE_RESERVE_BASE"); raw != "" {
		n, ok := new(big.Int).SetString(raw, 10)
		if !ok || n.Sign() < 0 {
			return nil, fmt.Errorf("configs: FEE_RESERVE_BASE must be a non-negative integer, got %q", raw)
		}
		c.FeeReserveBase = n
	}

	if raw := os.Getenv("POOL_REGISTRY_ADDR"); raw != "" {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("configs: POOL_REGISTRY_ADDR %q is not a valid address", raw)
		}
		c.PoolRegistryAddr = common.HexToAddress(raw)
	}

	if raw := os.Getenv("TIP_ACCOUNTS"); raw != "" {
		for _, tok := range strings.Split(raw, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			if !common.IsHexAddress(tok) {
				return nil, fmt.Errorf("configs: TIP_ACCOUNTS entry %q is not a valid address", tok)
			}
			c.TipAccounts = append(c.TipAccounts, common.HexToAddress(tok))
		}
	}

	return c, nil
}

func requireURL(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("configs: %s is required", key)
	}
	for _, scheme := range []string{"http://", "https://", "ws://", "wss://"} {
		if strings.HasPrefix(v, scheme) {
			return v, nil
		}
	}
	return "", fmt.Errorf("configs: %s must use http/https/ws/wss scheme, got %q", key, v)
}

func requirePositiveBig(key string) (*big.Int, error) {
	v := os.Getenv(key)
	n, ok := new(big.Int).SetString(v, 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("configs: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func requirePositiveInt(key string) (int, error) {
	v := os.Getenv(key)
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("configs: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func requireFloatRange(key string, min, max float64) (float64, error) {
	v := os.Getenv(key)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < min || f > max {
		return 0, fmt.Errorf("configs: %s must be in [%g, %g], got %q", key, min, max, v)
	}
	return f, nil
}

func requireFloatMin(key string, min float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return min, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < min {
		return 0, fmt.Errorf("configs: %s must be >= %g, got %q", key, min, v)
	}
	return f, nil
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b
}

func isBase58(s string) bool {
	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	for _, r := range s {
		if !strings.ContainsRune(alphabet, r) {
			return false
		}
	}
	return true
}

// VenueRegistrySeed is an optional static program-ID-to-venue-family
// table, loaded at startup to give each venue instruction builder the
// program address its pools must be owned by. It does not populate the
// pool registry.
type VenueRegistrySeed struct {
	Venues []VenueSeedEntry `yaml:"venues"`
}

// VenueSeedEntry maps one known program address to its venue family.
type VenueSeedEntry struct {
	ProgramAddress string `yaml:"program_address"`
	Family         string `yaml:"family"`
}

// LoadVenueRegistrySeed reads an optional YAML seed file. A missing file
// is not an error; callers should treat a nil return as "no seed data".
func LoadVenueRegistrySeed(path string) (*VenueRegistrySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("configs: read venue registry seed %s: %w", path, err)
	}
	var seed VenueRegistrySeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("configs: parse venue registry seed %s: %w", path, err)
	}
	return &seed, nil
}
