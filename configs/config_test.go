package configs

import (
	"encoding/hex"
	"testing"

	"arbengine/internal/util"

	"github.com/stretchr/testify/assert"
)

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("PRICE_FEED_URL", "https://feed.example.com")
	t.Setenv("RPC_URL", "https://rpc.example.com")
	t.Setenv("WALLET_SECRET", stringOfLen(84))
	t.Setenv("CAPITAL_BASE", "1000000000")
	t.Setenv("MAX_POSITION_BASE", "100000000")
	t.Setenv("MIN_PROFIT_MARGIN_MULT", "1.5")
	t.Setenv("MIN_SPREAD_PCT", "0")
	t.Setenv("MAX_DAILY_TRADES", "50")
	t.Setenv("DAILY_LOSS_CAP_BASE", "50000000")
	t.Setenv("MAX_CONSECUTIVE_FAILURES", "5")
	t.Setenv("ENABLE_LIVE", "false")
	t.Setenv("PAPER_TRADING", "true")
}

func stringOfLen(n int) string {
	const alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	out := make([]byte, n)
	for i := range out {
		out[i] = alphabet[i%len(alphabet)]
	}
	return string(out)
}

func TestLoadSucceedsWithValidEnv(t *testing.T) {
	setValidEnv(t)
	c, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "https://feed.example.com", c.PriceFeedURL)
	assert.True(t, c.PaperTrading)
	assert.False(t, c.EnableLive)
}

func TestLoadRejectsMaxPositionAboveCapital(t *testing.T) {
	setValidEnv(t)
	t.Setenv("MAX_POSITION_BASE", "2000000000")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDecryptsAtRestWalletSecret(t *testing.T) {
	setValidEnv(t)
	key := []byte("0123456789abcdef0123456789abcdef")
	sealed, err := util.Encrypt(key, stringOfLen(84))
	assert.NoError(t, err)
	t.Setenv("WALLET_SECRET", sealed)
	t.Setenv("WALLET_SECRET_ENC_KEY", hex.EncodeToString(key))

	c, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, stringOfLen(84), c.WalletSecret)
}

func TestLoadRejectsUndecryptableWalletSecret(t *testing.T) {
	setValidEnv(t)
	t.Setenv("WALLET_SECRET", "deadbeef")
	t.Setenv("WALLET_SECRET_ENC_KEY", hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadWalletSecretLength(t *testing.T) {
	setValidEnv(t)
	t.Setenv("WALLET_SECRET", "tooshort")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonURLScheme(t *testing.T) {
	setValidEnv(t)
	t.Setenv("RPC_URL", "not-a-url")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBothLiveAndPaperTrading(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ENABLE_LIVE", "true")
	t.Setenv("PAPER_TRADING", "true")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadParsesTargetTokensAllowList(t *testing.T) {
	setValidEnv(t)
	t.Setenv("TARGET_TOKENS", "0x0000000000000000000000000000000000000001, 0x0000000000000000000000000000000000000002")
	c, err := Load()
	assert.NoError(t, err)
	assert.Len(t, c.TargetTokens, 2)
}

func TestLoadVenueRegistrySeedMissingFileIsNotError(t *testing.T) {
	seed, err := LoadVenueRegistrySeed("/nonexistent/path/seed.yaml")
	assert.NoError(t, err)
	assert.Nil(t, seed)
}
