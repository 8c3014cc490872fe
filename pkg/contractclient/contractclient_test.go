package contractclient

import (
	"encoding/json"
	"math/big"
	"os"
	"testing"

	"arbengine/internal/util"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
)

const erc20ABI = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}]`

func TestDecodeTransaction_Transfer(t *testing.T) {
	parsed, err := util.LoadABI(writeTempABI(t))
	assert.NoError(t, err)

	cc := NewContractClient(nil, common.HexToAddress("0x0000000000000000000000000000000000000001"), parsed)

	packed, err := parsed.Pack("transfer", common.HexToAddress("0x6e4141d33021b52c91c28608403db4a0ffb50ec6"), mustBig("1000000"))
	assert.NoError(t, err)

	decoded, err := cc.DecodeTransaction(packed)
	assert.NoError(t, err)
	assert.Equal(t, "transfer", decoded.MethodName)
	assert.Equal(t, "1000000", decoded.Args["amount"].(interface{ String() string }).String())
}

// TestDecodeTransaction_Live requires a live RPC endpoint and is skipped
// unless RPC_URL / CONTRACT_ADDR / TX_HASH are set, mirroring the
// integration-style tests elsewhere in this module.
func TestDecodeTransaction_Live(t *testing.T) {
	_ = godotenv.Load("env/.env.test.local")

	rpcURL := os.Getenv("RPC_URL")
	contractAddr := os.Getenv("CONTRACT_ADDR")
	txHash := os.Getenv("TX_HASH")
	if rpcURL == "" || contractAddr == "" || txHash == "" {
		t.Skip("RPC_URL/CONTRACT_ADDR/TX_HASH not set, skipping live decode test")
	}

	abiPath := os.Getenv("ABI_PATH")
	parsed, err := util.LoadABIFromHardhatArtifact(abiPath)
	if err != nil {
		t.Fatalf("failed to load ABI: %v", err)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		t.Fatalf("failed to dial RPC: %v", err)
	}
	cc := NewContractClient(client, common.HexToAddress(contractAddr), parsed)

	data, err := cc.TransactionData(common.HexToHash(txHash))
	if err != nil {
		t.Fatalf("failed to fetch transaction data: %v", err)
	}
	decoded, err := cc.DecodeTransaction(data)
	if err != nil {
		t.Fatalf("failed to decode transaction: %v", err)
	}
	jsonData, _ := json.MarshalIndent(decoded, "", "  ")
	t.Logf("decoded: %s", jsonData)
}

func writeTempABI(t *testing.T) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "erc20-*.json")
	assert.NoError(t, err)
	_, err = f.WriteString(erc20ABI)
	assert.NoError(t, err)
	assert.NoError(t, f.Close())
	return f.Name()
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad bigint literal in test")
	}
	return v
}
