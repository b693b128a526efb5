package onchain_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polypnl/internal/adapters/onchain"
	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/resolution"
)

var testABI abi.ABI

func init() {
	var err error
	testABI, err = abi.JSON(strings.NewReader(`[
		{"name": "getOutcomeSlotCount", "type": "function", "inputs": [{"name": "c", "type": "bytes32"}], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "payoutDenominator", "type": "function", "inputs": [{"name": "c", "type": "bytes32"}], "outputs": [{"name": "", "type": "uint256"}]},
		{"name": "payoutNumerators", "type": "function", "inputs": [{"name": "c", "type": "bytes32"}, {"name": "i", "type": "uint256"}], "outputs": [{"name": "", "type": "uint256"}]}
	]`))
	if err != nil {
		panic(err)
	}
}

// fakeCTF simula el contrato: condición → vector de payout.
type fakeCTF struct {
	payouts map[[32]byte][]int64
	den     map[[32]byte]int64
	calls   int
	fail    bool
}

func (f *fakeCTF) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("rpc down")
	}
	if msg.To == nil || *msg.To != common.HexToAddress(onchain.CTFAddress) {
		return nil, errors.New("wrong contract")
	}
	method, err := testABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	key := args[0].([32]byte)

	var out int64
	switch method.Name {
	case "payoutDenominator":
		out = f.den[key]
	case "getOutcomeSlotCount":
		out = int64(len(f.payouts[key]))
	case "payoutNumerators":
		out = f.payouts[key][args[1].(*big.Int).Int64()]
	}
	return method.Outputs.Pack(big.NewInt(out))
}

func key(id domain.ConditionID) [32]byte {
	var k [32]byte
	copy(k[:], common.FromHex(id.Hex()))
	return k
}

func TestFetchResolutions_ResolvedAndOpen(t *testing.T) {
	resolved := domain.MustConditionID("0x" + strings.Repeat("ab", 32))
	open := domain.MustConditionID("0x" + strings.Repeat("cd", 32))

	ctf := &fakeCTF{
		payouts: map[[32]byte][]int64{
			key(resolved): {0, 1},
			key(open):     {0, 0},
		},
		den: map[[32]byte]int64{key(resolved): 1},
	}

	got, err := onchain.NewResolutionSource(ctf).FetchResolutions(context.Background(), []domain.ConditionID{resolved, open})
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, resolved.Hex(), c.MarketID)
	assert.Equal(t, []int64{0, 1}, c.PayoutNumerators)
	assert.Equal(t, int64(1), c.PayoutDenominator)
	assert.Equal(t, resolution.SourceOnChain, c.Source)

	res, err := resolution.Normalize(c)
	require.NoError(t, err)
	assert.Equal(t, 1, res.WinningIndex)
}

func TestFetchResolutions_SplitPayout(t *testing.T) {
	id := domain.MustConditionID("0x" + strings.Repeat("0f", 32))
	ctf := &fakeCTF{
		payouts: map[[32]byte][]int64{key(id): {1, 1}},
		den:     map[[32]byte]int64{key(id): 2},
	}

	got, err := onchain.NewResolutionSource(ctf).FetchResolutions(context.Background(), []domain.ConditionID{id})
	require.NoError(t, err)
	require.Len(t, got, 1)

	res, err := resolution.Normalize(got[0])
	require.NoError(t, err)
	assert.Equal(t, -1, res.WinningIndex) // 50/50: sin ganador único
}

func TestFetchResolutions_RPCErrorAbortsBatch(t *testing.T) {
	id := domain.MustConditionID("0x" + strings.Repeat("11", 32))
	_, err := onchain.NewResolutionSource(&fakeCTF{fail: true}).FetchResolutions(context.Background(), []domain.ConditionID{id})
	assert.Error(t, err)
}
