package onchain

// ctf.go — lectura de resoluciones directamente del contrato CTF en Polygon.
//
// El Conditional Token Framework guarda el vector de payout de cada condición
// una vez que el oráculo la resuelve:
//   payoutDenominator(conditionId) == 0  → condición abierta
//   payoutNumerators(conditionId, i)     → numerador del outcome i
//
// Sólo hace eth_call; nunca firma ni envía transacciones.

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alejandrodnm/polypnl/internal/domain"
	"github.com/alejandrodnm/polypnl/internal/resolution"
)

// CTFAddress es el contrato de conditional tokens de Polymarket en Polygon.
const CTFAddress = "0x4D97DCd97eC945f40cF65F87097ACe5EA0476045"

var ctfABI abi.ABI

func init() {
	var err error
	ctfABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getOutcomeSlotCount",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "conditionId", "type": "bytes32"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "payoutDenominator",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "", "type": "bytes32"}],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "payoutNumerators",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "", "type": "bytes32"},
				{"name": "", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		}
	]`))
	if err != nil {
		panic("ctf abi parse: " + err.Error())
	}
}

// ResolutionSource implementa ports.ResolutionSource leyendo el CTF.
type ResolutionSource struct {
	caller ethereum.ContractCaller
	ctf    common.Address
	closer func()
}

// NewResolutionSource envuelve cualquier ContractCaller (ethclient, simulado).
func NewResolutionSource(caller ethereum.ContractCaller) *ResolutionSource {
	return &ResolutionSource{
		caller: caller,
		ctf:    common.HexToAddress(CTFAddress),
		closer: func() {},
	}
}

// Dial conecta con un nodo RPC de Polygon.
func Dial(ctx context.Context, rpcURL string) (*ResolutionSource, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("onchain.Dial: %w", err)
	}
	s := NewResolutionSource(client)
	s.closer = client.Close
	return s, nil
}

// Close cierra la conexión RPC si la abrió Dial.
func (s *ResolutionSource) Close() { s.closer() }

// FetchResolutions devuelve un candidato por cada condición ya resuelta en el
// CTF. Las abiertas o desconocidas para el contrato no aparecen; un fallo RPC
// aborta el lote para que el backfill lo reintente.
func (s *ResolutionSource) FetchResolutions(ctx context.Context, ids []domain.ConditionID) ([]domain.ResolutionCandidate, error) {
	out := make([]domain.ResolutionCandidate, 0, len(ids))
	for _, id := range ids {
		c, ok, err := s.fetch(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("onchain.FetchResolutions: %s: %w", id, err)
		}
		if ok {
			out = append(out, c)
		}
	}
	slog.Debug("onchain resolutions fetched", "markets", len(ids), "resolved", len(out))
	return out, nil
}

func (s *ResolutionSource) fetch(ctx context.Context, id domain.ConditionID) (domain.ResolutionCandidate, bool, error) {
	key, err := conditionKey(id)
	if err != nil {
		return domain.ResolutionCandidate{}, false, err
	}

	den, err := s.callUint(ctx, "payoutDenominator", key)
	if err != nil {
		return domain.ResolutionCandidate{}, false, err
	}
	if den.Sign() == 0 {
		return domain.ResolutionCandidate{}, false, nil
	}

	slots, err := s.callUint(ctx, "getOutcomeSlotCount", key)
	if err != nil {
		return domain.ResolutionCandidate{}, false, err
	}
	if !slots.IsInt64() || slots.Int64() == 0 || slots.Int64() > 256 {
		return domain.ResolutionCandidate{}, false, fmt.Errorf("unexpected outcome slot count %s", slots)
	}
	if !den.IsInt64() {
		return domain.ResolutionCandidate{}, false, fmt.Errorf("payout denominator overflows int64: %s", den)
	}

	n := int(slots.Int64())
	nums := make([]int64, n)
	for i := 0; i < n; i++ {
		v, err := s.callUint(ctx, "payoutNumerators", key, big.NewInt(int64(i)))
		if err != nil {
			return domain.ResolutionCandidate{}, false, err
		}
		if !v.IsInt64() {
			return domain.ResolutionCandidate{}, false, fmt.Errorf("payout numerator %d overflows int64: %s", i, v)
		}
		nums[i] = v.Int64()
	}

	return domain.ResolutionCandidate{
		MarketID:          id.Hex(),
		WinningIndex:      -1, // se deriva del vector
		PayoutNumerators:  nums,
		PayoutDenominator: den.Int64(),
		Source:            resolution.SourceOnChain,
	}, true, nil
}

// callUint hace un eth_call a una función view que devuelve un uint256.
func (s *ResolutionSource) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := ctfABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	result, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.ctf, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	vals, err := ctfABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("unpack %s: empty result", method)
	}
	v, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack %s: unexpected type %T", method, vals[0])
	}
	return v, nil
}

func conditionKey(id domain.ConditionID) ([32]byte, error) {
	var key [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(id.Hex(), "0x"))
	if err != nil || len(raw) != 32 {
		return key, fmt.Errorf("%w: condition id %q", domain.ErrMissingIdentifier, id)
	}
	copy(key[:], raw)
	return key, nil
}
