package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polypnl/internal/domain"
)

// InferSide deduce la dirección de un fill a partir de las patas de efectivo
// y token de su transacción, vistas desde la wallet:
//
//	USDC neto sale + token neto entra  => BUY
//	USDC neto entra + token neto sale  => SELL
//
// La confianza es HIGH cuando la transacción la liquidan exactamente dos
// partes (la wallet y una contraparte), MEDIUM con más contrapartes y LOW si
// alguna pata no identifica a su contraparte.
func InferSide(legs []domain.TransferLeg) (domain.Side, domain.Confidence) {
	netUSDC, netToken := decimal.Zero, decimal.Zero
	counterparties := make(map[string]struct{})
	anonymous := false

	for _, leg := range legs {
		switch leg.Asset {
		case domain.AssetUSDC:
			netUSDC = netUSDC.Add(leg.Amount)
		case domain.AssetToken:
			netToken = netToken.Add(leg.Amount)
		}
		if leg.Counterparty == "" {
			anonymous = true
		} else {
			counterparties[leg.Counterparty] = struct{}{}
		}
	}

	var side domain.Side
	switch {
	case netUSDC.IsNegative() && netToken.IsPositive():
		side = domain.SideBuy
	case netUSDC.IsPositive() && netToken.IsNegative():
		side = domain.SideSell
	default:
		return "", domain.ConfidenceNone
	}

	switch {
	case anonymous:
		return side, domain.ConfidenceLow
	case len(counterparties) == 1:
		return side, domain.ConfidenceHigh
	default:
		return side, domain.ConfidenceMedium
	}
}
