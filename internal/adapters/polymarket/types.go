package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Data API ---

// dataTrade es un fill de GET /trades?user=.
type dataTrade struct {
	ProxyWallet     string      `json:"proxyWallet"`
	Side            string      `json:"side"`
	Asset           string      `json:"asset"`
	ConditionID     string      `json:"conditionId"`
	Size            json.Number `json:"size"`
	Price           json.Number `json:"price"`
	Timestamp       json.Number `json:"timestamp"`
	Outcome         string      `json:"outcome"`
	OutcomeIndex    int         `json:"outcomeIndex"`
	TransactionHash string      `json:"transactionHash"`
}

// --- CLOB API ---

// clobMarket es la respuesta de GET /markets/{condition_id}.
type clobMarket struct {
	ConditionID string      `json:"condition_id"`
	Question    string      `json:"question"`
	Tokens      []clobToken `json:"tokens"`
	Active      bool        `json:"active"`
	Closed      bool        `json:"closed"`
	EndDateISO  string      `json:"end_date_iso"`
}

// clobToken representa un outcome del mercado. El orden en tokens[] es el
// índice de outcome.
type clobToken struct {
	TokenID string      `json:"token_id"`
	Outcome string      `json:"outcome"`
	Price   json.Number `json:"price"`
	Winner  bool        `json:"winner"`
}

// midpointResponse es la respuesta de GET /midpoint.
type midpointResponse struct {
	Mid json.Number `json:"mid"`
}

// --- Gamma API ---

// gammaMarket contiene el estado de un mercado en Gamma. outcomePrices viene
// como string JSON con un array de strings dentro.
type gammaMarket struct {
	ConditionID         string `json:"conditionId"`
	Question            string `json:"question"`
	Closed              bool   `json:"closed"`
	OutcomePrices       string `json:"outcomePrices"`
	UMAResolutionStatus string `json:"umaResolutionStatus"`
	ClosedTime          string `json:"closedTime"`
}

// --- Leaderboard API ---

// profitEntry es una fila de GET /profit.
type profitEntry struct {
	ProxyWallet string      `json:"proxyWallet"`
	Amount      json.Number `json:"amount"`
}
