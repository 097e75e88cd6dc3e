package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- CLOB API ---

// orderBookRequest es el body del POST /books batch.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es la respuesta de un item en POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Market  string         `json:"market"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw es un nivel de precio raw de la API (strings para mayor precisión).
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// --- Gamma API ---

// gammaMarket contiene la metadata de un mercado de Gamma.
// Gamma mezcla números y strings para los mismos campos, y codifica
// outcomes, outcomePrices y clobTokenIds como JSON dentro de un string.
type gammaMarket struct {
	ConditionID      string     `json:"conditionId"`
	Question         string     `json:"question"`
	Slug             string     `json:"slug"`
	Description      string     `json:"description"`
	ResolutionSource string     `json:"resolutionSource"`
	EndDate          string     `json:"endDate"`
	EndDateISO       string     `json:"endDateIso"`
	Outcomes         string     `json:"outcomes"`
	OutcomePrices    string     `json:"outcomePrices"`
	ClobTokenIDs     string     `json:"clobTokenIds"`
	Volume24h        flexFloat  `json:"volume24hr"`
	Liquidity        flexFloat  `json:"liquidity"`
	LiquidityNum     flexFloat  `json:"liquidityNum"`
	BestBid          flexFloat  `json:"bestBid"`
	BestAsk          flexFloat  `json:"bestAsk"`
	NegRisk          bool       `json:"negRisk"`
	Active           bool       `json:"active"`
	Closed           bool       `json:"closed"`
	UMAStatus        string     `json:"umaResolutionStatus"`
	ClosedTime       string     `json:"closedTime"`
	Tags             []gammaTag `json:"tags"`
}

type gammaTag struct {
	Label string `json:"label"`
}

// flexFloat acepta 1.5, "1.5", "" y null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// --- Data API ---

// rawDataTrade es un trade de la Data API pública.
type rawDataTrade struct {
	ProxyWallet     string      `json:"proxyWallet"`
	ConditionID     string      `json:"conditionId"`
	Asset           string      `json:"asset"`
	Side            string      `json:"side"`
	Price           flexFloat   `json:"price"`
	Size            flexFloat   `json:"size"`
	Timestamp       json.Number `json:"timestamp"`
	TransactionHash string      `json:"transactionHash"`
}

// --- CLOB trading ---

// clobOrderRequest es el body de POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

// clobOrderResponse es la respuesta de POST /order.
// Para un BUY, makingAmount es USDC entregado y takingAmount shares recibidas.
type clobOrderResponse struct {
	ErrorMsg     string    `json:"errorMsg"`
	OrderID      string    `json:"orderID"`
	TakingAmount flexFloat `json:"takingAmount"`
	MakingAmount flexFloat `json:"makingAmount"`
	Status       string    `json:"status"`
	Success      bool      `json:"success"`
}
