package polymarket

// trading.go: Fill-or-kill order execution via the Polymarket CLOB API.
//
// Implements ports.OrderExecutor and ports.Reconciler using AuthClient for
// L1/L2 auth. Orders are sent exactly once: an unanswered submit is left to
// the reconciler, never resent.

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

const (
	orderPath  = "/order"
	tradesPath = "/trades"

	// Un FOK se ejecuta o muere al instante; pasado este margen sin trades
	// en la Data API se da por muerto.
	reconcileGrace = 2 * time.Minute
	// holgura de reloj al buscar trades de un intent
	tradeClockSkew = 30 * time.Second
)

// TradingClient implements ports.OrderExecutor and ports.Reconciler.
type TradingClient struct {
	auth *AuthClient
}

// NewTradingClient creates a TradingClient.
func NewTradingClient(auth *AuthClient) *TradingClient {
	return &TradingClient{auth: auth}
}

// Submit signs and sends a BUY fill-or-kill order once. A rejection by the
// exchange is a KILLED fill with nil error. Any failure where the exchange's
// answer was not received is returned as an error: the outcome is unknown.
func (tc *TradingClient) Submit(ctx context.Context, intent domain.OrderIntent) (domain.Fill, error) {
	if err := tc.auth.EnsureCreds(ctx); err != nil {
		return domain.Fill{}, fmt.Errorf("trading.Submit: creds: %w", err)
	}

	signed, err := tc.auth.buildSignedOrder(intent.TokenID, intent.LimitPrice, intent.Quantity, intent.NegRisk)
	if err != nil {
		// nada se envió: equivale a un kill
		slog.Warn("trading: order not signed", "intent_id", intent.ID, "err", err)
		return killed(intent, tc.auth.now(), err.Error()), nil
	}

	tc.auth.mu.Lock()
	owner := tc.auth.creds.APIKey
	tc.auth.mu.Unlock()

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       intent.TokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          "BUY",
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     owner,
		OrderType: string(domain.OrderFOK),
	}

	var resp clobOrderResponse
	if err := tc.auth.doL2(ctx, http.MethodPost, orderPath, body, &resp, 0); err != nil {
		if apiErr, ok := isAPIError(err); ok {
			// la API contestó y rechazó la orden: no hubo ejecución
			return killed(intent, tc.auth.now(), apiErr.Body), nil
		}
		return domain.Fill{}, fmt.Errorf("trading.Submit: outcome unknown: %w", err)
	}

	return fillFromOrderResponse(intent, resp, tc.auth.now())
}

// fillFromOrderResponse interpreta la respuesta de POST /order para un FOK.
func fillFromOrderResponse(intent domain.OrderIntent, resp clobOrderResponse, now time.Time) (domain.Fill, error) {
	status := strings.ToLower(resp.Status)
	switch {
	case !resp.Success || resp.ErrorMsg != "":
		return killed(intent, now, resp.ErrorMsg), nil
	case status == "matched":
		shares := float64(resp.TakingAmount)
		cost := float64(resp.MakingAmount)
		if shares <= 0 {
			shares = intent.Quantity
		}
		if cost <= 0 {
			cost = intent.NotionalUSD
		}
		return domain.Fill{
			IntentID:      intent.ID,
			Status:        domain.FillFilled,
			Shares:        shares,
			AvgPrice:      cost / shares,
			CostUSD:       cost,
			ExchangeOrder: resp.OrderID,
			FilledAt:      now.UTC(),
		}, nil
	case status == "unmatched" || status == "cancelled" || status == "canceled":
		return killed(intent, now, "status "+status), nil
	default:
		// "delayed" y similares: el matching aún no terminó
		return domain.Fill{}, fmt.Errorf("trading.Submit: order %s status %q: outcome unknown", resp.OrderID, resp.Status)
	}
}

// Lookup resuelve un intent pendiente con los trades del wallet en la Data API.
// Implementa ports.Reconciler.
func (tc *TradingClient) Lookup(ctx context.Context, intent domain.OrderIntent) (domain.Fill, bool, error) {
	q := url.Values{}
	q.Set("user", tc.auth.Address())
	q.Set("market", intent.ConditionID)
	q.Set("limit", "100")

	var trades []rawDataTrade
	if err := tc.auth.get(ctx, tc.auth.dataLimiter, tc.auth.dataBase+tradesPath+"?"+q.Encode(), &trades); err != nil {
		return domain.Fill{}, false, fmt.Errorf("trading.Lookup: %w", err)
	}

	if fill, ok := fillFromTrades(intent.ID, intent.TokenID, trades, intent.CreatedAt.Add(-tradeClockSkew)); ok {
		return fill, true, nil
	}

	now := tc.auth.now()
	if now.Sub(intent.CreatedAt) > reconcileGrace {
		return killed(intent, now, "no trades after grace period"), true, nil
	}
	return domain.Fill{}, false, nil
}

func killed(intent domain.OrderIntent, now time.Time, reason string) domain.Fill {
	if len(reason) > 200 {
		reason = reason[:200]
	}
	return domain.Fill{
		IntentID: intent.ID,
		Status:   domain.FillKilled,
		Reason:   reason,
		FilledAt: now.UTC(),
	}
}
