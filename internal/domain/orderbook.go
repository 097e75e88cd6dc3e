package domain

import "strconv"

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64 // en shares
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// AskDepthAtOrBelow devuelve las shares ofrecidas a precio <= limit.
func (ob OrderBook) AskDepthAtOrBelow(limit float64) float64 {
	var total float64
	for _, a := range ob.Asks {
		if a.Price > limit+priceEpsilon {
			break
		}
		total += a.Size
	}
	return total
}

// SweepAsks simula comprar qty shares recorriendo los asks hasta limit.
// Devuelve el coste total en USDC y el precio medio. ok=false si la profundidad
// disponible no cubre qty completo (semántica fill-or-kill).
func (ob OrderBook) SweepAsks(qty, limit float64) (cost, avgPrice float64, ok bool) {
	if qty <= 0 {
		return 0, 0, false
	}
	remaining := qty
	for _, a := range ob.Asks {
		if a.Price > limit+priceEpsilon || remaining <= 0 {
			break
		}
		take := min(a.Size, remaining)
		cost += take * a.Price
		remaining -= take
	}
	if remaining > sizeEpsilon {
		return 0, 0, false
	}
	return cost, cost / qty, true
}

const (
	priceEpsilon = 1e-9
	sizeEpsilon  = 1e-9
)

// ParsePrice convierte un string de precio a float64.
// Usado en el mapping de la API.
func ParsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
