package domain

// OrderBook representa el libro de órdenes de un instrumento.
type OrderBook struct {
	Bids []BookEntry // ordenados mayor a menor precio
	Asks []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
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

// AskDepth returns the total size resting on the ask side, limited to the
// top maxLevels levels (0 = all levels).
func (ob OrderBook) AskDepth(maxLevels int) float64 {
	return depth(ob.Asks, maxLevels)
}

// BidDepth returns the total size resting on the bid side, limited to the
// top maxLevels levels (0 = all levels).
func (ob OrderBook) BidDepth(maxLevels int) float64 {
	return depth(ob.Bids, maxLevels)
}

// SideDepth returns the depth that an entering order of the given side would
// consume: buyers (UP / LONG) hit asks, sellers (DOWN-exit / SHORT) hit bids.
func (ob OrderBook) SideDepth(side Side, maxLevels int) float64 {
	if side == SideUp || side == SideLong {
		return ob.AskDepth(maxLevels)
	}
	return ob.BidDepth(maxLevels)
}

func depth(levels []BookEntry, maxLevels int) float64 {
	if maxLevels <= 0 || maxLevels > len(levels) {
		maxLevels = len(levels)
	}
	var total float64
	for _, l := range levels[:maxLevels] {
		total += l.Size
	}
	return total
}
