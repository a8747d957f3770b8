// Package ranking помечает отклики с минимальной ценой. Чистая функция,
// пересчитывается при каждом чтении.
package ranking

import (
	"github.com/shopspring/decimal"

	"tendermarket/db"
)

// RankedBid — отклик с признаком лучшей цены для витрины тендера.
type RankedBid struct {
	db.Bid
	IsBestPrice bool `json:"isBestPrice"`
}

// Rank находит минимальную цену и помечает все отклики, совпавшие с ней.
// Сравнение десятичное, без двоичной плавающей точки: "100.10" и "100.1" —
// одна и та же цена. Отклик с нечитаемой ценой никогда не бывает лучшим и
// не участвует в поиске минимума. Для пустого списка минимум не определён.
func Rank(bids []db.Bid) []RankedBid {
	ranked := make([]RankedBid, len(bids))
	prices := make([]decimal.Decimal, len(bids))
	parsed := make([]bool, len(bids))

	var min decimal.Decimal
	haveMin := false
	for i, b := range bids {
		ranked[i] = RankedBid{Bid: b}
		p, err := decimal.NewFromString(b.OfferPrice)
		if err != nil {
			continue
		}
		prices[i] = p
		parsed[i] = true
		if !haveMin || p.LessThan(min) {
			min = p
			haveMin = true
		}
	}
	if !haveMin {
		return ranked
	}

	for i := range ranked {
		if parsed[i] && prices[i].Equal(min) {
			ranked[i].IsBestPrice = true
		}
	}
	return ranked
}
