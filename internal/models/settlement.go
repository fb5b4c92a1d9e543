package models

// FeeFor возвращает комиссию площадки для суммы amount при ставке rateBps
// в базисных пунктах (500 = 5%). Округление всегда вниз.
func FeeFor(amount, rateBps int64) int64 {
	return amount * rateBps / 10000
}

// SettlementSplit описывает раскладку escrow-суммы заказа при его закрытии.
// Сумма трёх полей всегда равна Amount + FeeAmount заказа: деньги внутри
// расчёта не появляются и не исчезают.
type SettlementSplit struct {
	BuyerCredit    int64
	SellerCredit   int64
	PlatformCredit int64
}

// Total возвращает полную распределяемую сумму.
func (s SettlementSplit) Total() int64 {
	return s.BuyerCredit + s.SellerCredit + s.PlatformCredit
}

// ReleaseSplit — полная выплата продавцу. Покупатель заморозил amount + fee
// (fee — его сервисный сбор), продавец получает amount − fee (fee — его
// комиссия с продажи). Площадке достаются обе составляющие, поэтому её
// кредит равен 2*fee, а раскладка в сумме даёт ровно amount + fee.
func ReleaseSplit(amount, fee int64) SettlementSplit {
	return SettlementSplit{
		BuyerCredit:    0,
		SellerCredit:   amount - fee,
		PlatformCredit: 2 * fee,
	}
}

// RefundSplit — полный возврат покупателю, включая сервисный сбор.
func RefundSplit(amount, fee int64) SettlementSplit {
	return SettlementSplit{
		BuyerCredit:    amount + fee,
		SellerCredit:   0,
		PlatformCredit: 0,
	}
}

// PartialSplit — частичный возврат: покупатель получает ровно buyerPortion,
// продавец — остаток суммы заказа минус комиссия на свою часть, площадка —
// всё остальное из замороженной суммы.
func PartialSplit(amount, fee, buyerPortion, rateBps int64) SettlementSplit {
	sellerPortion := amount - buyerPortion
	sellerCredit := sellerPortion - FeeFor(sellerPortion, rateBps)
	return SettlementSplit{
		BuyerCredit:    buyerPortion,
		SellerCredit:   sellerCredit,
		PlatformCredit: amount + fee - buyerPortion - sellerCredit,
	}
}
