package model

const (
	BasePrice        = 60
	ToppingPrice     = 10
	MaxToppings      = 3
	LoyaltyThreshold = 10
)

var sizeSurcharge = map[CupSize]int{
	CupSizeS: 0,
	CupSizeM: 10,
	CupSizeL: 20,
}

// Pricing хранит разбивку стоимости заказа.
type Pricing struct {
	BasePrice         int `json:"basePrice"`
	SizeSurcharge     int `json:"sizeSurcharge"`
	ToppingsSurcharge int `json:"toppingsSurcharge"`
	Total             int `json:"total"`
}

// Subtotal возвращает сумму по позициям без учёта бесплатного заказа.
func (p Pricing) Subtotal() int {
	return p.BasePrice + p.SizeSurcharge + p.ToppingsSurcharge
}

// QuotePrice считает стоимость: база + надбавка за размер + 10 за каждый топпинг.
// Для бесплатного заказа итог равен нулю, но разбивка сохраняется.
func QuotePrice(size CupSize, toppings int, free bool) Pricing {
	p := Pricing{
		BasePrice:         BasePrice,
		SizeSurcharge:     sizeSurcharge[size],
		ToppingsSurcharge: toppings * ToppingPrice,
	}
	if !free {
		p.Total = p.Subtotal()
	}
	return p
}
