package domain

// PricingBreakdown captures the monetary results of pricing a cart for
// checkout. Subtotal is the sum of the cart lines; ChargeTotal is what the
// payment gateway collects (subtotal plus delivery fee).
type PricingBreakdown struct {
	Currency    string
	Subtotal    int64
	DeliveryFee int64
	ChargeTotal int64
	Items       []ItemPricingBreakdown
}

// ItemPricingBreakdown stores the per-line pricing outputs.
type ItemPricingBreakdown struct {
	MenuItemID string
	Quantity   int
	UnitPrice  int64
	Subtotal   int64
}

// CartSubtotal computes the derived total of the cart lines.
func CartSubtotal(items []CartItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitPrice
	}
	return total
}

// PriceCart produces the checkout breakdown for the given cart lines.
func PriceCart(items []CartItem, deliveryFee int64, currency string) PricingBreakdown {
	breakdown := PricingBreakdown{
		Currency:    currency,
		DeliveryFee: deliveryFee,
		Items:       make([]ItemPricingBreakdown, 0, len(items)),
	}
	for _, item := range items {
		line := ItemPricingBreakdown{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
			Subtotal:   int64(item.Quantity) * item.UnitPrice,
		}
		breakdown.Subtotal += line.Subtotal
		breakdown.Items = append(breakdown.Items, line)
	}
	breakdown.ChargeTotal = breakdown.Subtotal + deliveryFee
	return breakdown
}
