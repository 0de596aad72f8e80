// Package pricing derives booking amounts, the platform commission split and
// invoice figures.  All money is carried as decimal.Decimal in whole currency
// units (rupees); ToMinorUnits converts for the payment gateway.
package pricing

import (
    "github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Breakdown is the price of one booking.
type Breakdown struct {
    Hours        decimal.Decimal `json:"hours"`
    DistanceKm   decimal.Decimal `json:"distance_km"`
    RentAmount   decimal.Decimal `json:"rent_amount"`
    TransportFee decimal.Decimal `json:"transport_fee"`
    TotalAmount  decimal.Decimal `json:"total_amount"`
}

// Quote prices a booking: rent is hours times the hourly price, transport is
// the distance times the per-km rate rounded to a whole unit, and the total
// is their sum.
func Quote(hours float64, pricePerHour decimal.Decimal, distanceKm float64, transportRate decimal.Decimal) Breakdown {
    h := decimal.NewFromFloat(hours)
    dist := decimal.NewFromFloat(distanceKm)
    rent := h.Mul(pricePerHour).Round(2)
    transport := dist.Mul(transportRate).Round(0)
    return Breakdown{
        Hours:        h,
        DistanceKm:   dist.Round(2),
        RentAmount:   rent,
        TransportFee: transport,
        TotalAmount:  rent.Add(transport),
    }
}

// Split is the division of a payment between the platform and the owner.
type Split struct {
    Commission  decimal.Decimal `json:"admin_commission"`
    OwnerAmount decimal.Decimal `json:"owner_amount"`
}

// SplitCommission computes the platform commission at rate (a fraction, e.g.
// 0.10) rounded to paise.  The owner receives the remainder, so
// Commission + OwnerAmount always equals total exactly.
func SplitCommission(total, rate decimal.Decimal) Split {
    commission := total.Mul(rate).Round(2)
    return Split{Commission: commission, OwnerAmount: total.Sub(commission)}
}

// ToMinorUnits converts an amount to the gateway's minor unit (paise).
func ToMinorUnits(amount decimal.Decimal) int64 {
    return amount.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64) decimal.Decimal {
    return decimal.NewFromInt(minor).Div(hundred)
}

// InvoiceAmounts are the figures printed on an invoice.  GrandTotal is what
// the farmer paid; Tax is levied on the platform fee.
type InvoiceAmounts struct {
    Subtotal     decimal.Decimal `json:"subtotal"`
    TransportFee decimal.Decimal `json:"transport_fee"`
    PlatformFee  decimal.Decimal `json:"platform_fee"`
    Tax          decimal.Decimal `json:"tax"`
    OwnerPayout  decimal.Decimal `json:"owner_payout"`
    GrandTotal   decimal.Decimal `json:"grand_total"`
}

// Invoice recomputes invoice figures from a booking's rent and transport fee.
func Invoice(rent, transport, commissionRate, taxRate decimal.Decimal) InvoiceAmounts {
    total := rent.Add(transport)
    split := SplitCommission(total, commissionRate)
    return InvoiceAmounts{
        Subtotal:     rent,
        TransportFee: transport,
        PlatformFee:  split.Commission,
        Tax:          split.Commission.Mul(taxRate).Round(2),
        OwnerPayout:  split.OwnerAmount,
        GrandTotal:   total,
    }
}
