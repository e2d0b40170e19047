package domain

// SettlementRequest is either a PayoutRequest or a RefundRequest.
type SettlementRequest interface {
	Method() Method
	Booking() int64
	// Payee is the account receiving funds.
	Payee() int64
	Renter() int64
	Address() (string, AddressType)
	Money() Amounts
	settlementRequest()
}

type Amounts struct {
	Total          int64
	ServiceFee     int64
	InsuranceFee   int64
	CouponDiscount int64
}

// Net is the amount released to the payee.
func (a Amounts) Net() int64 {
	return a.Total - a.ServiceFee - a.InsuranceFee - a.CouponDiscount
}

func (a Amounts) Validate() error {
	if a.Total < 0 || a.ServiceFee < 0 || a.InsuranceFee < 0 || a.CouponDiscount < 0 {
		return ErrInvalidAmount
	}
	if a.Net() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// PayoutRequest releases rental proceeds to the vehicle owner.
type PayoutRequest struct {
	BookingID       int64
	OwnerID         int64
	RenterID        int64
	Amounts         Amounts
	PayeeAddress    string
	AddressTypeHint AddressType
}

func (r PayoutRequest) Method() Method                 { return MethodPayout }
func (r PayoutRequest) Booking() int64                 { return r.BookingID }
func (r PayoutRequest) Payee() int64                   { return r.OwnerID }
func (r PayoutRequest) Renter() int64                  { return r.RenterID }
func (r PayoutRequest) Money() Amounts                 { return r.Amounts }
func (r PayoutRequest) Address() (string, AddressType) { return r.PayeeAddress, r.AddressTypeHint }
func (PayoutRequest) settlementRequest()               {}

// RefundRequest returns funds to the renter.
type RefundRequest struct {
	BookingID       int64
	RenterID        int64
	Amount          int64
	PayeeAddress    string
	AddressTypeHint AddressType
	Reason          string
}

func (r RefundRequest) Method() Method                 { return MethodRefund }
func (r RefundRequest) Booking() int64                 { return r.BookingID }
func (r RefundRequest) Payee() int64                   { return r.RenterID }
func (r RefundRequest) Renter() int64                  { return r.RenterID }
func (r RefundRequest) Money() Amounts                 { return Amounts{Total: r.Amount} }
func (r RefundRequest) Address() (string, AddressType) { return r.PayeeAddress, r.AddressTypeHint }
func (RefundRequest) settlementRequest()               {}
