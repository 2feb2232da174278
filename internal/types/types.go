package types

type Side string

type ProductType string

type OrderKind string

type PositionStatus string

type CloseReason string

type Segment string

type InstrumentKind string

type OptionType string

type CommissionBasis string

type EntryDirection string

type LedgerReason string

type BookType string

type Currency string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Sign returns +1 for long exposure and -1 for short exposure.
func (s Side) Sign() int64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

const (
	ProductIntraday     ProductType = "INTRADAY"
	ProductCarryForward ProductType = "CARRYFORWARD"
)

const (
	OrderKindMarket OrderKind = "MARKET"
	OrderKindLimit  OrderKind = "LIMIT"
	OrderKindStop   OrderKind = "STOP"
)

const (
	PositionPending   PositionStatus = "PENDING"
	PositionOpen      PositionStatus = "OPEN"
	PositionClosed    PositionStatus = "CLOSED"
	PositionCancelled PositionStatus = "CANCELLED"
)

const (
	CloseReasonManual   CloseReason = "MANUAL"
	CloseReasonNetting  CloseReason = "NETTING"
	CloseReasonRMS      CloseReason = "RMS"
	CloseReasonTime     CloseReason = "TIME_BASED"
	CloseReasonExpiry   CloseReason = "EXPIRY"
	CloseReasonAdmin    CloseReason = "ADMIN"
	CloseReasonStopLoss CloseReason = "STOP_LOSS"
	CloseReasonTarget   CloseReason = "TARGET"
)

// Canonical segment keys. Legacy aliases are folded onto these by
// settings.NormalizeSegment; no other component does string matching.
const (
	SegmentEquity    Segment = "EQUITY"
	SegmentFutures   Segment = "FUTURES"
	SegmentOptions   Segment = "OPTIONS"
	SegmentCommodity Segment = "COMMODITY"
	SegmentCrypto    Segment = "CRYPTO"
)

const (
	KindEquity InstrumentKind = "EQ"
	KindFuture InstrumentKind = "FUT"
	KindOption InstrumentKind = "OPT"
	KindSpot   InstrumentKind = "SPOT"
)

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

const (
	CommissionPerLot   CommissionBasis = "PER_LOT"
	CommissionPerTrade CommissionBasis = "PER_TRADE"
	CommissionTurnover CommissionBasis = "TURNOVER"
)

const (
	EntryCredit EntryDirection = "CREDIT"
	EntryDebit  EntryDirection = "DEBIT"
)

const (
	ReasonMarginReserve   LedgerReason = "MARGIN_RESERVE"
	ReasonMarginRelease   LedgerReason = "MARGIN_RELEASE"
	ReasonCommission      LedgerReason = "COMMISSION"
	ReasonCommissionBack  LedgerReason = "COMMISSION_REFUND"
	ReasonRealizedPnL     LedgerReason = "REALIZED_PNL"
	ReasonAdminPnL        LedgerReason = "ADMIN_PNL"
	ReasonAdminCommission LedgerReason = "ADMIN_COMMISSION"
	ReasonDeposit         LedgerReason = "DEPOSIT"
	ReasonWithdraw        LedgerReason = "WITHDRAW"
)

const (
	BookA BookType = "A_BOOK"
	BookB BookType = "B_BOOK"
)

// Two currency domains exist: the reference currency backing margin trades
// and the crypto unit backing spot crypto. They are never summed directly;
// conversion goes through the configured reference rate.
const (
	CurrencyReference Currency = "INR"
	CurrencyCrypto    Currency = "USDT"
)
