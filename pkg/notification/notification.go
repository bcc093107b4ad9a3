package notification

import (
	"strings"
	"time"
)

// Kind identifies what changed.
type Kind uint8

// Notification kinds.
const (
	KindUnknown Kind = iota
	KindNewOrder
	KindDishUpdate
	KindPaymentUpdate
	KindTableStatusUpdate
	KindDebtValidationRequest
	KindDebtValidationApproved
	KindDebtValidationRejected
)

var kindNames = map[Kind]string{
	KindNewOrder:               "NEW_ORDER",
	KindDishUpdate:             "DISH_UPDATE",
	KindPaymentUpdate:          "PAYMENT_UPDATE",
	KindTableStatusUpdate:      "TABLE_STATUS_UPDATE",
	KindDebtValidationRequest:  "DEBT_VALIDATION_REQUEST",
	KindDebtValidationApproved: "DEBT_VALIDATION_APPROVED",
	KindDebtValidationRejected: "DEBT_VALIDATION_REJECTED",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// RequiresOrder reports whether notifications of this kind carry an order id.
func (k Kind) RequiresOrder() bool {
	switch k {
	case KindNewOrder, KindDishUpdate, KindPaymentUpdate,
		KindDebtValidationRequest, KindDebtValidationApproved, KindDebtValidationRejected:
		return true
	}
	return false
}

// ParseKind parses a wire kind name. Matching ignores case and accepts
// hyphens in place of underscores.
func ParseKind(s string) (Kind, bool) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for k, name := range kindNames {
		if name == norm {
			return k, true
		}
	}
	return KindUnknown, false
}

// TableState is the occupancy of a table.
type TableState uint8

// Table states. TableStateUnset means the payload carried none.
const (
	TableStateUnset TableState = iota
	TableStateFree
	TableStateOccupied
	TableStateReserved
)

// String returns the wire name of the table state.
func (s TableState) String() string {
	switch s {
	case TableStateUnset:
		return ""
	case TableStateFree:
		return "FREE"
	case TableStateOccupied:
		return "OCCUPIED"
	case TableStateReserved:
		return "RESERVED"
	default:
		return "UNKNOWN"
	}
}

// ParseTableState parses a wire table state, ignoring case.
func ParseTableState(s string) (TableState, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FREE":
		return TableStateFree, true
	case "OCCUPIED":
		return TableStateOccupied, true
	case "RESERVED":
		return TableStateReserved, true
	}
	return TableStateUnset, false
}

// Notification is a decoded feed event. It is a value type; consumers
// receive their own copy.
type Notification struct {
	OrderID       string
	TableID       string
	TenantCode    string
	PreviousState string
	NewState      string
	TableState    TableState
	Kind          Kind
	Timestamp     time.Time
}
