// Package notification defines the tenant-scoped event delivered to
// consumers and the codec that parses it from raw feed payloads.
//
// Payloads are JSON objects:
//
//	{
//	  "orderId":       "12345",
//	  "tableId":       7,
//	  "tenantCode":    "rest-001",
//	  "previousState": "PENDING",
//	  "newState":      "IN_PREPARATION",
//	  "tableState":    "OCCUPIED",
//	  "type":          "DISH_UPDATE",
//	  "timestamp":     "2024-05-01T12:30:00Z"
//	}
//
// tenantCode, type and timestamp are always required. Order, payment and
// debt-validation kinds also require orderId; TABLE_STATUS_UPDATE requires
// tableId and tableState. Identifiers are kept verbatim whether they arrive
// as JSON strings or numbers. Timestamps may be RFC 3339 strings, zone-less
// ISO-8601 local date-times (read as UTC), or epoch milliseconds.
//
// A payload that fails any of these rules yields a *DecodeError and must be
// dropped by the caller.
package notification
