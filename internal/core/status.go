package core

// DocType identifies one of the five financial document kinds.
type DocType string

const (
	DocTypeExpense       DocType = "expense"
	DocTypePurchaseOrder DocType = "purchase_order"
	DocTypeSalesOrder    DocType = "sales_order"
	DocTypeInvoice       DocType = "invoice"
	DocTypeVendorBill    DocType = "vendor_bill"
)

// numberPrefix maps each document type to its code prefix, used when
// formatting document numbers like EXP-202501-001.
var numberPrefix = map[DocType]string{
	DocTypeExpense:       "EXP",
	DocTypePurchaseOrder: "PO",
	DocTypeSalesOrder:    "SO",
	DocTypeInvoice:       "INV",
	DocTypeVendorBill:    "BILL",
}

// Status is a document lifecycle state. Each document type uses a subset.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitted  Status = "submitted"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusReimbursed Status = "reimbursed"
	StatusConfirmed  Status = "confirmed"
	StatusPosted     Status = "posted"
	StatusPaid       Status = "paid"
)

// transitions is the fixed directed graph of legal status changes per
// document type. A status missing from its type's map is terminal.
var transitions = map[DocType]map[Status][]Status{
	DocTypeExpense: {
		StatusDraft:     {StatusSubmitted},
		StatusSubmitted: {StatusApproved, StatusRejected},
		StatusApproved:  {StatusReimbursed},
	},
	DocTypePurchaseOrder: {
		StatusDraft: {StatusConfirmed},
	},
	DocTypeSalesOrder: {
		StatusDraft: {StatusConfirmed},
	},
	DocTypeInvoice: {
		StatusDraft:  {StatusPosted},
		StatusPosted: {StatusPaid},
	},
	DocTypeVendorBill: {
		StatusDraft:  {StatusPosted},
		StatusPosted: {StatusPaid},
	},
}

// CanTransition reports whether the graph for dt permits moving from one
// status to another. It returns an InvalidTransitionError otherwise.
func CanTransition(dt DocType, from, to Status) error {
	for _, next := range transitions[dt][from] {
		if next == to {
			return nil
		}
	}
	return &InvalidTransitionError{DocType: dt, From: from, To: to}
}
