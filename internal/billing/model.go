// Package billing keeps the append-only payment ledger, invoice bookkeeping
// and the derived payment KPIs. Ledger entries are never updated or deleted;
// the appointment record stays the source of truth for current payment state,
// the ledger for history.
package billing

import (
	"time"

	"github.com/google/uuid"
)

type EntryKind string

const (
	KindPayment        EntryKind = "payment"
	KindPartialPayment EntryKind = "partial_payment"
	KindRefund         EntryKind = "refund"
)

// Entry is one event in the payment ledger.
type Entry struct {
	ID            int64
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Kind          EntryKind
	Amount        float64
	Method        string
	ProcessedBy   string
	Notes         string
	CreatedAt     time.Time
}

type InvoiceStatus string

const (
	InvoiceUnpaid InvoiceStatus = "unpaid"
	InvoicePaid   InvoiceStatus = "paid"
)

// Invoice is a billed amount with its own number and due date. It exists for
// overdue-billing reporting only and is separate from the appointment's
// payment fields.
type Invoice struct {
	ID            uuid.UUID
	Number        string
	AppointmentID uuid.UUID
	PatientID     uuid.UUID
	Amount        float64
	DueDate       time.Time
	Status        InvoiceStatus
	RemindedAt    *time.Time
	CreatedAt     time.Time
}

// AppointmentFigure is the billing-relevant slice of one appointment used for
// KPI aggregation. Statuses are carried as raw strings so the package does
// not depend on the appointment package.
type AppointmentFigure struct {
	Status        string
	PaymentStatus string
	Amount        float64
	AmountPaid    float64
}

// KPIs is the aggregate payment dashboard over a window.
type KPIs struct {
	PendingTotal       float64 `json:"pending_total"`
	TodayRevenue       float64 `json:"today_revenue"`
	OverdueInvoices    int     `json:"overdue_invoice_count"`
	SuccessRatePercent float64 `json:"success_rate_percent"`
}
