package models

import (
	"time"

	"github.com/google/uuid"
)

// Roles carried by the identity collaborator's claims.
const (
	RoleNurse  = "nurse"
	RoleDoctor = "doctor"
	RoleAdmin  = "admin"
)

// Actor is the authenticated caller attached to every core operation.
type Actor struct {
	ID         uuid.UUID `json:"id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	Role       string    `json:"role"`
	Name       string    `json:"name,omitempty"`
}

// Consultation lifecycle
const (
	ConsultationQueued    = "queued"
	ConsultationClaimed   = "claimed"
	ConsultationCompleted = "completed"
	ConsultationDeclined  = "declined"
)

const (
	PriorityNormal = "normal"
	PriorityUrgent = "urgent"
)

type Consultation struct {
	ID             uuid.UUID  `json:"id"`
	Code           string     `json:"code"` // human reference, e.g. CON000042
	PatientID      uuid.UUID  `json:"patient_id"`
	HospitalID     uuid.UUID  `json:"hospital_id"`
	NurseID        uuid.UUID  `json:"nurse_id"`
	DoctorID       *uuid.UUID `json:"doctor_id,omitempty"`
	ChiefComplaint string     `json:"chief_complaint"`
	ConditionType  string     `json:"condition_type"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	PayReady       bool       `json:"pay_ready"`
	DeclineReason  string     `json:"decline_reason,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type MedicationLine struct {
	Name         string  `json:"name"`
	Code         string  `json:"code,omitempty"`
	Quantity     float64 `json:"qty"`
	Dosage       string  `json:"dosage"`
	Frequency    string  `json:"frequency"`
	Duration     string  `json:"duration"`
	Instructions string  `json:"instructions,omitempty"`
}

type DigitalSignature struct {
	DoctorName    string    `json:"doctor_name"`
	Qualification string    `json:"qualification,omitempty"`
	SignedAt      time.Time `json:"signed_at"`
}

type Prescription struct {
	ID             uuid.UUID        `json:"id"`
	ConsultationID uuid.UUID        `json:"consultation_id"`
	PatientID      uuid.UUID        `json:"patient_id"`
	HospitalID     uuid.UUID        `json:"hospital_id"`
	DoctorID       uuid.UUID        `json:"doctor_id"`
	Medications    []MedicationLine `json:"medications"`
	Notes          string           `json:"notes,omitempty"`
	Signature      DigitalSignature `json:"digital_signature"`
	LockedForNurse bool             `json:"locked_for_nurse"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// RxCharge lifecycle
const (
	ChargePending = "pending"
	ChargePaid    = "paid"
	ChargeVoid    = "void"
)

type ChargeItem struct {
	MedicineID uuid.UUID `json:"medicine_id"`
	Name       string    `json:"name"`
	Quantity   float64   `json:"qty"`
	UnitPrice  float64   `json:"unit_price"`
	LineTotal  float64   `json:"line_total"`
}

type RxCharge struct {
	ID             uuid.UUID    `json:"id"`
	ConsultationID uuid.UUID    `json:"consultation_id"`
	PrescriptionID uuid.UUID    `json:"prescription_id"`
	PatientID      uuid.UUID    `json:"patient_id"`
	HospitalID     uuid.UUID    `json:"hospital_id"`
	Items          []ChargeItem `json:"items"`
	Subtotal       float64      `json:"subtotal"`
	TaxTotal       float64      `json:"tax_total"`
	GrandTotal     float64      `json:"grand_total"`
	Status         string       `json:"status"`
	PaymentID      *uuid.UUID   `json:"payment_id,omitempty"`
	PaidAt         *time.Time   `json:"paid_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Payment tracks and channels
const (
	PaymentKindConsult = "consult"
	PaymentKindRx      = "rx"

	PaymentMethodGateway = "gateway"
	PaymentMethodCash    = "cash"

	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

type Payment struct {
	ID               uuid.UUID  `json:"id"`
	ConsultationID   uuid.UUID  `json:"consultation_id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	HospitalID       uuid.UUID  `json:"hospital_id"`
	Amount           float64    `json:"amount"` // rupees
	Kind             string     `json:"kind"`
	Method           string     `json:"method"`
	Status           string     `json:"status"`
	GatewayOrderID   string     `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string     `json:"gateway_payment_id,omitempty"`
	GatewaySignature string     `json:"gateway_signature,omitempty"`
	CreatedBy        uuid.UUID  `json:"created_by"`
	VerifiedBy       *uuid.UUID `json:"verified_by,omitempty"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type CatalogEntry struct {
	ID         uuid.UUID `json:"id"`
	HospitalID uuid.UUID `json:"hospital_id"`
	Code       string    `json:"code,omitempty"`
	Name       string    `json:"name"`
	Form       string    `json:"form,omitempty"`
	Strength   string    `json:"strength,omitempty"`
	UnitPrice  float64   `json:"unit_price"`
	IsActive   bool      `json:"is_active"`
}

type StockLevel struct {
	HospitalID uuid.UUID `json:"hospital_id"`
	MedicineID uuid.UUID `json:"medicine_id"`
	Quantity   float64   `json:"quantity"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]string      `json:"metadata,omitempty"`
}

// Request payloads

type CreateConsultationRequest struct {
	PatientID      uuid.UUID `json:"patient_id"`
	ChiefComplaint string    `json:"chief_complaint"`
	ConditionType  string    `json:"condition_type"`
	Priority       string    `json:"priority,omitempty"`
}

type DeclineConsultationRequest struct {
	Reason string `json:"reason,omitempty"`
}

type UpsertPrescriptionRequest struct {
	ConsultationID uuid.UUID        `json:"consultation_id"`
	Medications    []MedicationLine `json:"medications"`
	Notes          string           `json:"notes,omitempty"`
	Qualification  string           `json:"qualification,omitempty"`
}

type CreateOrderRequest struct {
	Kind           string    `json:"kind"`
	ConsultationID uuid.UUID `json:"consultation_id"`
	Amount         float64   `json:"amount,omitempty"` // rupees; ignored for kind=rx
}

type CreateOrderResponse struct {
	OrderID   string    `json:"order_id"`
	Amount    int64     `json:"amount"` // paise
	Currency  string    `json:"currency"`
	PaymentID uuid.UUID `json:"payment_id"`
}

type VerifyGatewayRequest struct {
	OrderID          string `json:"order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Signature        string `json:"signature"`
}

type InitiateCashRequest struct {
	Kind           string    `json:"kind"`
	ConsultationID uuid.UUID `json:"consultation_id"`
	Amount         float64   `json:"amount,omitempty"`
}

type VerifyCashRequest struct {
	PaymentID uuid.UUID `json:"payment_id"`
}
