package models

import (
	"fmt"
	"time"
)

// BookingMode distinguishes the standard flow from the time-critical SOS flow.
type BookingMode string

const (
	ModeNormal BookingMode = "normal"
	ModeSOS    BookingMode = "sos"
)

// BookingStatus represents the current state of a booking in its lifecycle.
type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusDeclined   BookingStatus = "declined"
	StatusExpired    BookingStatus = "expired"
)

// validTransitions defines the booking lifecycle state machine.
var validTransitions = map[BookingStatus][]BookingStatus{
	StatusPending:    {StatusConfirmed, StatusDeclined, StatusExpired, StatusCancelled},
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusDeclined:   {},
	StatusExpired:    {},
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a string to a BookingStatus, returning an error if invalid.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// ServiceRef snapshots the requested service and its base price at creation
// time. The snapshot is immutable: the price a customer committed to must not
// silently change underneath them.
type ServiceRef struct {
	CategoryID    string  `bson:"categoryId" json:"categoryId"`
	SubcategoryID string  `bson:"subcategoryId,omitempty" json:"subcategoryId,omitempty"`
	BasePrice     float64 `bson:"basePrice" json:"basePrice"`
}

// Booking is the central record of the lifecycle engine. It is created once
// per request, mutated only through state-machine transitions, and never
// deleted: terminal statuses preserve the audit trail.
type Booking struct {
	ID         string        `bson:"id" json:"id"`
	Mode       BookingMode   `bson:"mode" json:"mode"`
	Status     BookingStatus `bson:"status" json:"status"`
	CustomerID string        `bson:"customerId" json:"customerId"`
	// ProviderID stays empty for an SOS booking until a candidate accepts.
	ProviderID string     `bson:"providerId,omitempty" json:"providerId,omitempty"`
	Service    ServiceRef `bson:"service" json:"service"`

	TotalAmount   float64 `bson:"totalAmount" json:"totalAmount"`
	DepositAmount float64 `bson:"depositAmount" json:"depositAmount"`

	// ResponseDeadline is non-nil exactly while Status == pending.
	ResponseDeadline *time.Time `bson:"responseDeadline,omitempty" json:"responseDeadline,omitempty"`

	// PaymentRef is set when the initial authorization succeeds and is never
	// cleared afterwards.
	PaymentRef string `bson:"paymentRef,omitempty" json:"paymentRef,omitempty"`

	CancelledBy string `bson:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`

	CreatedAt       time.Time `bson:"createdAt" json:"createdAt"`
	StatusChangedAt time.Time `bson:"statusChangedAt" json:"statusChangedAt"`
}

// BookingRequest is the input for creating a booking.
type BookingRequest struct {
	Mode       BookingMode `json:"mode"`
	CustomerID string      `json:"customerId"`
	// ProviderID targets a specific provider for a normal booking; SOS
	// bookings leave it empty and let the accept race assign one.
	ProviderID    string   `json:"providerId,omitempty"`
	CategoryID    string   `json:"categoryId"`
	SubcategoryID string   `json:"subcategoryId,omitempty"`
	BasePrice     float64  `json:"basePrice"`
	TotalAmount   float64  `json:"totalAmount"`
	DepositAmount float64  `json:"depositAmount"`
	Location      GeoPoint `json:"location"`
	Urgency       int      `json:"urgency,omitempty"`
}
