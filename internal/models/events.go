package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType names a domain event that surfaces as a system message.
type EventType string

const (
	EventProcessStarted       EventType = "process_started"
	EventItemDonation         EventType = "item_donation_submitted"
	EventFundDonation         EventType = "fund_donation_submitted"
	EventDonationApproved     EventType = "donation_approved"
	EventDonationRejected     EventType = "donation_rejected"
	EventAppointmentScheduled EventType = "appointment_scheduled"
	EventAppointmentCancelled EventType = "appointment_cancelled"
	EventMatchCompleted       EventType = "match_completed"
	EventStepCompleted        EventType = "step_completed"
	EventCycleRestarted       EventType = "cycle_restarted"
)

// EventTypes lists every event type, in catalogue order.
var EventTypes = []EventType{
	EventProcessStarted,
	EventItemDonation,
	EventFundDonation,
	EventDonationApproved,
	EventDonationRejected,
	EventAppointmentScheduled,
	EventAppointmentCancelled,
	EventMatchCompleted,
	EventStepCompleted,
	EventCycleRestarted,
}

// ErrInvalidEvent is returned when an event payload fails boundary validation.
var ErrInvalidEvent = errors.New("invalid event")

// Envelope is the part every domain event shares.
type Envelope struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	// StaffID is optional. When empty the staff member is chosen by the
	// connection orchestrator.
	StaffID string `json:"staff_id,omitempty"`
}

// Actor returns the envelope itself.
func (e Envelope) Actor() Envelope { return e }

func (e Envelope) validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidEvent)
	}
	return nil
}

// Event is a domain event payload. Every concrete type below implements it,
// so the template table can be checked against the full set of types.
type Event interface {
	Type() EventType
	Actor() Envelope
	Connection() ConnectionType
	Related() (id, kind string)
	Validate() error
}

type ProcessStarted struct {
	Envelope
	CycleID     string
	CycleNumber int
}

func (ProcessStarted) Type() EventType             { return EventProcessStarted }
func (ProcessStarted) Connection() ConnectionType  { return ConnectionAdoption }
func (e ProcessStarted) Related() (string, string) { return e.CycleID, "process_cycle" }
func (e ProcessStarted) Validate() error           { return e.validate() }

// DonationSubmitted covers both item and fund donations. Fund donations are
// always in the money category.
type DonationSubmitted struct {
	Envelope
	DonationID string
	Category   DonationCategory
	Fund       bool
	Amount     float64
	Details    string
}

func (e DonationSubmitted) Type() EventType {
	if e.Fund {
		return EventFundDonation
	}
	return EventItemDonation
}
func (e DonationSubmitted) Connection() ConnectionType { return DonationConnection(e.Category) }
func (e DonationSubmitted) Related() (string, string)  { return e.DonationID, string(e.Category) }
func (e DonationSubmitted) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.DonationID == "" {
		return fmt.Errorf("%w: donation_id is required", ErrInvalidEvent)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: unknown donation category %q", ErrInvalidEvent, e.Category)
	}
	if e.Fund && e.Category != CategoryMoney {
		return fmt.Errorf("%w: fund donations must use the money category", ErrInvalidEvent)
	}
	return nil
}

type DonationApproved struct {
	Envelope
	DonationID string
	Category   DonationCategory
}

func (DonationApproved) Type() EventType              { return EventDonationApproved }
func (e DonationApproved) Connection() ConnectionType { return DonationConnection(e.Category) }
func (e DonationApproved) Related() (string, string)  { return e.DonationID, string(e.Category) }
func (e DonationApproved) Validate() error {
	return validateDonationRef(e.Envelope, e.DonationID, e.Category)
}

type DonationRejected struct {
	Envelope
	DonationID string
	Category   DonationCategory
	Reason     string
}

func (DonationRejected) Type() EventType              { return EventDonationRejected }
func (e DonationRejected) Connection() ConnectionType { return DonationConnection(e.Category) }
func (e DonationRejected) Related() (string, string)  { return e.DonationID, string(e.Category) }
func (e DonationRejected) Validate() error {
	return validateDonationRef(e.Envelope, e.DonationID, e.Category)
}

func validateDonationRef(env Envelope, id string, c DonationCategory) error {
	if err := env.validate(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: donation_id is required", ErrInvalidEvent)
	}
	if !c.Valid() {
		return fmt.Errorf("%w: unknown donation category %q", ErrInvalidEvent, c)
	}
	return nil
}

type AppointmentScheduled struct {
	Envelope
	AppointmentID string
	At            time.Time
	Purpose       string
}

func (AppointmentScheduled) Type() EventType             { return EventAppointmentScheduled }
func (AppointmentScheduled) Connection() ConnectionType  { return ConnectionAppointment }
func (e AppointmentScheduled) Related() (string, string) { return e.AppointmentID, "appointment" }
func (e AppointmentScheduled) Validate() error {
	return validateAppointment(e.Envelope, e.AppointmentID, e.At)
}

type AppointmentCancelled struct {
	Envelope
	AppointmentID string
	At            time.Time
	Reason        string
}

func (AppointmentCancelled) Type() EventType             { return EventAppointmentCancelled }
func (AppointmentCancelled) Connection() ConnectionType  { return ConnectionAppointment }
func (e AppointmentCancelled) Related() (string, string) { return e.AppointmentID, "appointment" }
func (e AppointmentCancelled) Validate() error {
	return validateAppointment(e.Envelope, e.AppointmentID, e.At)
}

func validateAppointment(env Envelope, id string, at time.Time) error {
	if err := env.validate(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: appointment_id is required", ErrInvalidEvent)
	}
	if at.IsZero() {
		return fmt.Errorf("%w: appointment time is required", ErrInvalidEvent)
	}
	return nil
}

type MatchCompleted struct {
	Envelope
	MatchID   string
	ChildName string
}

func (MatchCompleted) Type() EventType             { return EventMatchCompleted }
func (MatchCompleted) Connection() ConnectionType  { return ConnectionAdoption }
func (e MatchCompleted) Related() (string, string) { return e.MatchID, "match" }
func (e MatchCompleted) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.MatchID == "" {
		return fmt.Errorf("%w: match_id is required", ErrInvalidEvent)
	}
	return nil
}

type StepCompleted struct {
	Envelope
	CycleID     string
	CycleNumber int
	Step        int
	StepTitle   string
}

func (StepCompleted) Type() EventType             { return EventStepCompleted }
func (StepCompleted) Connection() ConnectionType  { return ConnectionAdoption }
func (e StepCompleted) Related() (string, string) { return e.CycleID, "process_cycle" }
func (e StepCompleted) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.Step < 1 {
		return fmt.Errorf("%w: step must be positive", ErrInvalidEvent)
	}
	return nil
}

type CycleRestarted struct {
	Envelope
	CompletedCycleID string
	NewCycleID       string
	CycleNumber      int
}

func (CycleRestarted) Type() EventType             { return EventCycleRestarted }
func (CycleRestarted) Connection() ConnectionType  { return ConnectionAdoption }
func (e CycleRestarted) Related() (string, string) { return e.NewCycleID, "process_cycle" }
func (e CycleRestarted) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.NewCycleID == "" {
		return fmt.Errorf("%w: new cycle id is required", ErrInvalidEvent)
	}
	return nil
}

// EventRequest is the wire form of a domain event posted by the rest of the
// application. DecodeEvent turns it into one of the typed payloads.
type EventRequest struct {
	Type          EventType        `json:"type"`
	UserID        string           `json:"user_id"`
	Username      string           `json:"username"`
	StaffID       string           `json:"staff_id,omitempty"`
	DonationID    string           `json:"donation_id,omitempty"`
	Category      DonationCategory `json:"category,omitempty"`
	Amount        float64          `json:"amount,omitempty"`
	Details       string           `json:"details,omitempty"`
	Reason        string           `json:"reason,omitempty"`
	AppointmentID string           `json:"appointment_id,omitempty"`
	At            time.Time        `json:"at,omitempty"`
	Purpose       string           `json:"purpose,omitempty"`
	MatchID       string           `json:"match_id,omitempty"`
	ChildName     string           `json:"child_name,omitempty"`
}

// DecodeEvent parses and validates a raw event payload.
// Process events are not accepted here: they are produced by the process
// service, which owns the cycle state.
func DecodeEvent(raw []byte) (Event, error) {
	var req EventRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return req.ToEvent()
}

// ToEvent converts the wire form into a validated typed payload.
func (r EventRequest) ToEvent() (Event, error) {
	env := Envelope{UserID: r.UserID, Username: r.Username, StaffID: r.StaffID}
	var ev Event
	switch r.Type {
	case EventItemDonation:
		ev = DonationSubmitted{Envelope: env, DonationID: r.DonationID, Category: r.Category, Amount: r.Amount, Details: r.Details}
	case EventFundDonation:
		category := r.Category
		if category == "" {
			category = CategoryMoney
		}
		ev = DonationSubmitted{Envelope: env, DonationID: r.DonationID, Category: category, Fund: true, Amount: r.Amount, Details: r.Details}
	case EventDonationApproved:
		ev = DonationApproved{Envelope: env, DonationID: r.DonationID, Category: r.Category}
	case EventDonationRejected:
		ev = DonationRejected{Envelope: env, DonationID: r.DonationID, Category: r.Category, Reason: r.Reason}
	case EventAppointmentScheduled:
		ev = AppointmentScheduled{Envelope: env, AppointmentID: r.AppointmentID, At: r.At, Purpose: r.Purpose}
	case EventAppointmentCancelled:
		ev = AppointmentCancelled{Envelope: env, AppointmentID: r.AppointmentID, At: r.At, Reason: r.Reason}
	case EventMatchCompleted:
		ev = MatchCompleted{Envelope: env, MatchID: r.MatchID, ChildName: r.ChildName}
	case EventProcessStarted, EventStepCompleted, EventCycleRestarted:
		return nil, fmt.Errorf("%w: %s is emitted by the process service", ErrInvalidEvent, r.Type)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, r.Type)
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
