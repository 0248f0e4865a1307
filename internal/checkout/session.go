package checkout

import (
	"fmt"
	"sync"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusInitiated Status = "initiated"
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
)

// Terminal reports whether polling stops at this status. Terminal
// states still allow a reset back to idle.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Pollable reports whether the poller should run for this status.
func (s Status) Pollable() bool {
	return s == StatusInitiated || s == StatusPending
}

// Session is the observable state of one payment attempt. It is only
// mutated through Begin, poll transitions and Reset; paymentID is set
// once at initiation and never changes until a reset.
type Session struct {
	mu              sync.Mutex
	paymentID       string
	status          Status
	amount          float64
	phone           string
	transactionCode string
}

// SessionView is an immutable copy of the session state.
type SessionView struct {
	PaymentID       string
	Status          Status
	Amount          float64
	Phone           string
	TransactionCode string
}

func NewSession() *Session {
	return &Session{status: StatusIdle}
}

// Begin records a successful initiate call. Only valid from idle.
func (s *Session) Begin(paymentID, phone string, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusIdle {
		return fmt.Errorf("cannot begin payment from status %q", s.status)
	}
	if paymentID == "" {
		return fmt.Errorf("payment id is required")
	}

	s.paymentID = paymentID
	s.phone = phone
	s.amount = amount
	s.status = StatusInitiated
	s.transactionCode = ""
	return nil
}

// applyPoll records a status reported by the gateway. The transaction
// code is only retained when the new status is success.
func (s *Session) applyPoll(status Status, transactionCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status = status
	if status == StatusSuccess {
		s.transactionCode = transactionCode
	}
}

// Reset returns the session to a fresh idle state. Explicit user
// action; never performed by the poller.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paymentID = ""
	s.status = StatusIdle
	s.amount = 0
	s.phone = ""
	s.transactionCode = ""
}

func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SessionView{
		PaymentID:       s.paymentID,
		Status:          s.status,
		Amount:          s.amount,
		Phone:           s.phone,
		TransactionCode: s.transactionCode,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
