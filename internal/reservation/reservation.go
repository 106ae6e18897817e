// Package reservation tracks outstanding presigned upload grants.
// Each Reservation records whether its grant has been fulfilled and owns an
// expiry timer; when the timer fires on an unfulfilled reservation the
// uploaded object (if any) is deleted and the reservation is dropped.
package reservation

import (
	"errors"
	"time"

	"k8s.io/utils/clock"
)

// Static errors for reservation operations.
var (
	// ErrNotFound is returned when no live, unfulfilled reservation exists for a grant key.
	ErrNotFound = errors.New("reservation: no such live reservation")
	// ErrDuplicateGrant is returned when a grant key is reserved while already live.
	ErrDuplicateGrant = errors.New("reservation: grant key already reserved")
	// ErrInvalidReservation is returned when a grant key or object key is empty.
	ErrInvalidReservation = errors.New("reservation: grant key and object key are required")
	// ErrTableClosed is returned when reserving on a table that has been shut down.
	ErrTableClosed = errors.New("reservation: table is shut down")
)

// state is the lifecycle position of a reservation.
// armed → fulfilled | reaping; both are terminal.
type state int

const (
	stateArmed state = iota
	stateFulfilled
	stateReaping
)

// String returns the state name, used in logs.
func (s state) String() string {
	switch s {
	case stateArmed:
		return "armed"
	case stateFulfilled:
		return "fulfilled"
	case stateReaping:
		return "reaping"
	default:
		return "unknown"
	}
}

// Reservation is the bookkeeping record of one outstanding grant.
type Reservation struct {
	// GrantKey identifies the grant; clients echo it back on fulfillment.
	GrantKey string
	// ObjectKey is the bucket key the grant authorizes writing to.
	ObjectKey string
	// Fulfilled reports whether the upload has been confirmed.
	Fulfilled bool
	// CreatedAt is when the reservation was recorded.
	CreatedAt time.Time
	// ExpiresAt is when the reaper fires if the grant is still unfulfilled.
	ExpiresAt time.Time

	state state
	timer clock.Timer
}

// snapshot returns a copy that is safe to hand out of the table.
func (r *Reservation) snapshot() Reservation {
	return Reservation{
		GrantKey:  r.GrantKey,
		ObjectKey: r.ObjectKey,
		Fulfilled: r.Fulfilled,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
		state:     r.state,
	}
}
