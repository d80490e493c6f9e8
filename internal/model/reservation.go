package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is the canonical reservation state across channels.
type ReservationStatus string

const (
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationModified  ReservationStatus = "modified"
	ReservationNoShow    ReservationStatus = "no_show"
	ReservationPending   ReservationStatus = "pending"
)

// Terminal reports whether no further channel transitions are expected.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationCancelled || s == ReservationNoShow
}

// GuestDetails identifies the booking guest.
type GuestDetails struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// GuestCount is the party size.
type GuestCount struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

// RoomDetails describes what was booked. RoomTypeID is the local id.
type RoomDetails struct {
	RoomTypeID    string     `json:"room_type_id"`
	RoomTypeName  string     `json:"room_type_name"`
	NumberOfRooms int        `json:"number_of_rooms"`
	Guests        GuestCount `json:"guests"`
}

// StayDetails carries dates and money for the stay.
type StayDetails struct {
	CheckIn     time.Time       `json:"check_in"`
	CheckOut    time.Time       `json:"check_out"`
	Nights      int             `json:"nights"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Commission  decimal.Decimal `json:"commission"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	Currency    string          `json:"currency"`
}

// ChannelReservation is a reservation normalized from any channel's payload.
type ChannelReservation struct {
	ReservationID        string            `json:"reservation_id"`
	ChannelReservationID string            `json:"channel_reservation_id"`
	ChannelName          string            `json:"channel_name"`
	PropertyID           string            `json:"property_id"`
	Status               ReservationStatus `json:"status"`
	GuestDetails         GuestDetails      `json:"guest_details"`
	RoomDetails          RoomDetails       `json:"room_details"`
	StayDetails          StayDetails       `json:"stay_details"`
	SpecialRequests      string            `json:"special_requests,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	LastModified         time.Time         `json:"last_modified"`
	SyncedToLocal        bool              `json:"synced_to_local"`
	LocalBookingID       string            `json:"local_booking_id,omitempty"`
}

// GuestMessage is one message in a reservation's guest thread.
type GuestMessage struct {
	ID       string    `json:"id"`
	Sender   string    `json:"sender"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
	Incoming bool      `json:"incoming"`
}

// NightsBetween counts nights between check-in and check-out.
func NightsBetween(checkIn, checkOut time.Time) int {
	n := DaysBetween(checkIn, checkOut)
	if n < 0 {
		return 0
	}
	return n
}
