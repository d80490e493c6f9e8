package stayshare

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/njoerd114/channelsync/internal/model"
)

// Marketplace status vocabulary.
const (
	statusAccepted = "accepted"
	statusPending  = "pending"
	statusRequest  = "request"
	statusDenied   = "denied"
	statusAltered  = "altered"
	statusNoShow   = "no_show"

	statusPrefixCancelled = "cancelled"

	dayStatusOK = "ok"
)

type meResponse struct {
	User struct {
		ID        string   `json:"id"`
		FirstName string   `json:"first_name"`
		LastName  string   `json:"last_name"`
		Listings  []string `json:"listings"`
	} `json:"user"`
}

type guest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

type guestCount struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
}

type payout struct {
	Total    string `json:"total"`
	HostFee  string `json:"host_fee"`
	Net      string `json:"net"`
	Currency string `json:"currency"`
}

// Reservation is the marketplace's native reservation payload.
type Reservation struct {
	channel string

	ConfirmationCode string     `json:"confirmation_code"`
	ListingID        string     `json:"listing_id"`
	ListingName      string     `json:"listing_name"`
	Status           string     `json:"status"`
	Guest            guest      `json:"guest"`
	StartDate        string     `json:"start_date"`
	EndDate          string     `json:"end_date"`
	Nights           int        `json:"nights"`
	Guests           guestCount `json:"guests"`
	Payout           payout     `json:"payout"`
	GuestNote        string     `json:"guest_note,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type reservationsResponse struct {
	Reservations []Reservation `json:"reservations"`
}

// ChannelName implements [channel.RawReservation].
func (r Reservation) ChannelName() string { return r.channel }

// Normalize implements [channel.RawReservation].
func (r Reservation) Normalize(propertyID string) (model.ChannelReservation, error) {
	if r.ConfirmationCode == "" {
		return model.ChannelReservation{}, fmt.Errorf("reservation without confirmation code")
	}
	checkIn, err := model.ParseDate(r.StartDate)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("reservation %s: %w", r.ConfirmationCode, err)
	}
	checkOut, err := model.ParseDate(r.EndDate)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("reservation %s: %w", r.ConfirmationCode, err)
	}

	total, err := parseAmount(r.Payout.Total)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("reservation %s total: %w", r.ConfirmationCode, err)
	}
	fee, err := parseAmount(r.Payout.HostFee)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("reservation %s host fee: %w", r.ConfirmationCode, err)
	}
	net := total.Sub(fee)
	if r.Payout.Net != "" {
		if net, err = parseAmount(r.Payout.Net); err != nil {
			return model.ChannelReservation{}, fmt.Errorf("reservation %s net: %w", r.ConfirmationCode, err)
		}
	}

	nights := r.Nights
	if nights == 0 {
		nights = model.NightsBetween(checkIn, checkOut)
	}

	return model.ChannelReservation{
		ChannelReservationID: r.ConfirmationCode,
		ChannelName:          r.channel,
		PropertyID:           propertyID,
		Status:               mapStatus(r.Status),
		GuestDetails: model.GuestDetails{
			FirstName: r.Guest.FirstName,
			LastName:  r.Guest.LastName,
			Email:     r.Guest.Email,
			Phone:     r.Guest.Phone,
		},
		RoomDetails: model.RoomDetails{
			RoomTypeID:    r.ListingID,
			RoomTypeName:  r.ListingName,
			NumberOfRooms: 1,
			Guests:        model.GuestCount{Adults: r.Guests.Adults, Children: r.Guests.Children},
		},
		StayDetails: model.StayDetails{
			CheckIn:     checkIn,
			CheckOut:    checkOut,
			Nights:      nights,
			TotalAmount: total,
			Commission:  fee,
			NetAmount:   net,
			Currency:    r.Payout.Currency,
		},
		SpecialRequests: r.GuestNote,
		CreatedAt:       r.CreatedAt,
		LastModified:    r.UpdatedAt,
	}, nil
}

// mapStatus maps the marketplace vocabulary onto the canonical status.
func mapStatus(s string) model.ReservationStatus {
	s = strings.ToLower(s)
	switch {
	case s == statusAccepted:
		return model.ReservationConfirmed
	case s == statusPending || s == statusRequest:
		return model.ReservationPending
	case s == statusDenied || strings.HasPrefix(s, statusPrefixCancelled):
		return model.ReservationCancelled
	case s == statusAltered:
		return model.ReservationModified
	case s == statusNoShow:
		return model.ReservationNoShow
	default:
		return model.ReservationPending
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// calendarDay is one day in a listing calendar, used for both reads and
// writes.
type calendarDay struct {
	Date              string     `json:"date"`
	AvailableCount    int        `json:"available_count"`
	Price             string     `json:"price,omitempty"`
	Currency          string     `json:"currency,omitempty"`
	MinNights         *int       `json:"min_nights,omitempty"`
	MaxNights         *int       `json:"max_nights,omitempty"`
	ClosedToArrival   bool       `json:"closed_to_arrival,omitempty"`
	ClosedToDeparture bool       `json:"closed_to_departure,omitempty"`
	Blocked           bool       `json:"blocked,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

type calendarRequest struct {
	Days []calendarDay `json:"days"`
}

type calendarResponse struct {
	Days []calendarDay `json:"days"`
}

type dayResult struct {
	Date    string `json:"date"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type calendarUpdateResponse struct {
	Results []dayResult `json:"results"`
}

// buildCalendarDay converts an update into the calendar write payload.
func buildCalendarDay(u model.InventoryUpdate) calendarDay {
	d := calendarDay{
		Date:              model.DateKey(u.Date),
		AvailableCount:    u.Availability,
		Currency:          u.Currency,
		MinNights:         u.Restrictions.MinStay,
		MaxNights:         u.Restrictions.MaxStay,
		ClosedToArrival:   u.Restrictions.ClosedToArrival,
		ClosedToDeparture: u.Restrictions.ClosedToDeparture,
		Blocked:           u.Restrictions.StopSell,
	}
	if u.HasRate() {
		d.Price = u.Rate.StringFixed(2)
	}
	return d
}

// calendarDayToSnapshot converts a calendar read into a snapshot.
func calendarDayToSnapshot(listingID string, d calendarDay) (model.InventorySnapshot, error) {
	date, err := model.ParseDate(d.Date)
	if err != nil {
		return model.InventorySnapshot{}, err
	}
	price, err := parseAmount(d.Price)
	if err != nil {
		return model.InventorySnapshot{}, fmt.Errorf("price for %s: %w", d.Date, err)
	}
	avail := d.AvailableCount
	if d.Blocked {
		avail = 0
	}
	s := model.InventorySnapshot{
		RoomTypeID:   listingID,
		Date:         date,
		Availability: avail,
		Rate:         price,
	}
	if d.UpdatedAt != nil {
		s.LastUpdated = d.UpdatedAt.UTC()
	}
	return s, nil
}

type threadMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Role      string    `json:"role"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type threadResponse struct {
	Messages []threadMessage `json:"messages"`
}

func messageToModel(m threadMessage) model.GuestMessage {
	return model.GuestMessage{
		ID:       m.ID,
		Sender:   m.Sender,
		Body:     m.Body,
		SentAt:   m.CreatedAt,
		Incoming: m.Role == "guest",
	}
}
