package otarpc

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/njoerd114/channelsync/internal/model"
)

// OTA booking status vocabulary. Pending and anything unknown map to
// pending.
const (
	statusBook   = "book"
	statusModify = "modify"
	statusCancel = "cancel"
	statusNoShow = "noshow"
)

type pingRequest struct {
	XMLName xml.Name `xml:"Ping"`
	Echo    string   `xml:"Echo"`
}

type pingResponse struct {
	XMLName xml.Name `xml:"PingResponse"`
	Echo    string   `xml:"Echo"`
}

type hotelInfoRequest struct {
	XMLName   xml.Name `xml:"GetHotelInfo"`
	HotelCode string   `xml:"HotelCode,attr"`
}

type hotelInfoResponse struct {
	XMLName   xml.Name `xml:"GetHotelInfoResponse"`
	HotelCode string   `xml:"HotelCode,attr"`
	Name      string   `xml:"HotelName"`
	RoomTypes []struct {
		Code string `xml:"Code,attr"`
	} `xml:"RoomTypes>RoomType"`
}

type retrieveBookingsRequest struct {
	XMLName   xml.Name `xml:"RetrieveBookings"`
	HotelCode string   `xml:"HotelCode,attr"`
	Start     string   `xml:"Start,attr,omitempty"`
	End       string   `xml:"End,attr,omitempty"`
}

type retrieveBookingsResponse struct {
	XMLName  xml.Name  `xml:"RetrieveBookingsResponse"`
	Bookings []Booking `xml:"Bookings>Booking"`
}

type bookingGuest struct {
	GivenName string `xml:"GivenName"`
	Surname   string `xml:"Surname"`
	Email     string `xml:"Email"`
	Phone     string `xml:"Phone"`
}

type bookingTotal struct {
	AmountAfterTax string `xml:"AmountAfterTax,attr"`
	Commission     string `xml:"Commission,attr"`
	CurrencyCode   string `xml:"CurrencyCode,attr"`
}

// Booking is the OTA's native booking element.
type Booking struct {
	channel string

	BookingID          string       `xml:"BookingID,attr"`
	Status             string       `xml:"Status,attr"`
	CreateDateTime     string       `xml:"CreateDateTime,attr"`
	LastModifyDateTime string       `xml:"LastModifyDateTime,attr"`
	RoomTypeCode       string       `xml:"RoomStay>RoomTypeCode"`
	RoomTypeName       string       `xml:"RoomStay>RoomTypeName"`
	NumberOfUnits      int          `xml:"RoomStay>NumberOfUnits"`
	Start              string       `xml:"RoomStay>TimeSpan>Start"`
	End                string       `xml:"RoomStay>TimeSpan>End"`
	Adults             int          `xml:"RoomStay>GuestCounts>Adults"`
	Children           int          `xml:"RoomStay>GuestCounts>Children"`
	Guest              bookingGuest `xml:"Guest"`
	Total              bookingTotal `xml:"Total"`
	SpecialRequest     string       `xml:"SpecialRequest"`
}

// ChannelName implements [channel.RawReservation].
func (b Booking) ChannelName() string { return b.channel }

// Normalize implements [channel.RawReservation].
func (b Booking) Normalize(propertyID string) (model.ChannelReservation, error) {
	if b.BookingID == "" {
		return model.ChannelReservation{}, fmt.Errorf("booking without id")
	}
	start, err := model.ParseDate(b.Start)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("booking %s: %w", b.BookingID, err)
	}
	end, err := model.ParseDate(b.End)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("booking %s: %w", b.BookingID, err)
	}
	total, err := parseAmount(b.Total.AmountAfterTax)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("booking %s total: %w", b.BookingID, err)
	}
	commission, err := parseAmount(b.Total.Commission)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("booking %s commission: %w", b.BookingID, err)
	}
	units := b.NumberOfUnits
	if units < 1 {
		units = 1
	}
	return model.ChannelReservation{
		ChannelReservationID: b.BookingID,
		ChannelName:          b.channel,
		PropertyID:           propertyID,
		Status:               mapStatus(b.Status),
		GuestDetails: model.GuestDetails{
			FirstName: b.Guest.GivenName,
			LastName:  b.Guest.Surname,
			Email:     b.Guest.Email,
			Phone:     b.Guest.Phone,
		},
		RoomDetails: model.RoomDetails{
			RoomTypeID:    b.RoomTypeCode,
			RoomTypeName:  b.RoomTypeName,
			NumberOfRooms: units,
			Guests:        model.GuestCount{Adults: b.Adults, Children: b.Children},
		},
		StayDetails: model.StayDetails{
			CheckIn:     start,
			CheckOut:    end,
			Nights:      model.NightsBetween(start, end),
			TotalAmount: total,
			Commission:  commission,
			NetAmount:   total.Sub(commission),
			Currency:    b.Total.CurrencyCode,
		},
		SpecialRequests: strings.TrimSpace(b.SpecialRequest),
		CreatedAt:       parseStamp(b.CreateDateTime),
		LastModified:    parseStamp(b.LastModifyDateTime),
	}, nil
}

func mapStatus(s string) model.ReservationStatus {
	switch strings.ToLower(s) {
	case statusBook:
		return model.ReservationConfirmed
	case statusModify:
		return model.ReservationModified
	case statusCancel:
		return model.ReservationCancelled
	case statusNoShow:
		return model.ReservationNoShow
	default:
		return model.ReservationPending
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// availRate is one room type and date in both directions of the rate calls.
type availRate struct {
	RoomTypeCode      string `xml:"RoomTypeCode,attr"`
	Date              string `xml:"Date,attr"`
	Allotment         int    `xml:"Allotment,attr"`
	Rate              string `xml:"Rate,attr,omitempty"`
	CurrencyCode      string `xml:"CurrencyCode,attr,omitempty"`
	MinLOS            *int   `xml:"MinLOS,attr,omitempty"`
	MaxLOS            *int   `xml:"MaxLOS,attr,omitempty"`
	ClosedToArrival   bool   `xml:"CTA,attr,omitempty"`
	ClosedToDeparture bool   `xml:"CTD,attr,omitempty"`
	StopSell          bool   `xml:"StopSell,attr,omitempty"`
	LastModified      string `xml:"LastModified,attr,omitempty"`
}

type getAvailRatesRequest struct {
	XMLName   xml.Name `xml:"GetAvailRates"`
	HotelCode string   `xml:"HotelCode,attr"`
	Start     string   `xml:"Start,attr"`
	End       string   `xml:"End,attr"`
	RoomTypes []string `xml:"RoomTypeCode"`
}

type getAvailRatesResponse struct {
	XMLName xml.Name    `xml:"GetAvailRatesResponse"`
	Items   []availRate `xml:"AvailRate"`
}

type updateAvailRatesRequest struct {
	XMLName   xml.Name    `xml:"UpdateAvailRates"`
	HotelCode string      `xml:"HotelCode,attr"`
	Items     []availRate `xml:"AvailRate"`
}

type warning struct {
	RoomTypeCode string `xml:"RoomTypeCode,attr"`
	Date         string `xml:"Date,attr"`
	Text         string `xml:",chardata"`
}

type updateAvailRatesResponse struct {
	XMLName  xml.Name  `xml:"UpdateAvailRatesResponse"`
	Success  int       `xml:"Success,attr"`
	Warnings []warning `xml:"Warnings>Warning"`
}

func toAvailRate(u model.InventoryUpdate) availRate {
	ar := availRate{
		RoomTypeCode:      u.RoomTypeID,
		Date:              model.DateKey(u.Date),
		Allotment:         u.Availability,
		MinLOS:            u.Restrictions.MinStay,
		MaxLOS:            u.Restrictions.MaxStay,
		ClosedToArrival:   u.Restrictions.ClosedToArrival,
		ClosedToDeparture: u.Restrictions.ClosedToDeparture,
		StopSell:          u.Restrictions.StopSell,
	}
	if u.HasRate() {
		ar.Rate = u.Rate.StringFixed(2)
		ar.CurrencyCode = u.Currency
	}
	return ar
}

func fromAvailRate(ar availRate) (model.InventorySnapshot, error) {
	date, err := model.ParseDate(ar.Date)
	if err != nil {
		return model.InventorySnapshot{}, err
	}
	rate, err := parseAmount(ar.Rate)
	if err != nil {
		return model.InventorySnapshot{}, fmt.Errorf("rate for %s on %s: %w", ar.RoomTypeCode, ar.Date, err)
	}
	avail := ar.Allotment
	if ar.StopSell || avail < 0 {
		avail = 0
	}
	return model.InventorySnapshot{
		RoomTypeID:   ar.RoomTypeCode,
		Date:         date,
		Availability: avail,
		Rate:         rate,
		LastUpdated:  parseStamp(ar.LastModified),
	}, nil
}

type confirmBookingRequest struct {
	XMLName   xml.Name `xml:"ConfirmBooking"`
	HotelCode string   `xml:"HotelCode,attr"`
	BookingID string   `xml:"BookingID,attr"`
}

type cancelBookingRequest struct {
	XMLName   xml.Name `xml:"CancelBooking"`
	HotelCode string   `xml:"HotelCode,attr"`
	BookingID string   `xml:"BookingID,attr"`
	Reason    string   `xml:"Reason"`
}
