package hotelxml

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/njoerd114/channelsync/internal/model"
)

// Distributor status vocabulary.
const (
	statusNew       = "new"
	statusModified  = "modified"
	statusCancelled = "cancelled"
	statusNoShow    = "no_show"

	responseOK = "ok"
)

// ---------------------------------------------------------------------------
// ping / profile
// ---------------------------------------------------------------------------

type pingRequest struct {
	XMLName xml.Name `xml:"PingRequest"`
	HotelID string   `xml:"hotel_id,attr"`
}

type pingResponse struct {
	XMLName   xml.Name `xml:"PingResponse"`
	Status    string   `xml:"status,attr"`
	HotelName string   `xml:"hotel_name,attr"`
	Message   string   `xml:"message,attr"`
	Rooms     []struct {
		ID string `xml:"id,attr"`
	} `xml:"room"`
}

// ---------------------------------------------------------------------------
// reservations
// ---------------------------------------------------------------------------

type reservationsRequest struct {
	XMLName xml.Name `xml:"ReservationsRequest"`
	HotelID string   `xml:"hotel_id,attr"`
	From    string   `xml:"from,attr,omitempty"`
	To      string   `xml:"to,attr,omitempty"`
}

type reservationsResponse struct {
	XMLName      xml.Name      `xml:"ReservationsResponse"`
	Reservations []Reservation `xml:"reservation"`
}

type xmlGuest struct {
	First string `xml:"first,attr"`
	Last  string `xml:"last,attr"`
	Email string `xml:"email,attr"`
	Phone string `xml:"phone,attr,omitempty"`
}

type xmlOccupancy struct {
	Adults   int `xml:"adults,attr"`
	Children int `xml:"children,attr"`
}

type xmlPrice struct {
	Total      string `xml:"total,attr"`
	Commission string `xml:"commission,attr"`
	Currency   string `xml:"currency,attr"`
}

// Reservation is the distributor's native reservation element.
type Reservation struct {
	channel string

	ID           string       `xml:"id,attr"`
	Status       string       `xml:"status,attr"`
	RoomType     string       `xml:"roomtype,attr"`
	RoomTypeName string       `xml:"roomtype_name,attr"`
	Rooms        int          `xml:"rooms,attr"`
	Arrival      string       `xml:"arrival,attr"`
	Departure    string       `xml:"departure,attr"`
	Booked       string       `xml:"booked,attr"`
	Modified     string       `xml:"modified,attr"`
	Guest        xmlGuest     `xml:"guest"`
	Occupancy    xmlOccupancy `xml:"occupancy"`
	Price        xmlPrice     `xml:"price"`
	Comment      string       `xml:"comment"`
}

// ChannelName implements [channel.RawReservation].
func (r Reservation) ChannelName() string { return r.channel }

// Normalize implements [channel.RawReservation].
func (r Reservation) Normalize(propertyID string) (model.ChannelReservation, error) {
	if r.ID == "" {
		return model.ChannelReservation{}, fmt.Errorf("reservation without id")
	}
	arrival, err := model.ParseDate(r.Arrival)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("reservation %s: %w", r.ID, err)
	}
	departure, err := model.ParseDate(r.Departure)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("reservation %s: %w", r.ID, err)
	}
	total, err := parseAmount(r.Price.Total)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("reservation %s total: %w", r.ID, err)
	}
	commission, err := parseAmount(r.Price.Commission)
	if err != nil {
		return model.ChannelReservation{}, fmt.Errorf("reservation %s commission: %w", r.ID, err)
	}
	rooms := r.Rooms
	if rooms < 1 {
		rooms = 1
	}

	return model.ChannelReservation{
		ChannelReservationID: r.ID,
		ChannelName:          r.channel,
		PropertyID:           propertyID,
		Status:               mapStatus(r.Status),
		GuestDetails: model.GuestDetails{
			FirstName: r.Guest.First,
			LastName:  r.Guest.Last,
			Email:     r.Guest.Email,
			Phone:     r.Guest.Phone,
		},
		RoomDetails: model.RoomDetails{
			RoomTypeID:    r.RoomType,
			RoomTypeName:  r.RoomTypeName,
			NumberOfRooms: rooms,
			Guests:        model.GuestCount{Adults: r.Occupancy.Adults, Children: r.Occupancy.Children},
		},
		StayDetails: model.StayDetails{
			CheckIn:     arrival,
			CheckOut:    departure,
			Nights:      model.NightsBetween(arrival, departure),
			TotalAmount: total,
			Commission:  commission,
			NetAmount:   total.Sub(commission),
			Currency:    r.Price.Currency,
		},
		SpecialRequests: strings.TrimSpace(r.Comment),
		CreatedAt:       parseStamp(r.Booked),
		LastModified:    parseStamp(r.Modified),
	}, nil
}

func mapStatus(s string) model.ReservationStatus {
	switch strings.ToLower(s) {
	case statusNew:
		return model.ReservationConfirmed
	case statusModified:
		return model.ReservationModified
	case statusCancelled:
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

// parseStamp reads an RFC 3339 timestamp, returning zero for empty or
// unparseable input.
func parseStamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// ---------------------------------------------------------------------------
// inventory reads
// ---------------------------------------------------------------------------

type inventoryRequest struct {
	XMLName xml.Name  `xml:"InventoryRequest"`
	HotelID string    `xml:"hotel_id,attr"`
	From    string    `xml:"from,attr"`
	To      string    `xml:"to,attr"`
	Rooms   []roomRef `xml:"room"`
}

type roomRef struct {
	ID string `xml:"id,attr"`
}

type inventoryResponse struct {
	XMLName xml.Name        `xml:"InventoryResponse"`
	Rooms   []inventoryRoom `xml:"room"`
}

type inventoryRoom struct {
	ID   string         `xml:"id,attr"`
	Days []inventoryDay `xml:"day"`
}

type inventoryDay struct {
	Date    string `xml:"date,attr"`
	Avail   int    `xml:"avail,attr"`
	Price   string `xml:"price,attr"`
	Closed  bool   `xml:"closed,attr"`
	Updated string `xml:"updated,attr"`
}

func inventoryToSnapshots(resp inventoryResponse) ([]model.InventorySnapshot, error) {
	var out []model.InventorySnapshot
	for _, room := range resp.Rooms {
		for _, d := range room.Days {
			date, err := model.ParseDate(d.Date)
			if err != nil {
				return nil, fmt.Errorf("room %s: %w", room.ID, err)
			}
			price, err := parseAmount(d.Price)
			if err != nil {
				return nil, fmt.Errorf("room %s price on %s: %w", room.ID, d.Date, err)
			}
			avail := d.Avail
			if d.Closed || avail < 0 {
				avail = 0
			}
			out = append(out, model.InventorySnapshot{
				RoomTypeID:   room.ID,
				Date:         date,
				Availability: avail,
				Rate:         price,
				LastUpdated:  parseStamp(d.Updated),
			})
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// availability pushes
// ---------------------------------------------------------------------------

type availabilityUpdate struct {
	XMLName xml.Name     `xml:"AvailabilityUpdate"`
	HotelID string       `xml:"hotel_id,attr"`
	Rooms   []updateRoom `xml:"room"`
}

type updateRoom struct {
	ID    string       `xml:"id,attr"`
	Dates []updateDate `xml:"date"`
}

type updateDate struct {
	Value    string `xml:"value,attr"`
	Avail    int    `xml:"avail,attr"`
	Price    string `xml:"price,attr,omitempty"`
	Currency string `xml:"currency,attr,omitempty"`
	MinStay  *int   `xml:"min_stay,attr,omitempty"`
	MaxStay  *int   `xml:"max_stay,attr,omitempty"`
	CTA      bool   `xml:"cta,attr,omitempty"`
	CTD      bool   `xml:"ctd,attr,omitempty"`
	Closed   bool   `xml:"closed,attr,omitempty"`
}

type availabilityResponse struct {
	XMLName xml.Name `xml:"AvailabilityResponse"`
	OK      *struct {
		Count int `xml:"count,attr"`
	} `xml:"ok"`
	Errors []itemError `xml:"error"`
}

type itemError struct {
	RoomType string `xml:"roomtype,attr"`
	Date     string `xml:"date,attr"`
	Message  string `xml:",chardata"`
}

func (e itemError) String() string {
	return fmt.Sprintf("%s %s: %s", e.RoomType, e.Date, strings.TrimSpace(e.Message))
}

// buildAvailabilityUpdate groups updates per room in first-seen order.
func buildAvailabilityUpdate(hotelID string, updates []model.InventoryUpdate) availabilityUpdate {
	doc := availabilityUpdate{HotelID: hotelID}
	index := make(map[string]int)
	for _, u := range updates {
		i, ok := index[u.RoomTypeID]
		if !ok {
			i = len(doc.Rooms)
			index[u.RoomTypeID] = i
			doc.Rooms = append(doc.Rooms, updateRoom{ID: u.RoomTypeID})
		}
		d := updateDate{
			Value:   model.DateKey(u.Date),
			Avail:   u.Availability,
			MinStay: u.Restrictions.MinStay,
			MaxStay: u.Restrictions.MaxStay,
			CTA:     u.Restrictions.ClosedToArrival,
			CTD:     u.Restrictions.ClosedToDeparture,
			Closed:  u.Restrictions.StopSell,
		}
		if u.HasRate() {
			d.Price = u.Rate.StringFixed(2)
			d.Currency = u.Currency
		}
		doc.Rooms[i].Dates = append(doc.Rooms[i].Dates, d)
	}
	return doc
}

// ---------------------------------------------------------------------------
// reservation actions
// ---------------------------------------------------------------------------

type confirmRequest struct {
	XMLName       xml.Name `xml:"ConfirmRequest"`
	HotelID       string   `xml:"hotel_id,attr"`
	ReservationID string   `xml:"reservation_id,attr"`
}

type cancelRequest struct {
	XMLName       xml.Name `xml:"CancelRequest"`
	HotelID       string   `xml:"hotel_id,attr"`
	ReservationID string   `xml:"reservation_id,attr"`
	Reason        string   `xml:"reason"`
}

type statusResponse struct {
	XMLName xml.Name `xml:"StatusResponse"`
	Status  string   `xml:"status,attr"`
	Code    string   `xml:"code,attr"`
	Message string   `xml:"message,attr"`
}
