// Package otarpc is the adapter for the large OTA's SOAP-style RPC API.
// All methods are POSTed to one endpoint inside an envelope carrying the
// account's username and password.
package otarpc

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/model"
)

// Name is the channel identifier this adapter registers under.
const Name = "otarpc"

// DefaultBaseURL is the OTA's production RPC endpoint.
const DefaultBaseURL = "https://rpc.otarpc.example/hotels/v1"

// Adapter implements [channel.Adapter] for the OTA.
type Adapter struct {
	http *resty.Client
	log  *slog.Logger
}

var _ channel.Adapter = (*Adapter)(nil)

// NewAdapter creates an Adapter against baseURL (DefaultBaseURL when empty).
func NewAdapter(baseURL string, timeout time.Duration, logger *slog.Logger) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{http: channel.NewHTTPClient(baseURL, timeout), log: logger}
}

// Name implements [channel.Adapter].
func (a *Adapter) Name() string { return Name }

func validate(creds model.Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return &channel.AuthError{Channel: Name, Message: "username and password are required"}
	}
	if creds.HotelID == "" {
		return fmt.Errorf("%s: hotel code is required", Name)
	}
	return nil
}

// call sends one method inside an envelope and decodes the method response.
// Faults are checked before the HTTP status because the OTA reports them
// with status 500.
func (a *Adapter) call(ctx context.Context, creds model.Credentials, op string, method, out any) error {
	body, err := xml.Marshal(newEnvelope(creds.Username, creds.Password, method))
	if err != nil {
		return fmt.Errorf("%s %s: encoding request: %w", Name, op, err)
	}

	a.log.Debug("rpc call", "channel", Name, "op", op)
	resp, err := a.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/xml; charset=utf-8").
		SetHeader("SOAPAction", op).
		SetBody(append([]byte(xml.Header), body...)).
		Post(creds.Endpoint)
	if err == nil && resp.StatusCode() == http.StatusInternalServerError && len(resp.Body()) > 0 {
		var env responseEnvelope
		if xml.Unmarshal(resp.Body(), &env) == nil && env.Body.Fault != nil {
			return faultError(op, env.Body.Fault)
		}
	}
	if err := channel.CheckResponse(Name, op, resp, err); err != nil {
		return err
	}
	return decodeEnvelope(op, resp.Body(), out)
}

// Authenticate implements [channel.Adapter] through GetHotelInfo, which
// proves both the credentials and access to the hotel code.
func (a *Adapter) Authenticate(ctx context.Context, creds model.Credentials) (channel.Profile, error) {
	if err := validate(creds); err != nil {
		return channel.Profile{}, err
	}
	var resp hotelInfoResponse
	if err := a.call(ctx, creds, "GetHotelInfo", hotelInfoRequest{HotelCode: creds.HotelID}, &resp); err != nil {
		return channel.Profile{}, err
	}
	p := channel.Profile{AccountID: creds.Username, DisplayName: resp.Name}
	for _, rt := range resp.RoomTypes {
		p.Properties = append(p.Properties, rt.Code)
	}
	return p, nil
}

// FetchReservations implements [channel.Adapter].
func (a *Adapter) FetchReservations(ctx context.Context, creds model.Credentials, window *model.DateRange) ([]channel.RawReservation, error) {
	if err := validate(creds); err != nil {
		return nil, err
	}
	req := retrieveBookingsRequest{HotelCode: creds.HotelID}
	if window != nil {
		req.Start = model.DateKey(window.Start)
		req.End = model.DateKey(window.End)
	}
	var resp retrieveBookingsResponse
	if err := a.call(ctx, creds, "RetrieveBookings", req, &resp); err != nil {
		return nil, err
	}
	out := make([]channel.RawReservation, 0, len(resp.Bookings))
	for _, b := range resp.Bookings {
		b.channel = Name
		out = append(out, b)
	}
	return out, nil
}

// FetchInventory implements [channel.Adapter].
func (a *Adapter) FetchInventory(ctx context.Context, creds model.Credentials, roomIDs []string, window model.DateRange) ([]model.InventorySnapshot, error) {
	if err := validate(creds); err != nil {
		return nil, err
	}
	req := getAvailRatesRequest{
		HotelCode: creds.HotelID,
		Start:     model.DateKey(window.Start),
		End:       model.DateKey(window.End),
		RoomTypes: roomIDs,
	}
	var resp getAvailRatesResponse
	if err := a.call(ctx, creds, "GetAvailRates", req, &resp); err != nil {
		return nil, err
	}
	out := make([]model.InventorySnapshot, 0, len(resp.Items))
	for _, item := range resp.Items {
		s, err := fromAvailRate(item)
		if err != nil {
			return nil, channel.Malformed(Name, "GetAvailRates", err)
		}
		out = append(out, s)
	}
	return out, nil
}

// PushInventoryAndRates implements [channel.Adapter]. Rejected items come
// back as warnings while the rest are applied.
func (a *Adapter) PushInventoryAndRates(ctx context.Context, creds model.Credentials, updates []model.InventoryUpdate) (channel.PushResult, error) {
	var result channel.PushResult
	if err := validate(creds); err != nil {
		return result, err
	}
	if len(updates) == 0 {
		return result, nil
	}
	req := updateAvailRatesRequest{HotelCode: creds.HotelID, Items: make([]availRate, 0, len(updates))}
	for _, u := range updates {
		req.Items = append(req.Items, toAvailRate(u))
	}
	var resp updateAvailRatesResponse
	if err := a.call(ctx, creds, "UpdateAvailRates", req, &resp); err != nil {
		return result, err
	}
	result.Accepted = resp.Success
	for _, w := range resp.Warnings {
		result.Reject(w.Date, fmt.Sprintf("%s %s: %s", w.RoomTypeCode, w.Date, w.Text))
	}
	return result, nil
}

// ConfirmReservation implements [channel.Adapter] with ConfirmBooking.
func (a *Adapter) ConfirmReservation(ctx context.Context, creds model.Credentials, reservationID string) error {
	if err := validate(creds); err != nil {
		return err
	}
	return a.call(ctx, creds, "ConfirmBooking", confirmBookingRequest{HotelCode: creds.HotelID, BookingID: reservationID}, nil)
}

// DeclineOrCancel implements [channel.Adapter] with CancelBooking.
func (a *Adapter) DeclineOrCancel(ctx context.Context, creds model.Credentials, reservationID, reason string) error {
	if err := validate(creds); err != nil {
		return err
	}
	req := cancelBookingRequest{HotelCode: creds.HotelID, BookingID: reservationID, Reason: reason}
	return a.call(ctx, creds, "CancelBooking", req, nil)
}

// SendMessage implements [channel.Adapter]; guest messaging goes through
// the OTA's extranet, not this API.
func (a *Adapter) SendMessage(context.Context, model.Credentials, string, string) error {
	return fmt.Errorf("%s send message: %w", Name, channel.ErrUnsupported)
}

// FetchMessages implements [channel.Adapter].
func (a *Adapter) FetchMessages(context.Context, model.Credentials, string) ([]model.GuestMessage, error) {
	return nil, fmt.Errorf("%s fetch messages: %w", Name, channel.ErrUnsupported)
}

// TestConnection implements [channel.Adapter]. Ping checks reachability,
// then GetHotelInfo checks the credentials.
func (a *Adapter) TestConnection(ctx context.Context, creds model.Credentials) channel.ConnectionResult {
	var pong pingResponse
	if err := a.call(ctx, creds, "Ping", pingRequest{Echo: "channelsync"}, &pong); err != nil {
		return channel.ConnectionResult{Message: "ping failed: " + err.Error()}
	}
	p, err := a.Authenticate(ctx, creds)
	if err != nil {
		return channel.ConnectionResult{Message: err.Error()}
	}
	return channel.ConnectionResult{Success: true, Message: fmt.Sprintf("connected to %s, %d room types", p.DisplayName, len(p.Properties))}
}
