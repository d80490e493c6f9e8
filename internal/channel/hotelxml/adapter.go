// Package hotelxml is the adapter for the legacy XML hotel distributor.
// Every operation POSTs one XML document to a fixed path, authenticated
// with HTTP basic auth and scoped by the distributor's hotel id.
package hotelxml

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/model"
)

// Name is the channel identifier this adapter registers under.
const Name = "hotelxml"

// DefaultBaseURL is the distributor's production endpoint.
const DefaultBaseURL = "https://xml.hotelxml.example/api"

const (
	pathPing         = "/ping"
	pathReservations = "/reservations"
	pathInventory    = "/inventory"
	pathAvailability = "/availability"
	pathConfirm      = "/reservations/confirm"
	pathCancel       = "/reservations/cancel"
)

// Adapter implements [channel.Adapter] for the XML distributor.
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
		return fmt.Errorf("%s: hotel id is required", Name)
	}
	return nil
}

// post marshals doc, sends it to path, and decodes the reply into out.
func (a *Adapter) post(ctx context.Context, creds model.Credentials, op, path string, doc, out any) error {
	body, err := xml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%s %s: encoding request: %w", Name, op, err)
	}
	target := path
	if creds.Endpoint != "" {
		target = creds.Endpoint + path
	}

	a.log.Debug("xml request", "channel", Name, "op", op, "path", path)
	resp, err := a.http.R().
		SetContext(ctx).
		SetBasicAuth(creds.Username, creds.Password).
		SetHeader("Content-Type", "application/xml").
		SetHeader("Accept", "application/xml").
		SetBody(append([]byte(xml.Header), body...)).
		Post(target)
	if err := channel.CheckResponse(Name, op, resp, err); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := xml.Unmarshal(resp.Body(), out); err != nil {
		return channel.Malformed(Name, op, err)
	}
	return nil
}

// statusError converts a non-ok StatusResponse into an error.
func statusError(op string, s statusResponse) error {
	if s.Status == responseOK {
		return nil
	}
	if s.Code == "AUTH" {
		return &channel.AuthError{Channel: Name, Message: s.Message}
	}
	if s.Code == "NOT_FOUND" {
		return fmt.Errorf("%s %s: %s: %w", Name, op, s.Message, channel.ErrRemoteNotFound)
	}
	return fmt.Errorf("%s %s: %s", Name, op, s.Message)
}

// Authenticate implements [channel.Adapter] through the ping document.
func (a *Adapter) Authenticate(ctx context.Context, creds model.Credentials) (channel.Profile, error) {
	if err := validate(creds); err != nil {
		return channel.Profile{}, err
	}
	var resp pingResponse
	if err := a.post(ctx, creds, "ping", pathPing, pingRequest{HotelID: creds.HotelID}, &resp); err != nil {
		return channel.Profile{}, err
	}
	if resp.Status != responseOK {
		return channel.Profile{}, &channel.AuthError{Channel: Name, Message: resp.Message}
	}
	p := channel.Profile{AccountID: creds.HotelID, DisplayName: resp.HotelName}
	for _, r := range resp.Rooms {
		p.Properties = append(p.Properties, r.ID)
	}
	return p, nil
}

// FetchReservations implements [channel.Adapter].
func (a *Adapter) FetchReservations(ctx context.Context, creds model.Credentials, window *model.DateRange) ([]channel.RawReservation, error) {
	if err := validate(creds); err != nil {
		return nil, err
	}
	req := reservationsRequest{HotelID: creds.HotelID}
	if window != nil {
		req.From = model.DateKey(window.Start)
		req.To = model.DateKey(window.End)
	}
	var resp reservationsResponse
	if err := a.post(ctx, creds, "fetch reservations", pathReservations, req, &resp); err != nil {
		return nil, err
	}
	out := make([]channel.RawReservation, 0, len(resp.Reservations))
	for _, r := range resp.Reservations {
		r.channel = Name
		out = append(out, r)
	}
	return out, nil
}

// FetchInventory implements [channel.Adapter].
func (a *Adapter) FetchInventory(ctx context.Context, creds model.Credentials, roomIDs []string, window model.DateRange) ([]model.InventorySnapshot, error) {
	if err := validate(creds); err != nil {
		return nil, err
	}
	req := inventoryRequest{
		HotelID: creds.HotelID,
		From:    model.DateKey(window.Start),
		To:      model.DateKey(window.End),
	}
	for _, id := range roomIDs {
		req.Rooms = append(req.Rooms, roomRef{ID: id})
	}
	var resp inventoryResponse
	if err := a.post(ctx, creds, "fetch inventory", pathInventory, req, &resp); err != nil {
		return nil, err
	}
	snaps, err := inventoryToSnapshots(resp)
	if err != nil {
		return nil, channel.Malformed(Name, "fetch inventory", err)
	}
	return snaps, nil
}

// PushInventoryAndRates implements [channel.Adapter]. The distributor
// applies the document item by item and lists rejected items as error
// elements.
func (a *Adapter) PushInventoryAndRates(ctx context.Context, creds model.Credentials, updates []model.InventoryUpdate) (channel.PushResult, error) {
	var result channel.PushResult
	if err := validate(creds); err != nil {
		return result, err
	}
	if len(updates) == 0 {
		return result, nil
	}
	var resp availabilityResponse
	if err := a.post(ctx, creds, "push availability", pathAvailability, buildAvailabilityUpdate(creds.HotelID, updates), &resp); err != nil {
		return result, err
	}
	for _, e := range resp.Errors {
		result.Reject(e.Date, e.String())
	}
	if resp.OK != nil {
		result.Accepted = resp.OK.Count
	} else {
		result.Accepted = len(updates) - len(resp.Errors)
	}
	if result.Accepted < 0 {
		result.Accepted = 0
	}
	return result, nil
}

// ConfirmReservation implements [channel.Adapter].
func (a *Adapter) ConfirmReservation(ctx context.Context, creds model.Credentials, reservationID string) error {
	if err := validate(creds); err != nil {
		return err
	}
	var resp statusResponse
	req := confirmRequest{HotelID: creds.HotelID, ReservationID: reservationID}
	if err := a.post(ctx, creds, "confirm reservation", pathConfirm, req, &resp); err != nil {
		return err
	}
	return statusError("confirm reservation", resp)
}

// DeclineOrCancel implements [channel.Adapter]. The distributor has a
// single cancel document for both cases.
func (a *Adapter) DeclineOrCancel(ctx context.Context, creds model.Credentials, reservationID, reason string) error {
	if err := validate(creds); err != nil {
		return err
	}
	var resp statusResponse
	req := cancelRequest{HotelID: creds.HotelID, ReservationID: reservationID, Reason: reason}
	if err := a.post(ctx, creds, "cancel reservation", pathCancel, req, &resp); err != nil {
		return err
	}
	return statusError("cancel reservation", resp)
}

// SendMessage implements [channel.Adapter]; the distributor has no guest
// messaging.
func (a *Adapter) SendMessage(context.Context, model.Credentials, string, string) error {
	return fmt.Errorf("%s send message: %w", Name, channel.ErrUnsupported)
}

// FetchMessages implements [channel.Adapter]; the distributor has no guest
// messaging.
func (a *Adapter) FetchMessages(context.Context, model.Credentials, string) ([]model.GuestMessage, error) {
	return nil, fmt.Errorf("%s fetch messages: %w", Name, channel.ErrUnsupported)
}

// TestConnection implements [channel.Adapter].
func (a *Adapter) TestConnection(ctx context.Context, creds model.Credentials) channel.ConnectionResult {
	p, err := a.Authenticate(ctx, creds)
	if err != nil {
		var te *channel.TransportError
		if errors.As(err, &te) {
			return channel.ConnectionResult{Message: "connection failed: " + err.Error()}
		}
		return channel.ConnectionResult{Message: err.Error()}
	}
	return channel.ConnectionResult{Success: true, Message: fmt.Sprintf("connected to %s (%s)", p.DisplayName, p.AccountID)}
}
