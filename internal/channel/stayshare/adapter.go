// Package stayshare is the adapter for the peer-to-peer short-stay
// marketplace. It speaks the marketplace's JSON REST API with a bearer
// token, one calendar per listing.
package stayshare

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/njoerd114/channelsync/internal/channel"
	"github.com/njoerd114/channelsync/internal/model"
)

// Name is the channel identifier this adapter registers under.
const Name = "stayshare"

// DefaultBaseURL is the marketplace's production API.
const DefaultBaseURL = "https://api.stayshare.example/v2"

// Adapter implements [channel.Adapter] for the marketplace.
type Adapter struct {
	http *resty.Client
	log  *slog.Logger
}

var _ channel.Adapter = (*Adapter)(nil)

// NewAdapter creates an Adapter against baseURL (DefaultBaseURL when empty)
// with a bounded per-request timeout.
func NewAdapter(baseURL string, timeout time.Duration, logger *slog.Logger) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{http: channel.NewHTTPClient(baseURL, timeout), log: logger}
}

// Name implements [channel.Adapter].
func (a *Adapter) Name() string { return Name }

// request builds an authenticated request. A credential endpoint overrides
// the adapter's base URL, which is how sandbox accounts are pointed elsewhere.
func (a *Adapter) request(ctx context.Context, creds model.Credentials) *resty.Request {
	return a.http.R().
		SetContext(ctx).
		SetAuthToken(creds.Token).
		SetHeader("Accept", "application/json")
}

func (a *Adapter) url(creds model.Credentials, path string) string {
	if creds.Endpoint != "" {
		return creds.Endpoint + path
	}
	return path
}

func (a *Adapter) checkToken(creds model.Credentials) error {
	if creds.Token == "" {
		return &channel.AuthError{Channel: Name, Message: "missing api token"}
	}
	return nil
}

// Authenticate implements [channel.Adapter] by reading the token's profile.
func (a *Adapter) Authenticate(ctx context.Context, creds model.Credentials) (channel.Profile, error) {
	if err := a.checkToken(creds); err != nil {
		return channel.Profile{}, err
	}
	resp, err := a.request(ctx, creds).Get(a.url(creds, "/me"))
	if err := channel.CheckResponse(Name, "authenticate", resp, err); err != nil {
		return channel.Profile{}, err
	}
	var me meResponse
	if err := json.Unmarshal(resp.Body(), &me); err != nil {
		return channel.Profile{}, channel.Malformed(Name, "authenticate", err)
	}
	return channel.Profile{
		AccountID:   me.User.ID,
		DisplayName: me.User.FirstName + " " + me.User.LastName,
		Properties:  me.User.Listings,
	}, nil
}

// FetchReservations implements [channel.Adapter].
func (a *Adapter) FetchReservations(ctx context.Context, creds model.Credentials, window *model.DateRange) ([]channel.RawReservation, error) {
	if err := a.checkToken(creds); err != nil {
		return nil, err
	}
	req := a.request(ctx, creds)
	if window != nil {
		req.SetQueryParams(map[string]string{
			"start_date": model.DateKey(window.Start),
			"end_date":   model.DateKey(window.End),
		})
	}
	resp, err := req.Get(a.url(creds, "/reservations"))
	if err := channel.CheckResponse(Name, "fetch reservations", resp, err); err != nil {
		return nil, err
	}
	var body reservationsResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, channel.Malformed(Name, "fetch reservations", err)
	}
	out := make([]channel.RawReservation, 0, len(body.Reservations))
	for _, r := range body.Reservations {
		r.channel = Name
		out = append(out, r)
	}
	a.log.Debug("fetched reservations", "channel", Name, "count", len(out))
	return out, nil
}

// FetchInventory implements [channel.Adapter], reading one calendar per
// listing.
func (a *Adapter) FetchInventory(ctx context.Context, creds model.Credentials, roomIDs []string, window model.DateRange) ([]model.InventorySnapshot, error) {
	if err := a.checkToken(creds); err != nil {
		return nil, err
	}
	var out []model.InventorySnapshot
	for _, listing := range roomIDs {
		resp, err := a.request(ctx, creds).
			SetQueryParams(map[string]string{
				"start_date": model.DateKey(window.Start),
				"end_date":   model.DateKey(window.End),
			}).
			Get(a.url(creds, "/calendars/"+url.PathEscape(listing)))
		if err := channel.CheckResponse(Name, "fetch calendar", resp, err); err != nil {
			return nil, fmt.Errorf("listing %s: %w", listing, err)
		}
		var cal calendarResponse
		if err := json.Unmarshal(resp.Body(), &cal); err != nil {
			return nil, channel.Malformed(Name, "fetch calendar", err)
		}
		for _, d := range cal.Days {
			s, err := calendarDayToSnapshot(listing, d)
			if err != nil {
				return nil, channel.Malformed(Name, "fetch calendar", err)
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// PushInventoryAndRates implements [channel.Adapter]. Updates are grouped
// per listing; a failing listing is reported per date while the other
// listings are still written.
func (a *Adapter) PushInventoryAndRates(ctx context.Context, creds model.Credentials, updates []model.InventoryUpdate) (channel.PushResult, error) {
	var result channel.PushResult
	if err := a.checkToken(creds); err != nil {
		return result, err
	}

	byListing := make(map[string][]model.InventoryUpdate)
	for _, u := range updates {
		byListing[u.RoomTypeID] = append(byListing[u.RoomTypeID], u)
	}
	listings := make([]string, 0, len(byListing))
	for id := range byListing {
		listings = append(listings, id)
	}
	sort.Strings(listings)

	var lastErr error
	for _, listing := range listings {
		batch := byListing[listing]
		payload := calendarRequest{Days: make([]calendarDay, 0, len(batch))}
		for _, u := range batch {
			payload.Days = append(payload.Days, buildCalendarDay(u))
		}

		resp, err := a.request(ctx, creds).
			SetHeader("Content-Type", "application/json").
			SetBody(payload).
			Put(a.url(creds, "/calendars/"+url.PathEscape(listing)))
		if err := channel.CheckResponse(Name, "update calendar", resp, err); err != nil {
			if channel.IsAuth(err) {
				return result, err
			}
			lastErr = err
			for _, u := range batch {
				result.Reject(model.DateKey(u.Date), fmt.Sprintf("%s %s: %v", listing, model.DateKey(u.Date), err))
			}
			continue
		}

		var body calendarUpdateResponse
		if err := json.Unmarshal(resp.Body(), &body); err != nil {
			return result, channel.Malformed(Name, "update calendar", err)
		}
		if len(body.Results) == 0 {
			result.Accepted += len(batch)
			continue
		}
		for _, r := range body.Results {
			if r.Status == dayStatusOK {
				result.Accepted++
				continue
			}
			result.Reject(r.Date, fmt.Sprintf("%s %s: %s", listing, r.Date, r.Message))
		}
	}

	if result.Accepted == 0 && lastErr != nil {
		return result, lastErr
	}
	return result, nil
}

// ConfirmReservation implements [channel.Adapter] by accepting a request.
func (a *Adapter) ConfirmReservation(ctx context.Context, creds model.Credentials, reservationID string) error {
	if err := a.checkToken(creds); err != nil {
		return err
	}
	resp, err := a.request(ctx, creds).
		Post(a.url(creds, "/reservations/"+url.PathEscape(reservationID)+"/accept"))
	return channel.CheckResponse(Name, "accept reservation", resp, err)
}

// DeclineOrCancel implements [channel.Adapter]. Pending requests are
// declined; the marketplace answers 409 for reservations that are already
// accepted, which are then cancelled instead.
func (a *Adapter) DeclineOrCancel(ctx context.Context, creds model.Credentials, reservationID, reason string) error {
	if err := a.checkToken(creds); err != nil {
		return err
	}
	body := map[string]string{"reason": reason}
	path := "/reservations/" + url.PathEscape(reservationID)

	resp, err := a.request(ctx, creds).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(a.url(creds, path+"/decline"))
	if err == nil && resp.StatusCode() == http.StatusConflict {
		a.log.Debug("reservation already accepted, cancelling", "channel", Name, "reservation_id", reservationID)
		resp, err = a.request(ctx, creds).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(a.url(creds, path+"/cancel"))
		return channel.CheckResponse(Name, "cancel reservation", resp, err)
	}
	return channel.CheckResponse(Name, "decline reservation", resp, err)
}

// SendMessage implements [channel.Adapter].
func (a *Adapter) SendMessage(ctx context.Context, creds model.Credentials, reservationID, body string) error {
	if err := a.checkToken(creds); err != nil {
		return err
	}
	if body == "" {
		return errors.New("message body is empty")
	}
	resp, err := a.request(ctx, creds).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"body": body}).
		Post(a.url(creds, "/threads/"+url.PathEscape(reservationID)+"/messages"))
	return channel.CheckResponse(Name, "send message", resp, err)
}

// FetchMessages implements [channel.Adapter].
func (a *Adapter) FetchMessages(ctx context.Context, creds model.Credentials, reservationID string) ([]model.GuestMessage, error) {
	if err := a.checkToken(creds); err != nil {
		return nil, err
	}
	resp, err := a.request(ctx, creds).
		Get(a.url(creds, "/threads/"+url.PathEscape(reservationID)+"/messages"))
	if err := channel.CheckResponse(Name, "fetch messages", resp, err); err != nil {
		return nil, err
	}
	var thread threadResponse
	if err := json.Unmarshal(resp.Body(), &thread); err != nil {
		return nil, channel.Malformed(Name, "fetch messages", err)
	}
	out := make([]model.GuestMessage, 0, len(thread.Messages))
	for _, m := range thread.Messages {
		out = append(out, messageToModel(m))
	}
	return out, nil
}

// TestConnection implements [channel.Adapter].
func (a *Adapter) TestConnection(ctx context.Context, creds model.Credentials) channel.ConnectionResult {
	p, err := a.Authenticate(ctx, creds)
	if err != nil {
		return channel.ConnectionResult{Message: err.Error()}
	}
	return channel.ConnectionResult{
		Success: true,
		Message: fmt.Sprintf("connected as %s (%d listings)", p.AccountID, len(p.Properties)),
	}
}
