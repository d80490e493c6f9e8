// Package channel defines the capability every OTA adapter exposes to the
// channel manager, the error kinds adapters report, a registry resolving
// channel names to adapters, and a backoff [Retry] helper used by the
// manager around adapter calls.
//
// Adapters translate to and from their channel's native wire format and
// never retry on their own.
package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/njoerd114/channelsync/internal/model"
)

// ErrUnsupported is returned by adapters for capabilities the channel does
// not offer.
var ErrUnsupported = errors.New("unsupported")

// ErrRemoteNotFound is returned when the channel does not know the
// requested reservation or listing.
var ErrRemoteNotFound = errors.New("not found on channel")

// ErrNotConfigured is reported when a channel is unknown or disabled for a
// property.
var ErrNotConfigured = errors.New("channel not configured")

// AuthError reports rejected credentials. Callers should flag the channel
// for re-authorization instead of retrying.
type AuthError struct {
	Channel string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %s", e.Channel, e.Message)
}

// TransportError wraps timeouts, refused connections, unexpected status
// codes, and malformed responses.
type TransportError struct {
	Channel string
	Op      string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Channel, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsAuth reports whether err carries an [AuthError].
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Retryable reports whether a failed call may succeed when repeated.
// Authentication failures, unsupported capabilities, and cancellation are
// final.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if IsAuth(err) || errors.Is(err, ErrUnsupported) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransportError
	return errors.As(err, &te)
}

// Profile describes the account an adapter authenticated as.
type Profile struct {
	AccountID   string
	DisplayName string
	Properties  []string
}

// PushResult reports a batch push. Per-item failures are listed in Errors
// while accepted items stay applied. Rejected holds the days of those
// failures, when the channel names one.
type PushResult struct {
	Accepted int
	Errors   []string
	Rejected []time.Time
}

// Reject records a per-item failure for the day in the channel's wire
// date format.
func (r *PushResult) Reject(date, msg string) {
	r.Errors = append(r.Errors, msg)
	if d, err := model.ParseDate(date); err == nil {
		r.Rejected = append(r.Rejected, d)
	}
}

// ConnectionResult is the outcome of a connectivity probe.
type ConnectionResult struct {
	Success bool
	Message string
}

// RawReservation is a channel's native reservation payload. Each adapter
// has its own concrete type; the manager only ever sees it through this
// interface and the explicit normalization step.
type RawReservation interface {
	ChannelName() string
	// Normalize converts the payload into the canonical shape. Room types
	// are still channel ids; the manager maps them to local ids.
	Normalize(propertyID string) (model.ChannelReservation, error)
}

// Adapter is the uniform capability set of one external channel. Room-type
// ids in requests and responses are channel ids.
type Adapter interface {
	Name() string
	Authenticate(ctx context.Context, creds model.Credentials) (Profile, error)
	FetchReservations(ctx context.Context, creds model.Credentials, window *model.DateRange) ([]RawReservation, error)
	FetchInventory(ctx context.Context, creds model.Credentials, roomIDs []string, window model.DateRange) ([]model.InventorySnapshot, error)
	PushInventoryAndRates(ctx context.Context, creds model.Credentials, updates []model.InventoryUpdate) (PushResult, error)
	ConfirmReservation(ctx context.Context, creds model.Credentials, reservationID string) error
	DeclineOrCancel(ctx context.Context, creds model.Credentials, reservationID, reason string) error
	SendMessage(ctx context.Context, creds model.Credentials, reservationID, body string) error
	FetchMessages(ctx context.Context, creds model.Credentials, reservationID string) ([]model.GuestMessage, error)
	TestConnection(ctx context.Context, creds model.Credentials) ConnectionResult
}
