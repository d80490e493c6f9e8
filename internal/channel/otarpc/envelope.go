package otarpc

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/njoerd114/channelsync/internal/channel"
)

// Fault codes the OTA returns inside the envelope body.
const (
	faultAuth     = "AUTH"
	faultNotFound = "NOT_FOUND"
	faultBusy     = "BUSY"
	faultServer   = "SERVER"
)

type authentication struct {
	Username string `xml:"username,attr"`
	Password string `xml:"password,attr"`
}

type requestHeader struct {
	Authentication authentication `xml:"Authentication"`
}

// requestEnvelope wraps one method element. The method's own XMLName names
// the element inside Body.
type requestEnvelope struct {
	XMLName xml.Name      `xml:"Envelope"`
	Header  requestHeader `xml:"Header"`
	Body    struct {
		Method any
	} `xml:"Body"`
}

type fault struct {
	Code    string `xml:"code,attr"`
	Message string `xml:"message,attr"`
}

// responseEnvelope keeps the body raw so the caller can decode the
// method-specific response after checking for a fault.
type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *fault `xml:"Fault"`
		Inner []byte `xml:",innerxml"`
	} `xml:"Body"`
}

func newEnvelope(username, password string, method any) requestEnvelope {
	env := requestEnvelope{Header: requestHeader{Authentication: authentication{Username: username, Password: password}}}
	env.Body.Method = method
	return env
}

// faultError maps an envelope fault onto the channel error kinds.
func faultError(op string, f *fault) error {
	switch strings.ToUpper(f.Code) {
	case faultAuth:
		return &channel.AuthError{Channel: Name, Message: f.Message}
	case faultNotFound:
		return fmt.Errorf("%s %s: %s: %w", Name, op, f.Message, channel.ErrRemoteNotFound)
	case faultBusy, faultServer:
		return &channel.TransportError{Channel: Name, Op: op, Err: fmt.Errorf("fault %s: %s", f.Code, f.Message)}
	default:
		return fmt.Errorf("%s %s: fault %s: %s", Name, op, f.Code, f.Message)
	}
}

// decodeEnvelope parses a response envelope, returning the fault as an error
// or decoding the body content into out.
func decodeEnvelope(op string, data []byte, out any) error {
	var env responseEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return channel.Malformed(Name, op, err)
	}
	if env.Body.Fault != nil {
		return faultError(op, env.Body.Fault)
	}
	if out == nil {
		return nil
	}
	if err := xml.Unmarshal(env.Body.Inner, out); err != nil {
		return channel.Malformed(Name, op, err)
	}
	return nil
}
