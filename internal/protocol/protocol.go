// Package protocol is the newline-delimited text protocol spoken by gesture
// clients. It maps lines to auth commands and auth events to lines; it holds
// no session state.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/gesture.auth/internal/auth"
)

// Client line prefixes.
const (
	prefixUsername = "USERNAME:"
	prefixReady    = "READY_FOR_GESTURE"
	prefixChat     = "MSG:"
)

// AuthRequired is sent to every client on connect.
const AuthRequired = "AUTH_REQUIRED"

var (
	ErrUnknownMessage = errors.New("unknown message")
	ErrMalformed      = errors.New("malformed message")
)

// Kind identifies a client request.
type Kind int

const (
	KindIdentity Kind = iota + 1
	KindReady
	KindChat
)

// Request is one parsed client line.
type Request struct {
	Kind Kind
	// Username is the name given in USERNAME:, READY_FOR_GESTURE:<name> or
	// MSG:<name>:<text>. The server trusts the connection's session, not
	// this field, for anything but SubmitIdentity.
	Username string
	Text     string
}

// Parse decodes one line. Surrounding whitespace is ignored.
func Parse(line string) (Request, error) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, prefixUsername):
		return Request{Kind: KindIdentity, Username: strings.TrimSpace(line[len(prefixUsername):])}, nil

	case strings.HasPrefix(line, prefixReady):
		rest := line[len(prefixReady):]
		if rest == "" {
			return Request{Kind: KindReady}, nil
		}
		if rest[0] != ':' {
			return Request{}, fmt.Errorf("%w: %q", ErrUnknownMessage, line)
		}
		return Request{Kind: KindReady, Username: strings.TrimSpace(rest[1:])}, nil

	case strings.HasPrefix(line, prefixChat):
		name, text, ok := strings.Cut(line[len(prefixChat):], ":")
		if !ok {
			return Request{}, fmt.Errorf("%w: chat needs MSG:<name>:<text>", ErrMalformed)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return Request{}, fmt.Errorf("%w: empty chat message", ErrMalformed)
		}
		return Request{Kind: KindChat, Username: strings.TrimSpace(name), Text: text}, nil
	}
	return Request{}, fmt.Errorf("%w: %q", ErrUnknownMessage, line)
}

// Command returns the auth command for identity and ready requests.
func (r Request) Command() (auth.Command, bool) {
	switch r.Kind {
	case KindIdentity:
		return auth.SubmitIdentity{Username: r.Username}, true
	case KindReady:
		return auth.ReadyForCapture{}, true
	}
	return nil, false
}

// clean keeps a field on one line.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Format renders an auth event as one protocol line, without the newline.
func Format(e auth.Event) string {
	switch e := e.(type) {
	case auth.IdentityResolved:
		if e.Mode == auth.ModeNew {
			return fmt.Sprintf("NEW_USER:Welcome %s! Please perform your gesture on the device to register.", clean(e.Username))
		}
		return fmt.Sprintf("EXISTING_USER:Welcome back %s! Please perform your gesture to sign in.", clean(e.Username))

	case auth.CaptureStarted:
		if e.Mode == auth.ModeNew {
			return fmt.Sprintf("RECORDING_START:Sample %d/%d. Perform your gesture now.", e.Index, e.Total)
		}
		return fmt.Sprintf("RECORDING_START:Attempt %d/%d. Perform your gesture now.", e.Index, e.Total)

	case auth.SampleRecorded:
		return fmt.Sprintf("SAMPLE_RECORDED:%d/%d", e.Index, e.Total)

	case auth.AttemptOutcome:
		status := "failed"
		if e.Passed {
			status = "success"
		}
		return fmt.Sprintf("ATTEMPT_RESULT:%d:%s:%d/%d", e.AttemptIndex, status, e.PassedCount, e.TotalCount)

	case auth.Accepted:
		return "AUTH_SUCCESS:" + clean(e.Username)

	case auth.Rejected:
		switch e.Reason {
		case auth.ReasonQuorumNotReached:
			return fmt.Sprintf("AUTH_FAILED:Only %d attempts passed", e.PassedCount)
		case auth.ReasonRegistrationNotSaved:
			return "AUTH_FAILED:Registration failed"
		}
		return "AUTH_FAILED:Authentication unavailable, try again later"

	case auth.Error:
		return "ERROR:" + clean(e.Detail)
	}
	return fmt.Sprintf("ERROR:unsupported event %T", e)
}

// Chat renders a relayed chat line.
func Chat(username, text string) string {
	return fmt.Sprintf("MSG:%s:%s", clean(username), clean(text))
}

// Errorf renders a transport-level error line.
func Errorf(format string, args ...any) string {
	return "ERROR:" + clean(fmt.Sprintf(format, args...))
}
