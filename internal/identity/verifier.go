package identity

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ThxTiger/roomkiosk/internal/models"
)

// Decision is the outcome of a privileged-action verification
type Decision int

const (
	// DecisionAuthorized means the verified identity may perform the action
	DecisionAuthorized Decision = iota
	// DecisionDenied means an identity was verified but is not in the
	// meeting's authorization set
	DecisionDenied
	// DecisionCancelled means no identity was verified: the prompt was
	// closed, the flow timed out, or a verification was already running
	DecisionCancelled
)

// Outcome describes the result of VerifyAndAuthorize. Identity is set for
// both authorized and denied decisions; Message is the user-facing denial
// text.
type Outcome struct {
	Decision Decision
	Identity string
	Token    *Token
	Message  string
}

// Verifier gates privileged actions (ending a meeting early, checking in)
// behind a forced interactive authentication and an authorization check
// against the meeting's organizer and invitees.
type Verifier struct {
	provider   Provider
	inProgress atomic.Bool
}

// NewVerifier creates a verifier backed by the given provider
func NewVerifier(provider Provider) *Verifier {
	return &Verifier{provider: provider}
}

// InProgress reports whether an interactive verification is currently running
func (v *Verifier) InProgress() bool {
	return v.inProgress.Load()
}

// VerifyAndAuthorize forces a fresh interactive authentication and checks the
// verified identity against the event's organizer and invitees. A cached or
// silent credential is never consulted: whoever stands at the kiosk must
// re-assert who they are. Overlapping calls collapse into one prompt; the
// loser returns Cancelled immediately.
func (v *Verifier) VerifyAndAuthorize(ctx context.Context, event *models.MeetingSnapshot) (Outcome, error) {
	if event == nil {
		return Outcome{Decision: DecisionCancelled}, errors.New("no event to authorize against")
	}

	if !v.inProgress.CompareAndSwap(false, true) {
		return Outcome{Decision: DecisionCancelled}, nil
	}
	defer v.inProgress.Store(false)

	token, err := v.provider.AcquireInteractive(ctx, true)
	if err != nil {
		if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
			return Outcome{Decision: DecisionCancelled}, nil
		}
		return Outcome{Decision: DecisionCancelled}, err
	}

	identity := token.Account.Email
	if !event.Authorizes(identity) {
		// Name the denying identity and the organizer, nothing else: the
		// invitee list must not leak through a denial message.
		return Outcome{
			Decision: DecisionDenied,
			Identity: identity,
			Message: fmt.Sprintf("access denied: verified as %s; only the organizer (%s) or an invited attendee may perform this action",
				identity, event.Organizer.Email),
		}, nil
	}

	return Outcome{Decision: DecisionAuthorized, Identity: identity, Token: token}, nil
}
