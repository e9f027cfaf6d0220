//go:build linux

package presence

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/n1/biovault/internal/log"
)

const (
	polkitBusName   = "org.freedesktop.PolicyKit1"
	polkitPath      = "/org/freedesktop/PolicyKit1/Authority"
	polkitInterface = "org.freedesktop.PolicyKit1.Authority"

	polkitErrCancelled     = "org.freedesktop.PolicyKit1.Error.Cancelled"
	polkitErrNotAuthorized = "org.freedesktop.PolicyKit1.Error.NotAuthorized"
	dbusErrServiceUnknown  = "org.freedesktop.DBus.Error.ServiceUnknown"
	dbusErrNoReply         = "org.freedesktop.DBus.Error.NoReply"

	// CheckAuthorizationFlags.AllowUserInteraction
	allowUserInteraction uint32 = 0x1
)

// cancelCheckTimeout bounds CancelCheckAuthorization so a wedged polkitd
// cannot hold Verify after its context is done.
var cancelCheckTimeout = 2 * time.Second

// polkitSubject is the (sa{sv}) subject structure.
type polkitSubject struct {
	Kind    string
	Details map[string]dbus.Variant
}

// authorizationResult is the (bba{ss}) CheckAuthorization reply.
type authorizationResult struct {
	IsAuthorized bool
	IsChallenge  bool
	Details      map[string]string
}

// actionDescription is one element of the EnumerateActions reply.
type actionDescription struct {
	ActionID         string
	Description      string
	Message          string
	VendorName       string
	VendorURL        string
	IconName         string
	ImplicitAny      uint32
	ImplicitInactive uint32
	ImplicitActive   uint32
	Annotations      map[string]string
}

// polkitVerifier authorizes the calling process for a polkit action. The
// session's authentication agent shows the prompt, which may be backed by
// fprintd or the account password depending on the PAM stack.
type polkitVerifier struct {
	action string
	bus    func() (*dbus.Conn, error)
	seq    atomic.Uint64
}

func newPlatform(opts Options) Verifier {
	action := opts.PolkitAction
	if action == "" {
		action = DefaultPolkitAction
	}
	return &polkitVerifier{action: action, bus: dbus.SystemBus}
}

func (p *polkitVerifier) authority() (dbus.BusObject, error) {
	conn, err := p.bus()
	if err != nil {
		return nil, fmt.Errorf("%w: system bus: %v", ErrUnavailable, err)
	}
	return conn.Object(polkitBusName, polkitPath), nil
}

// Available reports whether polkit is running and knows the action. It
// only enumerates actions, which never involves the agent.
func (p *polkitVerifier) Available(ctx context.Context) (bool, error) {
	obj, err := p.authority()
	if err != nil {
		log.Debug().Err(err).Msg("polkit unreachable")
		return false, nil
	}

	var actions []actionDescription
	if err := obj.CallWithContext(ctx, polkitInterface+".EnumerateActions", 0, "").Store(&actions); err != nil {
		if name := dbusErrorName(err); name == dbusErrServiceUnknown {
			log.Debug().Err(err).Msg("polkit not running")
			return false, nil
		}
		return false, fmt.Errorf("enumerate polkit actions: %w", err)
	}

	for _, a := range actions {
		if a.ActionID == p.action {
			return true, nil
		}
	}
	log.Debug().Str("action", p.action).Msg("polkit action not installed")
	return false, nil
}

// Verify blocks until the agent answers. Cancelling ctx withdraws the
// request so the dialog closes.
func (p *polkitVerifier) Verify(ctx context.Context, handle []byte, reason string) error {
	obj, err := p.authority()
	if err != nil {
		return err
	}

	subject := polkitSubject{
		Kind: "unix-process",
		Details: map[string]dbus.Variant{
			"pid":        dbus.MakeVariant(uint32(os.Getpid())),
			"start-time": dbus.MakeVariant(uint64(0)),
			"uid":        dbus.MakeVariant(int32(os.Getuid())),
		},
	}
	details := map[string]string{"polkit.message": reason}
	cancelID := fmt.Sprintf("biovault-%d-%d", os.Getpid(), p.seq.Add(1))

	var result authorizationResult
	err = obj.CallWithContext(ctx, polkitInterface+".CheckAuthorization", 0,
		subject, p.action, details, allowUserInteraction, cancelID).Store(&result)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// The reply was abandoned; make polkit drop the dialog too.
		cancelCheck(obj, cancelID)
		return fmt.Errorf("%w: %v", ErrCancelled, ctxErr)
	}
	if err != nil {
		switch dbusErrorName(err) {
		case polkitErrCancelled:
			return ErrCancelled
		case polkitErrNotAuthorized:
			return ErrDenied
		case dbusErrServiceUnknown, dbusErrNoReply:
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return fmt.Errorf("polkit check authorization: %w", err)
	}

	if result.IsAuthorized {
		return nil
	}
	if _, dismissed := result.Details["polkit.dismissed"]; dismissed {
		return ErrCancelled
	}
	return ErrFailed
}

// cancelCheck withdraws a pending CheckAuthorization. The caller's context
// is already done, so the call gets its own short deadline.
func cancelCheck(obj dbus.BusObject, cancelID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelCheckTimeout)
	defer cancel()

	call := obj.CallWithContext(ctx, polkitInterface+".CancelCheckAuthorization", 0, cancelID)
	if call.Err != nil {
		log.Debug().Err(call.Err).Str("cancellation_id", cancelID).Msg("polkit cancel failed")
	}
}

func dbusErrorName(err error) string {
	var e dbus.Error
	if errors.As(err, &e) {
		return e.Name
	}
	var pe *dbus.Error
	if errors.As(err, &pe) && pe != nil {
		return pe.Name
	}
	return ""
}
