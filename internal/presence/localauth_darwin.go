//go:build darwin && cgo

package presence

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework Foundation -framework LocalAuthentication
#include <stdlib.h>
#import <Foundation/Foundation.h>
#import <LocalAuthentication/LocalAuthentication.h>

static LAPolicy biovault_policy(int allow_passcode) {
	return allow_passcode ? LAPolicyDeviceOwnerAuthentication : LAPolicyDeviceOwnerAuthenticationWithBiometrics;
}

// 0 when the policy can be evaluated, otherwise the LAError code.
static long biovault_can_evaluate(int allow_passcode) {
	LAContext *ctx = [[LAContext alloc] init];
	NSError *err = nil;
	if ([ctx canEvaluatePolicy:biovault_policy(allow_passcode) error:&err]) {
		return 0;
	}
	return err != nil ? (long)err.code : -1;
}

static void *biovault_context_new(void) {
	return (__bridge_retained void *)[[LAContext alloc] init];
}

static void biovault_context_release(void *ref) {
	LAContext *ctx = (__bridge_transfer LAContext *)ref;
	ctx = nil;
}

static void biovault_context_invalidate(void *ref) {
	[(__bridge LAContext *)ref invalidate];
}

// Blocks until the prompt resolves: 0 on success, otherwise the LAError code.
static long biovault_evaluate(void *ref, const char *reason, int allow_passcode) {
	LAContext *ctx = (__bridge LAContext *)ref;
	NSString *msg = [NSString stringWithUTF8String:reason];
	dispatch_semaphore_t sema = dispatch_semaphore_create(0);
	__block long result = -1;
	[ctx evaluatePolicy:biovault_policy(allow_passcode)
	    localizedReason:msg
	              reply:^(BOOL success, NSError *error) {
		result = success ? 0 : (error != nil ? (long)error.code : -1);
		dispatch_semaphore_signal(sema);
	}];
	dispatch_semaphore_wait(sema, DISPATCH_TIME_FOREVER);
	return result;
}
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/n1/biovault/internal/log"
)

// LAError codes from LocalAuthentication/LAError.h.
const (
	laAuthenticationFailed = -1
	laUserCancel           = -2
	laUserFallback         = -3
	laSystemCancel         = -4
	laPasscodeNotSet       = -5
	laBiometryNotAvailable = -6
	laBiometryNotEnrolled  = -7
	laBiometryLockout      = -8
	laAppCancel            = -9
	laInvalidContext       = -10
	laNotInteractive       = -1004
)

// localAuthVerifier prompts through Touch ID / Face ID. The handle is not
// used: the system anchors the sheet itself.
type localAuthVerifier struct {
	allowPasscode C.int
}

func newPlatform(opts Options) Verifier {
	v := &localAuthVerifier{}
	if opts.AllowDevicePasscode {
		v.allowPasscode = 1
	}
	return v
}

func (v *localAuthVerifier) Available(ctx context.Context) (bool, error) {
	code := C.biovault_can_evaluate(v.allowPasscode)
	if code == 0 {
		return true, nil
	}
	log.Debug().Int64("la_error", int64(code)).Msg("LocalAuthentication policy cannot be evaluated")
	return false, nil
}

func (v *localAuthVerifier) Verify(ctx context.Context, handle []byte, reason string) error {
	ref := C.biovault_context_new()
	defer C.biovault_context_release(ref)

	creason := C.CString(reason)
	defer C.free(unsafe.Pointer(creason))

	done := make(chan C.long, 1)
	go func() { done <- C.biovault_evaluate(ref, creason, v.allowPasscode) }()

	select {
	case code := <-done:
		return laError(int64(code))
	case <-ctx.Done():
		// Invalidating the context dismisses the sheet and makes the
		// reply block fire with laAppCancel.
		C.biovault_context_invalidate(ref)
		<-done
		return fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
	}
}

func laError(code int64) error {
	switch code {
	case 0:
		return nil
	case laUserCancel, laSystemCancel, laAppCancel, laUserFallback:
		return ErrCancelled
	case laAuthenticationFailed:
		return ErrFailed
	case laBiometryLockout:
		return ErrLockedOut
	case laBiometryNotEnrolled, laPasscodeNotSet:
		return ErrNotConfigured
	case laBiometryNotAvailable, laNotInteractive, laInvalidContext:
		return ErrUnavailable
	default:
		return fmt.Errorf("%w: LAError %d", ErrFailed, code)
	}
}
