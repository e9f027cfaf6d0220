//go:build windows

package presence

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"syscall"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/n1/biovault/internal/log"
	"golang.org/x/sys/windows"
)

const userConsentVerifierClass = "Windows.Security.Credentials.UI.UserConsentVerifier"

var (
	iidUserConsentVerifierStatics = ole.NewGUID("{AF4F3F91-564C-4DDC-B8B5-973447627C65}")
	iidUserConsentVerifierInterop = ole.NewGUID("{39E050C3-4E74-441A-8DC0-B81104DF949C}")
	// IAsyncOperation<UserConsentVerificationResult>
	iidAsyncVerificationResult = ole.NewGUID("{FD596FFD-2318-558F-9DBE-D21DF43764A5}")
	iidAsyncInfo               = ole.NewGUID("{00000036-0000-0000-C000-000000000046}")
)

// UserConsentVerifierAvailability
const helloAvailable = 0

// UserConsentVerificationResult
const (
	helloVerified             = 0
	helloDeviceNotPresent     = 1
	helloNotConfiguredForUser = 2
	helloDisabledByPolicy     = 3
	helloDeviceBusy           = 4
	helloRetriesExhausted     = 5
	helloCanceled             = 6
)

// AsyncStatus
const (
	asyncStarted   = 0
	asyncCompleted = 1
	asyncCanceled  = 2
	asyncError     = 3
)

const asyncPollInterval = 50 * time.Millisecond

type userConsentVerifierStaticsVtbl struct {
	ole.IInspectableVtbl
	CheckAvailabilityAsync   uintptr
	RequestVerificationAsync uintptr
}

type userConsentVerifierInteropVtbl struct {
	ole.IInspectableVtbl
	RequestVerificationForWindowAsync uintptr
}

type asyncOperationVtbl struct {
	ole.IInspectableVtbl
	PutCompleted uintptr
	GetCompleted uintptr
	GetResults   uintptr
}

type asyncInfoVtbl struct {
	ole.IInspectableVtbl
	GetID        uintptr
	GetStatus    uintptr
	GetErrorCode uintptr
	Cancel       uintptr
	Close        uintptr
}

// helloVerifier drives Windows Hello through the WinRT
// UserConsentVerifier. The handle is the native window the prompt is
// anchored to.
type helloVerifier struct{}

func newPlatform(Options) Verifier { return helloVerifier{} }

func hresult(r uintptr) error {
	if int32(r) < 0 {
		return ole.NewError(r)
	}
	return nil
}

// withApartment runs fn on a locked OS thread joined to the COM
// multithreaded apartment.
func withApartment(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
	var oleErr *ole.OleError
	switch {
	case err == nil:
		defer ole.CoUninitialize()
	case errors.As(err, &oleErr) && oleErr.Code() == 1: // S_FALSE: already initialized
		defer ole.CoUninitialize()
	case errors.As(err, &oleErr) && uint32(oleErr.Code()) == 0x80010106: // RPC_E_CHANGED_MODE
	default:
		return fmt.Errorf("%w: CoInitializeEx: %v", ErrUnavailable, err)
	}
	return fn()
}

func (helloVerifier) Available(ctx context.Context) (bool, error) {
	var available bool
	err := withApartment(func() error {
		factory, err := ole.RoGetActivationFactory(userConsentVerifierClass, iidUserConsentVerifierStatics)
		if err != nil {
			return fmt.Errorf("%w: activation factory: %v", ErrUnavailable, err)
		}
		defer factory.Release()

		vtbl := (*userConsentVerifierStaticsVtbl)(unsafe.Pointer(factory.RawVTable))
		var op *ole.IInspectable
		r, _, _ := syscall.SyscallN(vtbl.CheckAvailabilityAsync,
			uintptr(unsafe.Pointer(factory)),
			uintptr(unsafe.Pointer(&op)))
		if err := hresult(r); err != nil {
			return fmt.Errorf("CheckAvailabilityAsync: %w", err)
		}
		defer op.Release()

		result, err := awaitInt32(ctx, op)
		if err != nil {
			return err
		}
		log.Debug().Int32("availability", result).Msg("Windows Hello availability")
		available = result == helloAvailable
		return nil
	})
	if errors.Is(err, ErrUnavailable) {
		log.Debug().Err(err).Msg("Windows Hello unreachable")
		return false, nil
	}
	return available, err
}

func (helloVerifier) Verify(ctx context.Context, handle []byte, reason string) error {
	hwnd, err := decodeWindowHandle(handle)
	if err != nil {
		return err
	}

	return withApartment(func() error {
		factory, err := ole.RoGetActivationFactory(userConsentVerifierClass, iidUserConsentVerifierInterop)
		if err != nil {
			return fmt.Errorf("%w: activation factory: %v", ErrUnavailable, err)
		}
		defer factory.Release()

		message, err := ole.NewHString(reason)
		if err != nil {
			return fmt.Errorf("create prompt string: %w", err)
		}
		defer ole.DeleteHString(message)

		vtbl := (*userConsentVerifierInteropVtbl)(unsafe.Pointer(factory.RawVTable))
		var op *ole.IInspectable
		r, _, _ := syscall.SyscallN(vtbl.RequestVerificationForWindowAsync,
			uintptr(unsafe.Pointer(factory)),
			hwnd,
			uintptr(message),
			uintptr(unsafe.Pointer(iidAsyncVerificationResult)),
			uintptr(unsafe.Pointer(&op)))
		if err := hresult(r); err != nil {
			return fmt.Errorf("RequestVerificationForWindowAsync: %w", err)
		}
		defer op.Release()

		result, err := awaitInt32(ctx, op)
		if err != nil {
			return err
		}
		return helloError(result)
	})
}

// decodeWindowHandle reads a little-endian HWND. An empty handle anchors
// the prompt to the foreground window.
func decodeWindowHandle(handle []byte) (uintptr, error) {
	switch len(handle) {
	case 0:
		return uintptr(windows.GetForegroundWindow()), nil
	case 4:
		return uintptr(binary.LittleEndian.Uint32(handle)), nil
	case 8:
		return uintptr(binary.LittleEndian.Uint64(handle)), nil
	default:
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidHandle, len(handle))
	}
}

// awaitInt32 polls an IAsyncOperation whose result is a 32-bit enum.
// Cancelling ctx cancels the operation, which closes the prompt.
func awaitInt32(ctx context.Context, op *ole.IInspectable) (int32, error) {
	disp, err := op.QueryInterface(iidAsyncInfo)
	if err != nil {
		return 0, fmt.Errorf("query IAsyncInfo: %w", err)
	}
	info := (*ole.IInspectable)(unsafe.Pointer(disp))
	defer info.Release()
	infoVtbl := (*asyncInfoVtbl)(unsafe.Pointer(info.RawVTable))

	ticker := time.NewTicker(asyncPollInterval)
	defer ticker.Stop()

	cancelled := false
	for {
		var status int32
		r, _, _ := syscall.SyscallN(infoVtbl.GetStatus,
			uintptr(unsafe.Pointer(info)),
			uintptr(unsafe.Pointer(&status)))
		if err := hresult(r); err != nil {
			return 0, fmt.Errorf("IAsyncInfo.get_Status: %w", err)
		}

		switch status {
		case asyncCompleted:
			var result int32
			opVtbl := (*asyncOperationVtbl)(unsafe.Pointer(op.RawVTable))
			r, _, _ := syscall.SyscallN(opVtbl.GetResults,
				uintptr(unsafe.Pointer(op)),
				uintptr(unsafe.Pointer(&result)))
			if err := hresult(r); err != nil {
				return 0, fmt.Errorf("IAsyncOperation.GetResults: %w", err)
			}
			return result, nil
		case asyncCanceled:
			if err := ctx.Err(); err != nil {
				return 0, fmt.Errorf("%w: %v", ErrCancelled, err)
			}
			return 0, ErrCancelled
		case asyncError:
			var code int32
			syscall.SyscallN(infoVtbl.GetErrorCode,
				uintptr(unsafe.Pointer(info)),
				uintptr(unsafe.Pointer(&code)))
			return 0, fmt.Errorf("async operation failed: %w", ole.NewError(uintptr(uint32(code))))
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if !cancelled {
				syscall.SyscallN(infoVtbl.Cancel, uintptr(unsafe.Pointer(info)))
				cancelled = true
			}
			// Keep polling until the operation acknowledges the cancel.
			select {
			case <-ticker.C:
			case <-time.After(asyncPollInterval):
			}
		}
	}
}

func helloError(result int32) error {
	switch result {
	case helloVerified:
		return nil
	case helloCanceled:
		return ErrCancelled
	case helloDeviceNotPresent:
		return ErrUnavailable
	case helloNotConfiguredForUser:
		return ErrNotConfigured
	case helloDisabledByPolicy:
		return ErrDenied
	case helloRetriesExhausted:
		return ErrLockedOut
	case helloDeviceBusy:
		return fmt.Errorf("%w: device busy", ErrFailed)
	default:
		return fmt.Errorf("%w: verification result %d", ErrFailed, result)
	}
}
