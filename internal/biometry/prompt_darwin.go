//go:build darwin && cgo

package biometry

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework LocalAuthentication -framework Foundation -framework Security -framework CoreFoundation

#import <LocalAuthentication/LocalAuthentication.h>
#import <Foundation/Foundation.h>
#import <dispatch/dispatch.h>
#include <stdlib.h>

static int nostrid_bio_available(void) {
	@autoreleasepool {
		LAContext *context = [[LAContext alloc] init];
		if (!context) {
			return -100;
		}
		NSError *canError = nil;
		if (![context canEvaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics error:&canError]) {
			return canError ? (int)[canError code] : -101;
		}
		return 0;
	}
}

static int nostrid_bio_prompt(const char *cReason, long long timeoutSeconds) {
	@autoreleasepool {
		NSString *reason = cReason ? [[NSString alloc] initWithUTF8String:cReason] : nil;
		if (!reason) {
			reason = @"Authenticate to continue";
		}

		LAContext *context = [[LAContext alloc] init];
		if (!context) {
			return -100;
		}

		NSError *canError = nil;
		if (![context canEvaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics error:&canError]) {
			return canError ? (int)[canError code] : -101;
		}

		dispatch_semaphore_t sema = dispatch_semaphore_create(0);
		__block BOOL success = NO;
		__block NSError *evalError = nil;

		[context evaluatePolicy:LAPolicyDeviceOwnerAuthenticationWithBiometrics
		        localizedReason:reason
		                  reply:^(BOOL evaluated, NSError * _Nullable error) {
		                      success = evaluated;
		                      evalError = error;
		                      dispatch_semaphore_signal(sema);
		                  }];

		dispatch_time_t timeout = dispatch_time(DISPATCH_TIME_NOW, (int64_t)(timeoutSeconds * NSEC_PER_SEC));
		long waitResult = dispatch_semaphore_wait(sema, timeout);
		[context invalidate];

		if (waitResult != 0) {
			return -103;
		}
		if (success) {
			return 0;
		}
		return evalError ? (int)[evalError code] : -104;
	}
}
*/
import "C"
import (
	"context"
	"fmt"
	"strings"
	"time"
	"unsafe"
)

// LocalAuthentication error codes we map onto the package sentinels.
const (
	laUserCancel         = -2
	laUserFallback       = -3
	laSystemCancel       = -4
	laBiometryNotAvail   = -6
	laBiometryNotEnroll  = -7
	laBiometryLockout    = -8
	laAppCancel          = -9
	codeNoContext        = -100
	codeCannotEvaluate   = -101
	codePromptTimeout    = -103
	defaultPromptTimeout = 60 * time.Second
)

func biometryAvailable() bool {
	return int(C.nostrid_bio_available()) == 0
}

// authenticate shows the Touch ID prompt, bounded by ctx's deadline.
func authenticate(ctx context.Context, reason string) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultReason
	}

	timeout := defaultPromptTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	seconds := int64(timeout / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	cReason := C.CString(reason)
	defer C.free(unsafe.Pointer(cReason))

	code := int(C.nostrid_bio_prompt(cReason, C.longlong(seconds)))
	switch code {
	case 0:
		return nil
	case laUserCancel, laUserFallback, laSystemCancel, laAppCancel, laBiometryLockout, codePromptTimeout:
		return fmt.Errorf("%w (code %d)", ErrCancelled, code)
	case laBiometryNotAvail, laBiometryNotEnroll, codeNoContext, codeCannotEvaluate:
		return fmt.Errorf("%w (code %d)", ErrUnsupported, code)
	default:
		return fmt.Errorf("biometric authentication failed (code %d)", code)
	}
}
