// Package module implements the dynamic module subsystem: signature
// verification of relocatable module images against a trust root,
// relocation and W^X-enforced loading, the per-module capability sandbox,
// the supervisor that drives a module through its load/run/ban lifecycle,
// and the watchdog that polls health callbacks.
package module

import (
	"crypto/ed25519"
	"sync/atomic"

	"github.com/Redstone-OS/forge/errno"
)

// TrustPolicy selects how strictly Verify enforces signatures: debug
// builds may run signed-or-not, release builds must require a valid
// signature.
type TrustPolicy uint8

const (
	PolicyAllowAny TrustPolicy = iota
	PolicyRequired
)

// trustRoot is one of the four genuinely global, write-once-at-boot
// tables: the set of public keys module signatures are checked against.
// Stored behind an atomic.Value so Verify (called from arbitrary module
// load requests, potentially concurrently) never races the one-time
// InstallTrustRoot call boot makes before any module is ever loaded.
var trustRoot atomic.Value // holds []ed25519.PublicKey

// InstallTrustRoot publishes the configured set of accepted signer keys.
// Called exactly once during boot, before the module subsystem accepts
// its first load request.
func InstallTrustRoot(keys []ed25519.PublicKey) {
	cp := make([]ed25519.PublicKey, len(keys))
	copy(cp, keys)
	trustRoot.Store(cp)
}

func currentTrustRoot() []ed25519.PublicKey {
	v, _ := trustRoot.Load().([]ed25519.PublicKey)
	return v
}

// Verify checks sig over image against every key in the trust root,
// succeeding if any key validates it. Under PolicyAllowAny, an empty or
// failing signature is tolerated (debug builds); under PolicyRequired it
// is fatal to the load.
func Verify(image, sig []byte, policy TrustPolicy) errno.Err_t {
	keys := currentTrustRoot()
	for _, k := range keys {
		if len(sig) == ed25519.SignatureSize && ed25519.Verify(k, image, sig) {
			return errno.OK
		}
	}
	if policy == PolicyAllowAny {
		return errno.OK
	}
	return errno.PermissionDenied
}
