package module

import (
	"crypto/ed25519"
	"testing"

	"github.com/Redstone-OS/forge/errno"
)

func TestVerifyAcceptsValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	InstallTrustRoot([]ed25519.PublicKey{pub})
	defer InstallTrustRoot(nil)

	image := []byte("module payload")
	sig := ed25519.Sign(priv, image)

	if got := Verify(image, sig, PolicyRequired); got != errno.OK {
		t.Fatalf("Verify() = %v, want OK", got)
	}
}

func TestVerifyRejectsWrongKeyUnderPolicyRequired(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	_, otherPriv, _ := ed25519.GenerateKey(nil)
	InstallTrustRoot([]ed25519.PublicKey{pub})
	defer InstallTrustRoot(nil)

	image := []byte("module payload")
	sig := ed25519.Sign(otherPriv, image)

	if got := Verify(image, sig, PolicyRequired); got != errno.PermissionDenied {
		t.Fatalf("Verify() = %v, want PermissionDenied", got)
	}
}

func TestVerifyAllowAnyToleratesMissingSignature(t *testing.T) {
	InstallTrustRoot(nil)
	if got := Verify([]byte("x"), nil, PolicyAllowAny); got != errno.OK {
		t.Fatalf("Verify() under PolicyAllowAny = %v, want OK", got)
	}
}
