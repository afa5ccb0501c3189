// Command forgesign signs a module image for the Forge module loader. It
// derives an Ed25519 signing key from an operator-entered passphrase
// (read with echo disabled) rather than reading a key file from disk, so
// a compromised build host never has the key at rest.
package main

import (
	"crypto/ed25519"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"

	tty "github.com/mattn/go-tty"
)

func main() {
	out := flag.String("o", "", "path to write the signature to (default: <image>.sig)")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: forgesign [-o sig] <image>")
		os.Exit(2)
	}
	imagePath := flag.Arg(0)
	sigPath := *out
	if sigPath == "" {
		sigPath = imagePath + ".sig"
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgesign: %v\n", err)
		os.Exit(1)
	}

	priv, err := passphraseKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "forgesign: %v\n", err)
		os.Exit(1)
	}

	sig := ed25519.Sign(priv, image)
	if err := os.WriteFile(sigPath, sig, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "forgesign: %v\n", err)
		os.Exit(1)
	}

	pub := priv.Public().(ed25519.PublicKey)
	fmt.Printf("signed %s -> %s\npublic key: %x\n", imagePath, sigPath, pub)
}

// passphraseKey reads a passphrase from the controlling terminal with
// echo disabled and stretches it into an Ed25519 seed. The same
// passphrase always yields the same signing key, so the trust root a
// release build compiles in (module.InstallTrustRoot) only ever needs
// the public half, never the passphrase itself.
func passphraseKey() (ed25519.PrivateKey, error) {
	t, err := tty.Open()
	if err != nil {
		return nil, fmt.Errorf("opening terminal: %w", err)
	}
	defer t.Close()

	fmt.Print("signing passphrase: ")
	pass, err := t.ReadPassword()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	fmt.Print("confirm passphrase: ")
	confirm, err := t.ReadPassword()
	if err != nil {
		return nil, fmt.Errorf("reading passphrase: %w", err)
	}
	if pass != confirm {
		return nil, fmt.Errorf("passphrases did not match")
	}

	seed := sha256.Sum256([]byte(pass))
	return ed25519.NewKeyFromSeed(seed[:]), nil
}
