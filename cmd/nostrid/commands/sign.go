package commands

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/Hussein-Mazeh/nostr-identity/internal/session"
)

func signMessage(w io.Writer, sess *session.Session, message string) error {
	digest := sha256.Sum256([]byte(message))
	sig, err := sess.Sign(digest[:])
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	fmt.Fprintf(w, "Digest:     %s\n", hex.EncodeToString(digest[:]))
	fmt.Fprintf(w, "Signature:  %s\n", hex.EncodeToString(sig))
	return nil
}
