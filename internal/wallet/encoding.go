package wallet

import (
	"encoding/base64"

	"github.com/mr-tron/base58"
)

// Transaction bytes travel as standard base64.
func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func DecodeBase64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// Keys, messages and signatures travel as base58. The empty string stands for
// an empty byte slice.
func EncodeBase58(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base58.Encode(b)
}

func DecodeBase58(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	return base58.Decode(s)
}
