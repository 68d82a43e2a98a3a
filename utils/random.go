package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns n random bytes as upper-case hex.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// PaymentReference builds the bill number an order is paid against.
func PaymentReference() (string, error) {
	code, err := GenerateCode(6)
	if err != nil {
		return "", err
	}
	return "ORD-" + code, nil
}
