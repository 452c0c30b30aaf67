package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	digits       = "0123456789"
)

// GenerateReference generates a unique reference such as PAYOUT_20260131_X7K2Q9PL
func GenerateReference(prefix string) string {
	timestamp := time.Now().UTC().Format("20060102")
	return fmt.Sprintf("%s_%s_%s", prefix, timestamp, randomString(alphanumeric, 8))
}

// GenerateCodeSuffix returns n random digits used to disambiguate affiliate codes
func GenerateCodeSuffix(n int) string {
	return randomString(digits, n)
}

func randomString(charset string, length int) string {
	result := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range result {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		result[i] = charset[n.Int64()]
	}
	return string(result)
}
