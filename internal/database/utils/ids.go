// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package utils

import (
	"crypto/rand"
	"fmt"
	"time"

	uuid "github.com/gofrs/uuid"
)

// GenerateTransactionID generates a unique transaction ID
func GenerateTransactionID() string {
	return generateID("tx")
}

// GenerateOperationID generates a unique ID for a database operation
func GenerateOperationID() string {
	return generateID("op")
}

func generateID(prefix string) string {
	id, err := uuid.NewV4()
	if err != nil {
		// Fallback to timestamp-based ID if UUID generation fails
		return fmt.Sprintf("%s_%d_%x", prefix, time.Now().UnixNano(), generateRandomBytes(4))
	}
	return fmt.Sprintf("%s_%s", prefix, id.String())
}

// generateRandomBytes generates random bytes for fallback ID generation
func generateRandomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}
