package model

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// Int64ToBigInt converts an int64 value to a *big.Int.
func Int64ToBigInt(value int64) *big.Int {
	return big.NewInt(value)
}
