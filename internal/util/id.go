// Package util provides identifier, numbering and clock helpers.
package util

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator provides thread-safe UUIDv7 generation.
// UUIDv7 keeps ids time-ordered for better index locality.
type IDGenerator struct {
	mu sync.Mutex
}

// NewIDGenerator creates a new ID generator.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{}
}

// NewID generates a new UUIDv7 identifier, falling back to a random UUID if
// the clock source fails.
func (g *IDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

var generator = NewIDGenerator()

// NewID generates a new UUIDv7 identifier from the package generator.
func NewID() string {
	return generator.NewID()
}

// ParseID validates and normalizes a UUID string.
func ParseID(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid ID format: %w", err)
	}
	return id.String(), nil
}

// IsValidID checks if a string is a valid UUID format.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// FormatLotNumber builds a human-readable lot number.
// Format: {prefix}{park code}-{year}-{4-digit sequence}
// Example: L-PRK01-2026-0007
func FormatLotNumber(prefix, parkCode string, year, seq int) string {
	return fmt.Sprintf("%s%s-%04d-%04d", prefix, strings.ToUpper(parkCode), year, seq)
}

// ParseLotNumber extracts the park code, year and sequence from a lot number
// built by FormatLotNumber with the same prefix.
func ParseLotNumber(prefix, lotNumber string) (parkCode string, year, seq int, err error) {
	rest, ok := strings.CutPrefix(lotNumber, prefix)
	if !ok {
		return "", 0, 0, fmt.Errorf("invalid lot number %q: missing prefix %q", lotNumber, prefix)
	}

	// Park codes may contain dashes; year and sequence are always the last two parts.
	parts := strings.Split(rest, "-")
	if len(parts) < 3 {
		return "", 0, 0, fmt.Errorf("invalid lot number format: %q", lotNumber)
	}
	tail := strings.Join(parts[len(parts)-2:], "-")
	if _, err := fmt.Sscanf(tail, "%04d-%04d", &year, &seq); err != nil {
		return "", 0, 0, fmt.Errorf("invalid lot number format: %w", err)
	}
	return strings.Join(parts[:len(parts)-2], "-"), year, seq, nil
}
