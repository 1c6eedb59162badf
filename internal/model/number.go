package model

import (
	"fmt"
	"math/rand"
)

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Reference number prefixes and random-suffix lengths.
const (
	TicketPrefix       = "APT"
	CertificatePrefix  = "CERT"
	PrescriptionPrefix = "RX"

	TicketSuffixLen       = 6
	CertificateSuffixLen  = 8
	PrescriptionSuffixLen = 6
)

// NewReferenceNumber builds a human-readable identifier of the form
// PREFIX-YEAR-RANDOM, e.g. APT-2025-X7K2QD. Uniqueness is the caller's
// concern: persist against the unique constraint and regenerate on
// collision.
func NewReferenceNumber(prefix string, year int, suffixLen int, rng *rand.Rand) string {
	b := make([]byte, suffixLen)
	for i := range b {
		b[i] = referenceAlphabet[rng.Intn(len(referenceAlphabet))]
	}
	return fmt.Sprintf("%s-%d-%s", prefix, year, b)
}
