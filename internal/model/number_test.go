package model

import (
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewReferenceNumber(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	ticket := NewReferenceNumber(TicketPrefix, 2025, TicketSuffixLen, rng)
	assert.Regexp(t, regexp.MustCompile(`^APT-2025-[A-Z0-9]{6}$`), ticket)

	cert := NewReferenceNumber(CertificatePrefix, 2025, CertificateSuffixLen, rng)
	assert.Regexp(t, regexp.MustCompile(`^CERT-2025-[A-Z0-9]{8}$`), cert)

	rx := NewReferenceNumber(PrescriptionPrefix, 2026, PrescriptionSuffixLen, rng)
	assert.Regexp(t, regexp.MustCompile(`^RX-2026-[A-Z0-9]{6}$`), rx)
}

func TestNewReferenceNumberDeterministic(t *testing.T) {
	a := NewReferenceNumber(TicketPrefix, 2025, TicketSuffixLen, rand.New(rand.NewSource(42)))
	b := NewReferenceNumber(TicketPrefix, 2025, TicketSuffixLen, rand.New(rand.NewSource(42)))
	require.Equal(t, a, b)

	c := NewReferenceNumber(TicketPrefix, 2025, TicketSuffixLen, rand.New(rand.NewSource(43)))
	assert.NotEqual(t, a, c)
}
