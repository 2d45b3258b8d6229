package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInvoiceNumber(t *testing.T) {
	n, err := ParseInvoiceNumber("ZT1042")
	require.NoError(t, err)
	assert.Equal(t, int64(1042), n)

	n, err = ParseInvoiceNumber("ZT1000")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)
}

func TestParseInvoiceNumberRejectsMalformedCodes(t *testing.T) {
	for _, code := range []string{"", "1042", "XX1042", "ZT", "ZTabc"} {
		_, err := ParseInvoiceNumber(code)
		assert.Error(t, err, "code %q should not parse", code)
	}
}

func TestFormatInvoiceCode(t *testing.T) {
	assert.Equal(t, "ZT1000", FormatInvoiceCode(1000))
	assert.Equal(t, "ZT99999", FormatInvoiceCode(99999))
}

func TestInvoiceCodeRoundTrip(t *testing.T) {
	for _, n := range []int64{1000, 1001, 123456} {
		parsed, err := ParseInvoiceNumber(FormatInvoiceCode(n))
		require.NoError(t, err)
		assert.Equal(t, n, parsed)
	}
}
