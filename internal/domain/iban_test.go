package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidIBAN(t *testing.T) {
	tests := []struct {
		iban string
		want bool
	}{
		{"DE89370400440532013000", true},
		{"GB82WEST12345698765432", true},
		{"FR1420041010050500013M02606", true},
		{"CH9300762011623852957", true},
		{"AT611904300234573201", true},
		{"DE89370400440532013001", false},
		{"GB82WEST1234569876543", false},
		{"de89370400440532013000", false},
		{"1E89370400440532013000", false},
		{"DEXX370400440532013000", false},
		{"DE89-370400440532013000", false},
		{"DE8937", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.iban, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidIBAN(tt.iban))
		})
	}
}

func TestNormalizeIBAN(t *testing.T) {
	assert.Equal(t, "DE89370400440532013000", NormalizeIBAN(" de89 3704 0044 0532 0130 00 "))
	assert.True(t, ValidIBAN(NormalizeIBAN("gb82 west 1234 5698 7654 32")))
}
