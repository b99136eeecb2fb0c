package gouroboros

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressCredentialsBaseAddress(t *testing.T) {
	raw := make([]byte, 1+2*credentialSize)
	raw[0] = 0x00 << 4
	for i := 0; i < credentialSize; i++ {
		raw[1+i] = byte(i)
		raw[1+credentialSize+i] = byte(i + 100)
	}

	payment, delegation := addressCredentials(raw)
	require.Len(t, payment, credentialSize)
	require.Len(t, delegation, credentialSize)
	require.Equal(t, byte(0), payment[0])
	require.Equal(t, byte(100), delegation[0])
}

func TestAddressCredentialsEnterpriseAddress(t *testing.T) {
	raw := make([]byte, 1+credentialSize)
	raw[0] = 0x06 << 4
	raw[1] = 0xAB

	payment, delegation := addressCredentials(raw)
	require.Len(t, payment, credentialSize)
	require.Nil(t, delegation)
	require.Equal(t, byte(0xAB), payment[0])
}

func TestAddressCredentialsStakeAddress(t *testing.T) {
	raw := make([]byte, 1+credentialSize)
	raw[0] = 0x0E << 4
	raw[1] = 0xCD

	payment, delegation := addressCredentials(raw)
	require.Nil(t, payment)
	require.Len(t, delegation, credentialSize)
	require.Equal(t, byte(0xCD), delegation[0])
}

func TestAddressCredentialsTooShort(t *testing.T) {
	payment, delegation := addressCredentials([]byte{0x00, 0x01})
	require.Nil(t, payment)
	require.Nil(t, delegation)
}
