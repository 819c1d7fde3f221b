package license

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryValue_JSON(t *testing.T) {
	data, err := json.Marshal(PerpetualExpiry())
	require.NoError(t, err)
	assert.JSONEq(t, `"perpetual"`, string(data))

	at := ExpiresAt(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	data, err = json.Marshal(at)
	require.NoError(t, err)
	assert.JSONEq(t, `"2026-02-01T00:00:00Z"`, string(data))

	var decoded ExpiryValue
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, at.Equal(decoded))

	require.NoError(t, json.Unmarshal([]byte(`"perpetual"`), &decoded))
	assert.True(t, decoded.IsPerpetual())

	assert.Error(t, json.Unmarshal([]byte(`"next tuesday"`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`42`), &decoded))
}

func TestParseExpiryValue_NormalizesToUTC(t *testing.T) {
	v, err := ParseExpiryValue("2026-02-01T03:00:00+03:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), v.Time())
}

func TestLicenseKey_CloneIsIndependent(t *testing.T) {
	k := LicenseKey{ID: "K1", BoundDevices: []string{"a", "b"}}
	c := k.Clone()
	c.BoundDevices[0] = "z"
	assert.Equal(t, "a", k.BoundDevices[0])

	assert.NotNil(t, LicenseKey{}.Clone().BoundDevices)
}
