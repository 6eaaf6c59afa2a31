package haier

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignMatchesKnownVector(t *testing.T) {

	assert := assert.New(t)

	sign := Sign("https://uws.haier.net/uds/v1/protected/deviceinfos", "", APP_ID, APP_KEY, "1700000000000")
	assert.Equal("8e5c6d0e557e42bf13fe418b718bca5f71a55f8c7307348314643cd1ef9b46b6", sign)
}

func TestSignIgnoresBodyWhitespace(t *testing.T) {

	assert := assert.New(t)

	const expected = "0b1008c2974eb0e64666b40afc8b12a36364620f5fb50b58a49f37200c5e4bcd"
	endpoint := "https://uws.haier.net/shadow/v1/devdigitalmodels"

	compact := Sign(endpoint, `{"deviceInfoList":[{"deviceId":"DC330D0000AA"}]}`, APP_ID, APP_KEY, "1700000000000")
	spaced := Sign(endpoint, "{\"deviceInfoList\": [\n\t{\"deviceId\": \"DC330D0000AA\"}\r\n]}", APP_ID, APP_KEY, "1700000000000")

	assert.Equal(expected, compact)
	assert.Equal(compact, spaced)
}

func TestSequenceId(t *testing.T) {

	assert := assert.New(t)

	now := time.Date(2024, 3, 9, 7, 5, 3, 0, time.UTC)
	for range 50 {
		seq := SequenceId(now)
		assert.Len(seq, 20)
		assert.True(strings.HasPrefix(seq, "20240309070503"))
		assert.NotEqual(byte('0'), seq[14], "suffix is in 100000..999999")
	}
}

func TestRandomSerial(t *testing.T) {

	assert := assert.New(t)

	serial := RandomSerial(SERIAL_LENGTH)
	assert.Len(serial, SERIAL_LENGTH)
	for _, ch := range serial {
		assert.Contains(serialCharset, string(ch))
	}
}
