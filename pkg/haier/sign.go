package haier

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	APP_ID        = "MB-SHEZJAPPWXXCX-0000"
	APP_KEY       = "79ce99cc7f9804663939676031b8a427"
	TIMEZONE      = "+8"
	LANGUAGE      = "zh-CN"
	serialCharset = "abcdef1234567890"
)

var bodyCompactor = strings.NewReplacer("\t", "", "\r", "", "\n", "", " ", "")

// Sign computes the request signature: hex sha256 over
// path + compacted body + appId + appKey + timestamp.
func Sign(endpoint, body, appId, appKey, timestamp string) string {
	path := endpoint
	if u, err := url.Parse(endpoint); err == nil {
		path = u.Path
	}
	content := path + bodyCompactor.Replace(body) + appId + appKey + timestamp
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// SequenceId returns yyyyMMddHHmmss followed by a 6 digit random suffix.
func SequenceId(now time.Time) string {
	return now.Format("20060102150405") + strconv.Itoa(100000+rand.IntN(900000))
}

func MillisTimestamp(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// RandomSerial returns n characters drawn from the vendor serial charset.
func RandomSerial(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = serialCharset[rand.IntN(len(serialCharset))]
	}
	return string(b)
}
