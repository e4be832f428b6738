package host

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// webAppDataKey is the HMAC key used to derive the secret from the bot token.
const webAppDataKey = "WebAppData"

// maxStartParamLen is the longest start parameter the host allows.
const maxStartParamLen = 512

// InitData is the parsed launch payload.
type InitData struct {
	Params   LaunchParams
	AuthDate time.Time
	Hash     string
	QueryID  string
}

type initDataUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ParseInitData parses the host's URL-encoded initData string.
// It does not check the signature; see ValidateInitData.
func ParseInitData(raw string) (*InitData, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.WithDetails(apperr.ErrInvalidLaunchParams, map[string]string{"reason": "empty init data"})
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, apperr.WithCause(apperr.ErrInvalidLaunchParams, err)
	}

	userJSON := values.Get("user")
	if userJSON == "" {
		return nil, apperr.WithDetails(apperr.ErrInvalidLaunchParams, map[string]string{"reason": "missing user"})
	}

	var u initDataUser
	if err := json.Unmarshal([]byte(userJSON), &u); err != nil {
		return nil, apperr.WithCause(apperr.ErrInvalidLaunchParams, err)
	}
	if u.ID <= 0 {
		return nil, apperr.WithDetails(apperr.ErrInvalidLaunchParams, map[string]string{"reason": "missing user id"})
	}

	startParam := values.Get("start_param")
	if len(startParam) > maxStartParamLen {
		return nil, apperr.WithDetails(apperr.ErrInvalidLaunchParams, map[string]string{"reason": "start_param too long"})
	}

	data := &InitData{
		Params: LaunchParams{
			Identity: Identity{
				ID:        u.ID,
				Username:  u.Username,
				FirstName: u.FirstName,
				LastName:  u.LastName,
			},
			StartParam: startParam,
		},
		Hash:    values.Get("hash"),
		QueryID: values.Get("query_id"),
	}

	if v := values.Get("auth_date"); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, apperr.WithDetails(apperr.ErrInvalidLaunchParams, map[string]string{"reason": "bad auth_date"})
		}
		data.AuthDate = time.Unix(secs, 0).UTC()
	}

	return data, nil
}

// ValidateInitData verifies the initData signature with the bot token and,
// when maxAge is positive, that auth_date is recent. The bot token is a
// server-side secret; this is meant for the backend side of the exchange.
func ValidateInitData(raw, botToken string, maxAge time.Duration, now time.Time) (*InitData, error) {
	data, err := ParseInitData(raw)
	if err != nil {
		return nil, err
	}
	if botToken == "" {
		return nil, apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{"bot.token": "required to validate init data"})
	}
	if data.Hash == "" {
		return nil, apperr.WithDetails(apperr.ErrInvalidLaunchParams, map[string]string{"reason": "missing hash"})
	}

	values, _ := url.ParseQuery(strings.TrimSpace(raw))
	expected := SignInitData(values, botToken)

	given, err := hex.DecodeString(data.Hash)
	if err != nil || !hmac.Equal(given, expected) {
		return nil, apperr.WithDetails(apperr.ErrInvalidLaunchParams, map[string]string{"reason": "signature mismatch"})
	}

	if maxAge > 0 {
		if data.AuthDate.IsZero() || now.Sub(data.AuthDate) > maxAge {
			return nil, apperr.WithDetails(apperr.ErrInvalidLaunchParams, map[string]string{"reason": "init data expired"})
		}
	}

	return data, nil
}

// SignInitData computes the initData signature over every field except hash.
func SignInitData(values url.Values, botToken string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmacSHA256([]byte(webAppDataKey), []byte(botToken))
	return hmacSHA256(secret, []byte(strings.Join(lines, "\n")))
}

// EncodeInitData builds a signed initData string. Used by tooling and tests
// to produce launch payloads the way the host does.
func EncodeInitData(params LaunchParams, authDate time.Time, botToken string) (string, error) {
	user, err := json.Marshal(initDataUser{
		ID:        params.Identity.ID,
		Username:  params.Identity.Username,
		FirstName: params.Identity.FirstName,
		LastName:  params.Identity.LastName,
	})
	if err != nil {
		return "", err
	}

	values := url.Values{}
	values.Set("user", string(user))
	values.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	if params.StartParam != "" {
		values.Set("start_param", params.StartParam)
	}
	if botToken != "" {
		values.Set("hash", hex.EncodeToString(SignInitData(values, botToken)))
	}
	return values.Encode(), nil
}

func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write(msg)
	return mac.Sum(nil)
}
