package fingerprint

import (
	"errors"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
)

// ErrMalformedSignals is returned when no usable signal was supplied.
var ErrMalformedSignals = errors.New("fingerprint: malformed signal tuple")

// Header names carrying the browser-collected signals.
const (
	HeaderLanguage       = "X-Client-Language"
	HeaderScreen         = "X-Client-Screen"
	HeaderTimezoneOffset = "X-Client-Timezone-Offset"
	HeaderCanvas         = "X-Client-Canvas"
)

// maxIdentityLen is the length of the largest uint64 in base 36.
const maxIdentityLen = 13

// Signals is the ordered tuple of client signals an identity is derived from.
type Signals struct {
	UserAgent      string `json:"user_agent"`
	Language       string `json:"language"`
	Screen         string `json:"screen"`
	TimezoneOffset string `json:"timezone_offset"`
	CanvasDigest   string `json:"canvas_digest"`
}

func (s Signals) ordered() [5]string {
	return [5]string{s.UserAgent, s.Language, s.Screen, s.TimezoneOffset, s.CanvasDigest}
}

// Resolve folds the signals into a 64-bit FNV-1a hash and returns it in
// base 36. The same tuple always yields the same identity.
func Resolve(s Signals) (string, error) {
	fields := s.ordered()

	empty := true
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			empty = false
			break
		}
	}
	if empty {
		return "", ErrMalformedSignals
	}

	h := fnv.New64a()
	for i, f := range fields {
		if i > 0 {
			// Unit separator keeps ("ab","c") distinct from ("a","bc").
			_, _ = h.Write([]byte{0x1f})
		}
		_, _ = h.Write([]byte(strings.TrimSpace(f)))
	}
	return strconv.FormatUint(h.Sum64(), 36), nil
}

// SignalsFromRequest reads the signal tuple from r. Language falls back to the
// first Accept-Language tag when the client did not send X-Client-Language.
func SignalsFromRequest(r *http.Request) Signals {
	lang := r.Header.Get(HeaderLanguage)
	if lang == "" {
		lang = primaryLanguage(r.Header.Get("Accept-Language"))
	}
	return Signals{
		UserAgent:      r.UserAgent(),
		Language:       lang,
		Screen:         r.Header.Get(HeaderScreen),
		TimezoneOffset: r.Header.Get(HeaderTimezoneOffset),
		CanvasDigest:   r.Header.Get(HeaderCanvas),
	}
}

// FromRequest resolves the identity of the client that sent r.
func FromRequest(r *http.Request) (string, error) {
	return Resolve(SignalsFromRequest(r))
}

// Valid reports whether id has the shape of a resolved identity.
func Valid(id string) bool {
	if id == "" || len(id) > maxIdentityLen {
		return false
	}
	_, err := strconv.ParseUint(id, 36, 64)
	return err == nil
}

// primaryLanguage returns "en-US" for "en-US,en;q=0.9".
func primaryLanguage(accept string) string {
	first, _, _ := strings.Cut(accept, ",")
	tag, _, _ := strings.Cut(first, ";")
	return strings.TrimSpace(tag)
}
