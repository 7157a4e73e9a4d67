// Package fingerprint derives a short, stable identity for an unauthenticated
// visitor from client-observable signals.
//
// The identity is a rate-limit key, not a security boundary. It is not
// cryptographically secure, it is not unique per person (two visitors with
// the same browser configuration share one identity) and a determined visitor
// can obtain a fresh identity by changing any single signal: a different
// browser, a resized window or a spoofed user agent. Callers that gate
// anonymous usage on it accept that bypass as an inherent property of
// unauthenticated rate limiting.
//
// # Signals
//
// Signals are folded in a fixed order: user agent, language, screen geometry,
// timezone offset and canvas-rendering digest. The browser collects the last
// four and sends them as request headers:
//
//	X-Client-Language         en-US
//	X-Client-Screen           1920x1080x24
//	X-Client-Timezone-Offset  -120
//	X-Client-Canvas           9f2c1e...
//
// # Usage
//
//	r := chi.NewRouter()
//	r.Use(fingerprint.Middleware)
//	r.Get("/usage", func(w http.ResponseWriter, r *http.Request) {
//		id := fingerprint.GetFingerprintFromContext(r.Context())
//		...
//	})
package fingerprint
