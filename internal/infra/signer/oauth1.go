package signer

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" // #nosec G505 -- OAuth 1.0a mandates HMAC-SHA1
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	oauthSignatureMethod = "HMAC-SHA1"
	oauthVersion         = "1.0"
	nonceBytes           = 16
)

// OAuth1Credentials are the four OAuth 1.0a secrets of a user context.
type OAuth1Credentials struct {
	ConsumerKey    string `yaml:"consumer_key"`
	ConsumerSecret string `yaml:"consumer_secret"`
	Token          string `yaml:"access_token"`
	TokenSecret    string `yaml:"access_token_secret"`
}

// Param is one name/value pair of the signature parameter set.
type Param struct {
	Key   string
	Value string
}

// OAuth1Signer signs requests with OAuth 1.0a HMAC-SHA1.
type OAuth1Signer struct {
	service string
	creds   OAuth1Credentials
	clock   func() time.Time
	nonce   func() (string, error)
}

// OAuth1Option customizes an OAuth1Signer.
type OAuth1Option func(*OAuth1Signer)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) OAuth1Option {
	return func(s *OAuth1Signer) { s.clock = clock }
}

// WithNonceSource overrides the nonce generator.
func WithNonceSource(nonce func() (string, error)) OAuth1Option {
	return func(s *OAuth1Signer) { s.nonce = nonce }
}

// NewOAuth1Signer creates a signer for the given credentials.
func NewOAuth1Signer(service string, creds OAuth1Credentials, opts ...OAuth1Option) *OAuth1Signer {
	s := &OAuth1Signer{
		service: service,
		creds:   creds,
		clock:   time.Now,
		nonce:   GenerateNonce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateNonce returns 16 random bytes encoded as unpadded URL-safe base64.
func GenerateNonce() (string, error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Authorization implements Signer.
func (s *OAuth1Signer) Authorization(req Request) (string, error) {
	if s.creds.ConsumerKey == "" || s.creds.ConsumerSecret == "" {
		return "", signingError(s.service, "consumer key and secret are required", nil)
	}

	nonce, err := s.nonce()
	if err != nil {
		return "", signingError(s.service, "generate nonce", err)
	}
	if nonce == "" {
		return "", signingError(s.service, "generate nonce: empty nonce", nil)
	}

	oauthParams := []Param{
		{Key: "oauth_consumer_key", Value: s.creds.ConsumerKey},
		{Key: "oauth_nonce", Value: nonce},
		{Key: "oauth_signature_method", Value: oauthSignatureMethod},
		{Key: "oauth_timestamp", Value: strconv.FormatInt(s.clock().Unix(), 10)},
	}
	if s.creds.Token != "" {
		oauthParams = append(oauthParams, Param{Key: "oauth_token", Value: s.creds.Token})
	}
	oauthParams = append(oauthParams, Param{Key: "oauth_version", Value: oauthVersion})

	u, err := parseSigningURL(req.URL)
	if err != nil {
		return "", signingError(s.service, err.Error(), err)
	}

	all := make([]Param, 0, len(oauthParams)+8)
	all = append(all, oauthParams...)
	all = appendValues(all, u.Query())
	all = appendValues(all, req.FormParams)

	base := SignatureBaseString(req.Method, NormalizeURL(u), all)
	signature := Sign(base, s.creds.ConsumerSecret, s.creds.TokenSecret)

	oauthParams = append(oauthParams, Param{Key: "oauth_signature", Value: signature})
	return AuthorizationHeader(oauthParams), nil
}

// SignatureBaseString builds METHOD&enc(url)&enc(sorted params).
func SignatureBaseString(method, normalizedURL string, params []Param) string {
	return strings.ToUpper(method) + "&" + PercentEncode(normalizedURL) + "&" + PercentEncode(NormalizeParams(params))
}

// NormalizeParams percent-encodes every pair, sorts by key then value and
// joins them as k=v separated by "&".
func NormalizeParams(params []Param) string {
	encoded := make([]Param, len(params))
	for i, p := range params {
		encoded[i] = Param{Key: PercentEncode(p.Key), Value: PercentEncode(p.Value)}
	}
	sort.Slice(encoded, func(i, j int) bool {
		if encoded[i].Key != encoded[j].Key {
			return encoded[i].Key < encoded[j].Key
		}
		return encoded[i].Value < encoded[j].Value
	})

	pairs := make([]string, len(encoded))
	for i, p := range encoded {
		pairs[i] = p.Key + "=" + p.Value
	}
	return strings.Join(pairs, "&")
}

// NormalizeURL returns scheme://host/path with the query and fragment
// dropped, scheme and host lowercased and default ports removed.
func NormalizeURL(u *url.URL) string {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Host)
	if port := u.Port(); (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		host = strings.ToLower(u.Hostname())
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return scheme + "://" + host + path
}

// Sign computes base64(HMAC-SHA1(enc(consumerSecret)&enc(tokenSecret), base)).
func Sign(base, consumerSecret, tokenSecret string) string {
	key := PercentEncode(consumerSecret) + "&" + PercentEncode(tokenSecret)
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// AuthorizationHeader renders OAuth k="v", ... with keys sorted.
func AuthorizationHeader(params []Param) string {
	sorted := make([]Param, len(params))
	copy(sorted, params)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	parts := make([]string, len(sorted))
	for i, p := range sorted {
		parts[i] = fmt.Sprintf(`%s="%s"`, PercentEncode(p.Key), PercentEncode(p.Value))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

func parseSigningURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}
	return u, nil
}

func appendValues(dst []Param, values url.Values) []Param {
	for key, vals := range values {
		for _, v := range vals {
			dst = append(dst, Param{Key: key, Value: v})
		}
	}
	return dst
}
