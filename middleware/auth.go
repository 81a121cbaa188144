package middleware

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	SignatureHeader = "X-TX-Signature-V2"
	URLHeader       = "X-TX-Url"
	DateHeader      = "Date"
)

var ErrUnauthorized = errors.New("unauthorized")

type SignatureInput struct {
	HTTPVerb string
	URL      string
	Date     string
	Content  []byte
	Secret   string
}

// ComputeSignature returns the Transifex v2 webhook signature: the base64
// HMAC-SHA256 of verb, url, date and the hex md5 of the body, newline
// separated.
func ComputeSignature(in SignatureInput) string {
	contentDigest := md5.Sum(in.Content)
	message := strings.Join([]string{
		in.HTTPVerb,
		in.URL,
		in.Date,
		hex.EncodeToString(contentDigest[:]),
	}, "\n")

	mac := hmac.New(sha256.New, []byte(in.Secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type VerifyRequest struct {
	HTTPVerb  string
	URL       string
	Date      string
	Content   []byte
	Signature string
	Secret    string
}

// Authenticator checks webhook signatures. Requests dated more than MaxSkew
// away from Now are rejected; MaxSkew <= 0 accepts any parseable date.
type Authenticator struct {
	MaxSkew time.Duration
	Now     func() time.Time
}

func NewAuthenticator(maxSkew time.Duration) *Authenticator {
	return &Authenticator{MaxSkew: maxSkew, Now: time.Now}
}

func (a *Authenticator) Verify(req VerifyRequest) error {
	if req.Signature == "" || req.Secret == "" {
		return ErrUnauthorized
	}
	date, err := http.ParseTime(req.Date)
	if err != nil {
		return ErrUnauthorized
	}
	if a.MaxSkew > 0 {
		now := time.Now
		if a.Now != nil {
			now = a.Now
		}
		skew := now().Sub(date)
		if skew < 0 {
			skew = -skew
		}
		if skew > a.MaxSkew {
			return ErrUnauthorized
		}
	}

	expected := ComputeSignature(SignatureInput{
		HTTPVerb: req.HTTPVerb,
		URL:      req.URL,
		Date:     req.Date,
		Content:  req.Content,
		Secret:   req.Secret,
	})
	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		return ErrUnauthorized
	}
	return nil
}

// RequestURL is the URL Transifex signed: the X-TX-Url header when present,
// otherwise the URL the request arrived on.
func RequestURL(r *http.Request) string {
	if u := r.Header.Get(URLHeader); u != "" {
		return u
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
