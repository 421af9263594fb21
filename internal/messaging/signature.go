package messaging

import (
	"net/http"
	"net/url"

	twclient "github.com/twilio/twilio-go/client"
)

// SignatureHeader carries Twilio's request signature.
const SignatureHeader = "X-Twilio-Signature"

// Validator checks webhook signatures against the public URL Twilio called.
type Validator struct {
	rv      twclient.RequestValidator
	baseURL string
}

// NewValidator creates a validator. baseURL is the externally visible scheme and host.
func NewValidator(authToken, baseURL string) *Validator {
	return &Validator{rv: twclient.NewRequestValidator(authToken), baseURL: baseURL}
}

// Valid reports whether r carries a correct signature. r's form must be parsed.
func (v *Validator) Valid(r *http.Request) bool {
	sig := r.Header.Get(SignatureHeader)
	if sig == "" {
		return false
	}
	return v.rv.Validate(v.baseURL+r.URL.RequestURI(), flatten(r.PostForm), sig)
}

func flatten(form url.Values) map[string]string {
	params := make(map[string]string, len(form))
	for k, vs := range form {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params
}
