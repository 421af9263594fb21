package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	twclient "github.com/twilio/twilio-go/client"
	twapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeCreator struct {
	calls []*twapi.CreateMessageParams
	errs  []error
}

func (f *fakeCreator) CreateMessage(params *twapi.CreateMessageParams) (*twapi.ApiV2010Message, error) {
	f.calls = append(f.calls, params)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &twapi.ApiV2010Message{}, nil
}

func TestSendSetsWhatsAppAddresses(t *testing.T) {
	fc := &fakeCreator{}
	s := newTwilio(fc, "+15550001111")

	if err := s.Send(context.Background(), "+15552223333", "hello", "https://example.com/v.mp4"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fc.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(fc.calls))
	}
	p := fc.calls[0]
	if *p.From != "whatsapp:+15550001111" || *p.To != "whatsapp:+15552223333" {
		t.Fatalf("unexpected addresses from=%s to=%s", *p.From, *p.To)
	}
	if *p.Body != "hello" {
		t.Fatalf("unexpected body %q", *p.Body)
	}
	if p.MediaUrl == nil || len(*p.MediaUrl) != 1 || (*p.MediaUrl)[0] != "https://example.com/v.mp4" {
		t.Fatalf("unexpected media url %v", p.MediaUrl)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	fc := &fakeCreator{errs: []error{&twclient.TwilioRestError{Status: 400, Message: "bad to"}}}
	s := newTwilio(fc, "+1555")

	if err := s.Send(context.Background(), "+1666", "hi", ""); err == nil {
		t.Fatal("expected error")
	}
	if len(fc.calls) != 1 {
		t.Fatalf("expected no retry, got %d calls", len(fc.calls))
	}
}

func TestAddressAndUserID(t *testing.T) {
	if got := Address("+123"); got != "whatsapp:+123" {
		t.Fatalf("Address = %q", got)
	}
	if got := Address("whatsapp:+123"); got != "whatsapp:+123" {
		t.Fatalf("Address double-prefixed: %q", got)
	}
	if got := UserID("whatsapp:+123"); got != "+123" {
		t.Fatalf("UserID = %q", got)
	}
}

func TestDisabledReturnsErr(t *testing.T) {
	if err := (Disabled{}).Send(context.Background(), "+1", "x", ""); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func sign(token, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidator(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+1555"}, "Body": {"a cat"}}
	base := "https://bot.example.com"
	path := "/api/v1/bot/webhook/twilio"

	newReq := func(sig string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if sig != "" {
			r.Header.Set(SignatureHeader, sig)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		return r
	}

	v := NewValidator("token", base)
	if !v.Valid(newReq(sign("token", base+path, form))) {
		t.Fatal("expected valid signature")
	}
	if v.Valid(newReq(sign("other", base+path, form))) {
		t.Fatal("expected invalid signature for wrong token")
	}
	if v.Valid(newReq("")) {
		t.Fatal("expected missing signature to be invalid")
	}
}
