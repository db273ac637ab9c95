package macros

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"callcenter-pro/internal/calls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

func fixedEngine() Engine {
	return Engine{
		Now:          func() time.Time { return fixedNow },
		NewRequestID: func(time.Time) string { return "req_fixed" },
	}
}

func ptr(f float64) *float64 { return &f }

func TestRender_CallerIDTemplate(t *testing.T) {
	e := Engine{}
	out := e.Render(`{"id":"{requestId}","caller":"{callerId}"}`, calls.Context{CallerID: "+15555551234"})

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "+15555551234", got["caller"])
	assert.Regexp(t, regexp.MustCompile(`^req_\d+_[0-9a-f]{12}$`), got["id"])
}

func TestRender_RequestIDIsFreshPerRender(t *testing.T) {
	e := Engine{}
	a := e.Render("{requestId}", calls.Context{})
	b := e.Render("{requestId}", calls.Context{})
	assert.NotEqual(t, a, b)
}

func TestRender_ReplacesEveryRecognisedToken(t *testing.T) {
	cc := calls.Context{
		InboundCallID:  "CA123",
		CallerID:       "+13105550000",
		CallerState:    "NY",
		CallerZip:      "10001",
		CallerAreaCode: "310",
		PublisherID:    "pub_9",
		PublisherSubID: "s2",
		MinBid:         ptr(12.5),
		MaxBid:         ptr(40),
		Currency:       "EUR",
		InboundNumber:  "+18885551212",
		Tags:           map[string]string{"vertical": "auto"},
	}

	var tmpl strings.Builder
	for i, tok := range tokenTable("req_x", fixedNow, cc) {
		if i%2 == 0 {
			tmpl.WriteString(tok)
			tmpl.WriteString("|")
			tmpl.WriteString(tok) // twice, every occurrence must go
			tmpl.WriteString("\n")
		}
	}

	out := fixedEngine().Render(tmpl.String(), cc)
	for i, tok := range tokenTable("req_x", fixedNow, cc) {
		if i%2 == 0 {
			assert.NotContains(t, out, tok)
		}
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{
		"req_fixed|req_fixed",
		"+13105550000|+13105550000",
		"2026-03-04T05:06:07.890Z|2026-03-04T05:06:07.890Z",
		"NY|NY",
		"10001|10001",
		"310|310",
		"pub_9|pub_9",
		"s2|s2",
		"12.5|12.5",
		"40|40",
		"EUR|EUR",
		"+18885551212|+18885551212",
		"+13105550000|+13105550000",
		"3105550000|3105550000",
		"CA123|CA123",
		"+18885551212|+18885551212",
		"8885551212|8885551212",
		"pub_9|pub_9",
		"s2|s2",
		"NY|NY",
		"10001|10001",
		"10001|10001",
		"auto|auto",
	}
	assert.Equal(t, want, lines)
}

func TestRender_UnknownTokensPassThrough(t *testing.T) {
	tmpl := `{"a":"{unknownField}","b":"[Call:Nope]","c":"[Custom:missing]","d":"{callerId"}`
	out := fixedEngine().Render(tmpl, calls.Context{})
	assert.Equal(t, tmpl, out)
}

func TestRender_DefaultsAndFallbacks(t *testing.T) {
	out := fixedEngine().Render(
		"{callerId} {callerState} {callerZip} {callerAreaCode} {publisherId} {publisherSubId} {minBid} {maxBid} {currency} {inboundNumber} [Call:InboundCallId]",
		calls.Context{},
	)
	assert.Equal(t, "+15551234567 CA 90210 555 test_publisher sub_001 10 50 USD +18005550100 req_fixed", out)
}

func TestRender_EmptyTemplateUsesDefault(t *testing.T) {
	out := fixedEngine().Render("  ", calls.Context{CallerID: "+12125550100"})
	assert.JSONEq(t, `{"requestId":"req_fixed","callerId":"+12125550100","timestamp":"2026-03-04T05:06:07.890Z"}`, out)
}

func TestRender_SinglePassDoesNotExpandSubstitutedValues(t *testing.T) {
	out := fixedEngine().Render("{publisherId}", calls.Context{PublisherID: "{callerId}"})
	assert.Equal(t, "{callerId}", out)
}

func TestBuild_ReportsParseErrorButKeepsBody(t *testing.T) {
	p := fixedEngine().Build(`{"caller": {callerId}}`, calls.Context{})
	assert.Equal(t, `{"caller": +15551234567}`, p.Body)
	assert.Equal(t, "req_fixed", p.RequestID)
	assert.NotEmpty(t, p.ParseError)

	ok := fixedEngine().Build(`{"caller":"{callerId}"}`, calls.Context{})
	assert.Empty(t, ok.ParseError)
}

func TestQueryParams(t *testing.T) {
	q, rid := fixedEngine().QueryParams(calls.Context{CallerID: "+13105550000", CampaignID: "camp_1"})
	assert.Equal(t, "req_fixed", rid)
	assert.Equal(t, "req_fixed", q.Get("requestId"))
	assert.Equal(t, "+13105550000", q.Get("callerId"))
	assert.Equal(t, "CA", q.Get("callerState"))
	assert.Equal(t, "10", q.Get("minBid"))
	assert.Equal(t, "camp_1", q.Get("campaignId"))
}

func TestNoPlus(t *testing.T) {
	cases := map[string]string{
		"+15551234567":    "5551234567",
		"5551234567":      "5551234567",
		"(555) 123-4567":  "5551234567",
		" +1 555.123.4567": "5551234567",
		"+44 20 7946 0958": "442079460958",
		"":                PlaceholderNoPlus,
		"+1":              PlaceholderNoPlus,
		"abc":             PlaceholderNoPlus,
	}
	for in, want := range cases {
		got := NoPlus(in)
		assert.Equal(t, want, got, "NoPlus(%q)", in)
		assert.Equal(t, got, NoPlus(got), "NoPlus not idempotent for %q", in)
	}
}

func TestRender_OverlappingCustomTagsAreStable(t *testing.T) {
	e := fixedEngine()
	cc := calls.Context{Tags: map[string]string{"a": "1", "a]b": "2", "z": "3"}}
	for i := 0; i < 50; i++ {
		require.Equal(t, "1b]|3", e.Render("[Custom:a]b]|[Custom:z]", cc), "render %d", i)
	}
}
