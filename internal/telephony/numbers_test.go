package telephony

import (
	"testing"

	api "github.com/twilio/twilio-go/rest/api/v2010"
)

func strPtr(s string) *string { return &s }

func TestMapNumberCapabilities(t *testing.T) {
	n := api.ApiV2010AvailablePhoneNumberLocal{
		PhoneNumber:  strPtr("+15551234567"),
		FriendlyName: strPtr("(555) 123-4567"),
		Locality:     strPtr("Springfield"),
		Region:       strPtr("IL"),
		IsoCountry:   strPtr("US"),
		Capabilities: &numberCaps{Voice: true, Sms: false, Mms: true},
	}

	got := mapNumber(n.PhoneNumber, n.FriendlyName, n.Locality, n.Region, n.IsoCountry, n.Capabilities)
	if got.PhoneNumber != "+15551234567" || got.Locality != "Springfield" {
		t.Fatalf("mapped = %+v", got)
	}
	if !got.Voice {
		t.Fatalf("voice capability dropped: %+v", got)
	}
	if got.SMS {
		t.Fatalf("sms capability invented: %+v", got)
	}
}

func TestMapNumberMissingFields(t *testing.T) {
	got := mapNumber(nil, nil, nil, nil, nil, nil)
	if got.PhoneNumber != "" || got.Voice || got.SMS {
		t.Fatalf("mapped = %+v", got)
	}
}

func TestNumberQueryDefaults(t *testing.T) {
	q := NumberQuery{}.withDefaults()
	if q.Country != "US" || q.Type != "local" || q.Limit != 20 {
		t.Fatalf("defaults = %+v", q)
	}
	if q := (NumberQuery{Limit: 500}).withDefaults(); q.Limit != 20 {
		t.Fatalf("limit not capped: %+v", q)
	}
}
