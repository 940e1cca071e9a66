package telephony

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// NumberSearch queries the provider for purchasable phone numbers.
type NumberSearch struct {
	client *twilio.RestClient
}

func NewNumberSearch(accountSID, authToken string) (*NumberSearch, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("telephony: missing twilio credentials")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &NumberSearch{client: client}, nil
}

type NumberQuery struct {
	Country  string // ISO2, default US
	Type     string // local, mobile, toll_free
	AreaCode string
	Contains string
	Limit    int
}

type AvailableNumber struct {
	PhoneNumber  string `json:"phone_number"`
	FriendlyName string `json:"friendly_name"`
	Locality     string `json:"locality"`
	Region       string `json:"region"`
	IsoCountry   string `json:"iso_country"`
	Voice        bool   `json:"voice"`
	SMS          bool   `json:"sms"`
}

func (q NumberQuery) withDefaults() NumberQuery {
	out := q
	if out.Country == "" {
		out.Country = "US"
	}
	if out.Type == "" {
		out.Type = "local"
	}
	if out.Limit <= 0 || out.Limit > 50 {
		out.Limit = 20
	}
	return out
}

// numberCaps is the capability set the provider reports for every
// available-number type.
type numberCaps = api.ApiV2010AccountAvailablePhoneNumberCountryAvailablePhoneNumberLocalCapabilities

func mapNumber(phoneNumber, friendlyName, locality, region, isoCountry *string, caps *numberCaps) AvailableNumber {
	out := AvailableNumber{
		PhoneNumber:  deref(phoneNumber),
		FriendlyName: deref(friendlyName),
		Locality:     deref(locality),
		Region:       deref(region),
		IsoCountry:   deref(isoCountry),
	}
	if caps != nil {
		out.Voice = caps.Voice
		out.SMS = caps.Sms
	}
	return out
}

func (s *NumberSearch) Search(ctx context.Context, q NumberQuery) ([]AvailableNumber, error) {
	q = q.withDefaults()

	switch q.Type {
	case "local":
		params := &api.ListAvailablePhoneNumberLocalParams{}
		params.SetVoiceEnabled(true)
		params.SetLimit(q.Limit)
		if q.Contains != "" {
			params.SetContains(q.Contains)
		}
		if code, err := strconv.Atoi(q.AreaCode); err == nil {
			params.SetAreaCode(code)
		}
		rows, err := s.client.Api.ListAvailablePhoneNumberLocal(q.Country, params)
		if err != nil {
			return nil, fmt.Errorf("telephony: number search failed: %w", err)
		}
		out := make([]AvailableNumber, 0, len(rows))
		for _, n := range rows {
			out = append(out, mapNumber(n.PhoneNumber, n.FriendlyName, n.Locality, n.Region, n.IsoCountry, n.Capabilities))
		}
		return out, nil

	case "mobile":
		params := &api.ListAvailablePhoneNumberMobileParams{}
		params.SetVoiceEnabled(true)
		params.SetLimit(q.Limit)
		if q.Contains != "" {
			params.SetContains(q.Contains)
		}
		rows, err := s.client.Api.ListAvailablePhoneNumberMobile(q.Country, params)
		if err != nil {
			return nil, fmt.Errorf("telephony: number search failed: %w", err)
		}
		out := make([]AvailableNumber, 0, len(rows))
		for _, n := range rows {
			out = append(out, mapNumber(n.PhoneNumber, n.FriendlyName, n.Locality, n.Region, n.IsoCountry, n.Capabilities))
		}
		return out, nil

	case "toll_free":
		params := &api.ListAvailablePhoneNumberTollFreeParams{}
		params.SetVoiceEnabled(true)
		params.SetLimit(q.Limit)
		if q.Contains != "" {
			params.SetContains(q.Contains)
		}
		rows, err := s.client.Api.ListAvailablePhoneNumberTollFree(q.Country, params)
		if err != nil {
			return nil, fmt.Errorf("telephony: number search failed: %w", err)
		}
		out := make([]AvailableNumber, 0, len(rows))
		for _, n := range rows {
			out = append(out, mapNumber(n.PhoneNumber, n.FriendlyName, n.Locality, n.Region, n.IsoCountry, n.Capabilities))
		}
		return out, nil

	default:
		return nil, fmt.Errorf("telephony: unknown number type %q", q.Type)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
