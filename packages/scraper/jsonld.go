package scraper

import (
	"strings"

	"eventcrawler/packages/domain"
)

// DecodeJSONLD decodes a schema.org Event object. Both sources embed JSON-LD
// on listing and detail pages, so this is the shared schema-B fallback in
// every decoder chain.
func DecodeJSONLD(obj map[string]any) (*domain.CrawledEvent, bool) {
	if !isSchemaOrgEvent(obj) {
		return nil, false
	}

	name := getString(obj, "name")
	url := getString(obj, "url")
	startAt, hasStart := parseEventTime(obj["startDate"])
	if name == "" || url == "" || !hasStart {
		return nil, false
	}

	ev := &domain.CrawledEvent{
		Name:        name,
		Description: getString(obj, "description"),
		StartAt:     startAt,
		ExternalURL: url,
		RawData:     map[string]any{"source_payload": obj, "schema": "json-ld"},
	}
	if endAt, ok := parseEventTime(obj["endDate"]); ok {
		ev.EndAt = endAt
	}

	switch img := obj["image"].(type) {
	case string:
		ev.Images = []string{img}
	case []any:
		for _, i := range img {
			if s, ok := i.(string); ok {
				ev.Images = append(ev.Images, s)
			}
		}
	}

	mode := getString(obj, "eventAttendanceMode")
	if strings.Contains(mode, "Online") {
		ev.LocationType = domain.LocationOnline
	} else if mode != "" {
		ev.LocationType = domain.LocationOffline
	}

	if loc := getObject(obj, "location"); loc != nil {
		if strings.Contains(getString(loc, "@type"), "VirtualLocation") {
			ev.LocationType = domain.LocationOnline
		}
		if addr := getObject(loc, "address"); addr != nil {
			ev.City = getString(addr, "addressLocality")
			ev.Address = getString(addr, "streetAddress")
		} else if s := getString(loc, "address"); s != "" {
			ev.Address = s
		}
		if ev.Address == "" {
			ev.Address = getString(loc, "name")
		}
		if geo := getObject(loc, "geo"); geo != nil {
			if lat, ok := getNumber(geo, "latitude"); ok {
				if lng, ok := getNumber(geo, "longitude"); ok {
					ev.Latitude, ev.Longitude = &lat, &lng
				}
			}
		}
	}

	offers := obj["offers"]
	if m, ok := offers.(map[string]any); ok {
		applyOffer(ev, m)
	} else if list, ok := offers.([]any); ok && len(list) > 0 {
		if m, ok := list[0].(map[string]any); ok {
			applyOffer(ev, m)
		}
	}

	return ev, true
}

func applyOffer(ev *domain.CrawledEvent, offer map[string]any) {
	if price, ok := getNumber(offer, "price"); ok {
		ev.Price = price
	}
	ev.Currency = getString(offer, "priceCurrency")
}

func isSchemaOrgEvent(obj map[string]any) bool {
	switch t := obj["@type"].(type) {
	case string:
		return strings.Contains(t, "Event")
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && strings.Contains(s, "Event") {
				return true
			}
		}
	}
	return false
}
