package api

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"slotbook/internal/domain"
	"slotbook/internal/models"
	"slotbook/internal/service"
)

// slotQuery is the wire form of a slot listing, shared by HTTP query strings
// and gRPC struct messages.
type slotQuery struct {
	ServiceID   string `json:"service_id"`
	Date        string `json:"date"`
	Timezone    string `json:"timezone"`
	StaffID     string `json:"staff_id"`
	LocationID  string `json:"location_id"`
	Granularity int    `json:"granularity"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
}

func slotQueryFromURL(v url.Values) (slotQuery, error) {
	q := slotQuery{
		ServiceID:   strings.TrimSpace(v.Get("service_id")),
		Date:        strings.TrimSpace(v.Get("date")),
		Timezone:    strings.TrimSpace(v.Get("timezone")),
		StaffID:     strings.TrimSpace(v.Get("staff_id")),
		LocationID:  strings.TrimSpace(v.Get("location_id")),
		WindowStart: strings.TrimSpace(v.Get("window_start")),
		WindowEnd:   strings.TrimSpace(v.Get("window_end")),
	}
	var err error
	if q.Granularity, err = intParam(v, "granularity"); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(v, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = intParam(v, "offset"); err != nil {
		return q, err
	}
	return q, nil
}

// request converts the wire query. A date is optional only for next-available scans.
func (q slotQuery) request(requireDate bool) (service.SlotRequest, error) {
	req := service.SlotRequest{
		ServiceID:   q.ServiceID,
		Timezone:    q.Timezone,
		StaffID:     q.StaffID,
		LocationID:  q.LocationID,
		Granularity: q.Granularity,
		Limit:       q.Limit,
		Offset:      q.Offset,
	}
	if req.ServiceID == "" {
		return req, domain.Reject(domain.ErrConfiguration, "service_id is required")
	}
	if q.Date != "" {
		date, err := models.ParseDate(q.Date)
		if err != nil {
			return req, domain.Reject(domain.ErrConfiguration, err.Error())
		}
		req.Date = date
	} else if requireDate {
		return req, domain.Reject(domain.ErrConfiguration, "date is required")
	}

	var err error
	if req.WindowStart, err = models.ParseClockPtr(q.WindowStart); err != nil {
		return req, domain.Reject(domain.ErrConfiguration, err.Error())
	}
	if req.WindowEnd, err = models.ParseClockPtr(q.WindowEnd); err != nil {
		return req, domain.Reject(domain.ErrConfiguration, err.Error())
	}
	return req, nil
}

func intParam(v url.Values, name string) (int, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Rejectf(domain.ErrConfiguration, "%s must be an integer", name)
	}
	return n, nil
}

func dateParam(v url.Values, name string) (time.Time, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, domain.Reject(domain.ErrConfiguration, err.Error())
	}
	return d, nil
}

func timeParam(v url.Values, name string) (time.Time, error) {
	raw := strings.TrimSpace(v.Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.Rejectf(domain.ErrConfiguration, "%s must be RFC3339", name)
	}
	return t, nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// decodeStruct round-trips a struct message through JSON into out.
func decodeStruct(in *structpb.Struct, out any) error {
	raw, err := json.Marshal(in.AsMap())
	if err != nil {
		return domain.Reject(domain.ErrConfiguration, "invalid request message")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return domain.Rejectf(domain.ErrConfiguration, "invalid request message: %v", err)
	}
	return nil
}

// encodeStruct renders v, via its JSON form, as a struct message.
func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return structpb.NewStruct(m)
}
