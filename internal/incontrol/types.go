package incontrol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Organization is one entry of GET /rest/o.
type Organization struct {
	ID   string
	Name string
}

// Device is one entry of GET /rest/o/{id}/d?includeWarranty=true, reduced to
// the fields the report needs. ExpiryDate is kept exactly as the API sent it.
type Device struct {
	SerialNumber string
	ExpiryDate   string
	Expired      bool
}

// envelope is the {"data": [...]} wrapper shared by the inventory endpoints.
// Items are decoded one at a time so that a single odd record cannot fail the
// whole response.
type envelope struct {
	Data []json.RawMessage `json:"data"`
}

// UnmarshalJSON accepts the organization id as either a JSON string or number.
// Records that are not objects decode to the zero Organization.
func (o *Organization) UnmarshalJSON(data []byte) error {
	fields := objectFields(data)
	*o = Organization{
		ID:   scalarString(fields["id"]),
		Name: scalarString(fields["name"]),
	}
	return nil
}

// UnmarshalJSON never fails: fields with an unexpected type are left empty
// so the record is later skipped and counted instead of aborting the fetch.
func (d *Device) UnmarshalJSON(data []byte) error {
	fields := objectFields(data)
	*d = Device{
		SerialNumber: jsonString(fields["sn"]),
		ExpiryDate:   jsonString(fields["expiry_date"]),
		Expired:      jsonBool(fields["expired"]),
	}
	return nil
}

func objectFields(data []byte) map[string]json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields
}

func jsonString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// scalarString renders a JSON string or number as text.
func scalarString(raw json.RawMessage) string {
	if s := jsonString(raw); s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	return n.String()
}

// jsonBool accepts true/false, 1/0 and their string forms.
func jsonBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	v, err := strconv.ParseBool(s)
	return err == nil && v
}
