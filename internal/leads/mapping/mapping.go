// Package mapping projects arbitrary inbound payloads onto lead fields.
package mapping

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"crmhub/pkg/email"
	"crmhub/pkg/phone"
)

type Field string

const (
	FieldName      Field = "name"
	FieldFirstName Field = "first_name"
	FieldLastName  Field = "last_name"
	FieldEmail     Field = "email"
	FieldPhone     Field = "phone"
	FieldCompany   Field = "company"
	FieldMessage   Field = "message"
	// FieldExternalID is the sender's id in the source system.
	FieldExternalID Field = "external_id"
)

// Fields lists every mappable lead field.
var Fields = []Field{FieldName, FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldCompany, FieldMessage, FieldExternalID}

func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// aliases are tried, in order, for fields the integration does not map.
var aliases = map[Field][]string{
	FieldName:       {"name", "full_name", "fullname", "fio", "contact_name"},
	FieldFirstName:  {"first_name", "firstname", "given_name"},
	FieldLastName:   {"last_name", "lastname", "surname", "family_name"},
	FieldEmail:      {"email", "e-mail", "mail", "contact_email"},
	FieldPhone:      {"phone", "phone_number", "tel", "telephone", "mobile"},
	FieldCompany:    {"company", "company_name", "organization"},
	FieldMessage:    {"message", "comment", "text"},
	FieldExternalID: {"external_id", "lead_id"},
}

// Lead is the normalized projection of a payload. Email and Phone are empty
// when the source value did not normalize.
type Lead struct {
	Name       string `json:"name"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Company    string `json:"company"`
	Message    string `json:"message"`
	ExternalID string `json:"external_id,omitempty"`
}

// Apply maps payload through mapping (field name to payload path), falls back
// to aliases for unmapped fields, derives a name and normalizes contacts.
func Apply(payload map[string]any, mapping map[string]string) Lead {
	get := func(f Field) string {
		if path, ok := mapping[string(f)]; ok && strings.TrimSpace(path) != "" {
			if v := Lookup(payload, path); v != "" {
				return v
			}
		}
		for _, alias := range aliases[f] {
			if v := lookupKeyFold(payload, alias); v != "" {
				return v
			}
		}
		return ""
	}

	lead := Lead{
		Name:       get(FieldName),
		FirstName:  get(FieldFirstName),
		LastName:   get(FieldLastName),
		Company:    get(FieldCompany),
		Message:    get(FieldMessage),
		ExternalID: get(FieldExternalID),
	}
	lead.Email, _ = email.Normalize(get(FieldEmail))
	lead.Phone, _ = phone.Normalize(get(FieldPhone))
	lead.Name = deriveName(lead)
	return lead
}

func deriveName(l Lead) string {
	if l.Name != "" {
		return l.Name
	}
	if full := strings.TrimSpace(l.FirstName + " " + l.LastName); full != "" {
		return full
	}
	if l.Email != "" {
		return email.DisplayName(l.Email)
	}
	return ""
}

// Lookup resolves path against payload. The path is first tried as a literal
// top-level key, then as a dotted path where numeric segments index arrays.
// Objects and arrays resolve to "".
func Lookup(payload map[string]any, path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	if v, ok := payload[path]; ok {
		return Stringify(v)
	}
	var cur any = payload
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return ""
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return ""
			}
			cur = node[i]
		default:
			return ""
		}
	}
	return Stringify(cur)
}

func lookupKeyFold(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		return Stringify(v)
	}
	for k, v := range payload {
		if strings.EqualFold(k, key) {
			return Stringify(v)
		}
	}
	return ""
}

// Stringify renders a decoded JSON scalar. Floats never use exponents.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		if !strings.ContainsAny(t.String(), "eE") {
			return t.String()
		}
		if f, err := t.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// FromForm turns url-encoded values into a payload: single values become
// strings, repeated keys become lists.
func FromForm(values url.Values) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		switch len(vs) {
		case 0:
		case 1:
			out[k] = vs[0]
		default:
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = v
			}
			out[k] = list
		}
	}
	return out
}

// Decode parses a JSON object keeping numbers exact.
func Decode(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return payload, nil
}
