package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RequiredStudentFields lists the keys every student_details object must carry.
var RequiredStudentFields = []string{
	"name",
	"origin_country",
	"destination_country",
	"loan_amount_needed",
	"course_of_study",
}

// StudentDetails is the free-form student profile sent with each chat message.
// Unknown keys are kept so they can be shown to the model as-is.
type StudentDetails map[string]any

// Missing returns the keys from fields that are absent, in the order given.
func (d StudentDetails) Missing(fields []string) []string {
	var missing []string
	for _, f := range fields {
		if _, ok := d[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// String renders the value stored under key as text. Absent keys yield "".
func (d StudentDetails) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Clone returns a shallow copy so callers can annotate details without touching the request.
func (d StudentDetails) Clone() StudentDetails {
	out := make(StudentDetails, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// JSON renders the details as indented JSON with sorted keys.
func (d StudentDetails) JSON(indent string) (string, error) {
	b, err := json.MarshalIndent(map[string]any(d), "", indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal student details: %w", err)
	}
	return string(b), nil
}
