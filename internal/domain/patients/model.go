package patients

import (
	"strconv"
	"strings"

	"github.com/clinicdesk/clinicdesk/internal/platform/naive"
)

// Patient is the clinic API's patient record (the identification sheet).
type Patient struct {
	ID                    int64      `json:"id"`
	FullName              string     `json:"full_name"`
	Age                   *int       `json:"age,omitempty"`
	Sex                   string     `json:"sex,omitempty"`
	Phone                 string     `json:"phone,omitempty"`
	BirthDate             string     `json:"birth_date,omitempty"`
	Notes                 string     `json:"notes,omitempty"`
	MaritalStatus         string     `json:"marital_status,omitempty"`
	Occupation            string     `json:"occupation,omitempty"`
	Workplace             string     `json:"workplace,omitempty"`
	WorkDays              string     `json:"work_days,omitempty"`
	WorkSchedule          string     `json:"work_schedule,omitempty"`
	BirthPlace            string     `json:"birth_place,omitempty"`
	Education             string     `json:"education,omitempty"`
	Religion              string     `json:"religion,omitempty"`
	Address               string     `json:"address,omitempty"`
	EmergencyContactName  string     `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string     `json:"emergency_contact_phone,omitempty"`
	IsActive              bool       `json:"is_active"`
	CreatedAt             naive.Time `json:"created_at"`
}

// BirthDateLabel is the birth date as YYYY-MM-DD, or "—" when unknown.
func (p Patient) BirthDateLabel() string {
	if p.BirthDate == "" {
		return "—"
	}
	return naive.ToCalendarDateString(p.BirthDate)
}

// Directory indexes patients by ID.
type Directory map[int64]Patient

// NewDirectory builds a Directory from a list.
func NewDirectory(list []Patient) Directory {
	d := make(Directory, len(list))
	for _, p := range list {
		d[p.ID] = p
	}
	return d
}

// Name returns the patient's full name, or "" when unknown.
func (d Directory) Name(id int64) string {
	return d[id].FullName
}

// Form is the editable identification sheet. Every field is kept as typed.
type Form struct {
	FullName              string `json:"full_name"`
	Age                   string `json:"age"`
	Sex                   string `json:"sex"`
	Phone                 string `json:"phone"`
	BirthDate             string `json:"birth_date"`
	MaritalStatus         string `json:"marital_status"`
	Occupation            string `json:"occupation"`
	Workplace             string `json:"workplace"`
	WorkDays              string `json:"work_days"`
	WorkSchedule          string `json:"work_schedule"`
	BirthPlace            string `json:"birth_place"`
	Education             string `json:"education"`
	Religion              string `json:"religion"`
	Address               string `json:"address"`
	EmergencyContactName  string `json:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone"`
}

// FormFrom pre-fills the sheet from a stored patient.
func FormFrom(p Patient) Form {
	f := Form{
		FullName:              p.FullName,
		Sex:                   p.Sex,
		Phone:                 p.Phone,
		MaritalStatus:         p.MaritalStatus,
		Occupation:            p.Occupation,
		Workplace:             p.Workplace,
		WorkDays:              p.WorkDays,
		WorkSchedule:          p.WorkSchedule,
		BirthPlace:            p.BirthPlace,
		Education:             p.Education,
		Religion:              p.Religion,
		Address:               p.Address,
		EmergencyContactName:  p.EmergencyContactName,
		EmergencyContactPhone: p.EmergencyContactPhone,
	}
	if p.Age != nil {
		f.Age = strconv.Itoa(*p.Age)
	}
	if p.BirthDate != "" {
		f.BirthDate = naive.ToCalendarDateString(p.BirthDate)
	}
	return f
}

func (f Form) age() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(f.Age))
	return n, err == nil
}

// Payload is the request body sent to the clinic API. Blank fields are
// left out, age is sent only when numeric and birth_date is truncated to
// YYYY-MM-DD.
func (f Form) Payload() map[string]interface{} {
	out := make(map[string]interface{})
	put := func(key, v string) {
		if v = strings.TrimSpace(v); v != "" {
			out[key] = v
		}
	}
	put("full_name", f.FullName)
	put("sex", f.Sex)
	put("phone", f.Phone)
	put("marital_status", f.MaritalStatus)
	put("occupation", f.Occupation)
	put("workplace", f.Workplace)
	put("work_days", f.WorkDays)
	put("work_schedule", f.WorkSchedule)
	put("birth_place", f.BirthPlace)
	put("education", f.Education)
	put("religion", f.Religion)
	put("address", f.Address)
	put("emergency_contact_name", f.EmergencyContactName)
	put("emergency_contact_phone", f.EmergencyContactPhone)
	put("birth_date", naive.ToCalendarDateString(strings.TrimSpace(f.BirthDate)))
	if n, ok := f.age(); ok {
		out["age"] = n
	}
	return out
}
