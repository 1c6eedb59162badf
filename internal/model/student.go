package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type StudentProfile struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Program   string    `db:"program" json:"program"`
	YearLevel string    `db:"year_level" json:"year_level"`

	Sex           string    `db:"sex" json:"sex"`
	DateOfBirth   time.Time `db:"date_of_birth" json:"date_of_birth"`
	ContactNumber string    `db:"contact_number" json:"contact_number"`
	Address       string    `db:"address" json:"address"`

	EmergencyContactName         string  `db:"emergency_contact_name" json:"emergency_contact_name"`
	EmergencyContactRelationship string  `db:"emergency_contact_relationship" json:"emergency_contact_relationship"`
	EmergencyContactNumber       string  `db:"emergency_contact_number" json:"emergency_contact_number"`
	EmergencyContactAddress      *string `db:"emergency_contact_address" json:"emergency_contact_address,omitempty"`

	HeightCM           *float64 `db:"height_cm" json:"height_cm,omitempty"`
	WeightKG           *float64 `db:"weight_kg" json:"weight_kg,omitempty"`
	BloodType          string   `db:"blood_type" json:"blood_type"`
	Allergies          *string  `db:"allergies" json:"allergies,omitempty"`
	CurrentMedications *string  `db:"current_medications" json:"current_medications,omitempty"`
	MedicalHistory     *string  `db:"medical_history" json:"medical_history,omitempty"`

	LastDentalVisit *time.Time `db:"last_dental_visit" json:"last_dental_visit,omitempty"`
	DentalHistory   *string    `db:"dental_history" json:"dental_history,omitempty"`

	IsComplete bool      `db:"is_complete" json:"is_complete"`
	IsVerified bool      `db:"is_verified" json:"is_verified"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Age is computed from the date of birth as of today.
func (p *StudentProfile) Age(now time.Time) int {
	age := now.Year() - p.DateOfBirth.Year()
	if now.YearDay() < p.DateOfBirth.YearDay() {
		age--
	}
	return age
}

// BMI returns nil when height or weight is missing.
func (p *StudentProfile) BMI() *float64 {
	if p.HeightCM == nil || p.WeightKG == nil || *p.HeightCM == 0 {
		return nil
	}
	h := *p.HeightCM / 100
	bmi := *p.WeightKG / (h * h)
	return &bmi
}

// CheckCompletion recomputes and returns the completion flag.
func (p *StudentProfile) CheckCompletion() bool {
	p.IsComplete = p.StudentID != "" && p.Program != "" && p.YearLevel != "" &&
		p.Sex != "" && !p.DateOfBirth.IsZero() && p.ContactNumber != "" &&
		p.Address != "" && p.EmergencyContactName != "" && p.EmergencyContactNumber != ""
	return p.IsComplete
}

// UpdatableField names a profile attribute a student may propose to change
// through an update request. The set is closed: unknown names are rejected
// when the request is created, and each field has a typed setter so a raw
// string can never land on a numeric or date column unparsed.
type UpdatableField string

const (
	FieldContactNumber          UpdatableField = "contact_number"
	FieldAddress                UpdatableField = "address"
	FieldEmergencyContactName   UpdatableField = "emergency_contact_name"
	FieldEmergencyContactNumber UpdatableField = "emergency_contact_number"
	FieldBloodType              UpdatableField = "blood_type"
	FieldAllergies              UpdatableField = "allergies"
	FieldCurrentMedications     UpdatableField = "current_medications"
	FieldMedicalHistory         UpdatableField = "medical_history"
	FieldDentalHistory          UpdatableField = "dental_history"
	FieldHeightCM               UpdatableField = "height_cm"
	FieldWeightKG               UpdatableField = "weight_kg"
)

type fieldAccessor struct {
	get func(*StudentProfile) string
	set func(*StudentProfile, string) error
}

func strPtrValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatPtrValue(p *float64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *p)
}

func setFloatPtr(dst **float64, raw string, min, max float64) error {
	var v float64
	if _, err := fmt.Sscanf(raw, "%f", &v); err != nil {
		return fmt.Errorf("value %q is not numeric", raw)
	}
	if v < min || v > max {
		return fmt.Errorf("value %v out of range [%v, %v]", v, min, max)
	}
	*dst = &v
	return nil
}

var updatableFields = map[UpdatableField]fieldAccessor{
	FieldContactNumber: {
		get: func(p *StudentProfile) string { return p.ContactNumber },
		set: func(p *StudentProfile, v string) error { p.ContactNumber = v; return nil },
	},
	FieldAddress: {
		get: func(p *StudentProfile) string { return p.Address },
		set: func(p *StudentProfile, v string) error { p.Address = v; return nil },
	},
	FieldEmergencyContactName: {
		get: func(p *StudentProfile) string { return p.EmergencyContactName },
		set: func(p *StudentProfile, v string) error { p.EmergencyContactName = v; return nil },
	},
	FieldEmergencyContactNumber: {
		get: func(p *StudentProfile) string { return p.EmergencyContactNumber },
		set: func(p *StudentProfile, v string) error { p.EmergencyContactNumber = v; return nil },
	},
	FieldBloodType: {
		get: func(p *StudentProfile) string { return p.BloodType },
		set: func(p *StudentProfile, v string) error {
			switch v {
			case "A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-", "UNKNOWN":
				p.BloodType = v
				return nil
			}
			return fmt.Errorf("invalid blood type %q", v)
		},
	},
	FieldAllergies: {
		get: func(p *StudentProfile) string { return strPtrValue(p.Allergies) },
		set: func(p *StudentProfile, v string) error { p.Allergies = &v; return nil },
	},
	FieldCurrentMedications: {
		get: func(p *StudentProfile) string { return strPtrValue(p.CurrentMedications) },
		set: func(p *StudentProfile, v string) error { p.CurrentMedications = &v; return nil },
	},
	FieldMedicalHistory: {
		get: func(p *StudentProfile) string { return strPtrValue(p.MedicalHistory) },
		set: func(p *StudentProfile, v string) error { p.MedicalHistory = &v; return nil },
	},
	FieldDentalHistory: {
		get: func(p *StudentProfile) string { return strPtrValue(p.DentalHistory) },
		set: func(p *StudentProfile, v string) error { p.DentalHistory = &v; return nil },
	},
	FieldHeightCM: {
		get: func(p *StudentProfile) string { return floatPtrValue(p.HeightCM) },
		set: func(p *StudentProfile, v string) error { return setFloatPtr(&p.HeightCM, v, 50, 300) },
	},
	FieldWeightKG: {
		get: func(p *StudentProfile) string { return floatPtrValue(p.WeightKG) },
		set: func(p *StudentProfile, v string) error { return setFloatPtr(&p.WeightKG, v, 20, 300) },
	},
}

// IsUpdatableField reports whether the named field belongs to the closed set.
func IsUpdatableField(name string) bool {
	_, ok := updatableFields[UpdatableField(name)]
	return ok
}

// FieldValue returns the current string form of an updatable field,
// used to snapshot old_value when an update request is created.
func (p *StudentProfile) FieldValue(field UpdatableField) (string, error) {
	acc, ok := updatableFields[field]
	if !ok {
		return "", fmt.Errorf("field %q is not updatable", field)
	}
	return acc.get(p), nil
}

// ApplyField writes a requested value onto the named field through its
// typed setter.
func (p *StudentProfile) ApplyField(field UpdatableField, value string) error {
	acc, ok := updatableFields[field]
	if !ok {
		return fmt.Errorf("field %q is not updatable", field)
	}
	return acc.set(p, value)
}
