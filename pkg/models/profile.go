package models

import (
	"database/sql/driver"
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Gender of a profile
type Gender string

const (
	GenderMale           Gender = "male"
	GenderFemale         Gender = "female"
	GenderNonBinary      Gender = "non-binary"
	GenderOther          Gender = "other"
	GenderPreferNotToSay Gender = "prefer-not-to-say"
)

// Preference is the gender a profile is interested in
type Preference string

const (
	PreferenceWomen Preference = "women"
	PreferenceMen   Preference = "men"
	PreferenceBoth  Preference = "both"
)

// PreferredGender returns the gender a preference selects, or false for
// "both" which places no constraint.
func (p Preference) PreferredGender() (Gender, bool) {
	switch p {
	case PreferenceMen:
		return GenderMale, true
	case PreferenceWomen:
		return GenderFemale, true
	default:
		return "", false
	}
}

// PreferenceFor returns the single-gender preference that selects g, or
// false when no single-gender preference does.
func PreferenceFor(g Gender) (Preference, bool) {
	switch g {
	case GenderMale:
		return PreferenceMen, true
	case GenderFemale:
		return PreferenceWomen, true
	default:
		return "", false
	}
}

// Accepts reports whether someone with this preference is interested in g
func (p Preference) Accepts(g Gender) bool {
	preferred, constrained := p.PreferredGender()
	return !constrained || preferred == g
}

// Profile is a row of the profiles table
type Profile struct {
	ID                string          `json:"id" db:"id"`
	Email             *string         `json:"email,omitempty" db:"email"`
	FirstName         *string         `json:"first_name,omitempty" db:"first_name"`
	LastName          *string         `json:"last_name,omitempty" db:"last_name"`
	DOB               *time.Time      `json:"dob,omitempty" db:"dob"`
	Gender            *Gender         `json:"gender,omitempty" db:"gender"`
	Country           *string         `json:"country,omitempty" db:"country"`
	Preference        *Preference     `json:"preference,omitempty" db:"preference"`
	HeightCM          *int            `json:"height_cm,omitempty" db:"height_cm"`
	Religion          *string         `json:"religion,omitempty" db:"religion"`
	Pets              *string         `json:"pets,omitempty" db:"pets"`
	Smoking           *string         `json:"smoking,omitempty" db:"smoking"`
	Drinking          *string         `json:"drinking,omitempty" db:"drinking"`
	Kids              *string         `json:"kids,omitempty" db:"kids"`
	MaritalStatus     *string         `json:"marital_status,omitempty" db:"marital_status"`
	Goal              *string         `json:"goal,omitempty" db:"goal"`
	Description       *string         `json:"description,omitempty" db:"description"`
	ProfilePictureURL *string         `json:"profile_picture_url,omitempty" db:"profile_picture_url"`
	Progress          int             `json:"progress" db:"progress"`
	IsComplete        bool            `json:"is_complete" db:"is_complete"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	TestScores        TestScores      `json:"test_scores" db:"test_scores"`
	Embedding         database.Vector `json:"embedding,omitempty" db:"embedding"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// ProfileColumns lists the selectable profiles columns in struct order
var ProfileColumns = []string{
	"id", "email", "first_name", "last_name", "dob", "gender", "country", "preference", "height_cm",
	"religion", "pets", "smoking", "drinking", "kids", "marital_status", "goal", "description",
	"profile_picture_url", "progress", "is_complete", "completed_at", "test_scores", "embedding",
	"created_at", "updated_at",
}

// Attribute is one embeddable profile attribute. Exactly one of Text or
// Number is meaningful, selected by Numeric.
type Attribute struct {
	Name    string
	Text    string
	Number  float64
	Numeric bool
}

// Attributes returns the embeddable attributes that are set, in a fixed order
func (p *Profile) Attributes() []Attribute {
	attrs := make([]Attribute, 0, 11)
	text := func(name string, v *string) {
		if v != nil && *v != "" {
			attrs = append(attrs, Attribute{Name: name, Text: *v})
		}
	}

	if p.Gender != nil {
		g := string(*p.Gender)
		text("gender", &g)
	}
	text("country", p.Country)
	if p.Preference != nil {
		pref := string(*p.Preference)
		text("preference", &pref)
	}
	if p.HeightCM != nil {
		attrs = append(attrs, Attribute{Name: "height_cm", Number: float64(*p.HeightCM), Numeric: true})
	}
	text("religion", p.Religion)
	text("pets", p.Pets)
	text("smoking", p.Smoking)
	text("drinking", p.Drinking)
	text("kids", p.Kids)
	text("marital_status", p.MaritalStatus)
	text("goal", p.Goal)

	return attrs
}

// ProfileUpdate is a partial profile write. Nil fields are left unchanged.
type ProfileUpdate struct {
	Email             *string `json:"email,omitempty" validate:"omitempty,email"`
	FirstName         *string `json:"first_name,omitempty" validate:"omitempty,min=1,max=100"`
	LastName          *string `json:"last_name,omitempty" validate:"omitempty,min=1,max=100"`
	DOB               *string `json:"dob,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Gender            *string `json:"gender,omitempty" validate:"omitempty,oneof=male female non-binary other prefer-not-to-say"`
	Country           *string `json:"country,omitempty" validate:"omitempty,max=100"`
	Preference        *string `json:"preference,omitempty" validate:"omitempty,oneof=women men both"`
	HeightCM          *int    `json:"height_cm,omitempty" validate:"omitempty,min=50,max=275"`
	Religion          *string `json:"religion,omitempty" validate:"omitempty,oneof=atheism buddhism christianity hinduism islam judaism other skip"`
	Pets              *string `json:"pets,omitempty" validate:"omitempty,oneof=birds cats dogs fish hamsters rabbits snakes turtles none skip"`
	Smoking           *string `json:"smoking,omitempty" validate:"omitempty,oneof=regularly when_drink sometimes never skip"`
	Drinking          *string `json:"drinking,omitempty" validate:"omitempty,oneof=often on_holidays sometimes never skip"`
	Kids              *string `json:"kids,omitempty" validate:"omitempty,oneof=not_yet childfree 1 2 3 more_than_3 skip"`
	MaritalStatus     *string `json:"marital_status,omitempty" validate:"omitempty,oneof=single married in_relationship divorced separated skip"`
	Goal              *string `json:"goal,omitempty" validate:"omitempty,oneof=friends casual relationship"`
	Description       *string `json:"description,omitempty" validate:"omitempty,max=2000"`
	ProfilePictureURL *string `json:"profile_picture_url,omitempty" validate:"omitempty,url"`
	Progress          *int    `json:"progress,omitempty" validate:"omitempty,min=0"`
}

// Columns returns the column -> value pairs of the fields that are set
func (u *ProfileUpdate) Columns() map[string]any {
	cols := map[string]any{}
	set := func(name string, v any, ok bool) {
		if ok {
			cols[name] = v
		}
	}

	set("email", deref(u.Email), u.Email != nil)
	set("first_name", deref(u.FirstName), u.FirstName != nil)
	set("last_name", deref(u.LastName), u.LastName != nil)
	set("dob", deref(u.DOB), u.DOB != nil)
	set("gender", deref(u.Gender), u.Gender != nil)
	set("country", deref(u.Country), u.Country != nil)
	set("preference", deref(u.Preference), u.Preference != nil)
	set("height_cm", deref(u.HeightCM), u.HeightCM != nil)
	set("religion", deref(u.Religion), u.Religion != nil)
	set("pets", deref(u.Pets), u.Pets != nil)
	set("smoking", deref(u.Smoking), u.Smoking != nil)
	set("drinking", deref(u.Drinking), u.Drinking != nil)
	set("kids", deref(u.Kids), u.Kids != nil)
	set("marital_status", deref(u.MaritalStatus), u.MaritalStatus != nil)
	set("goal", deref(u.Goal), u.Goal != nil)
	set("description", deref(u.Description), u.Description != nil)
	set("profile_picture_url", deref(u.ProfilePictureURL), u.ProfilePictureURL != nil)
	set("progress", deref(u.Progress), u.Progress != nil)

	return cols
}

// IsEmpty reports whether no field is set
func (u *ProfileUpdate) IsEmpty() bool {
	return len(u.Columns()) == 0
}

// AffectsEmbedding reports whether any embeddable attribute is set
func (u *ProfileUpdate) AffectsEmbedding() bool {
	return u.Gender != nil || u.Country != nil || u.Preference != nil || u.HeightCM != nil ||
		u.Religion != nil || u.Pets != nil || u.Smoking != nil || u.Drinking != nil ||
		u.Kids != nil || u.MaritalStatus != nil || u.Goal != nil
}

// CreateProfileRequest starts a signup with the minimal lead fields
type CreateProfileRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required,min=1,max=100"`
	LastName  string `json:"last_name" validate:"required,min=1,max=100"`
	DOB       string `json:"dob" validate:"required,datetime=2006-01-02"`
}

func deref[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// Scan implements sql.Scanner for the test_scores jsonb column
func (t *TestScores) Scan(src any) error {
	var j database.JSONB[TestScores]
	if err := j.Scan(src); err != nil {
		return err
	}
	*t = j.GetValue()
	return nil
}

// Value implements driver.Valuer for the test_scores jsonb column
func (t TestScores) Value() (driver.Value, error) {
	return database.NewJSONB(t).Value()
}
