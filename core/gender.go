package core

import "fmt"

// Gender is the enumeration of valid pet genders. It is stored by name.
type Gender string

const (
	GenderMale    Gender = "MALE"
	GenderFemale  Gender = "FEMALE"
	GenderUnknown Gender = "UNKNOWN"
)

// Genders lists every valid Gender.
var Genders = []Gender{GenderMale, GenderFemale, GenderUnknown}

// String returns the enum name
func (g Gender) String() string {
	return string(g)
}

// IsValid checks if the gender is one of the enum names
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderUnknown:
		return true
	default:
		return false
	}
}

// ParseGender converts an enum name into a Gender. Names are case sensitive.
func ParseGender(name string) (Gender, error) {
	g := Gender(name)
	if !g.IsValid() {
		return "", fmt.Errorf("unknown gender %q", name)
	}
	return g, nil
}
