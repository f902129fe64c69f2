package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Pet is a pet document. ID and Rev are owned by the document store.
type Pet struct {
	ID        string `json:"_id,omitempty"`
	Rev       string `json:"_rev,omitempty"`
	Name      string `json:"name" validate:"required,max=63"`
	Category  string `json:"category" validate:"max=63"`
	Available bool   `json:"available"`
	Gender    Gender `json:"gender" validate:"oneof=MALE FEMALE UNKNOWN"`
	Birthday  Date   `json:"birthday"`
}

// NewPet returns an available pet of unknown gender born today.
func NewPet(name, category string) *Pet {
	return &Pet{
		Name:      name,
		Category:  category,
		Available: true,
		Gender:    GenderUnknown,
		Birthday:  Today(),
	}
}

func (p *Pet) String() string {
	return fmt.Sprintf("<Pet %s id=[%s]>", p.Name, p.ID)
}

// Serialize returns the pet as a document map. _id and _rev are only present when set.
func (p *Pet) Serialize() map[string]interface{} {
	doc := map[string]interface{}{
		FieldName:      p.Name,
		FieldCategory:  p.Category,
		FieldAvailable: p.Available,
		FieldGender:    p.Gender.String(),
		FieldBirthday:  p.Birthday.String(),
	}
	if p.ID != "" {
		doc[FieldID] = p.ID
	}
	if p.Rev != "" {
		doc[FieldRev] = p.Rev
	}
	return doc
}

// Deserialize overwrites the pet's attributes from a decoded JSON document.
//
// Every attribute key must be present. The ID is taken from _id only when the pet does not
// already have one, so a document body cannot move an existing pet to another ID.
func (p *Pet) Deserialize(data interface{}) error {
	doc, ok := data.(map[string]interface{})
	if !ok || doc == nil {
		return NewDataValidationError("Invalid pet: body of request contained bad or no data", nil)
	}

	missing := func(key string) error {
		if _, present := doc[key]; !present {
			return NewDataValidationError("Invalid pet: missing "+key, nil)
		}
		return nil
	}

	// Keys are checked one at a time so the first bad key decides the error
	if err := missing(FieldName); err != nil {
		return err
	}
	name, err := optionalString(doc, FieldName)
	if err != nil {
		return err
	}
	if err := missing(FieldCategory); err != nil {
		return err
	}
	category, err := optionalString(doc, FieldCategory)
	if err != nil {
		return err
	}

	if err := missing(FieldAvailable); err != nil {
		return err
	}
	available, ok := doc[FieldAvailable].(bool)
	if !ok {
		return NewDataValidationError(
			fmt.Sprintf("Invalid type for boolean [available]: %s", typeName(doc[FieldAvailable])), nil)
	}

	if err := missing(FieldGender); err != nil {
		return err
	}
	genderName, _ := doc[FieldGender].(string)
	gender, err := ParseGender(genderName)
	if err != nil {
		return NewDataValidationError(fmt.Sprintf("Invalid attribute: gender %v", doc[FieldGender]), err)
	}

	if err := missing(FieldBirthday); err != nil {
		return err
	}
	birthdayText, _ := doc[FieldBirthday].(string)
	birthday, err := ParseDate(birthdayText)
	if err != nil {
		return NewDataValidationError(fmt.Sprintf("Invalid attribute: birthday %v", doc[FieldBirthday]), err)
	}

	p.Name = name
	p.Category = category
	p.Available = available
	p.Gender = gender
	p.Birthday = birthday

	if id, ok := doc[FieldID].(string); ok && p.ID == "" {
		p.ID = id
	}
	if rev, ok := doc[FieldRev].(string); ok {
		p.Rev = rev
	}
	return nil
}

// Validate checks the pet's attributes against its field constraints.
func (p *Pet) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewDataValidationError(
				fmt.Sprintf("Invalid pet: field %s failed '%s' validation", fe.Field(), fe.Tag()), err)
		}
		return NewDataValidationError("Invalid pet", err)
	}
	if p.Birthday.IsZero() {
		return NewDataValidationError("Invalid pet: birthday is not set", nil)
	}
	return nil
}

func optionalString(doc map[string]interface{}, key string) (string, error) {
	switch v := doc[key].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", NewDataValidationError(fmt.Sprintf("Invalid type for string [%s]: %s", key, typeName(v)), nil)
	}
}

func typeName(v interface{}) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
