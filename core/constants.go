package core

const (
	// MaxPetNameLength bounds the name field.
	MaxPetNameLength = 63

	// MaxErrorMessageLength is the longest error message returned to API clients.
	MaxErrorMessageLength = 500

	// DateLayout is the ISO-8601 calendar date format used for birthdays.
	DateLayout = "2006-01-02"
)

// Document keys of a serialized Pet.
const (
	FieldID        = "_id"
	FieldRev       = "_rev"
	FieldName      = "name"
	FieldCategory  = "category"
	FieldAvailable = "available"
	FieldGender    = "gender"
	FieldBirthday  = "birthday"
)
