package types

// Gender as recorded in the identity registry. Empty means unknown,
// and matches gender-agnostic flagging configurations.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = ""
)

// ParseGender normalizes registry gender codes ("M"/"F"/full words)
func ParseGender(s string) Gender {
	switch s {
	case "M", "m", "male", "Male":
		return GenderMale
	case "F", "f", "female", "Female":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// String returns the string representation
func (g Gender) String() string {
	return string(g)
}
