package flagging

import "github.com/medilab/platform/internal/shared/types"

// SeedConfigs returns the default adult reference thresholds for the
// common hematology and chemistry panels. Facilities override these
// with their own versions through the config API.
func SeedConfigs() []Config {
	return []Config{
		{TestCode: "WBC", Min: 4.0, Max: 11.0, Unit: "10^3/uL", Version: 1},
		{TestCode: "RBC", Gender: types.GenderMale, Min: 4.35, Max: 5.65, Unit: "10^6/uL", Version: 1},
		{TestCode: "RBC", Gender: types.GenderFemale, Min: 3.92, Max: 5.13, Unit: "10^6/uL", Version: 1},
		{TestCode: "HGB", Gender: types.GenderMale, Min: 13.2, Max: 16.6, Unit: "g/dL", Version: 1},
		{TestCode: "HGB", Gender: types.GenderFemale, Min: 11.6, Max: 15.0, Unit: "g/dL", Version: 1},
		{TestCode: "HCT", Gender: types.GenderMale, Min: 38.3, Max: 48.6, Unit: "%", Version: 1},
		{TestCode: "HCT", Gender: types.GenderFemale, Min: 35.5, Max: 44.9, Unit: "%", Version: 1},
		{TestCode: "PLT", Min: 150, Max: 450, Unit: "10^3/uL", Version: 1},
		{TestCode: "GLU", Min: 70, Max: 99, Unit: "mg/dL", Version: 1},
		{TestCode: "CREA", Gender: types.GenderMale, Min: 0.74, Max: 1.35, Unit: "mg/dL", Version: 1},
		{TestCode: "CREA", Gender: types.GenderFemale, Min: 0.59, Max: 1.04, Unit: "mg/dL", Version: 1},
		{TestCode: "NA", Min: 135, Max: 145, Unit: "mmol/L", Version: 1},
		{TestCode: "K", Min: 3.5, Max: 5.2, Unit: "mmol/L", Version: 1},
		{TestCode: "ALT", Min: 7, Max: 56, Unit: "U/L", Version: 1},
		{TestCode: "AST", Min: 10, Max: 40, Unit: "U/L", Version: 1},
		{TestCode: "TSH", Min: 0.4, Max: 4.0, Unit: "mIU/L", Version: 1},
	}
}
