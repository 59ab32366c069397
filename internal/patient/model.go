package patient

import (
	"time"

	"github.com/medilab/platform/internal/shared/types"
)

// Patient is the local mirror of a citizen known to the identity
// registry. The identity key is plaintext only in memory; at rest it is
// stored as AES-GCM ciphertext plus an HMAC lookup hash.
type Patient struct {
	ID          types.ID         `json:"id"`
	IdentityKey types.NationalID `json:"identity_key"`
	FirstName   string           `json:"first_name"`
	LastName    string           `json:"last_name"`
	DateOfBirth time.Time        `json:"date_of_birth"`
	Gender      types.Gender     `json:"gender"`
	Phone       string           `json:"phone,omitempty"`
	Email       string           `json:"email,omitempty"`
	Address     string           `json:"address,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Age derives the patient's age in full years
func (p *Patient) Age() int {
	if p.DateOfBirth.IsZero() {
		return 0
	}
	now := time.Now()
	age := now.Year() - p.DateOfBirth.Year()
	if now.YearDay() < p.DateOfBirth.YearDay() {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// FullName returns the display name
func (p *Patient) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// MedicalRecord is the one-per-patient aggregate owning the patient's
// test orders.
type MedicalRecord struct {
	ID           types.ID  `json:"id"`
	PatientID    types.ID  `json:"patient_id"`
	RecordNumber string    `json:"record_number"`
	CreatedAt    time.Time `json:"created_at"`
}

// Demographics carries caller-supplied patient fields for creation when
// the registry has no record yet.
type Demographics struct {
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	DateOfBirth time.Time    `json:"date_of_birth"`
	Gender      types.Gender `json:"gender"`
	Phone       string       `json:"phone,omitempty"`
	Email       string       `json:"email,omitempty"`
	Address     string       `json:"address,omitempty"`
}
