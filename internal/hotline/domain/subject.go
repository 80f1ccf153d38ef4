package domain

// Subject is the read-only view of a member profile needed to activate.
type Subject struct {
	SubjectID     string
	Email         string
	VerifiedPhone string
	Tier          string
	Region        string
	Bypass        bool
}

// DevSubjectID identifies the synthetic subject used by the development bypass.
const DevSubjectID = "WOLF-DEV-TEST"

// DevSubject returns the synthetic subject for the development bypass.
func DevSubject(email string) Subject {
	return Subject{
		SubjectID: DevSubjectID,
		Email:     email,
		Tier:      "Gold",
		Region:    "LA",
		Bypass:    true,
	}
}
