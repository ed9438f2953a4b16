package enums

// CertificationStatus captures the lifecycle of a single check-in attempt.
type CertificationStatus string

const (
	CertificationStatusPending   CertificationStatus = "pending"
	CertificationStatusCompleted CertificationStatus = "completed"
	// CertificationStatusExpired is part of the schema but never assigned.
	CertificationStatusExpired CertificationStatus = "expired"
)

var validCertificationStatuses = []CertificationStatus{
	CertificationStatusPending,
	CertificationStatusCompleted,
	CertificationStatusExpired,
}

// String implements fmt.Stringer.
func (s CertificationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CertificationStatus.
func (s CertificationStatus) IsValid() bool {
	for _, candidate := range validCertificationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
