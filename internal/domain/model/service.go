// Package model holds the domain types shared by the vault's ports and
// adapters.
package model

// Service identifies an upstream API a credential belongs to. The set is
// closed: credentials for unknown services are rejected at the door rather
// than silently stored and never usable.
type Service string

const (
	// ServiceFlavortown is the Flavortown marketplace API.
	ServiceFlavortown Service = "flavortown"

	// ServiceHackatime is the Hackatime coding-stats API.
	ServiceHackatime Service = "hackatime"
)

// Services returns all known services.
func Services() []Service {
	return []Service{ServiceFlavortown, ServiceHackatime}
}

// Valid reports whether s names a known service.
func (s Service) Valid() bool {
	switch s {
	case ServiceFlavortown, ServiceHackatime:
		return true
	}
	return false
}

// ParseService converts a raw string to a Service, reporting whether it names
// a known service.
func ParseService(raw string) (Service, bool) {
	s := Service(raw)
	return s, s.Valid()
}
