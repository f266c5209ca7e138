package auth

// Roles known to the civic contracts.
const (
	RoleCitizen  = "citizen"
	RoleOfficer  = "officer"
	RoleChairman = "chairman"
)

// Caller is the authenticated principal of a transaction.
type Caller interface {
	ID() string
	MSPID() string
	Attribute(name string) (string, bool)
	Role() string
}

// Identity is the default Caller, built from a verified token or by tests.
type Identity struct {
	Subject    string            `json:"id"`
	Org        string            `json:"mspId"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewIdentity builds an identity with a role attribute.
func NewIdentity(id, mspID, role string) *Identity {
	return &Identity{
		Subject:    id,
		Org:        mspID,
		Attributes: map[string]string{"role": role},
	}
}

func (i *Identity) ID() string    { return i.Subject }
func (i *Identity) MSPID() string { return i.Org }

func (i *Identity) Attribute(name string) (string, bool) {
	v, ok := i.Attributes[name]
	return v, ok
}

// Role returns the role attribute, empty when absent.
func (i *Identity) Role() string {
	return i.Attributes["role"]
}

// WithAttribute returns a copy of i with name set to value.
func (i *Identity) WithAttribute(name, value string) *Identity {
	attrs := make(map[string]string, len(i.Attributes)+1)
	for k, v := range i.Attributes {
		attrs[k] = v
	}
	attrs[name] = value
	return &Identity{Subject: i.Subject, Org: i.Org, Attributes: attrs}
}
