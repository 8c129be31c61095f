package kernel

// TenantID identifies an isolation boundary. All persisted data and all rate
// limits are partitioned by it; repository methods take a TenantID explicitly
// so a cross-tenant lookup cannot be expressed by accident.
type TenantID string

func NewTenantID(id string) TenantID { return TenantID(id) }
func (t TenantID) String() string    { return string(t) }
func (t TenantID) IsEmpty() bool     { return string(t) == "" }

// PrincipalID identifies an authenticatable identity within one tenant.
type PrincipalID string

func NewPrincipalID(id string) PrincipalID { return PrincipalID(id) }
func (p PrincipalID) String() string       { return string(p) }
func (p PrincipalID) IsEmpty() bool        { return string(p) == "" }
