package domain

// Role enumerates the user roles the reporting core distinguishes. Role
// assignment happens upstream; the strings arrive as given input.
type Role string

const (
	RoleAdministrador   Role = "administrador"
	RoleAuditor         Role = "auditor_tributario"
	RoleAnalistaMercado Role = "analista_mercado"
	RoleCliente         Role = "cliente"
)

// Identity is the requesting user for a query or export.
type Identity struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdministrator reports whether the identity bypasses ownership checks.
func (i Identity) IsAdministrator() bool {
	return i.Role == RoleAdministrador
}

// SeesAllHistory reports whether the identity may list every report run,
// not just its own.
func (i Identity) SeesAllHistory() bool {
	return i.Role == RoleAdministrador || i.Role == RoleAuditor
}

// ShortID truncates the user id for log lines. Identity ids are opaque
// store-assigned strings; eight characters is enough to correlate.
func (i Identity) ShortID() string {
	return truncateID(i.ID, 8)
}

func truncateID(id string, n int) string {
	if len(id) <= n {
		return id
	}
	return id[:n] + "..."
}

// DisplayID is the longer truncation used in generated summary sheets.
func (i Identity) DisplayID() string {
	return truncateID(i.ID, 12)
}
