package domain

import (
	"github.com/shopspring/decimal"
)

// QualificationRecord is one tax qualification document as stored. Field
// names mirror the document schema so records round-trip through JSONB
// without a mapping layer.
type QualificationRecord struct {
	ID                    string          `json:"_id"`
	ClienteID             string          `json:"clienteId,omitempty"`
	FechaDeclaracion      string          `json:"fechaDeclaracion"`
	TipoImpuesto          string          `json:"tipoImpuesto"`
	Pais                  string          `json:"pais"`
	MontoDeclarado        decimal.Decimal `json:"montoDeclarado"`
	Factores              Factors         `json:"factores"`
	EsLocal               bool            `json:"esLocal"`
	PropietarioRegistroID string          `json:"propietarioRegistroId"`
	Activo                bool            `json:"activo"`
}

// OwnedBy reports whether the record belongs to the given user.
func (q QualificationRecord) OwnedBy(userID string) bool {
	return q.PropietarioRegistroID == userID
}

// VisibleTo applies the visibility rule: administrators see everything,
// bolsa records are visible to all roles, local records only to their owner.
func (q QualificationRecord) VisibleTo(identity Identity) bool {
	if identity.IsAdministrator() {
		return true
	}
	if !q.EsLocal {
		return true
	}
	return q.OwnedBy(identity.ID)
}

// Estado renders the locality flag as the label used in reports.
func (q QualificationRecord) Estado() string {
	if q.EsLocal {
		return "Local"
	}
	return "Bolsa"
}
