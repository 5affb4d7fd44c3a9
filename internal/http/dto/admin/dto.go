// Package admin define los DTOs de la API administrativa.
package admin

// RotateResult resume una corrida completa de rotación: promoción de
// clave, re-firmado y distribución por tenant.
type RotateResult struct {
	Status            string `json:"status"`
	ResignedCount     int    `json:"resigned_count"`
	ResignFailedCount int    `json:"resign_failed_count"`
	TenantsTargeted   int    `json:"tenants_targeted"`
	Published         int    `json:"published"`
	Failed            int    `json:"failed"`
	RotationID        string `json:"rotation_id"`
}

type CreateTenantRequest struct {
	Name string `json:"name"`
}

type Tenant struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	SubjectPrefix string `json:"subject_prefix"`
	CreatedAt     string `json:"created_at"`
}

// CreateTenantResponse incluye las credenciales de bus generadas en el
// alta. Solo se devuelven aquí; no se vuelven a exponer.
type CreateTenantResponse struct {
	Tenant         Tenant `json:"tenant"`
	BusCredentials string `json:"bus_credentials"`
}

type CreateAgentRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Mode     string `json:"mode"`
}

type Agent struct {
	ID        string  `json:"id"`
	TenantID  string  `json:"tenant_id"`
	Name      string  `json:"name"`
	Mode      string  `json:"mode"`
	CreatedAt string  `json:"created_at"`
	LastSeen  *string `json:"last_seen,omitempty"`
}

// CreateAgentResponse devuelve el token bearer y la credencial de
// enrolamiento en texto plano una única vez.
type CreateAgentResponse struct {
	Agent      Agent  `json:"agent"`
	Token      string `json:"token"`
	Credential string `json:"credential"`
}

type Key struct {
	KID        string  `json:"kid"`
	Generation string  `json:"generation"`
	KeyHash    string  `json:"key_hash"`
	CreatedAt  string  `json:"created_at"`
	RetiredAt  *string `json:"retired_at,omitempty"`
}

type CreateArtifactRequest struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Payload  []byte `json:"payload"`
}

type Artifact struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	KID       string `json:"kid"`
	SignedAt  string `json:"signed_at"`
	CreatedAt string `json:"created_at"`
	Size      int    `json:"size"`
}

type RotationEvent struct {
	RotationID      string  `json:"rotation_id"`
	CurrentKID      string  `json:"current_kid"`
	OldKID          *string `json:"old_kid,omitempty"`
	Timestamp       string  `json:"timestamp"`
	TargetedTenants int     `json:"targeted_tenants"`
}
