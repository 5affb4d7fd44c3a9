// Package protocol contiene los tipos de wire compartidos entre el service y
// los agentes: el RotationEvent que viaja por el bus, la respuesta de
// key-fetch y el heartbeat. Cambios acá rompen agentes viejos; solo agregar
// campos, nunca renombrar.
package protocol

import "time"

// EventKeyRotation es el valor del campo "event" de un RotationEvent.
const EventKeyRotation = "KEY_ROTATION"

// KeyPairPEM es el par de claves públicas que un agente debe confiar.
// Old es nil cuando todavía no hubo ninguna rotación.
type KeyPairPEM struct {
	Current string  `json:"current"`
	Old     *string `json:"old"`
}

// RotationEventMessage es el mensaje publicado en
// tenant.{tenant_id}.keys.rotation, uno por tenant por rotación.
type RotationEventMessage struct {
	Event      string     `json:"event"` // siempre EventKeyRotation
	Keys       KeyPairPEM `json:"keys"`
	Timestamp  time.Time  `json:"timestamp"`
	RotationID string     `json:"rotation_id"`
}

// KeyFetchResponse es la respuesta de GET /v1/agent/keys.
type KeyFetchResponse struct {
	Current string  `json:"current"`
	Old     *string `json:"old"`
}

// HeartbeatRequest es el cuerpo de POST /v1/agent/heartbeat.
type HeartbeatRequest struct {
	Status string `json:"status,omitempty"` // ej: "ok", "degraded"
}

// HeartbeatAck es la respuesta del heartbeat. CurrentKeyHash permite a los
// agentes polling detectar una rotación sin conexión persistente al bus.
type HeartbeatAck struct {
	Status         string    `json:"status"`
	ServerTime     time.Time `json:"server_time"`
	CurrentKeyHash string    `json:"current_key_hash"`
}
