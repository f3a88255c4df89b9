package model

// RequestContext carries the forensic context of one caller request. It is
// passed explicitly into every mutating call.
type RequestContext struct {
	ActorID     string `json:"actor_id"`
	ActorIP     string `json:"actor_ip"`
	ActorDevice string `json:"actor_device"`
	SessionID   string `json:"session_id"`
	RequestID   string `json:"request_id,omitempty"`
}

// Stamp copies the forensic fields onto an audit entry.
func (rc RequestContext) Stamp(e *AuditEntry) {
	e.ActorID = rc.ActorID
	e.ActorIP = rc.ActorIP
	e.ActorDevice = rc.ActorDevice
	e.SessionID = rc.SessionID
}
