package domain

type SessionEventKind string

const (
	SessionEstablished SessionEventKind = "established"
	SessionUpdated     SessionEventKind = "updated"
	SessionDeleted     SessionEventKind = "deleted"
)

// SessionEvent is one lifecycle notification emitted by the wallet-connection transport.
// Deleted events carry only Topic.
type SessionEvent struct {
	Seq     int64
	Kind    SessionEventKind
	Topic   Topic
	Session Session
}
