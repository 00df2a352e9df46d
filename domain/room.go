package domain

// RoomID identifies a conversation channel. The marketplace keys a
// conversation by the listing it concerns, so the identifier is assigned
// by the caller and opaque to this subsystem.
//
// Identifiers must not contain ':' which is reserved as a key separator
// by the storage layer. The gateway rejects such identifiers before a
// room is ever resolved.
type RoomID string
