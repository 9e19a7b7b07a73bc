package sim

import "github.com/rs/xid"

// NewID returns an identifier that is unique across processes. IDs created
// later sort after earlier ones.
func NewID() string {
	return xid.New().String()
}
