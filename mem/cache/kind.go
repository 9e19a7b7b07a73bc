package cache

import (
	"fmt"
	"strings"
)

// Kind tells which structure of the core an Engine models.
type Kind int

// The closed set of cache kinds.
const (
	KindIL1 Kind = iota + 1
	KindDL1
	KindIL2
	KindDL2
	KindL3
	KindConst
	KindTexture
	KindSWManaged
	KindBTB
	KindLLC
)

var kindNames = map[Kind]string{
	KindIL1:       "IL1",
	KindDL1:       "DL1",
	KindIL2:       "IL2",
	KindDL2:       "DL2",
	KindL3:        "L3",
	KindConst:     "Const",
	KindTexture:   "Texture",
	KindSWManaged: "SWManaged",
	KindBTB:       "BTB",
	KindLLC:       "LLC",
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("Kind(%d)", int(k))
	}

	return name
}

// ParseKind converts the name of a kind back to the Kind. The comparison is
// case-insensitive.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if strings.EqualFold(n, name) {
			return k, nil
		}
	}

	return 0, fmt.Errorf("unknown cache kind %q", name)
}
