package termui

import (
	"fmt"

	"github.com/amux-dev/amux/internal/session"
)

// sessionItem adapts a session.Snapshot to bubbles/list.Item.
type sessionItem struct {
	snap session.Snapshot
}

func (i sessionItem) Title() string {
	name := i.snap.DisplayName
	if name == "" {
		name = i.snap.ID[:8]
	}
	return fmt.Sprintf("%s  [%s]", name, i.snap.State)
}

func (i sessionItem) Description() string {
	return fmt.Sprintf("%s @ %s", i.snap.Provider, i.snap.Branch)
}

func (i sessionItem) FilterValue() string {
	return i.snap.DisplayName + " " + i.snap.Branch + " " + i.snap.RepoID
}
