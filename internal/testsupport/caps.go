package testsupport

import "context"

// Caps — проверка прав из памяти (gates.Capabilities).
type Caps struct {
	Bypass map[int64]bool
	Err    error
}

func (c *Caps) CanBypassGate(_ context.Context, actorID int64) (bool, error) {
	if c.Err != nil {
		return false, c.Err
	}
	return c.Bypass[actorID], nil
}
