package common

import (
	"errors"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses persists the pause switch of every native module.
type Pauses struct {
	store Store
}

func NewPauses(store Store) *Pauses {
	return &Pauses{store: store}
}

func pauseKey(module string) []byte {
	return []byte("pause/" + strings.ToLower(strings.TrimSpace(module)))
}

// IsPaused implements PauseView. Read failures report the module as running.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil || p.store == nil {
		return false
	}
	var paused bool
	ok, err := p.store.KVGet(pauseKey(module), &paused)
	if err != nil || !ok {
		return false
	}
	return paused
}

// SetPaused toggles the pause switch for module.
func (p *Pauses) SetPaused(module string, paused bool) error {
	if strings.TrimSpace(module) == "" {
		return errors.New("module must not be empty")
	}
	if !paused {
		return p.store.KVDelete(pauseKey(module))
	}
	return p.store.KVPut(pauseKey(module), true)
}
