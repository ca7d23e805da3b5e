package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifier(t *testing.T) {
	n := NewNotifier(nil)

	var order []string
	cancelA := n.Subscribe(func(c Change) { order = append(order, "a:"+string(c.Field)) })
	n.Subscribe(func(Change) { panic("observer bug") })
	n.Subscribe(func(c Change) { order = append(order, "c:"+c.Entity) })

	assert.NotPanics(t, func() { n.Notify("session:s1", FieldAudioState) })
	assert.Equal(t, []string{"a:audio_state", "c:session:s1"}, order)

	cancelA()
	cancelA()
	order = nil
	n.Notify("session:s1", FieldTextState)
	assert.Equal(t, []string{"c:session:s1"}, order)
}
