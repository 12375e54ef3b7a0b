package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscribeAndPublish(t *testing.T) {
	b := New()
	var got Kind
	b.Subscribe(SessionStarted, func(ev Event) { got = ev.Kind })
	b.Publish(Event{Kind: SessionStarted})
	assert.Equal(t, SessionStarted, got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	count := 0
	unsub := b.Subscribe(SessionEnded, func(ev Event) { count++ })
	b.Publish(Event{Kind: SessionEnded})
	unsub()
	b.Publish(Event{Kind: SessionEnded})
	assert.Equal(t, 1, count)
}

func TestSubscribeAllReceivesEverything(t *testing.T) {
	b := New()
	count := 0
	b.SubscribeAll(func(ev Event) { count++ })
	b.Publish(Event{Kind: SessionStarted})
	b.Publish(Event{Kind: RuleLearned})
	assert.Equal(t, 2, count)
}

func TestCloseStopsPublish(t *testing.T) {
	b := New()
	count := 0
	b.Subscribe(SessionStarted, func(ev Event) { count++ })
	b.Close()
	b.Publish(Event{Kind: SessionStarted})
	assert.Equal(t, 0, count)
}
