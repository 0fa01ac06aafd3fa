package events

import (
	"testing"

	"go.uber.org/zap"
)

func TestPublishFanOut(t *testing.T) {
	b := NewBus(zap.NewNop())

	var got []int
	b.Subscribe(TopicState, func(p any) { got = append(got, p.(int)) })
	b.Subscribe(TopicState, func(p any) { got = append(got, p.(int)*10) })
	b.Subscribe(TopicRisk, func(any) { t.Error("wrong topic delivered") })

	b.Publish(TopicState, 7)

	if len(got) != 2 || got[0] != 7 || got[1] != 70 {
		t.Errorf("fan-out = %v, want [7 70] in subscription order", got)
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	b := NewBus(zap.NewNop())
	b.Publish(TopicFill, "ignored") // must not panic
}
