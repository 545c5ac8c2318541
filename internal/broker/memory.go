package broker

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// newMemory returns one in-process GoChannel acting as both publisher and subscriber.
// Messages are not persisted, so subscribers only see what is published after
// they subscribe. Publish waits for the subscriber's ack so one publisher's
// messages reach each subscriber in order.
func newMemory(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	buffer := cfg.BufferSize
	if buffer <= 0 {
		buffer = 256
	}
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            buffer,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return ch, ch
}
