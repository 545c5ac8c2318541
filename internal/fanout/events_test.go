package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconapp/beacon-server/internal/domain"
)

func TestEventCodec_KeepsPayloadType(t *testing.T) {
	loc := domain.Location{Lat: "1.5", Lon: "2.5"}
	in := Event{
		ID:         "e1",
		Topics:     []Topic{BeaconTopic("b1"), GroupTopic("g1")},
		Recipients: []string{"u1", "u2"},
		ActorID:    "u1",
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:       SOSRaised{BeaconID: "b1", GroupID: "g1", UserID: "u1", Name: "One", Location: &loc},
	}

	raw, err := encodeEvent(in)
	require.NoError(t, err)

	out, err := decodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, in.Topics, out.Topics)
	assert.Equal(t, in.Recipients, out.Recipients)
	assert.True(t, in.Timestamp.Equal(out.Timestamp))

	sos, ok := out.Data.(SOSRaised)
	require.True(t, ok, "got %T", out.Data)
	assert.Equal(t, "One", sos.Name)
	assert.Equal(t, loc, *sos.Location)
}

func TestDecodeEvent_UnknownVariant(t *testing.T) {
	_, err := decodeEvent([]byte(`{"id":"x","variant":"nope","data":{}}`))
	assert.Error(t, err)
}

func TestDeliveryFor(t *testing.T) {
	e := Event{
		ID:         "e1",
		Topics:     []Topic{BeaconTopic("b1")},
		Recipients: []string{"leader", "f1"},
		ActorID:    "f1",
		Data:       BeaconUpdated{BeaconID: "b1", LeaderID: "leader", Followers: []string{"f1"}},
	}
	sub := func(uid string, topics ...Topic) *Subscriber {
		set := map[Topic]struct{}{}
		for _, t := range topics {
			set[t] = struct{}{}
		}
		return &Subscriber{UserID: uid, topics: set}
	}

	_, ok := deliveryFor(e, sub("leader", GroupTopic("g1")))
	assert.False(t, ok, "topic not subscribed")

	_, ok = deliveryFor(e, sub("stranger", BeaconTopic("b1")))
	assert.False(t, ok, "not in recipient snapshot")

	_, ok = deliveryFor(e, sub("f1", BeaconTopic("b1")))
	assert.False(t, ok, "self echo")

	d, ok := deliveryFor(e, sub("leader", BeaconTopic("b1")))
	require.True(t, ok)
	assert.Equal(t, []string{"f1"}, d.Data.(BeaconUpdated).Followers)
}
