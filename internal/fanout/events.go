package fanout

import (
	"fmt"
	"time"

	"github.com/beaconapp/beacon-server/internal/domain"
	"github.com/goccy/go-json"
)

// Variant identifies the kind of event and its payload type.
type Variant string

// Event variants.
const (
	VariantLocationUpdate  Variant = "location.update"
	VariantLandmarkCreated Variant = "landmark.created"
	VariantMemberJoined    Variant = "member.joined"
	VariantMemberLeft      Variant = "member.left"
	VariantBeaconCreated   Variant = "beacon.created"
	VariantBeaconDeleted   Variant = "beacon.deleted"
	VariantBeaconUpdated   Variant = "beacon.updated"
	VariantSOSRaised       Variant = "sos.raised"

	// VariantHeartbeat is generated locally and never crosses the broker.
	VariantHeartbeat Variant = "heartbeat"
)

// Topic scopes an event to a beacon or a group.
type Topic string

// BeaconTopic is the topic of everything happening on one beacon.
func BeaconTopic(beaconID string) Topic { return Topic("beacon:" + beaconID) }

// GroupTopic is the topic of membership and beacon lifecycle in one group.
func GroupTopic(groupID string) Topic { return Topic("group:" + groupID) }

// Payload is the variant-specific body of an event.
type Payload interface {
	Variant() Variant
}

// Redactor is implemented by payloads that show less to some recipients.
type Redactor interface {
	RedactFor(userID string) Payload
}

// Event is what publishers hand to the router.
// Recipients is the authorized-recipient snapshot taken at publish time.
type Event struct {
	ID         string
	Topics     []Topic
	Recipients []string
	ActorID    string
	Timestamp  time.Time
	Data       Payload
}

// Delivery is what a subscriber receives: one event, redacted for that
// subscriber, without the recipient list.
type Delivery struct {
	ID        string    `json:"id"`
	Variant   Variant   `json:"variant"`
	Topic     Topic     `json:"topic,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      Payload   `json:"data,omitempty"`
}

// LocationSubject says whose location moved.
type LocationSubject string

// Location subjects.
const (
	SubjectBeacon LocationSubject = "beacon"
	SubjectUser   LocationSubject = "user"
)

// LocationUpdate carries a moved position and only the mover's public profile.
type LocationUpdate struct {
	BeaconID string          `json:"beacon_id"`
	Subject  LocationSubject `json:"subject"`
	UserID   string          `json:"user_id"`
	Name     string          `json:"name"`
	Location domain.Location `json:"location"`
}

// Variant implements Payload.
func (LocationUpdate) Variant() Variant { return VariantLocationUpdate }

// LandmarkCreated announces a new landmark on a beacon.
type LandmarkCreated struct {
	BeaconID  string          `json:"beacon_id"`
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Location  domain.Location `json:"location"`
	CreatedBy string          `json:"created_by"`
}

// Variant implements Payload.
func (LandmarkCreated) Variant() Variant { return VariantLandmarkCreated }

// MemberJoined announces a user joining a group or a beacon.
// BeaconID is empty for group joins.
type MemberJoined struct {
	GroupID  string `json:"group_id"`
	BeaconID string `json:"beacon_id,omitempty"`
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
}

// Variant implements Payload.
func (MemberJoined) Variant() Variant { return VariantMemberJoined }

// MemberLeft announces a user removed from a group or a beacon.
type MemberLeft struct {
	GroupID  string `json:"group_id"`
	BeaconID string `json:"beacon_id,omitempty"`
	UserID   string `json:"user_id"`
	Name     string `json:"name,omitempty"`
}

// Variant implements Payload.
func (MemberLeft) Variant() Variant { return VariantMemberLeft }

// BeaconCreated announces a new beacon to its group.
type BeaconCreated struct {
	GroupID   string          `json:"group_id"`
	BeaconID  string          `json:"beacon_id"`
	Title     string          `json:"title"`
	Shortcode string          `json:"shortcode"`
	LeaderID  string          `json:"leader_id"`
	StartsAt  time.Time       `json:"starts_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Location  domain.Location `json:"location"`
}

// Variant implements Payload.
func (BeaconCreated) Variant() Variant { return VariantBeaconCreated }

// BeaconDeleted announces a beacon removed by its leader or leader's account deletion.
type BeaconDeleted struct {
	GroupID  string `json:"group_id"`
	BeaconID string `json:"beacon_id"`
}

// Variant implements Payload.
func (BeaconDeleted) Variant() Variant { return VariantBeaconDeleted }

// BeaconUpdated announces a schedule, leader or shortcode change.
// The follower list is only shown to the leader.
type BeaconUpdated struct {
	BeaconID  string    `json:"beacon_id"`
	LeaderID  string    `json:"leader_id"`
	Shortcode string    `json:"shortcode,omitempty"`
	StartsAt  time.Time `json:"starts_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Followers []string  `json:"followers,omitempty"`
}

// Variant implements Payload.
func (BeaconUpdated) Variant() Variant { return VariantBeaconUpdated }

// RedactFor implements Redactor.
func (p BeaconUpdated) RedactFor(userID string) Payload {
	if userID != p.LeaderID {
		p.Followers = nil
	}
	return p
}

// SOSRaised is a distress call from a beacon participant.
type SOSRaised struct {
	BeaconID string           `json:"beacon_id"`
	GroupID  string           `json:"group_id"`
	UserID   string           `json:"user_id"`
	Name     string           `json:"name"`
	Location *domain.Location `json:"location,omitempty"`
}

// Variant implements Payload.
func (SOSRaised) Variant() Variant { return VariantSOSRaised }

// Heartbeat keeps idle streams open.
type Heartbeat struct{}

// Variant implements Payload.
func (Heartbeat) Variant() Variant { return VariantHeartbeat }

// wireEvent is the broker encoding of an Event.
type wireEvent struct {
	ID         string          `json:"id"`
	Variant    Variant         `json:"variant"`
	Topics     []Topic         `json:"topics"`
	Recipients []string        `json:"recipients"`
	ActorID    string          `json:"actor_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data"`
}

func encodeEvent(e Event) ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Data.Variant(), err)
	}
	return json.Marshal(wireEvent{
		ID:         e.ID,
		Variant:    e.Data.Variant(),
		Topics:     e.Topics,
		Recipients: e.Recipients,
		ActorID:    e.ActorID,
		Timestamp:  e.Timestamp,
		Data:       data,
	})
}

func decodeEvent(raw []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}

	var (
		p   Payload
		err error
	)
	switch w.Variant {
	case VariantLocationUpdate:
		p, err = decodePayload[LocationUpdate](w.Data)
	case VariantLandmarkCreated:
		p, err = decodePayload[LandmarkCreated](w.Data)
	case VariantMemberJoined:
		p, err = decodePayload[MemberJoined](w.Data)
	case VariantMemberLeft:
		p, err = decodePayload[MemberLeft](w.Data)
	case VariantBeaconCreated:
		p, err = decodePayload[BeaconCreated](w.Data)
	case VariantBeaconDeleted:
		p, err = decodePayload[BeaconDeleted](w.Data)
	case VariantBeaconUpdated:
		p, err = decodePayload[BeaconUpdated](w.Data)
	case VariantSOSRaised:
		p, err = decodePayload[SOSRaised](w.Data)
	default:
		return Event{}, fmt.Errorf("unknown event variant %q", w.Variant)
	}
	if err != nil {
		return Event{}, fmt.Errorf("unmarshal %s payload: %w", w.Variant, err)
	}

	return Event{
		ID:         w.ID,
		Topics:     w.Topics,
		Recipients: w.Recipients,
		ActorID:    w.ActorID,
		Timestamp:  w.Timestamp,
		Data:       p,
	}, nil
}

func decodePayload[T Payload](data json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
