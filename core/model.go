package core

import "time"

// Participant is a snapshot of one member of a channel session.
type Participant struct {
	URI            ParticipantURI `cbor:"uri" json:"uri"`
	DisplayName    string         `cbor:"display_name,omitempty" json:"display_name,omitempty"`
	IsSelf         bool           `cbor:"is_self,omitempty" json:"is_self,omitempty"`
	InAudio        bool           `cbor:"in_audio,omitempty" json:"in_audio,omitempty"`
	InText         bool           `cbor:"in_text,omitempty" json:"in_text,omitempty"`
	SpeechDetected bool           `cbor:"speech_detected,omitempty" json:"speech_detected,omitempty"`
	AudioEnergy    float64        `cbor:"audio_energy,omitempty" json:"audio_energy,omitempty"`
	LocalMute      bool           `cbor:"local_mute,omitempty" json:"local_mute,omitempty"`
	LocalVolume    int            `cbor:"local_volume,omitempty" json:"local_volume,omitempty"`
}

// ChannelMessage is a text message received in a channel session.
type ChannelMessage struct {
	Sender     ParticipantURI `cbor:"sender" json:"sender"`
	Body       string         `cbor:"body" json:"body"`
	Language   string         `cbor:"language,omitempty" json:"language,omitempty"`
	ReceivedAt time.Time      `cbor:"received_at" json:"received_at"`
}

// PresenceLocation is one endpoint (device/location) of a subscribed contact.
type PresenceLocation struct {
	ID      string         `cbor:"id" json:"id"`
	Status  PresenceStatus `cbor:"status" json:"status"`
	Message string         `cbor:"message,omitempty" json:"message,omitempty"`
}

// PresenceSubscription is a snapshot of a subscription and its known locations.
type PresenceSubscription struct {
	Key       PresenceKey        `json:"key"`
	Locations []PresenceLocation `json:"locations"`
}

// AudioDevice describes a capture or render device.
type AudioDevice struct {
	ID   string `cbor:"id" json:"id"`
	Name string `cbor:"name" json:"name"`
}

// MaxArchivePageSize is the largest page an archive query may request.
const MaxArchivePageSize = 50

// ArchiveQueryParams selects a page of archived messages. Time window and
// explicit message anchors are mutually exclusive.
type ArchiveQueryParams struct {
	TimeStart         *time.Time `cbor:"time_start,omitempty" json:"time_start,omitempty"`
	TimeEnd           *time.Time `cbor:"time_end,omitempty" json:"time_end,omitempty"`
	SearchText        string     `cbor:"search_text,omitempty" json:"search_text,omitempty"`
	AfterID           string     `cbor:"after_id,omitempty" json:"after_id,omitempty"`
	BeforeID          string     `cbor:"before_id,omitempty" json:"before_id,omitempty"`
	FirstMessageIndex *int       `cbor:"first_message_index,omitempty" json:"first_message_index,omitempty"`
	Max               uint       `cbor:"max,omitempty" json:"max,omitempty"`
	// With restricts an account query to messages exchanged with one participant.
	With ParticipantURI `cbor:"with,omitempty" json:"with,omitempty"`
}

// Validate checks the mutually exclusive parameter pairs and the page size.
func (p ArchiveQueryParams) Validate() error {
	hasWindow := p.TimeStart != nil || p.TimeEnd != nil
	hasAnchor := p.AfterID != "" || p.BeforeID != ""

	switch {
	case hasWindow && hasAnchor:
		return NewArgumentError("timeStart/timeEnd", "cannot be combined with afterId or beforeId")
	case p.AfterID != "" && p.BeforeID != "":
		return NewArgumentError("afterId/beforeId", "only one of afterId and beforeId may be set")
	case p.FirstMessageIndex != nil && hasAnchor:
		return NewArgumentError("firstMessageIndex", "cannot be combined with afterId or beforeId")
	case p.FirstMessageIndex != nil && *p.FirstMessageIndex < 0:
		return NewArgumentError("firstMessageIndex", "must not be negative")
	case p.Max > MaxArchivePageSize:
		return NewArgumentError("max", "must not exceed 50")
	case p.TimeStart != nil && p.TimeEnd != nil && p.TimeEnd.Before(*p.TimeStart):
		return NewArgumentError("timeEnd", "must not be before timeStart")
	}
	return nil
}

// ArchiveQueryResult is the progress and outcome of one archive query.
type ArchiveQueryResult struct {
	QueryID    QueryID
	ReturnCode int
	StatusCode int
	FirstID    string
	LastID     string
	FirstIndex int
	TotalCount int
	Running    bool
}

// ArchiveMessage is one record of a paged archive query.
type ArchiveMessage struct {
	QueryID   QueryID        `cbor:"query_id" json:"query_id"`
	MessageID string         `cbor:"message_id" json:"message_id"`
	Sender    ParticipantURI `cbor:"sender" json:"sender"`
	Body      string         `cbor:"body" json:"body"`
	Language  string         `cbor:"language,omitempty" json:"language,omitempty"`
	Inbound   bool           `cbor:"inbound,omitempty" json:"inbound,omitempty"`
	Timestamp time.Time      `cbor:"timestamp" json:"timestamp"`
}
