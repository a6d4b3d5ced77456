package models

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// IdentitySeparator joins the building id and room number into a cache key.
const IdentitySeparator = "___"

// Sentinel errors for identity resolution. Callers are expected to skip the
// offending listing and continue; neither is run-fatal on its own.
var (
	ErrInvalidLink = errors.New("invalid listing link")
	ErrMissingLink = errors.New("listing has no link")
)

// LinkParts is the result of decomposing a listing link path.
// Links look like /id/1234 (building) or /id/1234/101 (room).
type LinkParts struct {
	BuildingID string
	Room       string
	HasRoom    bool
}

// ParseLink splits a listing link into its building id and optional room
// number. The path must have between 3 and 5 slash-delimited segments;
// segment 2 is the building id and segment 3, when present, is the
// URL-encoded room number.
func ParseLink(link string) (LinkParts, error) {
	parts := strings.Split(link, "/")
	if len(parts) < 3 || len(parts) > 5 {
		return LinkParts{}, fmt.Errorf("%w: %q has %d segments", ErrInvalidLink, link, len(parts))
	}
	lp := LinkParts{BuildingID: parts[2]}
	if len(parts) >= 4 {
		room, err := url.PathUnescape(parts[3])
		if err != nil {
			room = parts[3]
		}
		lp.Room = room
		lp.HasRoom = true
	}
	return lp, nil
}

// JoinIdentity builds the composite cache key for a building and room.
func JoinIdentity(buildingID, room string) string {
	return buildingID + IdentitySeparator + room
}

// BuildingOf returns the building-id prefix of a composite identity.
func BuildingOf(identity string) string {
	id, _, _ := strings.Cut(identity, IdentitySeparator)
	return id
}

// Identity derives the presumed-unique key for the room, in the form
// "<building-id>___<room-number>". The explicit RoomNumber field is
// authoritative; when it is empty and the link carries a room segment, the
// field is populated from the link (link wins on first population). A link
// segment that disagrees with an already-set field is a data-quality
// problem: it is logged and the field value is kept.
func (l *Listing) Identity() (string, error) {
	if l.Link == "" {
		return "", ErrMissingLink
	}
	parts, err := ParseLink(l.Link)
	if err != nil {
		return "", err
	}
	if parts.HasRoom {
		switch {
		case l.RoomNumber == "":
			l.RoomNumber = parts.Room
		case l.RoomNumber != parts.Room:
			log.Warn().
				Str("link", l.Link).
				Str("room_number", l.RoomNumber).
				Msg("link room segment does not match room number field")
		}
	}
	return JoinIdentity(parts.BuildingID, l.RoomNumber), nil
}
