package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLink(t *testing.T) {
	testCases := []struct {
		name       string
		link       string
		buildingID string
		room       string
		hasRoom    bool
		expectErr  bool
	}{
		{
			name:       "Building link",
			link:       "/id/1234",
			buildingID: "1234",
		},
		{
			name:       "Room link",
			link:       "/id/1234/101",
			buildingID: "1234",
			room:       "101",
			hasRoom:    true,
		},
		{
			name:       "Room link with trailing slash",
			link:       "/id/1234/101/",
			buildingID: "1234",
			room:       "101",
			hasRoom:    true,
		},
		{
			name:       "URL-encoded room segment",
			link:       "/id/1234/B%EF%BC%94%EF%BC%90%EF%BC%91",
			buildingID: "1234",
			room:       "B４０１",
			hasRoom:    true,
		},
		{
			name:      "Too few segments",
			link:      "/id",
			expectErr: true,
		},
		{
			name:      "Too many segments",
			link:      "/id/1234/101/extra/more",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parts, err := ParseLink(tc.link)

			if tc.expectErr {
				assert.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidLink)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.buildingID, parts.BuildingID)
			assert.Equal(t, tc.room, parts.Room)
			assert.Equal(t, tc.hasRoom, parts.HasRoom)
		})
	}
}

func TestJoinIdentity(t *testing.T) {
	assert.Equal(t, "1234___101", JoinIdentity("1234", "101"))
	assert.Equal(t, "1234___", JoinIdentity("1234", ""))
}

func TestBuildingOf(t *testing.T) {
	assert.Equal(t, "1234", BuildingOf("1234___101"))
	assert.Equal(t, "1234", BuildingOf("1234___"))
	assert.Equal(t, "1234", BuildingOf("1234"))
}

func TestIdentity_PopulatesRoomFromLink(t *testing.T) {
	listing := &Listing{Link: "/id/1234/101"}

	identity, err := listing.Identity()

	require.NoError(t, err)
	assert.Equal(t, "1234___101", identity)
	assert.Equal(t, "101", listing.RoomNumber)
}

func TestIdentity_FieldWinsOverLink(t *testing.T) {
	// A room number set by the detail page is authoritative even when the
	// link carries a different segment.
	listing := &Listing{Link: "/id/1234/101", RoomNumber: "202"}

	identity, err := listing.Identity()

	require.NoError(t, err)
	assert.Equal(t, "1234___202", identity)
	assert.Equal(t, "202", listing.RoomNumber)
}

func TestIdentity_Stable(t *testing.T) {
	listing := &Listing{Link: "/id/1234/101"}

	first, err := listing.Identity()
	require.NoError(t, err)
	second, err := listing.Identity()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestIdentity_BuildingOnlyLink(t *testing.T) {
	listing := &Listing{Link: "/id/1234", RoomNumber: "305"}

	identity, err := listing.Identity()

	require.NoError(t, err)
	assert.Equal(t, "1234___305", identity)
}

func TestIdentity_MissingLink(t *testing.T) {
	listing := &Listing{RoomNumber: "101"}

	_, err := listing.Identity()

	assert.ErrorIs(t, err, ErrMissingLink)
}

func TestIdentity_InvalidLink(t *testing.T) {
	listing := &Listing{Link: "/id/1234/101/a/b/c"}

	_, err := listing.Identity()

	assert.ErrorIs(t, err, ErrInvalidLink)
}
