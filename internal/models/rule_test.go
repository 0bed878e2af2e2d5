package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionListRoundTrip(t *testing.T) {
	conds := ConditionList{
		{Type: CondKeyword, IsActive: true, Keywords: []string{"hello", "hi"}},
		{
			Type:            CondChatFilter,
			IsActive:        true,
			ChatTypes:       []string{"group", "supergroup"},
			TitleContains:   "Support",
			MinMembers:      10,
			MaxMembers:      500,
			ChatIDWhitelist: []int64{-100200300},
			ChatIDBlacklist: []int64{-100400500},
		},
		{Type: CondUserFilter, IsActive: true, UserIDs: []int64{7, 8}, Usernames: []string{"alice"}},
		// Explicitly disabled, must stay disabled after a round trip.
		{Type: CondTimeFilter, TimeRanges: []TimeRange{{From: "22:00", To: "06:00"}}},
	}

	raw, err := conds.Value()
	require.NoError(t, err)

	var got ConditionList
	require.NoError(t, got.Scan(raw))
	assert.Equal(t, conds, got)
}

func TestActionListRoundTrip(t *testing.T) {
	after := 30
	actions := ActionList{
		{
			Type:           ActionSendText,
			Text:           "hello",
			DelaySeconds:   5,
			ReplyToMessage: true,
			InlineButtons:  [][]Button{{{Text: "Open", URL: "https://example.com"}}},
		},
		{
			Type: ActionSendContent,
			Content: []MediaContent{
				{Type: ContentText, Text: "part one"},
				{Type: ContentImage, MediaID: "m-1"},
				{Type: ContentEmoji, Emoji: "🔥"},
			},
			DeleteAfterSeconds: &after,
		},
		{Type: ActionAddReaction, Reaction: "👍"},
	}

	raw, err := actions.Value()
	require.NoError(t, err)

	var got ActionList
	require.NoError(t, got.Scan(raw))
	assert.Equal(t, actions, got)
}

func TestConditionDefaultsToActive(t *testing.T) {
	var conds ConditionList
	err := conds.Scan([]byte(`[{"type":"all"},{"type":"keyword","is_active":false,"value":"hi"}]`))
	require.NoError(t, err)
	require.Len(t, conds, 2)

	assert.True(t, conds[0].IsActive)
	assert.False(t, conds[1].IsActive)
}

func TestNilListsStoreEmptyArrays(t *testing.T) {
	var conds ConditionList
	raw, err := conds.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw.([]byte)))

	var actions ActionList
	raw, err = actions.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw.([]byte)))
}

func TestScanAcceptsStringColumns(t *testing.T) {
	var conds ConditionList
	require.NoError(t, conds.Scan(`[{"type":"user_id","value":"42"}]`))
	require.Len(t, conds, 1)
	assert.Equal(t, CondUserID, conds[0].Type)
	assert.True(t, conds[0].IsActive)
}
