package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	lockedGuildID = "321"
	lockedChanID  = "654"
)

func addLockedGuild(t *testing.T, b *Bot, everyone int64) {
	t.Helper()
	require.NoError(t, b.sessions[0].State.GuildAdd(&discordgo.Guild{
		ID:      lockedGuildID,
		OwnerID: "1",
		Roles:   []*discordgo.Role{{ID: lockedGuildID, Name: "@everyone", Permissions: everyone}},
		Channels: []*discordgo.Channel{
			{ID: lockedChanID, GuildID: lockedGuildID, Type: discordgo.ChannelTypeGuildVoice},
		},
		Members: []*discordgo.Member{
			{GuildID: lockedGuildID, User: &discordgo.User{ID: botUserID}},
		},
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: lockedGuildID, UserID: listenerID, ChannelID: lockedChanID},
		},
	}))
}

func TestCanJoinVoice(t *testing.T) {
	h := newHarness(t)

	// unknown channel: let Discord decide
	assert.True(t, h.bot.canJoinVoice(guildID, voiceChanID))

	addLockedGuild(t, h.bot, discordgo.PermissionVoiceConnect)
	assert.False(t, h.bot.canJoinVoice(lockedGuildID, lockedChanID))
}

func TestCanJoinVoiceAllowed(t *testing.T) {
	h := newHarness(t)
	addLockedGuild(t, h.bot, voicePermissions)
	assert.True(t, h.bot.canJoinVoice(lockedGuildID, lockedChanID))
}

func TestRunPlayWithoutVoicePermission(t *testing.T) {
	h := newHarness(t)
	addLockedGuild(t, h.bot, 0)

	r := h.bot.runPlay(context.Background(), lockedGuildID, textChanID, listenerID, "rick")
	assert.True(t, r.Error)
	assert.Equal(t, "🎵 Voice Error", r.Title)
	assert.Contains(t, r.Description, "<#654>")
	assert.Empty(t, h.joiner.joins())
	assert.Empty(t, h.remote.queries)
}
