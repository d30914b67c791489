package discord

import "github.com/bwmarrin/discordgo"

const voicePermissions = discordgo.PermissionVoiceConnect | discordgo.PermissionVoiceSpeak

// canJoinVoice reports whether the bot may connect and speak in a voice
// channel of guildID. Channels missing from the state cache are allowed;
// Discord refuses the join itself if access is missing.
func (b *Bot) canJoinVoice(guildID, channelID string) bool {
	s := b.sessionFor(guildID)
	if s.State.User == nil {
		return true
	}
	perms, err := s.State.UserChannelPermissions(s.State.User.ID, channelID)
	if err != nil {
		return true
	}
	return perms&voicePermissions == voicePermissions
}
