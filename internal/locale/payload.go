package locale

import "github.com/bwmarrin/discordgo"

// Payload is a rendered response ready to be sent through discordgo.
type Payload struct {
	Content         string
	Embeds          []*discordgo.MessageEmbed
	Components      []discordgo.MessageComponent
	Ephemeral       bool
	Reply           bool
	AllowedMentions *discordgo.MessageAllowedMentions
}

// MessageSend builds a channel message. When Reply is set and ref is not nil
// the message references ref.
func (p Payload) MessageSend(ref *discordgo.MessageReference) *discordgo.MessageSend {
	msg := &discordgo.MessageSend{
		Content:         p.Content,
		Embeds:          p.Embeds,
		Components:      p.Components,
		AllowedMentions: p.AllowedMentions,
	}
	if p.Reply && ref != nil {
		msg.Reference = ref
	}
	return msg
}

func (p Payload) InteractionData() *discordgo.InteractionResponseData {
	data := &discordgo.InteractionResponseData{
		Content:         p.Content,
		Embeds:          p.Embeds,
		Components:      p.Components,
		AllowedMentions: p.AllowedMentions,
	}
	if p.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return data
}

func (p Payload) MessageEdit(channelID, messageID string) *discordgo.MessageEdit {
	content := p.Content
	embeds := p.Embeds
	components := p.Components
	return &discordgo.MessageEdit{
		Channel:         channelID,
		ID:              messageID,
		Content:         &content,
		Embeds:          &embeds,
		Components:      &components,
		AllowedMentions: p.AllowedMentions,
	}
}

func allowedMentions(mode string) *discordgo.MessageAllowedMentions {
	switch mode {
	case "all":
		return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{
			discordgo.AllowedMentionTypeUsers,
			discordgo.AllowedMentionTypeRoles,
			discordgo.AllowedMentionTypeEveryone,
		}}
	case "none":
		return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}}
	case "users":
		return &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers}}
	default:
		return nil
	}
}
