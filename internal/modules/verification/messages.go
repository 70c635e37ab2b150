package verification

import (
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	colorBlurple = 0x5865f2
	colorSuccess = 0x00ff00
	colorFailure = 0xff0000
)

func verificationMessage(now time.Time) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "🛡️ Server Verification Required",
			Description: "Welcome! To keep this community safe, all new members must complete verification before gaining full access to the server.",
			Color:       colorBlurple,
			Fields: []*discordgo.MessageEmbedField{
				{
					Name:  "📋 Verification Process",
					Value: "• Click the **Verify** button below\n• You will instantly receive the member role\n• Gain access to all server channels",
				},
				{
					Name:  "❓ Need Help?",
					Value: "If you run into any issues, please contact a server administrator or moderator.",
				},
			},
			Timestamp: now.Format(time.RFC3339),
		}},
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Verify & Join Server",
					Style:    discordgo.SuccessButton,
					CustomID: ButtonCustomID,
					Emoji:    discordgo.ComponentEmoji{Name: "🛡️"},
				},
			}},
		},
	}
}

func successEmbed(memberRoleID string, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🎉 Verification Successful!",
		Description: "Welcome to the server!",
		Color:       colorSuccess,
		Fields: []*discordgo.MessageEmbedField{{
			Name:  "✅ Access Granted",
			Value: "• You now have the <@&" + memberRoleID + "> role\n• Full server access has been unlocked",
		}},
		Timestamp: now.Format(time.RFC3339),
	}
}

func failureEmbed(now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "❌ Verification Failed",
		Description: "There was an error updating your roles. Please try again or contact a server administrator.",
		Color:       colorFailure,
		Timestamp:   now.Format(time.RFC3339),
	}
}
