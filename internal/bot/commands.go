package bot

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// statusCommands are advertised by the status rotation.
var statusCommands = []string{"giveaway start", "giveaway end", "giveaway list", "giveaway stats", "language"}

var minWinners = 1.0

func (b *Bot) registerCommands() error {
	languageChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0)
	for _, lang := range b.locale.Languages() {
		languageChoices = append(languageChoices, &discordgo.ApplicationCommandOptionChoice{Name: lang, Value: lang})
	}

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "giveaway",
			Description: "Run giveaways",
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.French:    "Gerer les concours",
				discordgo.EnglishUS: "Run giveaways",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "start",
					Description: "Start a giveaway in this channel",
					DescriptionLocalizations: map[discordgo.Locale]string{
						discordgo.French:    "Lancer un concours dans ce salon",
						discordgo.EnglishUS: "Start a giveaway in this channel",
					},
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "duration",
							Description: "How long it runs, e.g. 30m, 1h30m, 2d",
							DescriptionLocalizations: map[discordgo.Locale]string{
								discordgo.French:    "Duree, par ex. 30m, 1h30m, 2d",
								discordgo.EnglishUS: "How long it runs, e.g. 30m, 1h30m, 2d",
							},
							Required: true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "prize",
							Description: "What the winners get",
							DescriptionLocalizations: map[discordgo.Locale]string{
								discordgo.French:    "Ce que gagnent les gagnants",
								discordgo.EnglishUS: "What the winners get",
							},
							Required: true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "winners",
							Description: "Number of winners",
							DescriptionLocalizations: map[discordgo.Locale]string{
								discordgo.French:    "Nombre de gagnants",
								discordgo.EnglishUS: "Number of winners",
							},
							MinValue: &minWinners,
							MaxValue: float64(b.cfg.Giveaway.MaxWinners),
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "end",
					Description: "End a giveaway now",
					DescriptionLocalizations: map[discordgo.Locale]string{
						discordgo.French:    "Terminer un concours maintenant",
						discordgo.EnglishUS: "End a giveaway now",
					},
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "message_id",
							Description: "Giveaway message id or link",
							DescriptionLocalizations: map[discordgo.Locale]string{
								discordgo.French:    "Identifiant ou lien du message",
								discordgo.EnglishUS: "Giveaway message id or link",
							},
							Required: true,
						},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List active giveaways",
					DescriptionLocalizations: map[discordgo.Locale]string{
						discordgo.French:    "Lister les concours en cours",
						discordgo.EnglishUS: "List active giveaways",
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "stats",
					Description: "Show giveaway activity",
					DescriptionLocalizations: map[discordgo.Locale]string{
						discordgo.French:    "Afficher l'activite des concours",
						discordgo.EnglishUS: "Show giveaway activity",
					},
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "days",
							Description: "Look back this many days (default 30)",
							DescriptionLocalizations: map[discordgo.Locale]string{
								discordgo.French:    "Periode en jours (30 par defaut)",
								discordgo.EnglishUS: "Look back this many days (default 30)",
							},
						},
					},
				},
			},
		},
		{
			Name:        "language",
			Description: "Set the server language",
			DescriptionLocalizations: &map[discordgo.Locale]string{
				discordgo.French:    "Definir la langue du serveur",
				discordgo.EnglishUS: "Set the server language",
			},
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "value",
					Description: "Language code",
					DescriptionLocalizations: map[discordgo.Locale]string{
						discordgo.French:    "Code de langue",
						discordgo.EnglishUS: "Language code",
					},
					Required: true,
					Choices:  languageChoices,
				},
			},
		},
	}

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	current := make(map[string]*discordgo.ApplicationCommand, len(existing))
	for _, cmd := range existing {
		current[cmd.Name] = cmd
	}

	wanted := make(map[string]struct{}, len(commands))
	for _, cmd := range commands {
		wanted[cmd.Name] = struct{}{}
		if old, ok := current[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", old.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := wanted[cmd.Name]; ok {
			continue
		}
		if err := b.session.ApplicationCommandDelete(appID, "", cmd.ID); err != nil {
			b.logger.Warn("stale command not removed", zap.String("command", cmd.Name), zap.Error(err))
		}
	}
	return nil
}
