package locale

import (
	"testing"
	"testing/fstest"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLocalizer(t *testing.T) *Localizer {
	t.Helper()
	fsys := fstest.MapFS{
		"en.yaml": {Data: []byte(`
greeting: "Hello {name}, it is {now} in {locale}"
farewell:
  random: ["Bye {name}", "See you {name}"]
  ephemeral: true
stats:
  embed:
    title: "{title}"
    color: giveaway
    fields:
      - {name: Entries, value: "{entries}"}
      - {name: Left, value: "{left}"}
      - {name: Public, value: "{public}"}
      - {name: Archived, value: "{archived}"}
      - {name: Owner, value: "None"}
  reply: true
  allowed_mentions: none
only_en: "english only"
`)},
		"fr.yaml": {Data: []byte(`
greeting: "Bonjour {name}"
`)},
	}
	l, err := Load(fsys, "en", map[string]int{"giveaway": 0xF59E0B}, zap.NewNop())
	require.NoError(t, err)
	return l
}

func TestResolveSubstitutesContext(t *testing.T) {
	l := testLocalizer(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	p := l.Resolve("greeting", Context{Locale: "en-US", Now: now}, Vars{"name": "Ana"})
	assert.Equal(t, "Hello Ana, it is 2024-05-01T12:00:00.000000Z in en", p.Content)
}

func TestResolveFallbackChain(t *testing.T) {
	l := testLocalizer(t)

	assert.Equal(t, "Bonjour Ana", l.Text("greeting", Context{Locale: "fr"}, Vars{"name": "Ana"}))
	assert.Equal(t, "Bonjour Ana", l.Text("greeting", Context{Locale: "fr_CA"}, Vars{"name": "Ana"}))
	assert.Equal(t, "english only", l.Text("only_en", Context{Locale: "fr"}, nil))
	assert.Equal(t, "english only", l.Text("only_en", Context{Locale: "de"}, nil))
	assert.Equal(t, "missing.key", l.Text("missing.key", Context{Locale: "en"}, nil))
}

func TestUnknownPlaceholdersStay(t *testing.T) {
	l := testLocalizer(t)
	assert.Equal(t, "Bonjour {name}", l.Text("greeting", Context{Locale: "fr"}, nil))
}

func TestRandomChoice(t *testing.T) {
	l := testLocalizer(t)
	l.pick = func(n int) int { return n - 1 }

	p := l.Resolve("farewell", Context{}, Vars{"name": "Ana"})
	assert.Equal(t, "See you Ana", p.Content)
	assert.True(t, p.Ephemeral)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, p.InteractionData().Flags)
}

func TestEmbedFieldCleaning(t *testing.T) {
	l := testLocalizer(t)

	p := l.Resolve("stats", Context{}, Vars{"title": "Stats", "entries": 4, "left": 0, "public": true, "archived": "False"})
	require.Len(t, p.Embeds, 1)
	embed := p.Embeds[0]
	assert.Equal(t, "Stats", embed.Title)
	assert.Equal(t, 0xF59E0B, embed.Color)

	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "4", embed.Fields[0].Value)
	assert.Equal(t, "Public", embed.Fields[1].Name)
	assert.Equal(t, checkEmoji, embed.Fields[1].Value)
	assert.Equal(t, crossEmoji, embed.Fields[2].Value)

	ref := &discordgo.MessageReference{MessageID: "m1", ChannelID: "c1"}
	send := p.MessageSend(ref)
	assert.Equal(t, ref, send.Reference)
	require.NotNil(t, send.AllowedMentions)
	assert.Empty(t, send.AllowedMentions.Parse)
}

func TestBundledCatalogs(t *testing.T) {
	l, err := New("en", nil, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr"}, l.Languages())
	assert.True(t, l.Supports("FR"))

	p := l.Resolve("giveaway.end.success", Context{Locale: "en"}, Vars{"winner_mentions": "<@1>", "prize": "Nitro"})
	assert.Contains(t, p.Content, "<@1>")
	assert.True(t, p.Reply)

	text := l.Text("giveaway.end.delivery_failed", Context{Locale: "fr"}, nil)
	assert.Equal(t, "Giveaway ended, but I could not post the announcement.", text)
}

func TestLoadRejectsMissingDefault(t *testing.T) {
	_, err := Load(fstest.MapFS{"fr.yaml": {Data: []byte(`a: b`)}}, "en", nil, zap.NewNop())
	assert.Error(t, err)
}

func TestColorParsing(t *testing.T) {
	l := testLocalizer(t)
	assert.Equal(t, 0xF59E0B, l.color("giveaway"))
	assert.Equal(t, 0x00FF00, l.color("#00ff00"))
	assert.Equal(t, 255, l.color("255"))
	assert.Equal(t, 0, l.color("unknown"))
}
