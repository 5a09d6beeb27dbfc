package locale

import (
	"embed"
	"fmt"
	"io"
	"io/fs"
	"math/rand/v2"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/valyala/fasttemplate"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var bundled embed.FS

const (
	checkEmoji = "✅"
	crossEmoji = "❌"
	maxEmbeds  = 10
)

// Context selects the language and supplies the per-call values every
// template can use ({now}, {locale}).
type Context struct {
	Locale string
	Now    time.Time
}

// Vars are placeholder values. Booleans render as True/False so embed field
// cleaning can turn them into emoji; everything else uses fmt.Sprint.
type Vars map[string]any

type Localizer struct {
	defaultLang string
	catalogs    map[string]map[string]Template
	palette     map[string]int
	logger      *zap.Logger
	pick        func(n int) int
}

// New loads the bundled catalogs.
func New(defaultLang string, palette map[string]int, logger *zap.Logger) (*Localizer, error) {
	sub, err := fs.Sub(bundled, "locales")
	if err != nil {
		return nil, err
	}
	return Load(sub, defaultLang, palette, logger)
}

// Load reads every <lang>.yaml file at the root of fsys.
func Load(fsys fs.FS, defaultLang string, palette map[string]int, logger *zap.Logger) (*Localizer, error) {
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}

	catalogs := make(map[string]map[string]Template, len(files))
	for _, file := range files {
		data, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, err
		}
		var catalog map[string]Template
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parse %s: %w", file, err)
		}
		for key, tpl := range catalog {
			if len(tpl.embeds()) > maxEmbeds {
				return nil, fmt.Errorf("%s: %s has more than %d embeds", file, key, maxEmbeds)
			}
		}
		lang := normalize(strings.TrimSuffix(path.Base(file), ".yaml"))
		catalogs[lang] = catalog
	}

	defaultLang = normalize(defaultLang)
	if _, ok := catalogs[defaultLang]; !ok {
		return nil, fmt.Errorf("no catalog for default language %q", defaultLang)
	}

	return &Localizer{
		defaultLang: defaultLang,
		catalogs:    catalogs,
		palette:     palette,
		logger:      logger,
		pick:        rand.IntN,
	}, nil
}

// Languages lists the loaded language codes.
func (l *Localizer) Languages() []string {
	langs := make([]string, 0, len(l.catalogs))
	for lang := range l.catalogs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func (l *Localizer) Supports(lang string) bool {
	_, ok := l.catalogs[normalize(lang)]
	return ok
}

// Resolve renders key for the context language, falling back to the base
// language and then the default language. A missing key renders as the key.
func (l *Localizer) Resolve(key string, ctx Context, vars Vars) Payload {
	tpl, lang, ok := l.lookup(key, ctx.Locale)
	if !ok {
		l.logger.Warn("missing localization", zap.String("key", key), zap.String("locale", ctx.Locale))
		return Payload{Content: key}
	}

	now := ctx.Now
	if now.IsZero() {
		now = time.Now()
	}
	values := make(map[string]string, len(vars)+3)
	for name, value := range vars {
		values[name] = format(value)
	}
	values["now"] = now.UTC().Format("2006-01-02T15:04:05.000000Z")
	values["locale"] = lang
	if len(tpl.Random) > 0 {
		values["random"] = substitute(tpl.Random[l.pick(len(tpl.Random))], values)
	}

	payload := Payload{
		Content:         substitute(tpl.Content, values),
		Ephemeral:       tpl.Ephemeral,
		Reply:           tpl.Reply,
		AllowedMentions: allowedMentions(tpl.AllowedMentions),
	}
	if payload.Content == "" && len(tpl.Random) > 0 {
		payload.Content = values["random"]
	}
	for _, et := range tpl.embeds() {
		payload.Embeds = append(payload.Embeds, l.renderEmbed(et, values))
	}
	return payload
}

// Text renders only the content of key.
func (l *Localizer) Text(key string, ctx Context, vars Vars) string {
	return l.Resolve(key, ctx, vars).Content
}

func (l *Localizer) lookup(key, lang string) (Template, string, bool) {
	for _, candidate := range l.chain(lang) {
		if tpl, ok := l.catalogs[candidate][key]; ok {
			return tpl, candidate, true
		}
	}
	return Template{}, "", false
}

func (l *Localizer) chain(lang string) []string {
	lang = normalize(lang)
	chain := make([]string, 0, 3)
	if lang != "" {
		chain = append(chain, lang)
		if base, _, found := strings.Cut(lang, "-"); found {
			chain = append(chain, base)
		}
	}
	return append(chain, l.defaultLang)
}

func (l *Localizer) renderEmbed(et EmbedTemplate, values map[string]string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       substitute(et.Title, values),
		Description: substitute(et.Description, values),
		URL:         substitute(et.URL, values),
		Timestamp:   substitute(et.Timestamp, values),
		Color:       l.color(et.Color),
	}
	if footer := substitute(et.Footer, values); footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: footer}
	}
	if thumb := substitute(et.Thumbnail, values); thumb != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: thumb}
	}
	if image := substitute(et.Image, values); image != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: image}
	}
	for _, ft := range et.Fields {
		value := substitute(ft.Value, values)
		switch value {
		case "None", "0", "":
			continue
		case "True":
			value = checkEmoji
		case "False":
			value = crossEmoji
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   substitute(ft.Name, values),
			Value:  value,
			Inline: ft.Inline,
		})
	}
	return embed
}

// color accepts a palette name, "#rrggbb" or a decimal value.
func (l *Localizer) color(raw string) int {
	if raw == "" {
		return 0
	}
	if c, ok := l.palette[raw]; ok {
		return c
	}
	if hex, ok := strings.CutPrefix(raw, "#"); ok {
		if c, err := strconv.ParseInt(hex, 16, 32); err == nil {
			return int(c)
		}
		return 0
	}
	c, _ := strconv.Atoi(raw)
	return c
}

// substitute replaces {name} placeholders. Unknown placeholders stay as
// written, and a template with an unterminated brace is returned unchanged.
func substitute(tpl string, values map[string]string) string {
	if !strings.Contains(tpl, "{") {
		return tpl
	}
	out, err := fasttemplate.ExecuteFuncStringWithErr(tpl, "{", "}", func(w io.Writer, tag string) (int, error) {
		if v, ok := values[tag]; ok {
			return w.Write([]byte(v))
		}
		return w.Write([]byte("{" + tag + "}"))
	})
	if err != nil {
		return tpl
	}
	return out
}

func format(value any) string {
	if b, ok := value.(bool); ok {
		if b {
			return "True"
		}
		return "False"
	}
	return fmt.Sprint(value)
}

func normalize(lang string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(lang)), "_", "-")
}
