package locale

import (
	"gopkg.in/yaml.v3"
)

// Template is one localized response. In YAML it is either a plain string,
// used as content, or a mapping with the fields below.
type Template struct {
	Content         string          `yaml:"content"`
	Embed           *EmbedTemplate  `yaml:"embed"`
	Embeds          []EmbedTemplate `yaml:"embeds"`
	Random          []string        `yaml:"random"`
	Ephemeral       bool            `yaml:"ephemeral"`
	Reply           bool            `yaml:"reply"`
	AllowedMentions string          `yaml:"allowed_mentions"`
}

type EmbedTemplate struct {
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	URL         string          `yaml:"url"`
	Color       string          `yaml:"color"`
	Footer      string          `yaml:"footer"`
	Timestamp   string          `yaml:"timestamp"`
	Thumbnail   string          `yaml:"thumbnail"`
	Image       string          `yaml:"image"`
	Fields      []FieldTemplate `yaml:"fields"`
}

type FieldTemplate struct {
	Name   string `yaml:"name"`
	Value  string `yaml:"value"`
	Inline bool   `yaml:"inline"`
}

func (t *Template) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Content = node.Value
		return nil
	}
	type plain Template
	var raw plain
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*t = Template(raw)
	return nil
}

func (t Template) embeds() []EmbedTemplate {
	if len(t.Embeds) > 0 || t.Embed == nil {
		return t.Embeds
	}
	return []EmbedTemplate{*t.Embed}
}
