package prompts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/digest-o-bot/archive/fileutils"
)

// DefaultName is the built-in prompt used when nothing else is selected.
const DefaultName = "overview"

var ErrNotFound = errors.New("prompt not found")

type Prompt struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Text        string `yaml:"text"`
}

// Library is a named set of analysis prompts, stored as YAML.
type Library struct {
	Default string   `yaml:"default,omitempty"`
	Prompts []Prompt `yaml:"prompts"`
}

func Builtin() Library {
	return Library{
		Default: DefaultName,
		Prompts: []Prompt{
			{
				Name:        DefaultName,
				Description: "who talks, about what, and how the tone changes",
				Text: "Analyse this chat transcript. Identify the participants and the main topics, " +
					"describe how the relationship and tone evolve over time, and list notable events " +
					"with their approximate dates. Answer in the language of the transcript.",
			},
			{
				Name:        "timeline",
				Description: "dated list of key events",
				Text: "Build a chronological timeline of the key events discussed in this chat transcript. " +
					"One line per event, starting with the date taken from the nearest day marker.",
			},
			{
				Name:        "participants",
				Description: "profile of each participant",
				Text: "For every participant of this chat transcript describe their communication style, " +
					"recurring interests and their role in the conversation.",
			},
		},
	}
}

// Load reads a YAML library. Prompts in the file replace built-ins of the same name;
// other built-ins stay available.
func Load(path string) (Library, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Library{}, fmt.Errorf("prompts: read %s: %w", path, err)
	}
	var file Library
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Library{}, fmt.Errorf("prompts: parse %s: %w", path, err)
	}

	lib := Builtin()
	for _, p := range file.Prompts {
		if err := lib.Put(p); err != nil {
			return Library{}, fmt.Errorf("prompts: %s: %w", path, err)
		}
	}
	if file.Default != "" {
		if _, err := lib.Get(file.Default); err != nil {
			return Library{}, fmt.Errorf("prompts: %s: default %q: %w", path, file.Default, err)
		}
		lib.Default = file.Default
	}
	return lib, nil
}

// Get returns the named prompt; an empty name selects the library default.
func (l Library) Get(name string) (Prompt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = l.Default
	}
	if name == "" && len(l.Prompts) > 0 {
		return l.Prompts[0], nil
	}
	for _, p := range l.Prompts {
		if p.Name == name {
			return p, nil
		}
	}
	return Prompt{}, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Put adds p or replaces the prompt with the same name.
func (l *Library) Put(p Prompt) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return errors.New("prompt without name")
	}
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("prompt %q has no text", p.Name)
	}
	for i := range l.Prompts {
		if l.Prompts[i].Name == p.Name {
			l.Prompts[i] = p
			return nil
		}
	}
	l.Prompts = append(l.Prompts, p)
	return nil
}

func (l *Library) Remove(name string) error {
	for i, p := range l.Prompts {
		if p.Name == name {
			l.Prompts = append(l.Prompts[:i], l.Prompts[i+1:]...)
			if l.Default == name {
				l.Default = ""
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

func (l Library) Names() []string {
	out := make([]string, 0, len(l.Prompts))
	for _, p := range l.Prompts {
		out = append(out, p.Name)
	}
	return out
}

// Save writes the library as YAML.
func (l Library) Save(path string) error {
	b, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("prompts: marshal: %w", err)
	}
	return fileutils.WriteFileAtomicSameDir(path, b, 0o644)
}

// Resolve picks the prompt text for a command: inline text, then a text file, then a library entry.
func Resolve(lib Library, inline, file, name string) (string, error) {
	if s := strings.TrimSpace(inline); s != "" {
		return s, nil
	}
	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("prompts: read %s: %w", file, err)
		}
		s := strings.TrimSpace(string(b))
		if s == "" {
			return "", fmt.Errorf("prompts: %s is empty", file)
		}
		return s, nil
	}
	p, err := lib.Get(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(p.Text), nil
}
