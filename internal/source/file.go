// Package source reads messages from YAML, JSON, CSV or XLSX files and
// watches an inbox directory for new files.
package source

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/email-analyzer/internal/model"
)

// envelope is the object form of a message file.
type envelope struct {
	Messages []model.Message `json:"messages" yaml:"messages"`
}

// Supported reports whether path has a message file extension.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".csv", ".xlsx":
		return true
	}
	return false
}

// LoadFile reads the messages in path. A YAML or JSON file holds either a
// list of messages or an object with a "messages" list.
func LoadFile(path string) ([]model.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read %s", path)
	}
	msgs, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, eris.Wrapf(err, "source: load %s", path)
	}
	return msgs, nil
}

// Parse decodes message data. ext selects the format. CSV and XLSX files
// carry a header row naming the message fields.
func Parse(data []byte, ext string) ([]model.Message, error) {
	var (
		msgs []model.Message
		err  error
	)
	switch strings.ToLower(ext) {
	case ".json":
		msgs, err = parseJSON(data)
	case ".yaml", ".yml":
		msgs, err = parseYAML(data)
	case ".csv":
		msgs, err = parseCSV(data)
	case ".xlsx":
		msgs, err = parseXLSX(data)
	default:
		return nil, eris.Errorf("source: unsupported file type %q", ext)
	}
	if err != nil {
		return nil, err
	}
	if err := validate(msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func parseJSON(data []byte) ([]model.Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var msgs []model.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, eris.Wrap(err, "source: decode json")
		}
		return msgs, nil
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, eris.Wrap(err, "source: decode json")
	}
	return env.Messages, nil
}

func parseYAML(data []byte) ([]model.Message, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, eris.Wrap(err, "source: decode yaml")
	}
	if len(node.Content) == 0 {
		return []model.Message{}, nil
	}
	if node.Content[0].Kind == yaml.SequenceNode {
		var msgs []model.Message
		if err := node.Decode(&msgs); err != nil {
			return nil, eris.Wrap(err, "source: decode yaml")
		}
		return msgs, nil
	}
	var env envelope
	if err := node.Decode(&env); err != nil {
		return nil, eris.Wrap(err, "source: decode yaml")
	}
	return env.Messages, nil
}

func validate(msgs []model.Message) error {
	seen := make(map[string]bool, len(msgs))
	for i, m := range msgs {
		if strings.TrimSpace(m.ID) == "" {
			return eris.Errorf("source: message %d has no id", i)
		}
		if seen[m.ID] {
			return eris.Errorf("source: duplicate message id %q", m.ID)
		}
		seen[m.ID] = true
	}
	return nil
}

// LoadDir reads every supported file directly under dir in name order.
func LoadDir(dir string) ([]model.Message, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "source: read dir %s", dir)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && Supported(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []model.Message
	for _, name := range names {
		msgs, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, msgs...)
	}
	return all, nil
}

// Load reads path, which may be a file or a directory.
func Load(path string) ([]model.Message, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "source: stat %s", path)
	}
	if info.IsDir() {
		return LoadDir(path)
	}
	return LoadFile(path)
}
