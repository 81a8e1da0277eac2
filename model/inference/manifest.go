package inference

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sudhar-ne/sudhar/model"
)

// Manifest is the subset of a Hugging Face config.json that identifies the model.
type Manifest struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`
}

// ManifestError reports a model directory that cannot serve the requested kind.
type ManifestError struct {
	Dir    string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("model directory %s: %s", e.Dir, e.Reason)
}

// ReadManifest reads <dir>/config.json.
func ReadManifest(dir string) (*Manifest, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ManifestError{Dir: dir, Reason: "does not exist"}
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, &ManifestError{Dir: dir, Reason: "not a directory"}
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ManifestError{Dir: dir, Reason: "missing config.json"}
		}
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Dir: dir, Reason: "invalid config.json: " + err.Error()}
	}
	return &m, nil
}

// CheckManifest verifies that dir holds a model of the family k expects.
func CheckManifest(dir string, k model.Kind) error {
	m, err := ReadManifest(dir)
	if err != nil {
		return err
	}
	want := k.Profile().ConfigType
	if m.ModelType != want {
		return &ManifestError{
			Dir:    dir,
			Reason: fmt.Sprintf("model_type %q, %s needs %q", m.ModelType, k, want),
		}
	}
	return nil
}
