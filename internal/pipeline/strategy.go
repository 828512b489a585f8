package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultStrategy is the separation model used when none is requested and
// the fallback target when a requested model fails.
const DefaultStrategy = "demucs"

// Strategy is one named separation attempt: the engine runs the model
// against the job dir, then Normalize moves the model's native output into
// the canonical stems/ area. A failed normalize fails the whole attempt.
type Strategy struct {
	Name      string
	Normalize func(jobDir, inputPath, stemsDir string) error
}

var strategies = map[string]Strategy{
	"demucs": {Name: "demucs", Normalize: normalizeDemucs},
	"umx":    {Name: "umx", Normalize: normalizeUmx},
}

// StrategyFor looks up a separation strategy by model name.
func StrategyFor(name string) (Strategy, bool) {
	s, ok := strategies[name]
	return s, ok
}

// attemptList orders the strategies to try: the requested one first, then
// the default as fallback when different. Unknown names resolve to the
// default alone.
func attemptList(requested, def string) []Strategy {
	fallback, ok := StrategyFor(def)
	if !ok {
		fallback = strategies[DefaultStrategy]
	}
	req, ok := StrategyFor(requested)
	if !ok || req.Name == fallback.Name {
		return []Strategy{fallback}
	}
	return []Strategy{req, fallback}
}

// normalizeDemucs flattens demucs' nested output, htdemucs/<input-base>/,
// into the stems dir and removes the model dir.
func normalizeDemucs(jobDir, inputPath, stemsDir string) error {
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	nativeDir := filepath.Join(jobDir, "htdemucs", base)

	entries, err := os.ReadDir(nativeDir)
	if err != nil {
		return fmt.Errorf("demucs output not found: %w", err)
	}
	moved := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Rename(filepath.Join(nativeDir, e.Name()), filepath.Join(stemsDir, e.Name())); err != nil {
			return fmt.Errorf("move stem %s: %w", e.Name(), err)
		}
		moved++
	}
	if err := os.RemoveAll(filepath.Join(jobDir, "htdemucs")); err != nil {
		return fmt.Errorf("clean demucs output dir: %w", err)
	}
	if moved == 0 {
		return errors.New("demucs produced no stems")
	}
	return nil
}

// normalizeUmx moves untouched open-unmix output, four coarse stems written
// flat into the job dir, into the stems dir.
func normalizeUmx(jobDir, inputPath, stemsDir string) error {
	moved := 0
	for _, name := range []string{"vocals.wav", "drums.wav", "bass.wav", "other.wav"} {
		src := filepath.Join(jobDir, name)
		if _, err := os.Stat(src); os.IsNotExist(err) {
			continue
		}
		if err := os.Rename(src, filepath.Join(stemsDir, name)); err != nil {
			return fmt.Errorf("move stem %s: %w", name, err)
		}
		moved++
	}
	if moved == 0 {
		return errors.New("umx produced no stems")
	}
	return nil
}
