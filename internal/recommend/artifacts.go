package recommend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Имена файлов артефактов в каталоге модели.
const (
	ClassifierFile = "classifier.json"
	ScalerFile     = "scaler.json"
	VocabularyFile = "vocabulary.json"
)

var ErrArtifactsInvalid = errors.New("invalid model artifacts")

// Artifacts: обученная модель: классификатор, scaler и словарь категорий.
type Artifacts struct {
	Classifier Classifier
	Scaler     Scaler
	// Vocabulary: категории в порядке one-hot колонок BC_<category>.
	Vocabulary []string
}

// FeatureWidth возвращает ожидаемое число признаков классификатора.
func (a Artifacts) FeatureWidth() int {
	return NumericFeatureCount + len(a.Vocabulary)
}

func (a Artifacts) validate() error {
	if a.Classifier == nil {
		return fmt.Errorf("%w: classifier is nil", ErrArtifactsInvalid)
	}
	if a.Scaler == nil {
		return fmt.Errorf("%w: scaler is nil", ErrArtifactsInvalid)
	}
	seen := make(map[string]struct{}, len(a.Vocabulary))
	for _, category := range a.Vocabulary {
		if _, dup := seen[category]; dup {
			return fmt.Errorf("%w: duplicate category %q", ErrArtifactsInvalid, category)
		}
		seen[category] = struct{}{}
	}
	return nil
}

// LoadArtifacts читает артефакты модели из dir. Загружается один раз при старте сервиса.
func LoadArtifacts(dir string) (Artifacts, error) {
	var classifier LogisticClassifier
	if err := readJSON(filepath.Join(dir, ClassifierFile), &classifier); err != nil {
		return Artifacts{}, err
	}
	var scaler StandardScaler
	if err := readJSON(filepath.Join(dir, ScalerFile), &scaler); err != nil {
		return Artifacts{}, err
	}
	var vocabulary []string
	if err := readJSON(filepath.Join(dir, VocabularyFile), &vocabulary); err != nil {
		return Artifacts{}, err
	}

	if err := scaler.validate(); err != nil {
		return Artifacts{}, fmt.Errorf("%w: %v", ErrArtifactsInvalid, err)
	}
	if want := NumericFeatureCount + len(vocabulary); len(classifier.Coefficients) != want {
		return Artifacts{}, fmt.Errorf("%w: classifier has %d coefficients, expected %d",
			ErrArtifactsInvalid, len(classifier.Coefficients), want)
	}

	artifacts := Artifacts{Classifier: classifier, Scaler: scaler, Vocabulary: vocabulary}
	if err := artifacts.validate(); err != nil {
		return Artifacts{}, err
	}
	return artifacts, nil
}

func readJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrArtifactsInvalid, path, err)
	}
	return nil
}
