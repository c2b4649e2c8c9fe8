package recommend

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeArtifacts(t *testing.T, classifier, scaler, vocabulary string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClassifierFile), []byte(classifier), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ScalerFile), []byte(scaler), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, VocabularyFile), []byte(vocabulary), 0o600))
	return dir
}

const validScaler = `{"mean":[0,0,0,0,0],"scale":[1,1,1,1,1]}`

func TestLoadArtifacts(t *testing.T) {
	dir := writeArtifacts(t,
		`{"coefficients":[0,0,-1,0,0,0.5,0.5],"intercept":1}`,
		validScaler,
		`["Machinery","Vehicles"]`,
	)

	a, err := LoadArtifacts(dir)
	require.NoError(t, err)
	require.Equal(t, []string{"Machinery", "Vehicles"}, a.Vocabulary)
	require.Equal(t, 7, a.FeatureWidth())
}

func TestLoadArtifactsShippedModel(t *testing.T) {
	a, err := LoadArtifacts(filepath.Join("..", "..", "models"))
	require.NoError(t, err)
	require.NotEmpty(t, a.Vocabulary)
}

func TestLoadArtifactsErrors(t *testing.T) {
	tests := []struct {
		name                           string
		classifier, scaler, vocabulary string
	}{
		{"coefficient count", `{"coefficients":[1,2,3]}`, validScaler, `["A"]`},
		{"scaler width", `{"coefficients":[0,0,0,0,0,0]}`, `{"mean":[0],"scale":[1]}`, `["A"]`},
		{"duplicate category", `{"coefficients":[0,0,0,0,0,0,0]}`, validScaler, `["A","A"]`},
		{"malformed json", `{`, validScaler, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadArtifacts(writeArtifacts(t, tt.classifier, tt.scaler, tt.vocabulary))
			require.ErrorIs(t, err, ErrArtifactsInvalid)
		})
	}

	_, err := LoadArtifacts(t.TempDir())
	require.Error(t, err)
}
