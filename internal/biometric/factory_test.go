package biometric

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/config"
)

func testProvidersConfig(provider string) config.ProvidersConfig {
	return config.ProvidersConfig{
		Provider:  provider,
		Local:     config.LocalConfig{ModelsDir: "/models", DistanceThreshold: 0.6, DetectionThreshold: 0.5},
		Simulated: testSimulatedConfig(),
	}
}

func TestNewProviderFallsBackToSimulated(t *testing.T) {
	loader := func(config.LocalConfig) (FaceAnalyzer, error) {
		return nil, errors.New("libonnxruntime.so: cannot open shared object file")
	}

	p, err := NewProvider(testProvidersConfig("local"), WithAnalyzerLoader(loader))
	require.NoError(t, err)

	assert.Equal(t, KindSimulated, p.Kind())
	assert.Equal(t, "Local (Simulated)", p.Name())
	assert.IsType(t, &SimulatedProvider{}, p)
}

func TestNewProviderLocal(t *testing.T) {
	analyzer := &colorAnalyzer{}
	loader := func(cfg config.LocalConfig) (FaceAnalyzer, error) {
		assert.Equal(t, "/models", cfg.ModelsDir)
		return analyzer, nil
	}

	p, err := NewProvider(testProvidersConfig("Local"), WithAnalyzerLoader(loader))
	require.NoError(t, err)
	assert.Equal(t, KindLocal, p.Kind())
	assert.Equal(t, "Local", p.Name())
}

func TestNewProviderSimulated(t *testing.T) {
	p, err := NewProvider(testProvidersConfig("simulated"))
	require.NoError(t, err)
	assert.Equal(t, "Local (Simulated)", p.Name())
}

func TestNewProviderRemoteWithoutCredentialsFailsFast(t *testing.T) {
	called := false
	loader := func(config.LocalConfig) (FaceAnalyzer, error) {
		called = true
		return nil, errors.New("unused")
	}

	_, err := NewProvider(testProvidersConfig("remote"), WithAnalyzerLoader(loader))

	var unavailable *ProviderUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.False(t, called, "no silent fallback for remote")
}

func TestNewProviderRemote(t *testing.T) {
	cfg := testProvidersConfig("remote")
	cfg.Remote = config.RemoteConfig{Endpoint: "https://faces.example.com", APIKey: "k"}

	p, err := NewProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, KindRemote, p.Kind())
	require.NoError(t, p.Close())
}

func TestNewProviderUnknownKind(t *testing.T) {
	_, err := NewProvider(testProvidersConfig("quantum"))
	require.Error(t, err)
}

func TestDefaultLoaderWithoutModelsDir(t *testing.T) {
	_, err := loadONNXAnalyzer(config.LocalConfig{})
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
}
