package common

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig_FailToReadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := LoadConfig(fs, "nonexistent.yaml")
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestLoadConfig_InvalidYaml(t *testing.T) {
	fs := afero.NewMemMapFs()
	cfg, err := afero.TempFile(fs, "", "walletrpc.yaml")
	if err != nil {
		t.Fatal(err)
	}
	cfg.WriteString("invalid yaml")

	_, err = LoadConfig(fs, cfg.Name())
	if err == nil {
		t.Error("expected error, got nil")
	}
}

func TestLoadConfig_ValidYaml(t *testing.T) {
	t.Setenv("WALLETRPC_TEST_KEY", "s3cr3t")

	fs := afero.NewMemMapFs()
	cfg, err := afero.TempFile(fs, "", "walletrpc.yaml")
	if err != nil {
		t.Fatal(err)
	}
	cfg.WriteString(`
logLevel: DEBUG
server:
  httpPort: 8545
networks:
  - chainId: 137
    endpoints:
      - https://polygon.example.com/v2/${WALLETRPC_TEST_KEY}
      - https://polygon-backup.example.com
    client:
      timeout: 2s
      rateLimitRps: 5
    multicall:
      initialBatchSize: 50
      debounceWindow: 40
`)

	loaded, err := LoadConfig(fs, cfg.Name())
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", loaded.LogLevel)
	assert.Equal(t, 8545, loaded.Server.HttpPort)
	assert.Equal(t, "0.0.0.0", loaded.Server.HttpHost)

	nw := loaded.GetNetworkConfig("evm:137")
	require.NotNil(t, nw)
	assert.Equal(t, "https://polygon.example.com/v2/s3cr3t", nw.Endpoints[0])
	assert.Equal(t, 2*time.Second, nw.Client.Timeout.Duration())
	assert.Equal(t, 5, nw.Client.RateLimitBurst)
	assert.Equal(t, DefaultMaxAttempts, nw.Failsafe.Retry.MaxAttempts)
	assert.Equal(t, 50, nw.Multicall.InitialBatchSize)
	assert.Equal(t, DefaultMulticallMinBatch, nw.Multicall.MinBatchSize)
	assert.Equal(t, DefaultMulticallShrinkFactor, nw.Multicall.ShrinkFactor)
	assert.Equal(t, 40*time.Millisecond, nw.Multicall.DebounceWindow.Duration())
	assert.True(t, *nw.Multicall.Enabled)

	assert.Nil(t, loaded.GetNetworkConfig("evm:1"))
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	cases := map[string]time.Duration{
		`150ms`: 150 * time.Millisecond,
		`"1m"`:  time.Minute,
		`250`:   250 * time.Millisecond,
	}
	for in, want := range cases {
		var d Duration
		require.NoError(t, yaml.Unmarshal([]byte(in), &d), in)
		assert.Equal(t, want, d.Duration(), in)
	}

	var d Duration
	assert.Error(t, yaml.Unmarshal([]byte(`soon`), &d))
}

func TestMulticallConfig_SetDefaults(t *testing.T) {
	t.Run("MinAboveInitialIsCapped", func(t *testing.T) {
		m := &MulticallConfig{InitialBatchSize: 5, MinBatchSize: 20}
		require.NoError(t, m.SetDefaults())
		assert.Equal(t, 5, m.MinBatchSize)
	})

	t.Run("ShrinkFactorOutOfRange", func(t *testing.T) {
		m := &MulticallConfig{ShrinkFactor: 1.5}
		require.NoError(t, m.SetDefaults())
		assert.Equal(t, DefaultMulticallShrinkFactor, m.ShrinkFactor)
		assert.Equal(t, DefaultMulticallInitialBatch, m.InitialBatchSize)
		assert.Equal(t, DefaultMulticallDebounce, m.DebounceWindow.Duration())
	})
}

func TestConfig_Validate(t *testing.T) {
	build := func(networks ...*NetworkConfig) *Config {
		cfg := &Config{Networks: networks}
		require.NoError(t, cfg.SetDefaults())
		return cfg
	}

	cases := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{
			name: "Valid",
			cfg:  build(&NetworkConfig{ChainId: 1, Endpoints: []string{"https://a.example.com"}}),
		},
		{
			name:    "MissingChainId",
			cfg:     build(&NetworkConfig{Endpoints: []string{"https://a.example.com"}}),
			wantErr: "id or network.*.chainId is required",
		},
		{
			name:    "BadNetworkId",
			cfg:     build(&NetworkConfig{Id: "my network", ChainId: 1, Endpoints: []string{"https://a.example.com"}}),
			wantErr: "must only contain alphanumeric",
		},
		{
			name:    "NoEndpoints",
			cfg:     build(&NetworkConfig{ChainId: 1}),
			wantErr: "at least one endpoint",
		},
		{
			name:    "RelativeUrl",
			cfg:     build(&NetworkConfig{ChainId: 1, Endpoints: []string{"/rpc"}}),
			wantErr: "invalid endpoint url",
		},
		{
			name:    "DuplicateEndpoint",
			cfg:     build(&NetworkConfig{ChainId: 1, Endpoints: []string{"https://a.example.com", "https://a.example.com"}}),
			wantErr: "same endpoint twice",
		},
		{
			name: "DuplicateNetwork",
			cfg: build(
				&NetworkConfig{ChainId: 1, Endpoints: []string{"https://a.example.com"}},
				&NetworkConfig{ChainId: 1, Endpoints: []string{"https://b.example.com"}},
			),
			wantErr: "defined more than once",
		},
		{
			name: "BadMulticallAddress",
			cfg: build(&NetworkConfig{
				ChainId:   1,
				Endpoints: []string{"https://a.example.com"},
				Multicall: &MulticallConfig{Address: "0x1234"},
			}),
			wantErr: "invalid multicall.address",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, HasErrorCode(err, ErrCodeInvalidConfig))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
