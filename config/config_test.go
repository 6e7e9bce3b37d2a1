package config_test

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/gmp-mock-api/config"
)

const testCfg = `
postgres:
  user: test_user
  password: ${POSTGRES_PASSWORD}
  host: test_host
  port: 5432
  database: test_db
log_level: debug
presenter:
  host: 0.0.0.0:3333
queue:
  name: amplifier
  poll_interval: 500ms
  max_attempts: 5
chain:
  mode: rpc
  node: http://localhost:26657
  chain_id: axelar-testnet-lisbon-3
  gas_prices: 0.00005uaxl
  timeout: 20s
relay:
  chain: xrpl
  signing_account: relayer
  multisig_address: axelar1multisig
  prover_address: axelar1prover
alerts:
  stuck_broadcast_after: 2m
`

//nolint:paralleltest
func TestReadConfigWithEnv(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "secret")
	cfg, err := config.ReadConfigWithEnv([]byte(testCfg))
	require.NoError(t, err)
	require.Equal(t, &config.Config{
		DBConfig: &config.DBConfig{
			User:     "test_user",
			Password: "secret",
			Host:     "test_host",
			Port:     5432,
			DB:       "test_db",
		},
		LogLevel: logrus.DebugLevel,
		Presenter: &config.PresenterConfig{
			Host: "0.0.0.0:3333",
		},
		Metrics: &config.MetricsConfig{
			Host: "0.0.0.0:2112",
		},
		Queue: &config.QueueConfig{
			Name:              "amplifier",
			PollInterval:      500 * time.Millisecond,
			VisibilityTimeout: 5 * time.Minute,
			MaxAttempts:       5,
			RetryDelay:        5 * time.Second,
		},
		Chain: &config.ChainConfig{
			Mode:           config.ChainModeRPC,
			Binary:         "axelard",
			Node:           "http://localhost:26657",
			ChainID:        "axelar-testnet-lisbon-3",
			KeyringBackend: "test",
			GasPrices:      "0.00005uaxl",
			GasAdjustment:  "1.4",
			Timeout:        20 * time.Second,
			RetryAttempts:  3,
		},
		Relay: &config.RelayConfig{
			Chain:           "xrpl",
			SigningAccount:  "relayer",
			MultisigAddress: "axelar1multisig",
			ProverAddress:   "axelar1prover",
		},
		Alerts: &config.AlertsConfig{
			Interval:            time.Minute,
			StuckBroadcastAfter: 2 * time.Minute,
		},
	}, cfg)
}

func TestReadConfig_Invalid(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name string
		Cfg  string
	}{
		{
			Name: "missing postgres",
			Cfg:  "relay:\n  chain: xrpl\n  signing_account: relayer\nchain:\n  mode: cli\n  node: http://node:26657\n",
		},
		{
			Name: "missing signing account",
			Cfg:  "postgres:\n  host: db\nrelay:\n  chain: xrpl\nchain:\n  mode: rpc\n  node: http://node:26657\n",
		},
		{
			Name: "unknown chain mode",
			Cfg:  "postgres:\n  host: db\nrelay:\n  chain: xrpl\nchain:\n  mode: grpc\n",
		},
		{
			Name: "cli mode without node",
			Cfg:  "postgres:\n  host: db\nrelay:\n  chain: xrpl\n",
		},
		{
			Name: "missing relay chain",
			Cfg:  "postgres:\n  host: db\nchain:\n  mode: mock\n",
		},
	} {
		test := test
		t.Run(test.Name, func(t *testing.T) {
			t.Parallel()
			t.Logf("Running sub-test %q", test.Name)

			_, err := config.ReadConfig([]byte(test.Cfg))
			require.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestReadConfig_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.ReadConfig([]byte("postgres:\n  host: db\nunknown_section: 1\n"))
	require.Error(t, err)
	require.NotErrorIs(t, err, config.ErrInvalidConfig)
}

func TestReadConfig_MockModeWithoutPostgres(t *testing.T) {
	t.Parallel()

	cfg, err := config.ReadConfig([]byte("relay:\n  chain: xrpl\nchain:\n  mode: mock\n"))
	require.NoError(t, err)
	require.Nil(t, cfg.DBConfig)
	require.Equal(t, config.ChainModeMock, cfg.Chain.Mode)
	require.Equal(t, "0.0.0.0:3000", cfg.Presenter.Host)
}

//nolint:paralleltest
func TestReadConfigWithEnv_ExpandsScalarsOnly(t *testing.T) {
	t.Setenv("POSTGRES_PASSWORD", "se#cret: x")
	t.Setenv("POSTGRES_PORT", "6432")
	cfg, err := config.ReadConfigWithEnv([]byte(`
# owner: $USER
postgres:
  user: test_user
  password: ${POSTGRES_PASSWORD}
  host: test_host
  port: ${POSTGRES_PORT}
  database: test_db
chain:
  mode: mock
`))
	require.NoError(t, err)
	require.Equal(t, "se#cret: x", cfg.DBConfig.Password)
	require.Equal(t, 6432, cfg.DBConfig.Port)
}
