package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("WORKMGR_TEST_VAR", "from-env")
	assert.Equal(t, "from-env", EnvOrDefault("WORKMGR_TEST_VAR", "fallback"))
	assert.Equal(t, "fallback", EnvOrDefault("WORKMGR_UNSET_VAR", "fallback"))
}

func TestEnvOrDefaultInt(t *testing.T) {
	t.Setenv("WORKMGR_TEST_INT", "42")
	assert.Equal(t, 42, EnvOrDefaultInt("WORKMGR_TEST_INT", 7))
	assert.Equal(t, 7, EnvOrDefaultInt("WORKMGR_UNSET_INT", 7))
}

func TestEnvOrDefaultInt_NonNumericFallsBack(t *testing.T) {
	t.Setenv("WORKMGR_TEST_BAD_INT", "not-a-number")
	assert.Equal(t, 7, EnvOrDefaultInt("WORKMGR_TEST_BAD_INT", 7))
}

func TestShared_Validate(t *testing.T) {
	valid := Shared{BrokerURL: "amqp://localhost", DBDSN: "postgres://localhost"}
	assert.NoError(t, valid.Validate())

	assert.Error(t, Shared{DBDSN: "postgres://localhost"}.Validate())
	assert.Error(t, Shared{BrokerURL: "amqp://localhost"}.Validate())
}
