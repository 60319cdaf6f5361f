package flow

import (
	"testing"

	"github.com/siddhantprateek/reefline/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestTokenToEnumKnownTokens(t *testing.T) {
	assert.Equal(t, models.ConnectionSuccess, TokenToEnum("SUCCESS"))
	assert.Equal(t, models.ConnectionFailure, TokenToEnum("failure"))
	assert.Equal(t, models.ConnectionOption0, TokenToEnum("$0"))
	assert.Equal(t, models.ConnectionOption1, TokenToEnum("$1"))
}

func TestTokenToEnumFallsBackToDefault(t *testing.T) {
	assert.Equal(t, models.ConnectionDefault, TokenToEnum(""))
	assert.Equal(t, models.ConnectionDefault, TokenToEnum("CONDITIONAL"))
	assert.Equal(t, models.ConnectionDefault, TokenToEnum("NOT_A_TOKEN"))
}

func TestEnumToTokenRoundTrips(t *testing.T) {
	for token, enum := range map[string]models.ConnectionType{
		"DEFAULT": models.ConnectionDefault,
		"SUCCESS": models.ConnectionSuccess,
		"FAILURE": models.ConnectionFailure,
		"$0":      models.ConnectionOption0,
		"$1":      models.ConnectionOption1,
	} {
		assert.Equal(t, enum, TokenToEnum(token))
		assert.Equal(t, token, EnumToToken(enum))
	}
}

func TestEnumToTokenUnknownFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "DEFAULT", EnumToToken(models.ConnectionType("bogus")))
}

func TestConnIndexToken(t *testing.T) {
	assert.Equal(t, "$0", ConnIndexToken(0))
	assert.Equal(t, "$1", ConnIndexToken(1))
	assert.Equal(t, "DEFAULT", ConnIndexToken(2))
	assert.Equal(t, "DEFAULT", ConnIndexToken(-1))
}
