// Package flow implements the Flow Store (spec §4.1): canonical
// node/connection tables kept in sync with a denormalized flow_data
// snapshot.
package flow

import (
	"strings"

	"github.com/siddhantprateek/reefline/pkg/models"
)

var tokenToEnum = map[string]models.ConnectionType{
	"DEFAULT": models.ConnectionDefault,
	"SUCCESS": models.ConnectionSuccess,
	"FAILURE": models.ConnectionFailure,
	"$0":      models.ConnectionOption0,
	"$1":      models.ConnectionOption1,
}

var enumToToken = map[models.ConnectionType]string{
	models.ConnectionDefault: "DEFAULT",
	models.ConnectionSuccess: "SUCCESS",
	models.ConnectionFailure: "FAILURE",
	models.ConnectionOption0: "$0",
	models.ConnectionOption1: "$1",
}

// TokenToEnum maps a snapshot wire token to its ConnectionType. Unknown
// tokens (including the legacy "CONDITIONAL") fall back to default.
func TokenToEnum(token string) models.ConnectionType {
	if token == "" {
		return models.ConnectionDefault
	}
	ct, ok := tokenToEnum[strings.ToUpper(token)]
	if !ok {
		return models.ConnectionDefault
	}
	return ct
}

// EnumToToken maps a ConnectionType to its wire token.
func EnumToToken(ct models.ConnectionType) string {
	if tok, ok := enumToToken[ct]; ok {
		return tok
	}
	return "DEFAULT"
}

// ConnIndexToken returns the "$i" token for the i'th option connection,
// used by choice question nodes (spec §4.4) to pick the branch matching
// the selected option index.
func ConnIndexToken(i int) string {
	switch i {
	case 0:
		return "$0"
	case 1:
		return "$1"
	default:
		return "DEFAULT"
	}
}
