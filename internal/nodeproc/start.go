package nodeproc

import "github.com/siddhantprateek/reefline/pkg/models"

// StartProcessor is the no-op unique graph root: it unconditionally
// transitions along its default connection (spec §4.4).
type StartProcessor struct{}

func (StartProcessor) Process(pctx ProcessContext) (*StepResult, error) {
	result := newResult()
	result.ConnectionType = models.ConnectionDefault
	result.NextNodeID = selectTarget(pctx.Connections, models.ConnectionDefault)
	return result, nil
}
