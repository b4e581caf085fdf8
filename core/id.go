package core

import (
	"github.com/google/uuid"
	"pkt.systems/surveyforge/schema"
)

func newJobID() schema.JobID {
	return schema.JobID(uuid.NewString())
}
