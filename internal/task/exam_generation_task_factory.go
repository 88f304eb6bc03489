package task

import (
	"encoding/json"
	"fmt"
)

// ExamGenerationTaskFactory rebuilds executable exam generation tasks
// from persisted job records during recovery.
type ExamGenerationTaskFactory struct {
	deps ExamGenerationDeps
}

// NewExamGenerationTaskFactory creates a factory bound to the task
// dependencies.
func NewExamGenerationTaskFactory(deps ExamGenerationDeps) (*ExamGenerationTaskFactory, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	return &ExamGenerationTaskFactory{deps: deps}, nil
}

var _ TaskFactory = (*ExamGenerationTaskFactory)(nil)

// FromRecord implements TaskFactory. The rebuilt task keeps the
// record's ID so status updates land on the original row.
func (f *ExamGenerationTaskFactory) FromRecord(record JobRecord) (Task, error) {
	if record.Type != TaskTypeExamGeneration {
		return nil, fmt.Errorf("unknown job type %q", record.Type)
	}

	var payload examGenerationPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode job payload: %w", err)
	}

	t, err := NewExamGenerationTask(payload.ExamID, payload.Job, f.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild exam generation task: %w", err)
	}

	t.id = record.ID
	t.status = record.Status
	return t, nil
}
