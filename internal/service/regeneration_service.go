package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/examgen/examgen-api/internal/domain"
	"github.com/examgen/examgen-api/internal/extract"
	"github.com/examgen/examgen-api/internal/generation"
	"github.com/examgen/examgen-api/internal/store"
)

// Regeneration validation errors.
var (
	ErrMissingDescription = errors.New("regeneration requires a description")
	ErrNoSectionIndexes   = errors.New("scoped regeneration requires at least one section index")
	ErrSectionOutOfRange  = errors.New("section index out of range")
)

// maxUpdateAttempts bounds the refetch-and-retry loop when a write
// loses the optimistic version race.
const maxUpdateAttempts = 3

// RegenerationService is the synchronous regeneration engine: the
// caller waits for the model and receives the updated content in the
// response.
type RegenerationService interface {
	// RegenerateFull replaces the whole exam according to a free-text
	// description. The model output must contain a sections array.
	RegenerateFull(
		ctx context.Context,
		examID uuid.UUID,
		description string,
		contributors []string,
	) (*domain.ExamContent, error)

	// RegenerateSections regenerates only the requested section
	// indexes, each driven by its "section-<index>" feedback entry.
	// Indexes without feedback are skipped. All other sections are
	// carried over untouched.
	RegenerateSections(
		ctx context.Context,
		examID uuid.UUID,
		indexes []int,
		feedback []domain.FeedbackItem,
		contributors []string,
	) (*domain.ExamContent, error)
}

type regenerationServiceImpl struct {
	examStore     store.ExamStore
	client        generation.CompletionClient
	fullParams    generation.Params
	sectionParams generation.Params
	logger        *slog.Logger
}

// NewRegenerationService creates a RegenerationService. fullParams is
// used for whole-exam calls, sectionParams for the smaller scoped
// calls.
func NewRegenerationService(
	examStore store.ExamStore,
	client generation.CompletionClient,
	fullParams generation.Params,
	sectionParams generation.Params,
	logger *slog.Logger,
) (RegenerationService, error) {
	if examStore == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "examStore cannot be nil", Err: ErrNilDependency}
	}
	if client == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "client cannot be nil", Err: ErrNilDependency}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &regenerationServiceImpl{
		examStore:     examStore,
		client:        client,
		fullParams:    fullParams,
		sectionParams: sectionParams,
		logger:        logger.With("component", "regeneration_service"),
	}, nil
}

// RegenerateFull implements RegenerationService.
func (s *regenerationServiceImpl) RegenerateFull(
	ctx context.Context,
	examID uuid.UUID,
	description string,
	contributors []string,
) (*domain.ExamContent, error) {
	if description == "" {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, ErrMissingDescription)
	}

	exam, err := s.examStore.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Content == nil {
		return nil, fmt.Errorf("%w: exam has no content to regenerate", domain.ErrEmptyContent)
	}

	prompt, err := generation.FullRegenerationPrompt(exam.Content, description)
	if err != nil {
		return nil, NewServiceError("regenerate_full", "failed to build prompt", err)
	}

	completion, err := s.client.Complete(ctx, prompt, s.fullParams)
	if err != nil {
		return nil, NewServiceError("regenerate_full", "completion failed", err)
	}

	content, err := extract.ExamContent(completion)
	if err != nil {
		return nil, NewServiceError("regenerate_full", "unusable completion", err)
	}

	// Wholesale replacement: the new tree stands regardless of what a
	// concurrent writer did.
	stored, err := s.commitContent(ctx, exam,
		func(_ *domain.ExamContent) (*domain.ExamContent, error) {
			return content, nil
		}, contributors)
	if err != nil {
		return nil, NewServiceError("regenerate_full", "failed to store regenerated exam", err)
	}

	s.logger.Info("exam fully regenerated", "exam_id", examID)
	return stored, nil
}

// RegenerateSections implements RegenerationService. All indexes are
// validated before the first model call, so an out-of-range index
// aborts the whole request with nothing regenerated.
func (s *regenerationServiceImpl) RegenerateSections(
	ctx context.Context,
	examID uuid.UUID,
	indexes []int,
	feedback []domain.FeedbackItem,
	contributors []string,
) (*domain.ExamContent, error) {
	if len(indexes) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, ErrNoSectionIndexes)
	}

	exam, err := s.examStore.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Content == nil {
		return nil, fmt.Errorf("%w: exam has no content to regenerate", domain.ErrEmptyContent)
	}

	for _, index := range indexes {
		if index < 0 || index >= len(exam.Content.Sections) {
			return nil, fmt.Errorf("%w: %w: %d (exam has %d sections)",
				domain.ErrValidation, ErrSectionOutOfRange, index, len(exam.Content.Sections))
		}
	}

	// Regenerate the requested sections, collecting replacements to
	// splice. An index without feedback is an explicit no-op.
	updated := make(map[int]*domain.Section)
	for _, index := range indexes {
		item, ok := domain.FindFeedback(feedback, index)
		if !ok {
			s.logger.Debug("no feedback for section, skipping",
				"exam_id", examID,
				"section_index", index)
			continue
		}

		section, err := s.regenerateSection(ctx, &exam.Content.Sections[index], item.FeedbackText())
		if err != nil {
			return nil, NewServiceError("regenerate_sections",
				fmt.Sprintf("failed to regenerate section %d", index), err)
		}
		updated[index] = section
	}

	// Every index skipped: nothing changed, nothing to write.
	if len(updated) == 0 {
		return exam.Content, nil
	}

	// Splice against whatever tree is current at commit time, so a
	// retry after a version race keeps the concurrent writer's edits
	// to sections this call never touched.
	stored, err := s.commitContent(ctx, exam,
		func(current *domain.ExamContent) (*domain.ExamContent, error) {
			if current == nil {
				return nil, fmt.Errorf("%w: exam content was removed concurrently",
					store.ErrVersionMismatch)
			}
			for index := range updated {
				if index >= len(current.Sections) {
					return nil, fmt.Errorf("%w: section %d was removed concurrently",
						store.ErrVersionMismatch, index)
				}
			}
			return spliceSections(current, updated), nil
		}, contributors)
	if err != nil {
		return nil, NewServiceError("regenerate_sections", "failed to store regenerated exam", err)
	}

	s.logger.Info("exam sections regenerated",
		"exam_id", examID,
		"sections_updated", len(updated))
	return stored, nil
}

func (s *regenerationServiceImpl) regenerateSection(
	ctx context.Context,
	section *domain.Section,
	feedbackText string,
) (*domain.Section, error) {
	prompt, err := generation.SectionPrompt(section, feedbackText)
	if err != nil {
		return nil, err
	}

	completion, err := s.client.Complete(ctx, prompt, s.sectionParams)
	if err != nil {
		return nil, err
	}

	return extract.Section(completion)
}

// spliceSections copies the content tree with the updated sections in
// place of the originals. Untouched sections are carried over as-is.
func spliceSections(content *domain.ExamContent, updated map[int]*domain.Section) *domain.ExamContent {
	out := *content
	out.Sections = make([]domain.Section, len(content.Sections))
	copy(out.Sections, content.Sections)
	for index, section := range updated {
		out.Sections[index] = *section
	}
	return &out
}

// commitContent writes regenerated content with the optimistic version
// precondition, refetching on conflict and recomputing the new tree
// from the fresh record via apply, so a concurrent writer's changes to
// untouched sections survive the retry. Returns the content that was
// actually stored. One successful call counts as one regeneration
// regardless of how many sections it touched.
func (s *regenerationServiceImpl) commitContent(
	ctx context.Context,
	exam *domain.Exam,
	apply func(current *domain.ExamContent) (*domain.ExamContent, error),
	contributors []string,
) (*domain.ExamContent, error) {
	for attempt := 0; ; attempt++ {
		content, err := apply(exam.Content)
		if err != nil {
			return nil, err
		}

		exam.Content = content
		exam.State = domain.ExamStateReady
		exam.ErrorDetail = ""
		exam.NumRegenerations++
		exam.MergeContributors(contributors)

		err = s.examStore.Update(ctx, exam, exam.Version)
		if err == nil {
			return content, nil
		}
		if !errors.Is(err, store.ErrVersionMismatch) || attempt+1 >= maxUpdateAttempts {
			return nil, err
		}

		s.logger.Warn("regeneration write lost version race, retrying",
			"exam_id", exam.ExamID,
			"attempt", attempt+1)

		exam, err = s.examStore.GetByID(ctx, exam.ExamID)
		if err != nil {
			return nil, err
		}
	}
}
