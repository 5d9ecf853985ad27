package exam

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/logger"
	syncx "github.com/mind-engage/examportal/internal/sync"
)

// MyResults lists the caller's published results. Unpublished results do
// not exist from the student's point of view.
func (s *Service) MyResults(ctx context.Context, v Viewer) ([]Result, error) {
	return s.store.ListResults(ctx, ResultFilter{StudentID: v.ID, PublishedOnly: true})
}

func (s *Service) ListResults(ctx context.Context, f ResultFilter) ([]Result, error) {
	return s.store.ListResults(ctx, f)
}

func (s *Service) PublishResult(ctx context.Context, id string) (Result, error) {
	return s.setResultPublished(ctx, id, true)
}

func (s *Service) UnpublishResult(ctx context.Context, id string) (Result, error) {
	return s.setResultPublished(ctx, id, false)
}

func (s *Service) setResultPublished(ctx context.Context, id string, published bool) (Result, error) {
	r, err := s.store.SetResultPublished(ctx, id, published, s.now().UTC())
	if err != nil {
		return Result{}, err
	}
	typ := syncx.TypeResultUnpublished
	if published {
		typ = syncx.TypeResultPublished
	}
	s.record(ctx, typ, id, map[string]any{"examId": r.ExamID, "studentId": r.StudentID})
	return r, nil
}

// DeleteResult removes a result together with its submission.
func (s *Service) DeleteResult(ctx context.Context, id string) error {
	r, err := s.store.DeleteResult(ctx, id)
	if err != nil {
		return err
	}
	s.record(ctx, syncx.TypeResultDeleted, id, map[string]any{"examId": r.ExamID, "submissionId": r.SubmissionID})
	return nil
}

// PublishExamResults publishes every result of an exam.
func (s *Service) PublishExamResults(ctx context.Context, examID string) (BulkReport, error) {
	return s.bulk(ctx, examID, "publish", func(ctx context.Context, id string) error {
		_, err := s.PublishResult(ctx, id)
		return err
	})
}

func (s *Service) UnpublishExamResults(ctx context.Context, examID string) (BulkReport, error) {
	return s.bulk(ctx, examID, "unpublish", func(ctx context.Context, id string) error {
		_, err := s.UnpublishResult(ctx, id)
		return err
	})
}

func (s *Service) DeleteExamResults(ctx context.Context, examID string) (BulkReport, error) {
	return s.bulk(ctx, examID, "delete", s.DeleteResult)
}

// bulk applies op to every result of the exam with at most bulkLimit in
// flight. Each result succeeds or fails on its own; nothing is rolled back.
// The returned error is only for failing to enumerate the results. Failure
// messages in the report are caller safe; unclassified causes are logged.
func (s *Service) bulk(ctx context.Context, examID, action string, op func(context.Context, string) error) (BulkReport, error) {
	if _, err := s.store.GetExam(ctx, examID); err != nil {
		return BulkReport{}, err
	}
	results, err := s.store.ListResults(ctx, ResultFilter{ExamID: examID})
	if err != nil {
		return BulkReport{}, err
	}

	errs := make([]error, len(results))
	var g errgroup.Group
	g.SetLimit(s.bulkLimit)
	for i, r := range results {
		g.Go(func() error {
			errs[i] = op(ctx, r.ID)
			return nil
		})
	}
	_ = g.Wait()

	lg := logger.With("exam_id", examID)
	rep := BulkReport{Succeeded: []string{}, Failed: []BulkFailure{}}
	for i, r := range results {
		if errs[i] != nil {
			if apperr.HTTPStatus(errs[i]) >= 500 {
				lg.Error().Err(errs[i]).Str("result_id", r.ID).Str("action", action).Msg("bulk result item failed")
			}
			rep.Failed = append(rep.Failed, BulkFailure{ID: r.ID, Error: apperr.PublicMessage(errs[i])})
			continue
		}
		rep.Succeeded = append(rep.Succeeded, r.ID)
	}
	lg.Info().Str("action", action).
		Int("succeeded", len(rep.Succeeded)).Int("failed", len(rep.Failed)).Msg("bulk result operation")
	return rep, nil
}
