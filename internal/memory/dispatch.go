package memory

import (
	"context"
	"fmt"
)

// Do runs the operation named by req's type. It lets callers that hold a
// decoded request, such as a tool-call bridge, reach every operation
// through one entry point.
func (s *Service) Do(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case *RecordEventRequest:
		return result(s.RecordEvent(ctx, *r))
	case *BuildContextRequest:
		return result(s.BuildContext(ctx, *r))
	case *ConsolidationRequest:
		return result(s.RunConsolidation(ctx, *r))
	case *GetEventRequest:
		return result(s.GetEvent(ctx, *r))
	case *SearchRequest:
		return result(s.Search(ctx, *r))
	case *RecordEpisodeRequest:
		return result(s.RecordEpisode(ctx, *r))
	case *PutRuleRequest:
		return result(s.PutRule(ctx, *r))
	case *LinkTasksRequest:
		return result(s.LinkTasks(ctx, *r))
	case *UnlinkTasksRequest:
		return result(map[string]bool{"removed": true}, s.UnlinkTasks(ctx, *r))
	case *TaskEdgesRequest:
		return result(s.TaskEdges(ctx, *r))
	case *DeleteTenantRequest:
		return result(s.DeleteTenant(ctx, *r))
	case *LatestReflectionRequest:
		return result(s.LatestReflection(ctx, *r))
	case *ExportTenantRequest:
		return result(s.ExportTenant(ctx, *r))
	case *BackfillRequest:
		n, err := s.BackfillEmbeddings(ctx, *r)
		return result(map[string]int{"embedded": n}, err)
	case *StatsRequest:
		return result(s.Stats(ctx, *r))
	case *ListEpisodesRequest:
		return result(s.ListEpisodes(ctx, *r))
	case *ListPrinciplesRequest:
		return result(s.ListPrinciples(ctx, *r))
	default:
		return nil, fmt.Errorf("%w: unsupported request %T", ErrValidation, req)
	}
}

// result drops the value when err is set so callers never see a typed nil.
func result[T any](v T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}
