package user

import (
	"context"

	"github.com/frahmantamala/accessctl/internal"
	"golang.org/x/sync/errgroup"
)

const (
	BulkStatusOK    = "ok"
	BulkStatusError = "error"
)

// BulkReplaceRoles applies each assignment independently with bounded
// concurrency. There is no rollback: items that succeeded stay applied when
// others fail, and PartialFailure tells the caller so.
func (s *Service) BulkReplaceRoles(ctx context.Context, actor *internal.Principal, dto BulkReplaceRolesDTO) (*BulkReplaceRolesResponse, error) {
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	results := make([]BulkItemResult, len(dto.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.BulkConcurrency)

	for i, item := range dto.Items {
		i, item := i, item
		g.Go(func() error {
			results[i] = s.applyBulkItem(gctx, actor, item)
			return nil
		})
	}
	// Items never return an error, so Wait only synchronises.
	_ = g.Wait()

	resp := &BulkReplaceRolesResponse{Results: results}
	failed := 0
	for _, r := range results {
		if r.Status == BulkStatusError {
			failed++
		}
	}
	resp.PartialFailure = failed > 0

	s.logger.InfoContext(ctx, "bulk role assignment finished",
		"items", len(results),
		"failed", failed)
	return resp, nil
}

func (s *Service) applyBulkItem(ctx context.Context, actor *internal.Principal, item BulkRoleAssignment) BulkItemResult {
	u, err := s.ReplaceRoles(ctx, actor, item.UserID, ReplaceRolesDTO{Roles: item.Roles})
	if err != nil {
		appErr, ok := internal.IsAppError(err)
		if !ok {
			appErr = internal.NewInternalError("failed to replace roles", err)
		}
		return BulkItemResult{UserID: item.UserID, Status: BulkStatusError, Error: appErr}
	}
	return BulkItemResult{UserID: u.ID, Status: BulkStatusOK, Roles: u.Roles}
}
