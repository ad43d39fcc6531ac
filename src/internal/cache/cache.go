// Package cache mirrors fetched challenges so repeated reads skip the store.
// Writers overwrite whatever is cached; there is no coordination between them.
package cache

import (
	"context"
	"fmt"

	"github.com/ce-fello/codeclash-service/src/internal/model"
)

type ChallengeCache interface {
	Get(ctx context.Context, id string) (model.Challenge, bool)
	Put(ctx context.Context, c model.Challenge)
	Invalidate(ctx context.Context, id string)
	GetList(ctx context.Context, key string) (model.ChallengePage, bool)
	PutList(ctx context.Context, key string, page model.ChallengePage)
	InvalidateLists(ctx context.Context)
}

// ListKey identifies a listing query.
func ListKey(f model.ChallengeFilter) string {
	return fmt.Sprintf("t=%s|d=%s|s=%s|c=%s|p=%s|l=%d|k=%s",
		f.Type, f.Difficulty, f.Status, f.CreatorUID, f.Privacy, f.PageSize(), f.Cursor)
}

// Nop never holds anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (model.Challenge, bool) { return model.Challenge{}, false }
func (Nop) Put(context.Context, model.Challenge) {}
func (Nop) Invalidate(context.Context, string) {}
func (Nop) GetList(context.Context, string) (model.ChallengePage, bool) { return model.ChallengePage{}, false }
func (Nop) PutList(context.Context, string, model.ChallengePage) {}
func (Nop) InvalidateLists(context.Context) {}
